package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/config"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/models"
)

// DynamoDBClient is the subset of *dynamodb.Client the store uses.
type DynamoDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

var _ DynamoDBClient = (*dynamodb.Client)(nil)

// DynamoStore keeps posts and comments in two DynamoDB tables with one GSI
// per Index.
type DynamoStore struct {
	client   DynamoDBClient
	posts    *dynamoTable[models.PostItem]
	comments *dynamoTable[models.CommentItem]
}

// NewDynamoDBClient loads AWS configuration. Static credentials and a custom
// endpoint (DynamoDB Local) are used when configured.
func NewDynamoDBClient(ctx context.Context, cfg config.DynamoDBConfig) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// NewDynamoStore binds the timeline tables of the given stage.
func NewDynamoStore(client DynamoDBClient, stage string) *DynamoStore {
	return &DynamoStore{
		client:   client,
		posts:    newDynamoTable(client, postSchema, stage),
		comments: newDynamoTable(client, commentSchema, stage),
	}
}

func (s *DynamoStore) Posts() Table[models.PostItem]       { return s.posts }
func (s *DynamoStore) Comments() Table[models.CommentItem] { return s.comments }

func (s *DynamoStore) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stats := map[string]string{"driver": "dynamodb", "status": "up"}
	for _, table := range []string{s.posts.table, s.comments.table} {
		out, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
		if err != nil {
			stats["status"] = "down"
			stats["error"] = fmt.Sprintf("%s: %v", table, err)
			return stats
		}
		stats[table] = string(out.Table.TableStatus)
	}
	return stats
}

func (s *DynamoStore) Close() error { return nil }

// EnsureTables creates both tables and their indexes when missing.
func (s *DynamoStore) EnsureTables(ctx context.Context) error {
	if err := s.posts.ensure(ctx); err != nil {
		return err
	}
	return s.comments.ensure(ctx)
}

type dynamoTable[T any] struct {
	client  DynamoDBClient
	schema  schema[T]
	table   string
	indexes map[Index]string
}

func newDynamoTable[T any](client DynamoDBClient, s schema[T], stage string) *dynamoTable[T] {
	indexes := make(map[Index]string, len(s.indexes))
	for idx := range s.indexes {
		indexes[idx] = fmt.Sprintf("terakoya-%s-timeline-%s", stage, idx)
	}
	return &dynamoTable[T]{
		client:  client,
		schema:  s,
		table:   fmt.Sprintf("terakoya-%s-timeline-%s", stage, s.name),
		indexes: indexes,
	}
}

func (t *dynamoTable[T]) keyOf(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		t.schema.key: &types.AttributeValueMemberS{Value: key},
	}
}

func (t *dynamoTable[T]) Get(ctx context.Context, key string) (T, error) {
	var item T
	resp, err := t.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.table),
		Key:            t.keyOf(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return item, classifyDynamo(fmt.Errorf("error getting %s %s: %w", t.schema.name, key, err))
	}
	if resp.Item == nil {
		return item, ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(legacyFlags(resp.Item), &item); err != nil {
		return item, fmt.Errorf("error unmarshalling %s: %w", t.schema.name, err)
	}
	return item, nil
}

func (t *dynamoTable[T]) Put(ctx context.Context, item T) error {
	if t.schema.keyOf(item) == "" {
		return fmt.Errorf("%s item has empty %s", t.schema.name, t.schema.key)
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("error marshalling %s: %w", t.schema.name, err)
	}
	_, err = t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.table),
		Item:      av,
	})
	if err != nil {
		return classifyDynamo(fmt.Errorf("error putting %s: %w", t.schema.name, err))
	}
	return nil
}

func (t *dynamoTable[T]) UpdateSet(ctx context.Context, key string, attrs map[string]any, conds ...Condition) error {
	if len(attrs) == 0 {
		return fmt.Errorf("no attributes to update on %s %s", t.schema.name, key)
	}
	names := map[string]string{"#pk": t.schema.key}
	values := map[string]types.AttributeValue{}

	update := "SET "
	for i, name := range slices.Sorted(maps.Keys(attrs)) {
		av, err := attributevalue.Marshal(attrs[name])
		if err != nil {
			return fmt.Errorf("error marshalling %s: %w", name, err)
		}
		n, v := "#a"+strconv.Itoa(i), ":a"+strconv.Itoa(i)
		names[n] = name
		values[v] = av
		if i > 0 {
			update += ", "
		}
		update += n + " = " + v
	}

	cond := "attribute_exists(#pk)"
	for i, c := range conds {
		av, err := attributevalue.Marshal(c.Equals)
		if err != nil {
			return fmt.Errorf("error marshalling condition %s: %w", c.Attr, err)
		}
		n, v := "#c"+strconv.Itoa(i), ":c"+strconv.Itoa(i)
		names[n] = c.Attr
		values[v] = av
		if isZeroNumber(av) {
			// items written before the attribute existed count as zero
			cond += fmt.Sprintf(" AND (attribute_not_exists(%s) OR %s = %s)", n, n, v)
		} else {
			cond += fmt.Sprintf(" AND %s = %s", n, v)
		}
	}

	_, err := t.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(t.table),
		Key:                       t.keyOf(key),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err == nil {
		return nil
	}
	if isConditionalCheckFailed(err) {
		if len(conds) == 0 {
			return ErrNotFound
		}
		if _, gerr := t.Get(ctx, key); gerr != nil {
			return gerr
		}
		return ErrConditionFailed
	}
	return classifyDynamo(fmt.Errorf("error updating %s %s: %w", t.schema.name, key, err))
}

func (t *dynamoTable[T]) UpdateIncrement(ctx context.Context, key, attr string, delta int64) error {
	_, err := t.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(t.table),
		Key:                 t.keyOf(key),
		UpdateExpression:    aws.String("ADD #attr :delta"),
		ConditionExpression: aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk":   t.schema.key,
			"#attr": attr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":delta": &types.AttributeValueMemberN{Value: strconv.FormatInt(delta, 10)},
		},
	})
	if err == nil {
		return nil
	}
	if isConditionalCheckFailed(err) {
		return ErrNotFound
	}
	return classifyDynamo(fmt.Errorf("error incrementing %s on %s %s: %w", attr, t.schema.name, key, err))
}

func (t *dynamoTable[T]) Query(ctx context.Context, q Query) (Page[T], error) {
	var page Page[T]
	partAttr, err := t.schema.partitionAttr(q.Index)
	if err != nil {
		return page, err
	}
	start, err := decodeToken(q.StartToken)
	if err != nil {
		return page, err
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(t.table),
		IndexName:              aws.String(t.indexes[q.Index]),
		KeyConditionExpression: aws.String("#part = :value"),
		ExpressionAttributeNames: map[string]string{
			"#part": partAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":value": &types.AttributeValueMemberS{Value: q.PartitionValue},
		},
		// descending on the timestamp sort key means latest first
		ScanIndexForward:  aws.Bool(q.ScanForward),
		ExclusiveStartKey: tokenToKey(start),
	}
	if q.Limit > 0 {
		input.Limit = aws.Int32(q.Limit)
	}

	page.Items = make([]T, 0)
	for {
		resp, err := t.client.Query(ctx, input)
		if err != nil {
			return Page[T]{}, classifyDynamo(fmt.Errorf("error querying %s: %w", t.indexes[q.Index], err))
		}
		for _, raw := range resp.Items {
			legacyFlags(raw)
		}
		var items []T
		if err := attributevalue.UnmarshalListOfMaps(resp.Items, &items); err != nil {
			return Page[T]{}, fmt.Errorf("error unmarshalling %s items: %w", t.schema.name, err)
		}
		page.Items = append(page.Items, items...)

		if q.Limit > 0 {
			page.NextToken = encodeToken(keyToToken(resp.LastEvaluatedKey))
			return page, nil
		}
		if len(resp.LastEvaluatedKey) == 0 {
			return page, nil
		}
		input.ExclusiveStartKey = resp.LastEvaluatedKey
	}
}

func (t *dynamoTable[T]) ensure(ctx context.Context) error {
	_, err := t.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.table)})
	if err == nil {
		log.Printf("✅ Table %s exists", t.table)
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("error describing table %s: %w", t.table, err)
	}

	attrs := []types.AttributeDefinition{
		{AttributeName: aws.String(t.schema.key), AttributeType: types.ScalarAttributeTypeS},
		{AttributeName: aws.String(sortKey), AttributeType: types.ScalarAttributeTypeN},
	}
	var gsis []types.GlobalSecondaryIndex
	for _, idx := range slices.Sorted(maps.Keys(t.schema.indexes)) {
		part := t.schema.indexes[idx]
		if part != t.schema.key {
			attrs = append(attrs, types.AttributeDefinition{
				AttributeName: aws.String(part), AttributeType: types.ScalarAttributeTypeS,
			})
		}
		gsis = append(gsis, types.GlobalSecondaryIndex{
			IndexName: aws.String(t.indexes[idx]),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(part), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(sortKey), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}

	log.Printf("Creating table %s...", t.table)
	_, err = t.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:              aws.String(t.table),
		AttributeDefinitions:   attrs,
		KeySchema:              []types.KeySchemaElement{{AttributeName: aws.String(t.schema.key), KeyType: types.KeyTypeHash}},
		GlobalSecondaryIndexes: gsis,
		BillingMode:            types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("error creating table %s: %w", t.table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(t.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(t.table)}, 2*time.Minute); err != nil {
		return fmt.Errorf("error waiting for table %s: %w", t.table, err)
	}
	log.Printf("✅ Table %s created", t.table)
	return nil
}

func tokenToKey(t token) map[string]types.AttributeValue {
	if t == nil {
		return nil
	}
	key := make(map[string]types.AttributeValue, len(t))
	for name, v := range t {
		if v.S != nil {
			key[name] = &types.AttributeValueMemberS{Value: *v.S}
		} else {
			key[name] = &types.AttributeValueMemberN{Value: *v.N}
		}
	}
	return key
}

func keyToToken(key map[string]types.AttributeValue) token {
	if len(key) == 0 {
		return nil
	}
	t := make(token, len(key))
	for name, av := range key {
		switch v := av.(type) {
		case *types.AttributeValueMemberS:
			s := v.Value
			t[name] = tokenValue{S: &s}
		case *types.AttributeValueMemberN:
			n := v.Value
			t[name] = tokenValue{N: &n}
		}
	}
	return t
}

// flagAttrs are booleans that older writers stored as the numbers 0 and 1.
var flagAttrs = []string{"is_deleted"}

// legacyFlags rewrites numeric flags in item to BOOL in place.
func legacyFlags(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	for _, name := range flagAttrs {
		if n, ok := item[name].(*types.AttributeValueMemberN); ok {
			item[name] = &types.AttributeValueMemberBOOL{Value: n.Value != "0"}
		}
	}
	return item
}

func isZeroNumber(av types.AttributeValue) bool {
	n, ok := av.(*types.AttributeValueMemberN)
	return ok && n.Value == "0"
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

var retryableDynamoCodes = map[string]bool{
	"ProvisionedThroughputExceededException": true,
	"ThrottlingException":                    true,
	"RequestLimitExceeded":                   true,
	"InternalServerError":                    true,
	"ServiceUnavailable":                     true,
	"TransactionConflictException":           true,
}

// classifyDynamo marks throttling and service-side failures as ErrUnavailable.
func classifyDynamo(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if retryableDynamoCodes[apiErr.ErrorCode()] || apiErr.ErrorFault() == smithy.FaultServer {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}
	var opErr *smithy.OperationError
	if errors.As(err, &opErr) {
		// transport level failure: no API error was decoded
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
