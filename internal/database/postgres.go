package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/models"
)

// PostgresStore keeps the timeline collections in two Postgres tables.
type PostgresStore struct {
	db       *gorm.DB
	posts    *gormTable[models.PostItem]
	comments *gormTable[models.CommentItem]
}

// NewPostgresStore connects, migrates the schema and configures the pool.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	log.Println("✅ Database connected successfully")

	if err := db.AutoMigrate(&models.PostItem{}, &models.CommentItem{}); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	log.Println("✅ Database migrations completed")

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("error getting database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &PostgresStore{
		db:       db,
		posts:    &gormTable[models.PostItem]{db: db, schema: postSchema},
		comments: &gormTable[models.CommentItem]{db: db, schema: commentSchema},
	}, nil
}

func (s *PostgresStore) Posts() Table[models.PostItem]       { return s.posts }
func (s *PostgresStore) Comments() Table[models.CommentItem] { return s.comments }

// Health pings the pool and counts the rows of both timeline tables, which
// also confirms the migrations ran.
func (s *PostgresStore) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stats := map[string]string{"driver": "postgres", "status": "down"}

	sqlDB, err := s.db.DB()
	if err != nil {
		stats["error"] = fmt.Sprintf("no connection pool: %v", err)
		return stats
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		stats["error"] = fmt.Sprintf("ping failed: %v", err)
		return stats
	}

	for _, m := range []interface{ TableName() string }{models.PostItem{}, models.CommentItem{}} {
		var rows int64
		if err := s.db.WithContext(ctx).Table(m.TableName()).Count(&rows).Error; err != nil {
			stats["error"] = fmt.Sprintf("%s unreadable: %v", m.TableName(), err)
			return stats
		}
		stats[m.TableName()+"_rows"] = fmt.Sprintf("%d", rows)
	}

	pool := sqlDB.Stats()
	stats["status"] = "up"
	stats["pool_open"] = fmt.Sprintf("%d/%d", pool.OpenConnections, pool.MaxOpenConnections)
	stats["pool_wait_count"] = fmt.Sprintf("%d", pool.WaitCount)
	return stats
}

// Close drains the connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("error closing postgres store: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("error closing postgres store: %w", err)
	}
	log.Println("✅ Postgres timeline store closed")
	return nil
}

type gormTable[T any] struct {
	db     *gorm.DB
	schema schema[T]
}

func (t *gormTable[T]) keyColumn() clause.Column {
	return clause.Column{Name: t.schema.key}
}

func (t *gormTable[T]) Get(ctx context.Context, key string) (T, error) {
	var item T
	err := t.db.WithContext(ctx).
		Where(clause.Eq{Column: t.keyColumn(), Value: key}).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return item, ErrNotFound
	}
	return item, classifyPostgres(err)
}

func (t *gormTable[T]) Put(ctx context.Context, item T) error {
	if t.schema.keyOf(item) == "" {
		return fmt.Errorf("%s item has empty %s", t.schema.name, t.schema.key)
	}
	err := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&item).Error
	return classifyPostgres(err)
}

func (t *gormTable[T]) UpdateSet(ctx context.Context, key string, attrs map[string]any, conds ...Condition) error {
	tx := t.db.WithContext(ctx).Model(new(T)).
		Where(clause.Eq{Column: t.keyColumn(), Value: key})
	for _, c := range conds {
		tx = tx.Where(clause.Eq{Column: clause.Column{Name: c.Attr}, Value: c.Equals})
	}

	res := tx.Updates(attrs)
	if res.Error != nil {
		return classifyPostgres(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if len(conds) == 0 {
		return ErrNotFound
	}
	if _, err := t.Get(ctx, key); err != nil {
		return err
	}
	return ErrConditionFailed
}

func (t *gormTable[T]) UpdateIncrement(ctx context.Context, key, attr string, delta int64) error {
	col := clause.Column{Name: attr}
	res := t.db.WithContext(ctx).Model(new(T)).
		Where(clause.Eq{Column: t.keyColumn(), Value: key}).
		UpdateColumn(attr, gorm.Expr("COALESCE(?, 0) + ?", col, delta))
	if res.Error != nil {
		return classifyPostgres(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTable[T]) Query(ctx context.Context, q Query) (Page[T], error) {
	var page Page[T]
	partAttr, err := t.schema.partitionAttr(q.Index)
	if err != nil {
		return page, err
	}
	start, err := decodeToken(q.StartToken)
	if err != nil {
		return page, err
	}

	desc := !q.ScanForward
	tx := t.db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: partAttr}, Value: q.PartitionValue}).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: sortKey}, Desc: desc},
			{Column: t.keyColumn(), Desc: desc},
		}})

	if start != nil {
		key, ts, err := start.position(t.schema.key)
		if err != nil {
			return page, err
		}
		op := ">"
		if desc {
			op = "<"
		}
		tx = tx.Where(fmt.Sprintf("(?, ?) %s (?, ?)", op),
			clause.Column{Name: sortKey}, t.keyColumn(), ts, key)
	}
	if q.Limit > 0 {
		tx = tx.Limit(int(q.Limit) + 1)
	}

	items := make([]T, 0)
	if err := tx.Find(&items).Error; err != nil {
		return page, classifyPostgres(err)
	}

	if q.Limit > 0 && len(items) > int(q.Limit) {
		items = items[:q.Limit]
		last := items[len(items)-1]
		page.NextToken = encodeToken(positionToken(t.schema.key, t.schema.keyOf(last), t.schema.sortOf(last)))
	}
	page.Items = items
	return page, nil
}

// classifyPostgres marks connection, contention and shutdown errors as
// ErrUnavailable.
func classifyPostgres(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "08",
			pgErr.Code == "40001", pgErr.Code == "40P01",
			pgErr.Code == "53300", pgErr.Code == "57P01",
			pgErr.Code == "57P02", pgErr.Code == "57P03":
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
