package database

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// tokenValue is a scalar attribute of the last evaluated item.
type tokenValue struct {
	S *string `json:"S,omitempty"`
	N *string `json:"N,omitempty"`
}

// token holds the attributes of the last item a query returned. Clients see
// it only in encoded form.
type token map[string]tokenValue

func encodeToken(t token) string {
	if len(t) == 0 {
		return ""
	}
	b, _ := json.Marshal(t)
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeToken(s string) (token, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var t token
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if len(t) == 0 {
		return nil, ErrInvalidToken
	}
	for name, v := range t {
		if (v.S == nil) == (v.N == nil) {
			return nil, fmt.Errorf("%w: attribute %s must hold exactly one of S or N", ErrInvalidToken, name)
		}
	}
	return t, nil
}

// positionToken records a (key, timestamp) position for backends that page
// by keyset.
func positionToken(keyAttr, key string, ts int64) token {
	n := strconv.FormatInt(ts, 10)
	return token{
		keyAttr: {S: &key},
		sortKey: {N: &n},
	}
}

func (t token) position(keyAttr string) (string, int64, error) {
	k, ok := t[keyAttr]
	if !ok || k.S == nil {
		return "", 0, fmt.Errorf("%w: missing %s", ErrInvalidToken, keyAttr)
	}
	ts, ok := t[sortKey]
	if !ok || ts.N == nil {
		return "", 0, fmt.Errorf("%w: missing %s", ErrInvalidToken, sortKey)
	}
	n, err := strconv.ParseInt(*ts.N, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return *k.S, n, nil
}
