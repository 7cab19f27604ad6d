package database

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionTokenRoundTrip(t *testing.T) {
	encoded := encodeToken(positionToken("post_id", "p-1", 1700000000123))
	require.NotEmpty(t, encoded)

	decoded, err := decodeToken(encoded)
	require.NoError(t, err)

	key, ts, err := decoded.position("post_id")
	require.NoError(t, err)
	assert.Equal(t, "p-1", key)
	assert.Equal(t, int64(1700000000123), ts)
}

func TestDecodeTokenEmpty(t *testing.T) {
	tok, err := decodeToken("")
	require.NoError(t, err)
	assert.Nil(t, tok)
	assert.Empty(t, encodeToken(nil))
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("not json")),
		base64.RawURLEncoding.EncodeToString([]byte("{}")),
		base64.RawURLEncoding.EncodeToString([]byte(`{"post_id":{}}`)),
		base64.RawURLEncoding.EncodeToString([]byte(`{"post_id":{"S":"a","N":"1"}}`)),
	} {
		_, err := decodeToken(raw)
		assert.ErrorIs(t, err, ErrInvalidToken, raw)
	}
}

func TestTokenPositionMissingAttributes(t *testing.T) {
	s := "p"
	_, _, err := token{"post_id": {S: &s}}.position("post_id")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = positionToken("comment_id", "c", 1).position("post_id")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
