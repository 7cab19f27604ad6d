package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactionTypeLabelIsTotal(t *testing.T) {
	for _, rt := range ReactionTypes {
		assert.True(t, rt.Valid(), rt)
		assert.NotEmpty(t, rt.Label(), rt)
	}
	assert.False(t, ReactionType("ANGRY").Valid())
	assert.Empty(t, ReactionType("ANGRY").Label())
}

func TestParseReactionType(t *testing.T) {
	rt, err := ParseReactionType("LOVE")
	require.NoError(t, err)
	assert.Equal(t, ReactionLove, rt)

	_, err = ParseReactionType("like")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LAUGH")
	assert.False(t, ReactionType("like").Valid())
}

func TestReactionsValueAndScan(t *testing.T) {
	v, err := Reactions(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	in := Reactions{{UUID: "u1", Type: ReactionLike}, {UUID: "u2", Type: ReactionSad}}
	v, err = in.Value()
	require.NoError(t, err)

	var out Reactions
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)

	require.NoError(t, out.Scan([]byte("null")))
	assert.Equal(t, Reactions{}, out)

	require.NoError(t, out.Scan(nil))
	assert.Equal(t, Reactions{}, out)

	assert.Error(t, out.Scan(42))
}
