package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
)

// ReactionType is the closed set of reactions a user can leave.
type ReactionType string

const (
	ReactionLike  ReactionType = "LIKE"
	ReactionLove  ReactionType = "LOVE"
	ReactionLaugh ReactionType = "LAUGH"
	ReactionSad   ReactionType = "SAD"
)

// ReactionTypes lists every valid reaction type in display order.
var ReactionTypes = []ReactionType{ReactionLike, ReactionLove, ReactionLaugh, ReactionSad}

func (t ReactionType) Valid() bool {
	return slices.Contains(ReactionTypes, t)
}

// Label maps a reaction type to the emoji shown by clients.
func (t ReactionType) Label() string {
	switch t {
	case ReactionLike:
		return "👍"
	case ReactionLove:
		return "❤️"
	case ReactionLaugh:
		return "😂"
	case ReactionSad:
		return "😢"
	}
	return ""
}

func ParseReactionType(s string) (ReactionType, error) {
	t := ReactionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown reaction type %q, expected one of %v", s, ReactionTypes)
	}
	return t, nil
}

// Reaction is a single user's reaction on a post or comment.
type Reaction struct {
	UUID string       `dynamodbav:"uuid" json:"uuid"`
	Type ReactionType `dynamodbav:"type" json:"type"`
}

type ReactionRequest struct {
	UUID string `json:"uuid"`
	Type string `json:"type" binding:"required"`
}

// Reactions is stored as a single JSON column by relational backends.
type Reactions []Reaction

func (r Reactions) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *Reactions) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*r = Reactions{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Reactions", src)
	}
	var out Reactions
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("error decoding reactions: %w", err)
	}
	if out == nil {
		out = Reactions{}
	}
	*r = out
	return nil
}
