package models

import "time"

type EventType string

const (
	EventPostCreated    EventType = "post.created"
	EventPostDeleted    EventType = "post.deleted"
	EventCommentCreated EventType = "comment.created"
	EventPostReacted    EventType = "post.reacted"
	EventCommentReacted EventType = "comment.reacted"
	EventUserPropagated EventType = "user.propagated"
)

// TimelineEvent is published after a timeline write succeeds.
type TimelineEvent struct {
	Type       EventType    `json:"type"`
	PostID     string       `json:"post_id,omitempty"`
	CommentID  string       `json:"comment_id,omitempty"`
	UUID       string       `json:"uuid,omitempty"`
	Reaction   ReactionType `json:"reaction,omitempty"`
	Label      string       `json:"label,omitempty"`
	Outcome    string       `json:"outcome,omitempty"`
	Updated    int          `json:"updated,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}
