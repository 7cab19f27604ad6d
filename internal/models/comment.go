package models

// CommentItem belongs to a post through PostID. The reference is not
// enforced by the store.
type CommentItem struct {
	CommentID         string    `gorm:"column:comment_id;primaryKey" dynamodbav:"comment_id" json:"comment_id"`
	PostID            string    `gorm:"column:post_id;index:idx_comments_for_post,priority:1" dynamodbav:"post_id" json:"post_id"`
	UUID              string    `gorm:"column:uuid;index:idx_comments_by_user,priority:1" dynamodbav:"uuid" json:"uuid"`
	UserName          string    `gorm:"column:user_name" dynamodbav:"user_name" json:"user_name"`
	UserProfileImgURL string    `gorm:"column:user_profile_img_url" dynamodbav:"user_profile_img_url" json:"user_profile_img_url"`
	Content           string    `gorm:"column:content" dynamodbav:"content" json:"content"`
	Reactions         Reactions `gorm:"column:reactions;type:jsonb" dynamodbav:"reactions" json:"reactions"`
	Timestamp         int64     `gorm:"column:timestamp;index:idx_comments_for_post,priority:2;index:idx_comments_by_user,priority:2" dynamodbav:"timestamp" json:"timestamp"`
	Version           int64     `gorm:"column:version;not null;default:0" dynamodbav:"version" json:"version"`
}

func (CommentItem) TableName() string {
	return "timeline_comments"
}

type CreateCommentRequest struct {
	UUID              string `json:"uuid"`
	UserName          string `json:"user_name" binding:"required"`
	UserProfileImgURL string `json:"user_profile_img_url"`
	Content           string `json:"content" binding:"required"`
}
