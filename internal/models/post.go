package models

// PKForAllPost is the constant partition value of the "all posts" index.
const PKForAllPost = "ALL"

// PostItem is a timeline post. Author display fields are denormalized copies
// kept in sync by the user info propagation sweep.
type PostItem struct {
	PostID            string    `gorm:"column:post_id;primaryKey" dynamodbav:"post_id" json:"post_id"`
	UUID              string    `gorm:"column:uuid;index:idx_posts_by_user,priority:1" dynamodbav:"uuid" json:"uuid"`
	UserName          string    `gorm:"column:user_name" dynamodbav:"user_name" json:"user_name"`
	UserProfileImgURL string    `gorm:"column:user_profile_img_url" dynamodbav:"user_profile_img_url" json:"user_profile_img_url"`
	Content           string    `gorm:"column:content" dynamodbav:"content" json:"content"`
	ImageURL          string    `gorm:"column:image_url" dynamodbav:"image_url,omitempty" json:"image_url,omitempty"`
	CommentCount      int64     `gorm:"column:comment_count;not null;default:0" dynamodbav:"comment_count" json:"comment_count"`
	Reactions         Reactions `gorm:"column:reactions;type:jsonb" dynamodbav:"reactions" json:"reactions"`
	IsDeleted         bool      `gorm:"column:is_deleted;not null;default:false" dynamodbav:"is_deleted" json:"is_deleted"`
	Timestamp         int64     `gorm:"column:timestamp;index:idx_posts_all,priority:2;index:idx_posts_by_user,priority:2" dynamodbav:"timestamp" json:"timestamp"`
	PKForAllPostGSI   string    `gorm:"column:pk_for_all_post_gsi;index:idx_posts_all,priority:1" dynamodbav:"pk_for_all_post_gsi" json:"pk_for_all_post_gsi"`
	Version           int64     `gorm:"column:version;not null;default:0" dynamodbav:"version" json:"version"`
}

func (PostItem) TableName() string {
	return "timeline_posts"
}

type CreatePostRequest struct {
	UUID              string `json:"uuid"`
	UserName          string `json:"user_name" binding:"required"`
	UserProfileImgURL string `json:"user_profile_img_url"`
	Content           string `json:"content" binding:"required"`
	ImageURL          string `json:"image_url"`
}
