package models

// UserInfo carries the author display fields copied into posts and comments.
type UserInfo struct {
	UUID              string `json:"uuid"`
	UserName          string `json:"user_name" binding:"required"`
	UserProfileImgURL string `json:"user_profile_img_url"`
}
