// Package db holds the dev server's persistence: connection setup and the
// gorm records behind the REST API.
package db

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sujalbistaa/feedsync/internal/models"
)

// User is a registered account.
type User struct {
	ID           string `gorm:"primaryKey;size:36"`
	Username     string `gorm:"uniqueIndex;not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	FullName     *string
	Bio          *string
	AvatarURL    *string
	FavoriteTags datatypes.JSONSlice[string] `gorm:"type:json"`
	Interests    datatypes.JSONSlice[string] `gorm:"type:json"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Preferences returns the stored preference lists, never nil.
func (u User) Preferences() models.Preferences {
	p := models.Preferences{
		FavoriteTags: append([]string{}, u.FavoriteTags...),
		Interests:    append([]string{}, u.Interests...),
	}
	return p
}

// Profile converts the record to its API form.
func (u User) Profile() models.UserProfile {
	return models.UserProfile{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		Bio:         u.Bio,
		AvatarURL:   u.AvatarURL,
		Preferences: u.Preferences(),
	}
}

// AuthToken is an opaque bearer token issued at login.
type AuthToken struct {
	Token     string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"not null;index;size:36"`
	CreatedAt time.Time
}

// Post is a stored post. Hidden posts were taken down by an admin.
type Post struct {
	ID                    string `gorm:"primaryKey;size:36"`
	UserID                string `gorm:"not null;index;size:36"`
	Username              string `gorm:"not null"`
	Content               string `gorm:"not null"`
	ImageURL              *string
	Tags                  datatypes.JSONSlice[string]        `gorm:"type:json"`
	Categories            datatypes.JSONSlice[string]        `gorm:"type:json"`
	Moderation            datatypes.JSONType[models.Verdict] `gorm:"type:json"`
	ImageModerationPassed bool                               `gorm:"not null"`
	IsApproved            bool                               `gorm:"not null;index"`
	Hidden                bool                               `gorm:"not null;default:false"`
	LikesCount            int                                `gorm:"not null;default:0"`
	CommentsCount         int                                `gorm:"not null;default:0"`
	CreatedAt             time.Time                          `gorm:"index"`
	UpdatedAt             time.Time
}

// Model converts the record for a viewer who has or has not liked it.
func (p Post) Model(liked bool) models.Post {
	v := p.Moderation.Data()
	return models.Post{
		ID:                    p.ID,
		UserID:                p.UserID,
		Username:              p.Username,
		Content:               p.Content,
		ImageURL:              p.ImageURL,
		Tags:                  append([]string{}, p.Tags...),
		Categories:            append([]string{}, p.Categories...),
		Moderation:            &v,
		ImageModerationPassed: p.ImageModerationPassed,
		IsApproved:            p.IsApproved,
		LikesCount:            p.LikesCount,
		CommentsCount:         p.CommentsCount,
		IsLikedByUser:         liked,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
}

// Like is one user's like on one post.
type Like struct {
	ID        uint   `gorm:"primaryKey"`
	PostID    string `gorm:"not null;size:36;uniqueIndex:idx_like_post_user"`
	UserID    string `gorm:"not null;size:36;uniqueIndex:idx_like_post_user;index"`
	CreatedAt time.Time
}

// Comment is a comment on a post.
type Comment struct {
	ID        string `gorm:"primaryKey;size:36"`
	PostID    string `gorm:"not null;index;size:36"`
	UserID    string `gorm:"not null;size:36"`
	Username  string `gorm:"not null"`
	Content   string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// Model converts the record to its API form.
func (c Comment) Model() models.Comment {
	return models.Comment{
		ID:        c.ID,
		PostID:    c.PostID,
		UserID:    c.UserID,
		Username:  c.Username,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
