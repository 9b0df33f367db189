package models

import (
	"fmt"
	"time"
)

// FeedMode selects which post stream the feed shows.
type FeedMode string

const (
	ModeAll          FeedMode = "all"
	ModePersonalized FeedMode = "personalized"
)

// ParseFeedMode accepts "all" and "personalized" (and the UI alias "for-you").
func ParseFeedMode(s string) (FeedMode, error) {
	switch s {
	case string(ModeAll), "":
		return ModeAll, nil
	case string(ModePersonalized), "for-you":
		return ModePersonalized, nil
	}
	return "", fmt.Errorf("unknown feed mode %q", s)
}

// Verdict is the moderation result attached to a created post.
type Verdict struct {
	IsToxic         bool    `json:"is_toxic"`
	IsSpam          bool    `json:"is_spam"`
	IsHateSpeech    bool    `json:"is_hate_speech"`
	ConfidenceScore float64 `json:"confidence_score"`
	Details         string  `json:"details,omitempty"`
}

// Flagged reports whether any verdict flag is set.
func (v Verdict) Flagged() bool {
	return v.IsToxic || v.IsSpam || v.IsHateSpeech
}

// Post is a post as seen by the current viewer.
type Post struct {
	ID                    string    `json:"id"`
	UserID                string    `json:"user_id"`
	Username              string    `json:"username"`
	Content               string    `json:"content"`
	ImageURL              *string   `json:"image_url,omitempty"`
	Tags                  []string  `json:"tags"`
	Categories            []string  `json:"categories"`
	Moderation            *Verdict  `json:"moderation_result,omitempty"`
	ImageModerationPassed bool      `json:"image_moderation_passed"`
	IsApproved            bool      `json:"is_approved"`
	LikesCount            int       `json:"likes_count"`
	CommentsCount         int       `json:"comments_count"`
	IsLikedByUser         bool      `json:"is_liked_by_user"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Rejected reports whether moderation kept the post out of feeds.
func (p Post) Rejected() bool {
	return !p.IsApproved
}

// Clone returns a deep copy so callers cannot alias feed state.
func (p Post) Clone() Post {
	c := p
	c.Tags = append([]string(nil), p.Tags...)
	c.Categories = append([]string(nil), p.Categories...)
	if p.ImageURL != nil {
		u := *p.ImageURL
		c.ImageURL = &u
	}
	if p.Moderation != nil {
		v := *p.Moderation
		c.Moderation = &v
	}
	return c
}

// PostPage is one page of a feed listing.
type PostPage struct {
	Posts    []Post `json:"posts"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	HasMore  bool   `json:"has_more"`
}

// NewPost is the payload for creating a post.
type NewPost struct {
	Content    string   `json:"content"`
	ImageURL   *string  `json:"image_url"`
	Tags       []string `json:"tags"`
	Categories []string `json:"categories"`
}

// LikeResult is the authoritative like state after a toggle.
type LikeResult struct {
	PostID     string `json:"post_id"`
	LikesCount int    `json:"likes_count"`
	IsLiked    bool   `json:"is_liked"`
}

// Comment is a single comment in a post thread.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommentList is the response of a thread listing.
type CommentList struct {
	Comments []Comment `json:"comments"`
	Total    int       `json:"total"`
}

// Preferences drive the personalized feed.
type Preferences struct {
	FavoriteTags []string `json:"favorite_tags"`
	Interests    []string `json:"interests"`
}

// UserProfile is the account as returned by the auth endpoints.
type UserProfile struct {
	ID          string      `json:"id"`
	Username    string      `json:"username"`
	Email       string      `json:"email"`
	FullName    *string     `json:"full_name,omitempty"`
	Bio         *string     `json:"bio,omitempty"`
	AvatarURL   *string     `json:"avatar_url,omitempty"`
	Preferences Preferences `json:"preferences"`
}

// Credentials are used for register and login.
type Credentials struct {
	Username string  `json:"username"`
	Email    string  `json:"email,omitempty"`
	Password string  `json:"password"`
	FullName *string `json:"full_name,omitempty"`
}

// Token is returned by a successful login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Event is a live update pushed over the websocket.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event types pushed by the server.
const (
	EventNewPost     = "new_post"
	EventLike        = "like"
	EventPostDeleted = "post_deleted"
	EventComment     = "comment"
)
