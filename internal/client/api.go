package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sujalbistaa/feedsync/internal/models"
)

// FetchPosts returns one page of the feed. Page numbers start at 1.
func (c *Client) FetchPosts(ctx context.Context, mode models.FeedMode, page, pageSize int) (models.PostPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	path := "/posts/"
	if mode == models.ModePersonalized {
		path = "/posts/feed"
	}
	var out models.PostPage
	if err := c.do(ctx, "fetch posts", http.MethodGet, path, q, nil, &out); err != nil {
		return models.PostPage{}, err
	}
	if out.Posts == nil {
		out.Posts = []models.Post{}
	}
	return out, nil
}

// GetPost returns a single approved post.
func (c *Client) GetPost(ctx context.Context, postID string) (models.Post, error) {
	var out models.Post
	err := c.do(ctx, "get post", http.MethodGet, "/posts/"+url.PathEscape(postID), nil, nil, &out)
	return out, err
}

// CreatePost submits a post. Moderation may hold it back; that is reported
// through IsApproved, not an error.
func (c *Client) CreatePost(ctx context.Context, p models.NewPost) (models.Post, error) {
	var out models.Post
	err := c.do(ctx, "create post", http.MethodPost, "/posts/", nil, p, &out)
	return out, err
}

func (c *Client) DeletePost(ctx context.Context, postID string) error {
	return c.do(ctx, "delete post", http.MethodDelete, "/posts/"+url.PathEscape(postID), nil, nil, nil)
}

// ToggleLike flips the viewer's like and returns the server's counts.
func (c *Client) ToggleLike(ctx context.Context, postID string) (models.LikeResult, error) {
	var out models.LikeResult
	if err := c.do(ctx, "toggle like", http.MethodPost, "/posts/"+url.PathEscape(postID)+"/like", nil, nil, &out); err != nil {
		return models.LikeResult{}, err
	}
	if out.PostID == "" {
		out.PostID = postID
	}
	return out, nil
}

// LikeStatus reads the like state without changing it.
func (c *Client) LikeStatus(ctx context.Context, postID string) (models.LikeResult, error) {
	var out models.LikeResult
	err := c.do(ctx, "like status", http.MethodGet, "/posts/"+url.PathEscape(postID)+"/like", nil, nil, &out)
	return out, err
}

func (c *Client) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	var out models.CommentList
	if err := c.do(ctx, "list comments", http.MethodGet, "/posts/"+url.PathEscape(postID)+"/comments", nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Comments == nil {
		return []models.Comment{}, nil
	}
	return out.Comments, nil
}

type commentBody struct {
	Content string `json:"content"`
}

func (c *Client) CreateComment(ctx context.Context, postID, content string) (models.Comment, error) {
	var out models.Comment
	err := c.do(ctx, "create comment", http.MethodPost, "/posts/"+url.PathEscape(postID)+"/comments", nil, commentBody{content}, &out)
	return out, err
}

func (c *Client) UpdateComment(ctx context.Context, commentID, content string) (models.Comment, error) {
	var out models.Comment
	err := c.do(ctx, "update comment", http.MethodPut, "/posts/comments/"+url.PathEscape(commentID), nil, commentBody{content}, &out)
	return out, err
}

func (c *Client) DeleteComment(ctx context.Context, commentID string) error {
	return c.do(ctx, "delete comment", http.MethodDelete, "/posts/comments/"+url.PathEscape(commentID), nil, nil, nil)
}

func (c *Client) GetPreferences(ctx context.Context) (models.Preferences, error) {
	var out models.Preferences
	if err := c.do(ctx, "get preferences", http.MethodGet, "/auth/me/preferences", nil, nil, &out); err != nil {
		return models.Preferences{}, err
	}
	return normalizePrefs(out), nil
}

// UpdatePreferences replaces both preference lists and returns the stored profile.
func (c *Client) UpdatePreferences(ctx context.Context, p models.Preferences) (models.UserProfile, error) {
	var out models.UserProfile
	if err := c.do(ctx, "update preferences", http.MethodPut, "/auth/me/preferences", nil, normalizePrefs(p), &out); err != nil {
		return models.UserProfile{}, err
	}
	out.Preferences = normalizePrefs(out.Preferences)
	return out, nil
}

func normalizePrefs(p models.Preferences) models.Preferences {
	if p.FavoriteTags == nil {
		p.FavoriteTags = []string{}
	}
	if p.Interests == nil {
		p.Interests = []string{}
	}
	return p
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, cr models.Credentials) (models.UserProfile, error) {
	var out models.UserProfile
	err := c.do(ctx, "register", http.MethodPost, "/auth/register", nil, cr, &out)
	return out, err
}

// Login exchanges credentials for a token and stores it, together with the
// resolved user, in the client's session.
func (c *Client) Login(ctx context.Context, cr models.Credentials) (models.Token, error) {
	var tok models.Token
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", nil, cr, &tok); err != nil {
		return models.Token{}, err
	}
	c.session.Token = tok.AccessToken
	me, err := c.Me(ctx)
	if err != nil {
		return tok, err
	}
	c.session.UserID = me.ID
	c.session.Username = me.Username
	return tok, nil
}

// Me returns the profile behind the session token.
func (c *Client) Me(ctx context.Context) (models.UserProfile, error) {
	var out models.UserProfile
	if err := c.do(ctx, "me", http.MethodGet, "/auth/me", nil, nil, &out); err != nil {
		return models.UserProfile{}, err
	}
	out.Preferences = normalizePrefs(out.Preferences)
	return out, nil
}
