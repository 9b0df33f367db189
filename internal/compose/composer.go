// Package compose creates and deletes posts on behalf of the viewer.
package compose

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sujalbistaa/feedsync/internal/errs"
	"github.com/sujalbistaa/feedsync/internal/models"
)

// MaxContentLength is the longest post body the service accepts, in runes.
const MaxContentLength = 5000

// Poster is the remote post service.
type Poster interface {
	CreatePost(ctx context.Context, p models.NewPost) (models.Post, error)
	DeletePost(ctx context.Context, postID string) error
}

// FeedRemover drops deleted posts from the feed.
type FeedRemover interface {
	OnPostDeleted(postID string)
}

// Composer validates new posts before they reach the network.
type Composer struct {
	posts  Poster
	feed   FeedRemover
	logger *zap.Logger
}

// New returns a Composer. feed may be nil.
func New(posts Poster, feed FeedRemover, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{posts: posts, feed: feed, logger: logger}
}

// Submit creates a post. A post that moderation held back comes back with
// IsApproved=false and a nil error; it will not show up in feed fetches.
// The feed is not modified.
func (c *Composer) Submit(ctx context.Context, np models.NewPost) (models.Post, error) {
	clean, err := Normalize(np)
	if err != nil {
		return models.Post{}, err
	}
	p, err := c.posts.CreatePost(ctx, clean)
	if err != nil {
		return models.Post{}, fmt.Errorf("create post: %w", err)
	}
	if p.Rejected() {
		fields := []zap.Field{zap.String("post_id", p.ID)}
		if p.Moderation != nil {
			fields = append(fields, zap.String("details", p.Moderation.Details))
		}
		c.logger.Info("post held back by moderation", fields...)
	}
	return p, nil
}

// Delete removes a post remotely, then from the feed.
func (c *Composer) Delete(ctx context.Context, postID string) error {
	if err := c.posts.DeletePost(ctx, postID); err != nil {
		return fmt.Errorf("delete post %s: %w", postID, err)
	}
	if c.feed != nil {
		c.feed.OnPostDeleted(postID)
	}
	return nil
}

// Normalize trims and validates a new post.
func Normalize(np models.NewPost) (models.NewPost, error) {
	content := strings.TrimSpace(np.Content)
	if content == "" {
		return models.NewPost{}, errs.Validation("create post", "content is empty")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return models.NewPost{}, errs.Validation("create post", fmt.Sprintf("content exceeds %d characters", MaxContentLength))
	}
	out := models.NewPost{
		Content:    content,
		Tags:       dedupe(np.Tags),
		Categories: dedupe(np.Categories),
	}
	if np.ImageURL != nil {
		if u := strings.TrimSpace(*np.ImageURL); u != "" {
			out.ImageURL = &u
		}
	}
	return out, nil
}

// ParseList splits a comma separated form value, dropping blanks.
func ParseList(s string) []string {
	return dedupe(strings.Split(s, ","))
}

func dedupe(in []string) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
