// Package engagement keeps per-post like and comment counters in the feed in
// step with the remote engagement service.
//
// Likes are never flipped ahead of the server: the counter shown is always
// the last value the server returned. Comment counts are adjusted locally by
// one, but only after the remote create or delete succeeded.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sujalbistaa/feedsync/internal/models"
)

var (
	ErrPostNotFound   = errors.New("post is not in the feed")
	ErrToggleInFlight = errors.New("a like toggle for this post is already in flight")
	ErrCommentBusy    = errors.New("a delete for this comment is already in flight")
)

// FeedStore is the slice of the feed controller the coordinator writes to.
type FeedStore interface {
	Post(postID string) (models.Post, bool)
	UpdatePost(postID string, fn func(*models.Post)) bool
	OnLikeToggled(ctx context.Context, postID string) error
}

// Liker is the remote like endpoint.
type Liker interface {
	ToggleLike(ctx context.Context, postID string) (models.LikeResult, error)
}

// Commenter is the remote comment service.
type Commenter interface {
	ListComments(ctx context.Context, postID string) ([]models.Comment, error)
	CreateComment(ctx context.Context, postID, content string) (models.Comment, error)
	DeleteComment(ctx context.Context, commentID string) error
}

// Coordinator serializes like toggles per post and owns the comment threads
// of expanded posts.
type Coordinator struct {
	feed     FeedStore
	likes    Liker
	comments Commenter
	logger   *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	threads  map[string]*Thread
}

// NewCoordinator wires a coordinator to the feed and the remote services.
func NewCoordinator(feed FeedStore, likes Liker, comments Commenter, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		feed:     feed,
		likes:    likes,
		comments: comments,
		logger:   logger,
		inFlight: make(map[string]struct{}),
		threads:  make(map[string]*Thread),
	}
}

// ToggleLike flips the viewer's like on postID and writes the server's
// answer back into the feed. A second call for the same post while the
// first is outstanding returns ErrToggleInFlight.
func (c *Coordinator) ToggleLike(ctx context.Context, postID string) (models.LikeResult, error) {
	before, ok := c.feed.Post(postID)
	if !ok {
		return models.LikeResult{}, fmt.Errorf("toggle like %s: %w", postID, ErrPostNotFound)
	}

	c.mu.Lock()
	if _, busy := c.inFlight[postID]; busy {
		c.mu.Unlock()
		return models.LikeResult{}, fmt.Errorf("toggle like %s: %w", postID, ErrToggleInFlight)
	}
	c.inFlight[postID] = struct{}{}
	c.mu.Unlock()

	res, err := c.likes.ToggleLike(ctx, postID)

	c.mu.Lock()
	delete(c.inFlight, postID)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("like toggle failed", zap.String("post_id", postID), zap.Error(err))
		return models.LikeResult{}, fmt.Errorf("toggle like %s: %w", postID, err)
	}

	applied := c.feed.UpdatePost(postID, func(p *models.Post) {
		p.IsLikedByUser = res.IsLiked
		p.LikesCount = res.LikesCount
	})
	c.logger.Debug("like toggled",
		zap.String("post_id", postID),
		zap.Bool("was_liked", before.IsLikedByUser),
		zap.Bool("is_liked", res.IsLiked),
		zap.Int("likes_count", res.LikesCount),
		zap.Bool("applied", applied))

	if err := c.feed.OnLikeToggled(ctx, postID); err != nil {
		// The like itself succeeded; the feed keeps the refresh error in its state.
		c.logger.Warn("feed refresh after like failed", zap.String("post_id", postID), zap.Error(err))
	}
	return res, nil
}

// Pending reports whether a like toggle for postID is outstanding.
func (c *Coordinator) Pending(postID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[postID]
	return ok
}

// Thread returns the comment thread of postID, creating it on first use.
func (c *Coordinator) Thread(postID string) *Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.threads[postID]
	if !ok {
		t = newThread(postID, c)
		c.threads[postID] = t
	}
	return t
}

// CloseThread collapses the thread of postID and forgets its comments.
func (c *Coordinator) CloseThread(postID string) {
	c.mu.Lock()
	t, ok := c.threads[postID]
	delete(c.threads, postID)
	c.mu.Unlock()
	if ok {
		t.Close()
	}
}

func (c *Coordinator) adjustComments(postID string, delta int) {
	c.feed.UpdatePost(postID, func(p *models.Post) {
		p.CommentsCount += delta
		if p.CommentsCount < 0 {
			p.CommentsCount = 0
		}
	})
}
