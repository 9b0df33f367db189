package engagement

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sujalbistaa/feedsync/internal/errs"
	"github.com/sujalbistaa/feedsync/internal/models"
)

// MaxCommentLength is the longest comment the service accepts, in runes.
const MaxCommentLength = 1000

// Thread is the comment list of one post. Comments are only held while the
// thread is open.
type Thread struct {
	postID string
	c      *Coordinator

	mu       sync.Mutex
	open     bool
	epoch    uint64
	comments []models.Comment
	deleting map[string]struct{}
}

func newThread(postID string, c *Coordinator) *Thread {
	return &Thread{postID: postID, c: c, deleting: make(map[string]struct{})}
}

// PostID returns the post the thread belongs to.
func (t *Thread) PostID() string { return t.postID }

// Open loads the comments. Calling Open on an open thread reloads it.
func (t *Thread) Open(ctx context.Context) error {
	t.mu.Lock()
	t.epoch++
	epoch := t.epoch
	t.open = true
	t.mu.Unlock()

	list, err := t.c.comments.ListComments(ctx, t.postID)
	if err != nil {
		return fmt.Errorf("list comments of %s: %w", t.postID, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if epoch != t.epoch || !t.open {
		return nil
	}
	t.comments = append([]models.Comment(nil), list...)
	return nil
}

// Close collapses the thread. Responses still in flight are dropped.
func (t *Thread) Close() {
	t.mu.Lock()
	t.epoch++
	t.open = false
	t.comments = nil
	t.mu.Unlock()
}

// IsOpen reports whether the thread is expanded.
func (t *Thread) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// Comments returns a copy of the loaded comments, newest first.
func (t *Thread) Comments() []models.Comment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Comment(nil), t.comments...)
}

// Add posts a comment. Empty content is rejected before any remote call.
// On success the comment is prepended and the post's comment count grows by one.
func (t *Thread) Add(ctx context.Context, content string) (models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Comment{}, errs.Validation("create comment", "content is empty")
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return models.Comment{}, errs.Validation("create comment", "content is too long")
	}

	t.mu.Lock()
	epoch := t.epoch
	t.mu.Unlock()

	cm, err := t.c.comments.CreateComment(ctx, t.postID, content)
	if err != nil {
		t.c.logger.Warn("comment create failed", zap.String("post_id", t.postID), zap.Error(err))
		return models.Comment{}, fmt.Errorf("comment on %s: %w", t.postID, err)
	}

	t.mu.Lock()
	if t.open && epoch == t.epoch {
		t.comments = append([]models.Comment{cm}, t.comments...)
	}
	t.mu.Unlock()

	t.c.adjustComments(t.postID, +1)
	return cm, nil
}

// Delete removes a comment. On success it leaves the thread and the post's
// comment count shrinks by one, never below zero.
func (t *Thread) Delete(ctx context.Context, commentID string) error {
	t.mu.Lock()
	if _, busy := t.deleting[commentID]; busy {
		t.mu.Unlock()
		return fmt.Errorf("delete comment %s: %w", commentID, ErrCommentBusy)
	}
	t.deleting[commentID] = struct{}{}
	t.mu.Unlock()

	err := t.c.comments.DeleteComment(ctx, commentID)

	t.mu.Lock()
	delete(t.deleting, commentID)
	if err == nil {
		for i, cm := range t.comments {
			if cm.ID == commentID {
				t.comments = append(t.comments[:i], t.comments[i+1:]...)
				break
			}
		}
	}
	t.mu.Unlock()

	if err != nil {
		t.c.logger.Warn("comment delete failed", zap.String("comment_id", commentID), zap.Error(err))
		return fmt.Errorf("delete comment %s: %w", commentID, err)
	}
	t.c.adjustComments(t.postID, -1)
	return nil
}
