// Package prefs edits the viewer's personalization preferences.
//
// The editor keeps two copies: the committed value last accepted by the
// preference store, and a draft the user changes freely. Only Commit sends
// the draft and tells the feed to re-derive itself.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sujalbistaa/feedsync/internal/errs"
	"github.com/sujalbistaa/feedsync/internal/models"
)

var ErrCommitInFlight = errors.New("a preference commit is already in flight")

// Store is the remote preference store.
type Store interface {
	GetPreferences(ctx context.Context) (models.Preferences, error)
	UpdatePreferences(ctx context.Context, p models.Preferences) (models.UserProfile, error)
}

// FeedInvalidator is told when committed preferences change.
type FeedInvalidator interface {
	OnPreferencesCommitted(ctx context.Context) error
}

type values struct {
	tags      *TagSet
	interests *TagSet
}

func valuesOf(p models.Preferences) values {
	return values{tags: NewTagSet(p.FavoriteTags...), interests: NewTagSet(p.Interests...)}
}

func (v values) clone() values {
	return values{tags: v.tags.Clone(), interests: v.interests.Clone()}
}

func (v values) preferences() models.Preferences {
	return models.Preferences{FavoriteTags: v.tags.Values(), Interests: v.interests.Values()}
}

// Editor holds committed and draft preferences. It is safe for concurrent use.
type Editor struct {
	store  Store
	feed   FeedInvalidator
	logger *zap.Logger

	mu         sync.Mutex
	committed  values
	draft      values
	editing    bool
	committing bool
}

// NewEditor returns an editor with empty preferences. feed may be nil.
func NewEditor(store Store, feed FeedInvalidator, logger *zap.Logger) *Editor {
	if logger == nil {
		logger = zap.NewNop()
	}
	empty := valuesOf(models.Preferences{})
	return &Editor{
		store:     store,
		feed:      feed,
		logger:    logger,
		committed: empty,
		draft:     empty.clone(),
	}
}

// Load fetches the committed preferences. An open draft is left untouched.
func (e *Editor) Load(ctx context.Context) error {
	p, err := e.store.GetPreferences(ctx)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	e.mu.Lock()
	e.committed = valuesOf(p)
	if !e.editing {
		e.draft = e.committed.clone()
	}
	e.mu.Unlock()
	return nil
}

// Begin enters edit mode with draft := committed.
func (e *Editor) Begin() {
	e.mu.Lock()
	e.draft = e.committed.clone()
	e.editing = true
	e.mu.Unlock()
}

// Editing reports whether a draft is open.
func (e *Editor) Editing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.editing
}

// Committed returns the last value accepted by the store.
func (e *Editor) Committed() models.Preferences {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.committed.preferences()
}

// Draft returns the current draft.
func (e *Editor) Draft() models.Preferences {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft.preferences()
}

// Dirty reports whether the draft differs from the committed value.
func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.draft.tags.Equal(e.committed.tags) || !e.draft.interests.Equal(e.committed.interests)
}

// AddFavoriteTag adds tag to the draft. Adding a present tag is a no-op.
func (e *Editor) AddFavoriteTag(tag string) error {
	return e.edit("add favorite tag", tag, func(v values, t string) { v.tags.Add(t) })
}

// RemoveFavoriteTag removes tag from the draft. Removing an absent tag is a no-op.
func (e *Editor) RemoveFavoriteTag(tag string) {
	_ = e.edit("remove favorite tag", tag, func(v values, t string) { v.tags.Remove(t) })
}

// ToggleFavoriteTag flips membership of tag and returns the new membership.
func (e *Editor) ToggleFavoriteTag(tag string) (bool, error) {
	var on bool
	err := e.edit("toggle favorite tag", tag, func(v values, t string) { on = v.tags.Toggle(t) })
	return on, err
}

// AddInterest adds interest to the draft.
func (e *Editor) AddInterest(interest string) error {
	return e.edit("add interest", interest, func(v values, t string) { v.interests.Add(t) })
}

// RemoveInterest removes interest from the draft.
func (e *Editor) RemoveInterest(interest string) {
	_ = e.edit("remove interest", interest, func(v values, t string) { v.interests.Remove(t) })
}

// ToggleInterest flips membership of interest and returns the new membership.
func (e *Editor) ToggleInterest(interest string) (bool, error) {
	var on bool
	err := e.edit("toggle interest", interest, func(v values, t string) { on = v.interests.Toggle(t) })
	return on, err
}

func (e *Editor) edit(op, raw string, fn func(values, string)) error {
	t := strings.TrimSpace(raw)
	if t == "" {
		return errs.Validation(op, "tag is empty")
	}
	e.mu.Lock()
	fn(e.draft, t)
	e.mu.Unlock()
	return nil
}

// Commit sends the draft to the store. On success the echoed preferences
// become committed, edit mode closes and the feed is invalidated. On failure
// the draft is kept as is.
func (e *Editor) Commit(ctx context.Context) error {
	e.mu.Lock()
	if e.committing {
		e.mu.Unlock()
		return ErrCommitInFlight
	}
	e.committing = true
	sent := e.draft.clone()
	e.mu.Unlock()

	profile, err := e.store.UpdatePreferences(ctx, sent.preferences())

	e.mu.Lock()
	e.committing = false
	if err != nil {
		e.mu.Unlock()
		e.logger.Warn("preference commit failed", zap.Error(err))
		return fmt.Errorf("commit preferences: %w", err)
	}
	echoed := profile.Preferences
	if echoed.FavoriteTags == nil && echoed.Interests == nil {
		e.committed = sent
	} else {
		e.committed = valuesOf(echoed)
	}
	e.draft = e.committed.clone()
	e.editing = false
	e.mu.Unlock()

	e.logger.Debug("preferences committed",
		zap.Strings("favorite_tags", sent.tags.Values()),
		zap.Strings("interests", sent.interests.Values()))

	if e.feed != nil {
		if err := e.feed.OnPreferencesCommitted(ctx); err != nil {
			e.logger.Warn("feed reload after preference commit failed", zap.Error(err))
		}
	}
	return nil
}

// Discard drops the draft and closes edit mode without a remote call.
func (e *Editor) Discard() {
	e.mu.Lock()
	e.draft = e.committed.clone()
	e.editing = false
	e.mu.Unlock()
}
