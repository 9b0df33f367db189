// Package feed maintains the ordered, paginated post list for the active feed mode.
//
// Every fetch is tagged with the generation that was current when it was
// issued. A mode switch or reset bumps the generation, so responses that
// arrive afterwards are dropped at apply time instead of overwriting newer
// state.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sujalbistaa/feedsync/internal/models"
)

// DefaultPageSize matches the page size the web client requests.
const DefaultPageSize = 20

var (
	ErrPageOutOfOrder = errors.New("page does not match cursor")
	ErrLoading        = errors.New("a page load is already in flight")
	ErrNoMore         = errors.New("no more pages to load")
	ErrModeMismatch   = errors.New("mode is not the active feed mode")
)

// Fetcher is the remote post service as seen by the feed.
type Fetcher interface {
	FetchPosts(ctx context.Context, mode models.FeedMode, page, pageSize int) (models.PostPage, error)
}

// State is a point-in-time copy of the feed.
type State struct {
	Mode       models.FeedMode
	Posts      []models.Post
	Cursor     int
	HasMore    bool
	Loading    bool
	Generation uint64
	Err        error
}

// Listener is called after every applied change with a fresh snapshot.
type Listener func(State)

// Option configures a Controller.
type Option func(*Controller)

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMode sets the initial mode without loading anything.
func WithMode(m models.FeedMode) Option {
	return func(c *Controller) { c.mode = m }
}

// Controller owns the feed state. It is safe for concurrent use.
type Controller struct {
	fetcher  Fetcher
	pageSize int
	logger   *zap.Logger

	mu        sync.Mutex
	mode      models.FeedMode
	posts     []models.Post
	index     map[string]int
	cursor    int
	hasMore   bool
	loading   bool
	gen       uint64
	lastErr   error
	listeners []Listener
}

// New returns a controller in mode "all" with an empty list.
func New(fetcher Fetcher, opts ...Option) *Controller {
	c := &Controller{
		fetcher:  fetcher,
		pageSize: DefaultPageSize,
		logger:   zap.NewNop(),
		mode:     models.ModeAll,
		index:    make(map[string]int),
		cursor:   1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers fn to be called after each state change.
func (c *Controller) Subscribe(fn Listener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Load fetches page for mode. page must equal the cursor and mode must be
// the active mode.
func (c *Controller) Load(ctx context.Context, mode models.FeedMode, page int) error {
	c.mu.Lock()
	gen, err := c.startLocked(mode, page)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.notify()
	return c.fetch(ctx, gen, mode, page)
}

// LoadMore fetches the next page of the active mode.
func (c *Controller) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return ErrLoading
	}
	if !c.hasMore {
		c.mu.Unlock()
		return ErrNoMore
	}
	mode, page := c.mode, c.cursor
	gen, err := c.startLocked(mode, page)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.notify()
	return c.fetch(ctx, gen, mode, page)
}

// SwitchMode makes mode active and loads its first page. It is a no-op if
// mode is already active.
func (c *Controller) SwitchMode(ctx context.Context, mode models.FeedMode) error {
	c.mu.Lock()
	if mode == c.mode {
		c.mu.Unlock()
		return nil
	}
	c.mode = mode
	gen := c.invalidateLocked()
	c.mu.Unlock()

	c.logger.Debug("feed mode switched", zap.String("mode", string(mode)), zap.Uint64("generation", gen))
	c.notify()
	return c.fetch(ctx, gen, mode, 1)
}

// Reset drops the list and reloads page 1 of the active mode. In-flight
// loads become stale.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	mode := c.mode
	gen := c.invalidateLocked()
	c.mu.Unlock()

	c.logger.Debug("feed reset", zap.String("mode", string(mode)), zap.Uint64("generation", gen))
	c.notify()
	return c.fetch(ctx, gen, mode, 1)
}

// Remove drops a post after its remote deletion. Absent ids are ignored.
func (c *Controller) Remove(postID string) {
	c.mu.Lock()
	i, ok := c.index[postID]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.posts = append(c.posts[:i], c.posts[i+1:]...)
	c.reindexLocked()
	c.mu.Unlock()
	c.notify()
}

// OnModeChanged is the command form of SwitchMode.
func (c *Controller) OnModeChanged(ctx context.Context, mode models.FeedMode) error {
	return c.SwitchMode(ctx, mode)
}

// OnLikeToggled refreshes the personalized feed, whose ranking depends on
// likes. The "all" feed is left alone.
func (c *Controller) OnLikeToggled(ctx context.Context, postID string) error {
	if c.Mode() != models.ModePersonalized {
		return nil
	}
	c.logger.Debug("like changed ranking inputs, refreshing", zap.String("post_id", postID))
	return c.Reset(ctx)
}

// OnPreferencesCommitted reloads the personalized feed from page 1. While
// "all" is active nothing is loaded; the next switch to personalized starts
// from page 1 anyway.
func (c *Controller) OnPreferencesCommitted(ctx context.Context) error {
	if c.Mode() != models.ModePersonalized {
		return nil
	}
	return c.Reset(ctx)
}

// OnPostDeleted is the command form of Remove.
func (c *Controller) OnPostDeleted(postID string) {
	c.Remove(postID)
}

// Mode returns the active mode.
func (c *Controller) Mode() models.FeedMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Post returns a copy of the post with the given id.
func (c *Controller) Post(postID string) (models.Post, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[postID]
	if !ok {
		return models.Post{}, false
	}
	return c.posts[i].Clone(), true
}

// UpdatePost applies fn to the post in place. It reports false, without
// calling fn, when the post is not in the list.
func (c *Controller) UpdatePost(postID string, fn func(*models.Post)) bool {
	c.mu.Lock()
	i, ok := c.index[postID]
	if ok {
		fn(&c.posts[i])
	}
	c.mu.Unlock()
	if ok {
		c.notify()
	}
	return ok
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) startLocked(mode models.FeedMode, page int) (uint64, error) {
	if mode != c.mode {
		return 0, fmt.Errorf("%w: %s (active %s)", ErrModeMismatch, mode, c.mode)
	}
	if page != c.cursor {
		return 0, fmt.Errorf("%w: page %d, cursor %d", ErrPageOutOfOrder, page, c.cursor)
	}
	if c.loading {
		return 0, ErrLoading
	}
	c.loading = true
	c.lastErr = nil
	return c.gen, nil
}

// invalidateLocked starts a new generation with an empty list and marks the
// first page of it as loading.
func (c *Controller) invalidateLocked() uint64 {
	c.gen++
	c.posts = nil
	c.index = make(map[string]int)
	c.cursor = 1
	c.hasMore = false
	c.loading = true
	c.lastErr = nil
	return c.gen
}

func (c *Controller) fetch(ctx context.Context, gen uint64, mode models.FeedMode, page int) error {
	res, err := c.fetcher.FetchPosts(ctx, mode, page, c.pageSize)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logger.Debug("discarding stale feed response",
			zap.String("mode", string(mode)),
			zap.Int("page", page),
			zap.Uint64("generation", gen))
		return nil
	}
	c.loading = false
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		c.logger.Warn("feed load failed",
			zap.String("mode", string(mode)),
			zap.Int("page", page),
			zap.Error(err))
		c.notify()
		return fmt.Errorf("load %s page %d: %w", mode, page, err)
	}

	if page == 1 {
		c.posts = nil
		c.index = make(map[string]int)
	}
	added := 0
	for _, p := range res.Posts {
		if _, dup := c.index[p.ID]; dup {
			continue
		}
		c.index[p.ID] = len(c.posts)
		c.posts = append(c.posts, p.Clone())
		added++
	}
	c.cursor = page + 1
	c.hasMore = res.HasMore
	total := len(c.posts)
	c.mu.Unlock()

	c.logger.Debug("feed page applied",
		zap.String("mode", string(mode)),
		zap.Int("page", page),
		zap.Int("added", added),
		zap.Int("total", total),
		zap.Bool("has_more", res.HasMore))
	c.notify()
	return nil
}

func (c *Controller) reindexLocked() {
	c.index = make(map[string]int, len(c.posts))
	for i, p := range c.posts {
		c.index[p.ID] = i
	}
}

func (c *Controller) snapshotLocked() State {
	posts := make([]models.Post, len(c.posts))
	for i, p := range c.posts {
		posts[i] = p.Clone()
	}
	return State{
		Mode:       c.mode,
		Posts:      posts,
		Cursor:     c.cursor,
		HasMore:    c.hasMore,
		Loading:    c.loading,
		Generation: c.gen,
		Err:        c.lastErr,
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	if len(c.listeners) == 0 {
		c.mu.Unlock()
		return
	}
	s := c.snapshotLocked()
	ls := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()
	for _, fn := range ls {
		fn(s)
	}
}
