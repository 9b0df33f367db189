package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sujalbistaa/feedsync/internal/db"
	"github.com/sujalbistaa/feedsync/internal/models"
	"github.com/sujalbistaa/feedsync/internal/moderation"
	"github.com/sujalbistaa/feedsync/internal/ranking"
	"github.com/sujalbistaa/feedsync/internal/ws"
)

const (
	maxPostLength    = 5000
	maxCommentLength = 1000
	defaultPageSize  = 20
	maxPageSize      = 100
	// Most recent approved posts considered for the personalized feed.
	maxRankCandidates = 1000
)

var errPostNotFound = errors.New("post not found")

// --- Structs for request binding ---
type CreatePostInput struct {
	Content    string   `json:"content" binding:"required,max=5000"`
	ImageURL   *string  `json:"image_url" binding:"omitempty,max=2048"`
	Tags       []string `json:"tags" binding:"max=20,dive,max=50"`
	Categories []string `json:"categories" binding:"max=10,dive,max=50"`
}

type UpdatePostInput struct {
	Content    *string  `json:"content" binding:"omitempty,max=5000"`
	Tags       []string `json:"tags" binding:"omitempty,max=20,dive,max=50"`
	Categories []string `json:"categories" binding:"omitempty,max=10,dive,max=50"`
}

type ListPostsQuery struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Tags     string `form:"tags"`
	Category string `form:"category"`
	UserID   string `form:"user_id"`
}

func (q *ListPostsQuery) normalize() {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = defaultPageSize
	}
}

// Env carries the handler dependencies.
type Env struct {
	DB        *gorm.DB
	Hub       *ws.Hub
	Moderator *moderation.Rules
	Metrics   *Metrics
	Log       *zap.Logger
	Now       func() time.Time
	// HashCost is the bcrypt cost; zero means bcrypt.DefaultCost.
	HashCost int
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ListPosts serves GET /api/posts/: newest first, approved posts only,
// except that users see their own held-back posts when filtering by their
// own user_id.
func (e *Env) ListPosts(c *gin.Context) {
	var q ListPostsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query: " + err.Error()})
		return
	}
	q.normalize()
	viewer := currentUser(c)

	tx := e.DB.WithContext(c.Request.Context()).Where("hidden = ?", false)
	if q.UserID != "" {
		tx = tx.Where("user_id = ?", q.UserID)
		if viewer == nil || viewer.ID != q.UserID {
			tx = tx.Where("is_approved = ?", true)
		}
	} else {
		tx = tx.Where("is_approved = ?", true)
	}

	var posts []db.Post
	if err := tx.Order("created_at desc, id desc").Find(&posts).Error; err != nil {
		e.internalError(c, err, "Failed to fetch posts")
		return
	}

	tags := splitList(q.Tags)
	if len(tags) > 0 || q.Category != "" {
		filtered := posts[:0]
		for _, p := range posts {
			if len(tags) > 0 && !containsAny(p.Tags, tags) {
				continue
			}
			if q.Category != "" && !containsAny(p.Categories, []string{q.Category}) {
				continue
			}
			filtered = append(filtered, p)
		}
		posts = filtered
	}

	e.respondPage(c, viewer, posts, q.Page, q.PageSize)
}

// PersonalizedFeed serves GET /api/posts/feed, ranked for the viewer.
func (e *Env) PersonalizedFeed(c *gin.Context) {
	var q ListPostsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query: " + err.Error()})
		return
	}
	q.normalize()
	viewer := currentUser(c)
	ctx := c.Request.Context()

	var candidates []db.Post
	err := e.DB.WithContext(ctx).
		Where("is_approved = ? AND hidden = ?", true, false).
		Order("created_at desc").
		Limit(maxRankCandidates).
		Find(&candidates).Error
	if err != nil {
		e.internalError(c, err, "Failed to fetch posts")
		return
	}

	var liked []db.Post
	err = e.DB.WithContext(ctx).
		Joins("JOIN likes ON likes.post_id = posts.id").
		Where("likes.user_id = ?", viewer.ID).
		Find(&liked).Error
	if err != nil {
		e.internalError(c, err, "Failed to fetch liked posts")
		return
	}
	likedModels := make([]models.Post, len(liked))
	for i, p := range liked {
		likedModels[i] = p.Model(true)
	}

	byID := make(map[string]db.Post, len(candidates))
	cm := make([]models.Post, len(candidates))
	for i, p := range candidates {
		byID[p.ID] = p
		cm[i] = p.Model(false)
	}
	prof := ranking.NewProfile(viewer.Preferences(), likedModels)
	ranked := ranking.Rank(cm, prof, e.now())

	ordered := make([]db.Post, len(ranked))
	for i, p := range ranked {
		ordered[i] = byID[p.ID]
	}
	e.respondPage(c, viewer, ordered, q.Page, q.PageSize)
}

func (e *Env) respondPage(c *gin.Context, viewer *db.User, posts []db.Post, page, size int) {
	total := len(posts)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	slice := posts[start:end]

	liked, err := e.likedSet(c, viewer, slice)
	if err != nil {
		e.internalError(c, err, "Failed to fetch like status")
		return
	}
	out := make([]models.Post, len(slice))
	for i, p := range slice {
		out[i] = p.Model(liked[p.ID])
	}
	c.JSON(http.StatusOK, models.PostPage{
		Posts:    out,
		Total:    total,
		Page:     page,
		PageSize: size,
		HasMore:  end < total,
	})
}

func (e *Env) likedSet(c *gin.Context, viewer *db.User, posts []db.Post) (map[string]bool, error) {
	set := map[string]bool{}
	if viewer == nil || len(posts) == 0 {
		return set, nil
	}
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	var likes []db.Like
	err := e.DB.WithContext(c.Request.Context()).
		Where("user_id = ? AND post_id IN ?", viewer.ID, ids).
		Find(&likes).Error
	if err != nil {
		return nil, err
	}
	for _, l := range likes {
		set[l.PostID] = true
	}
	return set, nil
}

// GetPost serves GET /api/posts/:id.
func (e *Env) GetPost(c *gin.Context) {
	viewer := currentUser(c)
	post, err := e.findVisiblePost(e.DB.WithContext(c.Request.Context()), c.Param("id"), viewer)
	if err != nil {
		e.postError(c, err)
		return
	}
	liked, err := e.likedSet(c, viewer, []db.Post{post})
	if err != nil {
		e.internalError(c, err, "Failed to fetch like status")
		return
	}
	c.JSON(http.StatusOK, post.Model(liked[post.ID]))
}

// CreatePost moderates the content and stores the post. Held-back posts
// are stored with is_approved=false and returned with 201 like any other.
func (e *Env) CreatePost(c *gin.Context) {
	var input CreatePostInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: content is empty"})
		return
	}
	user := currentUser(c)

	verdict := e.Moderator.Check(content)
	post := db.Post{
		ID:                    uuid.NewString(),
		UserID:                user.ID,
		Username:              user.Username,
		Content:               content,
		ImageURL:              trimOptional(input.ImageURL),
		Tags:                  datatypes.JSONSlice[string](cleanList(input.Tags)),
		Categories:            datatypes.JSONSlice[string](cleanList(input.Categories)),
		Moderation:            datatypes.NewJSONType(verdict),
		ImageModerationPassed: true,
		IsApproved:            !moderation.Blocked(verdict),
	}
	if err := e.DB.WithContext(c.Request.Context()).Create(&post).Error; err != nil {
		e.internalError(c, err, "Failed to create post")
		return
	}

	outcome := "approved"
	if post.IsApproved {
		e.publish(models.EventNewPost, post.Model(false))
	} else {
		outcome = "held"
		e.Log.Info("post held back by moderation",
			zap.String("post_id", post.ID),
			zap.String("user_id", user.ID),
			zap.String("details", verdict.Details))
	}
	if e.Metrics != nil {
		e.Metrics.PostsCreated.WithLabelValues(outcome).Inc()
	}

	c.JSON(http.StatusCreated, post.Model(false))
}

// UpdatePost lets the owner change content, tags, or categories. New
// content is moderated again.
func (e *Env) UpdatePost(c *gin.Context) {
	var input UpdatePostInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}
	user := currentUser(c)

	var post db.Post
	err := e.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("hidden = ?", false).First(&post, "id = ?", c.Param("id")).Error; err != nil {
			return err
		}
		if post.UserID != user.ID {
			return errForbidden
		}
		if input.Content != nil {
			content := strings.TrimSpace(*input.Content)
			if content == "" {
				return errEmptyContent
			}
			verdict := e.Moderator.Check(content)
			post.Content = content
			post.Moderation = datatypes.NewJSONType(verdict)
			post.IsApproved = !moderation.Blocked(verdict) && post.ImageModerationPassed
		}
		if input.Tags != nil {
			post.Tags = cleanList(input.Tags)
		}
		if input.Categories != nil {
			post.Categories = cleanList(input.Categories)
		}
		return tx.Save(&post).Error
	})
	if err != nil {
		e.postError(c, err)
		return
	}
	liked, err := e.likedSet(c, user, []db.Post{post})
	if err != nil {
		e.internalError(c, err, "Failed to fetch like status")
		return
	}
	c.JSON(http.StatusOK, post.Model(liked[post.ID]))
}

// DeletePost removes the viewer's own post with its likes and comments.
func (e *Env) DeletePost(c *gin.Context) {
	user := currentUser(c)
	postID := c.Param("id")

	err := e.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var post db.Post
		if err := tx.First(&post, "id = ?", postID).Error; err != nil {
			return err
		}
		if post.UserID != user.ID {
			return errForbidden
		}
		if err := tx.Where("post_id = ?", postID).Delete(&db.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("post_id = ?", postID).Delete(&db.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&post).Error
	})
	if err != nil {
		e.postError(c, err)
		return
	}

	e.publish(models.EventPostDeleted, gin.H{"id": postID})
	c.Status(http.StatusNoContent)
}

// HidePost is the admin takedown: the post stays stored but leaves every feed.
func (e *Env) HidePost(c *gin.Context) {
	postID := c.Param("id")
	res := e.DB.WithContext(c.Request.Context()).Model(&db.Post{}).Where("id = ?", postID).Update("hidden", true)
	if res.Error != nil {
		e.internalError(c, res.Error, "Failed to hide post")
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}

	e.publish(models.EventPostDeleted, gin.H{"id": postID})
	c.JSON(http.StatusOK, gin.H{"message": "Post hidden successfully"})
}

func (e *Env) findVisiblePost(tx *gorm.DB, id string, viewer *db.User) (db.Post, error) {
	var post db.Post
	if err := tx.Where("hidden = ?", false).First(&post, "id = ?", id).Error; err != nil {
		return db.Post{}, err
	}
	if !post.IsApproved && (viewer == nil || viewer.ID != post.UserID) {
		return db.Post{}, errPostNotFound
	}
	return post, nil
}

// publish sends an event to websocket subscribers, if any.
func (e *Env) publish(eventType string, data any) {
	if e.Hub == nil {
		return
	}
	e.Hub.Publish(eventType, data)
	if e.Metrics != nil {
		e.Metrics.EventsPublished.WithLabelValues(eventType).Inc()
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return cleanList(strings.Split(s, ","))
}

func cleanList(in []string) []string {
	out := []string{}
	seen := map[string]struct{}{}
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

func containsAny(have []string, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
