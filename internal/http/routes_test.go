package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/sujalbistaa/feedsync/internal/db"
	"github.com/sujalbistaa/feedsync/internal/models"
)

type testServer struct {
	t      *testing.T
	router *gin.Engine
	db     *gorm.DB
}

func newTestServer(t *testing.T, mutate ...func(*Options)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.Open("sqlite://:memory:", nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database))

	opts := Options{
		DB:          database,
		Metrics:     NewMetrics(),
		AdminToken:  "admin-secret",
		CreateRPS:   100,
		CreateBurst: 100,
		HashCost:    bcrypt.MinCost,
	}
	for _, m := range mutate {
		m(&opts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	router := gin.New()
	SetupRoutes(ctx, router, opts)
	return &testServer{t: t, router: router, db: database}
}

func (s *testServer) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// signup registers and logs in, returning the bearer token.
func (s *testServer) signup(username string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/auth/register", "", RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret123",
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/auth/login", "", LoginInput{Username: username, Password: "secret123"})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	return decode[models.Token](s.t, w).AccessToken
}

func (s *testServer) createPost(token, content string, tags ...string) models.Post {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/posts/", token, CreatePostInput{Content: content, Tags: tags})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Post](s.t, w)
}

func TestAuth_RegisterLoginMe(t *testing.T) {
	s := newTestServer(t)
	token := s.signup("alice")
	assert.NotEmpty(t, token)

	w := s.do(http.MethodPost, "/api/auth/register", "", RegisterInput{
		Username: "alice", Email: "other@example.com", Password: "secret123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/auth/register", "", RegisterInput{
		Username: "alice2", Email: "ALICE@example.com", Password: "secret123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", "", LoginInput{Username: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[models.UserProfile](t, w)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, []string{}, me.Preferences.FavoriteTags)

	bio := "  gopher  "
	w = s.do(http.MethodPut, "/api/auth/me", token, ProfileInput{Bio: &bio})
	require.Equal(t, http.StatusOK, w.Code)
	me = decode[models.UserProfile](t, w)
	require.NotNil(t, me.Bio)
	assert.Equal(t, "gopher", *me.Bio)
}

func TestAuth_RequiredAndStaleTokens(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/auth/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/posts/feed", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/posts/", "", CreatePostInput{Content: "hi"}).Code)

	// Anonymous reads are allowed, but an unknown token is rejected.
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/posts/", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/posts/", "nope", nil).Code)
}

func TestPosts_CreateAndList(t *testing.T) {
	s := newTestServer(t)
	token := s.signup("alice")

	first := s.createPost(token, "Learning generics in Go this weekend", "go")
	second := s.createPost(token, "Rust ownership finally makes sense to me", "rust")
	assert.True(t, first.IsApproved)
	assert.Equal(t, "alice", first.Username)

	w := s.do(http.MethodGet, "/api/posts/?page=1&page_size=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[models.PostPage](t, w)
	assert.Equal(t, 2, page.Total)
	assert.True(t, page.HasMore)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, second.ID, page.Posts[0].ID)

	w = s.do(http.MethodGet, "/api/posts/?page=2&page_size=1", "", nil)
	page = decode[models.PostPage](t, w)
	assert.False(t, page.HasMore)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, first.ID, page.Posts[0].ID)

	w = s.do(http.MethodGet, "/api/posts/?tags=go", "", nil)
	page = decode[models.PostPage](t, w)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, first.ID, page.Posts[0].ID)

	w = s.do(http.MethodGet, "/api/posts/?page_size=500", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/posts/", token, CreatePostInput{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPosts_ModerationHoldsPost(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")
	bob := s.signup("bob")

	held := s.createPost(alice, "you are an idiot and a moron")
	assert.False(t, held.IsApproved)
	require.NotNil(t, held.Moderation)
	assert.True(t, held.Moderation.IsToxic)

	page := decode[models.PostPage](t, s.do(http.MethodGet, "/api/posts/", bob, nil))
	assert.Empty(t, page.Posts)

	// The author still sees it on their own profile.
	w := s.do(http.MethodGet, "/api/posts/?user_id="+held.UserID, alice, nil)
	page = decode[models.PostPage](t, w)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, held.ID, page.Posts[0].ID)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/posts/"+held.ID, bob, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/posts/"+held.ID, alice, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/posts/"+held.ID+"/like", bob, nil).Code)
}

func TestPosts_UpdateRemoderates(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")
	bob := s.signup("bob")
	post := s.createPost(alice, "Learning generics in Go this weekend")

	bad := "what a stupid idea"
	w := s.do(http.MethodPut, "/api/posts/"+post.ID, bob, UpdatePostInput{Content: &bad})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPut, "/api/posts/"+post.ID, alice, UpdatePostInput{Content: &bad, Tags: []string{"ideas"}})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[models.Post](t, w)
	assert.False(t, updated.IsApproved)
	assert.Equal(t, []string{"ideas"}, updated.Tags)
}

func TestPosts_DeleteOwnerOnly(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")
	bob := s.signup("bob")
	post := s.createPost(alice, "Learning generics in Go this weekend")
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/posts/"+post.ID+"/like", bob, nil).Code)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, "/api/posts/"+post.ID, bob, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/posts/"+post.ID, alice, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/posts/"+post.ID, alice, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/posts/"+post.ID, alice, nil).Code)

	var likes int64
	require.NoError(t, s.db.Model(&db.Like{}).Count(&likes).Error)
	assert.Zero(t, likes)
}

func TestLikes_Toggle(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")
	bob := s.signup("bob")
	post := s.createPost(alice, "Learning generics in Go this weekend")

	w := s.do(http.MethodPost, "/api/posts/"+post.ID+"/like", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[models.LikeResult](t, w)
	assert.Equal(t, models.LikeResult{PostID: post.ID, LikesCount: 1, IsLiked: true}, res)

	w = s.do(http.MethodPost, "/api/posts/"+post.ID+"/like", alice, nil)
	assert.Equal(t, 2, decode[models.LikeResult](t, w).LikesCount)

	w = s.do(http.MethodPost, "/api/posts/"+post.ID+"/like", bob, nil)
	res = decode[models.LikeResult](t, w)
	assert.False(t, res.IsLiked)
	assert.Equal(t, 1, res.LikesCount)

	w = s.do(http.MethodGet, "/api/posts/"+post.ID+"/like", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.LikeResult](t, w).IsLiked)

	got := decode[models.Post](t, s.do(http.MethodGet, "/api/posts/"+post.ID, alice, nil))
	assert.True(t, got.IsLikedByUser)
	assert.Equal(t, 1, got.LikesCount)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/posts/missing/like", bob, nil).Code)
}

func TestComments_Lifecycle(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")
	bob := s.signup("bob")
	post := s.createPost(alice, "Learning generics in Go this weekend")
	base := "/api/posts/" + post.ID + "/comments"

	w := s.do(http.MethodPost, base, bob, CommentInput{Content: "  Nice writeup, thanks  "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[models.Comment](t, w)
	assert.Equal(t, "Nice writeup, thanks", first.Content)
	assert.Equal(t, "bob", first.Username)

	w = s.do(http.MethodPost, base, alice, CommentInput{Content: "Glad it helped"})
	require.Equal(t, http.StatusCreated, w.Code)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, base, alice, CommentInput{Content: "   "}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/posts/missing/comments", alice, CommentInput{Content: "hi"}).Code)

	list := decode[models.CommentList](t, s.do(http.MethodGet, base, "", nil))
	assert.Equal(t, 2, list.Total)
	got := decode[models.Post](t, s.do(http.MethodGet, "/api/posts/"+post.ID, "", nil))
	assert.Equal(t, 2, got.CommentsCount)

	w = s.do(http.MethodPut, "/api/posts/comments/"+first.ID, alice, CommentInput{Content: "edited"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(http.MethodPut, "/api/posts/comments/"+first.ID, bob, CommentInput{Content: "edited"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "edited", decode[models.Comment](t, w).Content)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, "/api/posts/comments/"+first.ID, alice, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/posts/comments/"+first.ID, bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/posts/comments/"+first.ID, bob, nil).Code)

	list = decode[models.CommentList](t, s.do(http.MethodGet, base, "", nil))
	assert.Equal(t, 1, list.Total)
	got = decode[models.Post](t, s.do(http.MethodGet, "/api/posts/"+post.ID, "", nil))
	assert.Equal(t, 1, got.CommentsCount)
}

func TestPreferences_AndPersonalizedFeed(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")
	bob := s.signup("bob")

	goPost := s.createPost(alice, "Learning generics in Go this weekend", "go")
	s.createPost(alice, "Rust ownership finally makes sense to me", "rust")

	w := s.do(http.MethodPut, "/api/auth/me/preferences", bob, PreferencesInput{
		FavoriteTags: []string{" go ", "go", ""},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"go"}, decode[models.UserProfile](t, w).Preferences.FavoriteTags)

	w = s.do(http.MethodGet, "/api/auth/me/preferences", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	prefs := decode[models.Preferences](t, w)
	assert.Equal(t, []string{"go"}, prefs.FavoriteTags)
	assert.Equal(t, []string{}, prefs.Interests)

	w = s.do(http.MethodGet, "/api/posts/feed?page=1&page_size=10", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[models.PostPage](t, w)
	require.Len(t, page.Posts, 2)
	assert.Equal(t, goPost.ID, page.Posts[0].ID)
	assert.Equal(t, 2, page.Total)
}

func TestAdmin_HidePost(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")
	post := s.createPost(alice, "Learning generics in Go this weekend")
	path := "/api/admin/posts/" + post.ID + "/hide"

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, path, "", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, path, "", nil, "X-Admin-Token", "wrong").Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, path, "", nil, "X-Admin-Token", "admin-secret").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/posts/"+post.ID, alice, nil).Code)
	assert.Equal(t, http.StatusNotFound,
		s.do(http.MethodPost, "/api/admin/posts/missing/hide", "", nil, "X-Admin-Token", "admin-secret").Code)

	page := decode[models.PostPage](t, s.do(http.MethodGet, "/api/posts/", "", nil))
	assert.Empty(t, page.Posts)
}

func TestAdmin_DisabledWithoutToken(t *testing.T) {
	s := newTestServer(t, func(o *Options) { o.AdminToken = "" })
	w := s.do(http.MethodPost, "/api/admin/posts/x/hide", "", nil, "X-Admin-Token", "anything")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreatePost_RateLimited(t *testing.T) {
	s := newTestServer(t, func(o *Options) {
		o.CreateRPS = 0.001
		o.CreateBurst = 1
	})
	token := s.signup("alice")
	s.createPost(token, "Learning generics in Go this weekend")

	w := s.do(http.MethodPost, "/api/posts/", token, CreatePostInput{Content: "Another post about Go tooling"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "feedsync_http_requests_total")
}
