package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalbistaa/feedsync/internal/errs"
	"github.com/sujalbistaa/feedsync/internal/models"
	"github.com/sujalbistaa/feedsync/internal/session"
)

func newTestClient(t *testing.T, h http.HandlerFunc, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api", session.New(token), WithTimeout(2*time.Second))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestFetchPosts_RoutesByMode(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path+"?"+r.URL.RawQuery)
		writeJSON(w, http.StatusOK, models.PostPage{
			Posts:   []models.Post{{ID: "p1"}},
			Page:    2,
			HasMore: true,
		})
	}, "tok")

	page, err := c.FetchPosts(context.Background(), models.ModeAll, 2, 20)
	require.NoError(t, err)
	assert.Equal(t, "p1", page.Posts[0].ID)
	assert.True(t, page.HasMore)

	_, err = c.FetchPosts(context.Background(), models.ModePersonalized, 1, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/api/posts/?page=2&page_size=20",
		"/api/posts/feed?page=1&page_size=10",
	}, paths)
}

func TestDo_SendsBearerToken(t *testing.T) {
	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, models.LikeResult{LikesCount: 4, IsLiked: true})
	}, "abc")

	res, err := c.ToggleLike(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", auth)
	assert.Equal(t, models.LikeResult{PostID: "p1", LikesCount: 4, IsLiked: true}, res)
}

func TestDo_NoTokenNoHeader(t *testing.T) {
	var auth []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Values("Authorization")
		writeJSON(w, http.StatusOK, models.PostPage{})
	}, "")

	page, err := c.FetchPosts(context.Background(), models.ModeAll, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, auth)
	assert.NotNil(t, page.Posts)
}

func TestDo_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		body   string
		kind   errs.Kind
	}{
		{http.StatusUnauthorized, `{"error":"invalid token"}`, errs.Unauthorized},
		{http.StatusForbidden, `{"detail":"not yours"}`, errs.Unauthorized},
		{http.StatusBadRequest, `{"error":"content is empty"}`, errs.ValidationFailure},
		{http.StatusNotFound, `not here`, errs.NotFound},
		{http.StatusInternalServerError, ``, errs.ServerFailure},
		{http.StatusServiceUnavailable, ``, errs.NetworkFailure},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}, "tok")

			err := c.DeleteComment(context.Background(), "c1")
			require.Error(t, err)
			assert.Equal(t, tc.kind, errs.KindOf(err))

			var e *errs.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tc.status, e.Status)
		})
	}
}

func TestDo_ErrorDetailSurfaces(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is empty"})
	}, "tok")

	_, err := c.CreateComment(context.Background(), "p1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content is empty")
}

func TestDo_TransportFailureIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url+"/api", session.New("tok"), WithTimeout(time.Second))
	_, err := c.ListComments(context.Background(), "p1")
	require.Error(t, err)
	assert.True(t, errs.Retryable(err))
}

func TestDo_TimeoutIsNetwork(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, "tok")
	defer close(release)
	c.http.Timeout = 50 * time.Millisecond

	_, err := c.GetPreferences(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.NetworkFailure, errs.KindOf(err))
}

func TestComments_RoundTrip(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/posts/p1/comments":
			writeJSON(w, http.StatusOK, models.CommentList{Comments: []models.Comment{{ID: "c1"}}, Total: 1})
		case r.Method == http.MethodPost && r.URL.Path == "/api/posts/p1/comments":
			var b commentBody
			_ = json.NewDecoder(r.Body).Decode(&b)
			bodies = append(bodies, b.Content)
			writeJSON(w, http.StatusCreated, models.Comment{ID: "c2", PostID: "p1", Content: b.Content})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/posts/comments/c2":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}, "tok")
	ctx := context.Background()

	list, err := c.ListComments(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	cm, err := c.CreateComment(ctx, "p1", "nice")
	require.NoError(t, err)
	assert.Equal(t, "c2", cm.ID)
	assert.Equal(t, []string{"nice"}, bodies)

	require.NoError(t, c.DeleteComment(ctx, "c2"))
	assert.True(t, errs.Is(c.DeleteComment(ctx, "c9"), errs.NotFound))
}

func TestPreferences_NilListsBecomeEmpty(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			_ = json.NewDecoder(r.Body).Decode(&got)
			writeJSON(w, http.StatusOK, map[string]any{"id": "u1", "preferences": map[string]any{"favorite_tags": []string{"go"}}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})
	}, "tok")

	p, err := c.GetPreferences(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{}, p.FavoriteTags)
	assert.Equal(t, []string{}, p.Interests)

	prof, err := c.UpdatePreferences(context.Background(), models.Preferences{FavoriteTags: []string{"go"}})
	require.NoError(t, err)
	assert.Equal(t, []any{}, got["interests"])
	assert.Equal(t, []string{"go"}, prof.Preferences.FavoriteTags)
	assert.Equal(t, []string{}, prof.Preferences.Interests)
}

func TestLogin_FillsSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			writeJSON(w, http.StatusOK, models.Token{AccessToken: "t-1", TokenType: "bearer"})
		case "/api/auth/me":
			if r.Header.Get("Authorization") != "Bearer t-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(w, http.StatusOK, models.UserProfile{ID: "u1", Username: "ana"})
		}
	}, "")

	_, err := c.Login(context.Background(), models.Credentials{Username: "ana", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "t-1", c.Session().Token)
	assert.Equal(t, "u1", c.Session().UserID)
	assert.True(t, c.Session().Owns("u1"))
}

func TestStreamURL(t *testing.T) {
	for in, want := range map[string]string{
		"http://localhost:9080/api": "ws://localhost:9080/ws",
		"https://example.com/api/":  "wss://example.com/ws",
		"http://example.com/v2/api": "ws://example.com/v2/ws",
		"http://example.com":        "ws://example.com/ws",
	} {
		got, err := StreamURL(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := StreamURL("ftp://x")
	assert.Error(t, err)
}

type removed struct {
	mu  sync.Mutex
	ids []string
}

func (r *removed) OnPostDeleted(id string) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
}

func (r *removed) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestStream_RoutesDeletions(t *testing.T) {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(models.Event{Type: models.EventLike, Data: map[string]any{"post_id": "p1"}})
		_ = conn.WriteJSON(models.Event{Type: models.EventPostDeleted, Data: map[string]any{"id": "p2"}})
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		_ = conn.WriteJSON(models.Event{Type: models.EventPostDeleted, Data: map[string]any{"post_id": "p3"}})
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	c := New(srv.URL+"/api", session.New("tok"))
	feed := &removed{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Stream(ctx, DeletionsTo(feed, nil)) }()

	assert.Eventually(t, func() bool { return len(feed.get()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
	assert.Equal(t, []string{"p2", "p3"}, feed.get())
}

func TestStream_DialFailure(t *testing.T) {
	c := New("http://127.0.0.1:1/api", nil)
	err := c.Stream(context.Background(), func(string, json.RawMessage) {})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "stream"))
}
