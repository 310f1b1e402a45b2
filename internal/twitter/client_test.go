package twitter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(srv.URL, "secret")
	c.client.SetRetryWaitTime(time.Millisecond).SetRetryMaxWaitTime(5 * time.Millisecond)
	return c
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func TestResolveUserID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/2/users/by/username/someone":
			writeJSON(w, `{"data":{"id":"1001","name":"Some One","username":"someone"}}`)
		default:
			writeJSON(w, `{"errors":[{"title":"Not Found Error","detail":"Could not find user"}]}`)
		}
	})

	id, err := c.ResolveUserID(context.Background(), "someone")
	require.NoError(t, err)
	assert.Equal(t, "1001", id)

	_, err = c.ResolveUserID(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestPosts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2/users/1001/tweets", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "5", q.Get("max_results"))
		assert.Equal(t, "retweets,replies", q.Get("exclude"))
		assert.Equal(t, "attachments.media_keys", q.Get("expansions"))

		writeJSON(w, `{
			"data": [
				{"id": "3", "text": "third", "created_at": "2024-03-10T12:00:00.000Z",
				 "attachments": {"media_keys": ["m1"]}},
				{"id": "2", "text": "second", "created_at": "2024-03-09T12:00:00.000Z",
				 "attachments": {"media_keys": ["m2"]}},
				{"id": "1", "text": "first", "created_at": "2024-03-08T12:00:00.000Z"}
			],
			"includes": {"media": [
				{"media_key": "m1", "type": "photo", "url": "https://pbs.example/m1.jpg"},
				{"media_key": "m2", "type": "video", "preview_image_url": "https://pbs.example/m2.jpg"}
			]}
		}`)
	})

	posts, err := c.LatestPosts(context.Background(), "1001", "someone", 2)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, "3", posts[0].ID)
	assert.Equal(t, "third", posts[0].Text)
	assert.Equal(t, "https://pbs.example/m1.jpg", posts[0].MediaURL)
	assert.Equal(t, "https://x.com/someone/status/3", posts[0].URL)
	assert.Equal(t, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), posts[0].CreatedAt.UTC())

	assert.Equal(t, "https://pbs.example/m2.jpg", posts[1].MediaURL)
}

func TestPostByID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets/42" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, `{
			"data": {"id": "42", "text": "hello <world>", "author_id": "7",
			         "created_at": "2024-03-10T12:00:00.000Z"},
			"includes": {"users": [{"id": "7", "name": "Author", "username": "author"}]}
		}`)
	})

	post, err := c.PostByID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "author", post.Handle)
	assert.Equal(t, "hello <world>", post.Text)
	assert.Empty(t, post.MediaURL)
	assert.Equal(t, "https://x.com/author/status/42", post.URL)

	_, err = c.PostByID(context.Background(), "43")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusMapping(t *testing.T) {
	for _, tc := range []struct {
		status int
		err    error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusNotFound, ErrNotFound},
	} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		_, err := c.PostByID(context.Background(), "1")
		assert.ErrorIs(t, err, tc.err, "status %d", tc.status)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, `{"data":{"id":"1001","username":"someone"}}`)
	})

	id, err := c.ResolveUserID(context.Background(), "someone")
	require.NoError(t, err)
	assert.Equal(t, "1001", id)
	assert.EqualValues(t, 3, calls.Load())
}

func TestDecodesBodyWithoutJSONContentType(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(`{"data":{"id":"1001","username":"someone"}}`))
	})

	id, err := c.ResolveUserID(context.Background(), "someone")
	require.NoError(t, err)
	assert.Equal(t, "1001", id)
}
