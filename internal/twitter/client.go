package twitter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/teleluxbot/telelux/internal/linkutil"
)

var (
	ErrNotFound     = errors.New("post or user not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
)

const (
	// The timeline endpoint rejects max_results below 5.
	minTimelineResults = 5
	maxTimelineResults = 100

	mediaFields = "url,preview_image_url,type"
)

type Post struct {
	ID        string
	Text      string
	CreatedAt time.Time
	MediaURL  string
	Handle    string
	URL       string
}

func (p *Post) String() string {
	return fmt.Sprintf("Post(%s, @%s)", p.ID, p.Handle)
}

type Client struct {
	client *resty.Client
	logger *logrus.Entry
}

func New(baseURL, bearerToken string) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(bearerToken).
		SetHeader("Accept", "application/json").
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{
		client: client,
		logger: logrus.WithField("component", "twitter"),
	}
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

type apiUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type apiMedia struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url"`
	PreviewImageURL string `json:"preview_image_url"`
}

type apiTweet struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	AuthorID    string    `json:"author_id"`
	CreatedAt   time.Time `json:"created_at"`
	Attachments struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
}

type apiIncludes struct {
	Users []apiUser  `json:"users"`
	Media []apiMedia `json:"media"`
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, result any) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(result).
		ForceContentType("application/json").
		Get(path)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode())
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: reset at %s", ErrRateLimited, resp.Header().Get("x-rate-limit-reset"))
	default:
		return fmt.Errorf("unexpected status code: %d %s", resp.StatusCode(), string(resp.Body()))
	}
}

func (c *Client) ResolveUserID(ctx context.Context, handle string) (string, error) {
	type userResponse struct {
		Data   *apiUser   `json:"data"`
		Errors []apiError `json:"errors"`
	}

	var result userResponse
	if err := c.get(ctx, "/2/users/by/username/"+handle, nil, &result); err != nil {
		return "", fmt.Errorf("resolving user %s: %w", handle, err)
	}
	if result.Data == nil || result.Data.ID == "" {
		return "", fmt.Errorf("resolving user %s: %w", handle, ErrNotFound)
	}

	c.logger.Debugf("resolved @%s to %s", handle, result.Data.ID)
	return result.Data.ID, nil
}

// LatestPosts returns up to count of the user's own posts (no reposts or replies), newest first.
func (c *Client) LatestPosts(ctx context.Context, userID, handle string, count int) ([]*Post, error) {
	type timelineResponse struct {
		Data     []apiTweet  `json:"data"`
		Includes apiIncludes `json:"includes"`
	}

	maxResults := min(max(count, minTimelineResults), maxTimelineResults)

	var result timelineResponse
	if err := c.get(ctx, "/2/users/"+userID+"/tweets", map[string]string{
		"max_results":  strconv.Itoa(maxResults),
		"exclude":      "retweets,replies",
		"tweet.fields": "created_at,attachments",
		"expansions":   "attachments.media_keys",
		"media.fields": mediaFields,
	}, &result); err != nil {
		return nil, fmt.Errorf("fetching posts of %s: %w", handle, err)
	}

	media := indexMedia(result.Includes.Media)
	posts := make([]*Post, 0, len(result.Data))
	for _, t := range result.Data {
		posts = append(posts, toPost(t, handle, media))
		if len(posts) == count {
			break
		}
	}
	return posts, nil
}

func (c *Client) PostByID(ctx context.Context, postID string) (*Post, error) {
	type tweetResponse struct {
		Data     *apiTweet   `json:"data"`
		Includes apiIncludes `json:"includes"`
		Errors   []apiError  `json:"errors"`
	}

	var result tweetResponse
	if err := c.get(ctx, "/2/tweets/"+postID, map[string]string{
		"tweet.fields": "created_at,author_id,attachments",
		"expansions":   "author_id,attachments.media_keys",
		"user.fields":  "username",
		"media.fields": mediaFields,
	}, &result); err != nil {
		return nil, fmt.Errorf("fetching post %s: %w", postID, err)
	}
	if result.Data == nil {
		return nil, fmt.Errorf("fetching post %s: %w", postID, ErrNotFound)
	}

	handle := "i"
	for _, u := range result.Includes.Users {
		if u.ID == result.Data.AuthorID {
			handle = u.Username
			break
		}
	}

	return toPost(*result.Data, handle, indexMedia(result.Includes.Media)), nil
}

func indexMedia(media []apiMedia) map[string]apiMedia {
	res := make(map[string]apiMedia, len(media))
	for _, m := range media {
		res[m.MediaKey] = m
	}
	return res
}

func toPost(t apiTweet, handle string, media map[string]apiMedia) *Post {
	post := &Post{
		ID:        t.ID,
		Text:      t.Text,
		CreatedAt: t.CreatedAt,
		Handle:    handle,
		URL:       linkutil.PostURL(handle, t.ID),
	}
	for _, key := range t.Attachments.MediaKeys {
		m, ok := media[key]
		if !ok {
			continue
		}
		switch {
		case m.Type == "photo" && m.URL != "":
			post.MediaURL = m.URL
		case m.PreviewImageURL != "":
			post.MediaURL = m.PreviewImageURL
		}
		if post.MediaURL != "" {
			break
		}
	}
	return post
}
