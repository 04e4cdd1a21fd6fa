package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestreldata/channelharvest/internal/harvest"
)

// fakeAPI routes Data API endpoints to canned handlers and records requests.
type fakeAPI struct {
	t        *testing.T
	mux      *http.ServeMux
	requests []*http.Request
}

func newFakeAPI(t *testing.T) (*fakeAPI, *Client) {
	t.Helper()
	api := &fakeAPI{t: t, mux: http.NewServeMux()}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.requests = append(api.requests, r)
		api.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return api, NewClient(srv.URL, 5*time.Second)
}

func (a *fakeAPI) respond(endpoint, body string) {
	a.mux.HandleFunc("/"+endpoint, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

func (a *fakeAPI) fail(endpoint string, status int, body string) {
	a.mux.HandleFunc("/"+endpoint, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func apiErrorBody(reason string) string {
	return `{"error":{"code":403,"message":"denied","errors":[{"reason":"` + reason + `"}]}}`
}

func TestResolve(t *testing.T) {
	t.Parallel()
	api, c := newFakeAPI(t)
	api.respond("search", `{"items":[{"snippet":{"channelId":"UCabc"}}]}`)

	id, err := c.Resolve(context.Background(), "secret-key", "@creator")
	require.NoError(t, err)
	assert.Equal(t, "UCabc", id)

	require.Len(t, api.requests, 1)
	q := api.requests[0].URL.Query()
	assert.Equal(t, "secret-key", q.Get("key"))
	assert.Equal(t, "creator", q.Get("q"), "handle is sent without the @ prefix")
	assert.Equal(t, "channel", q.Get("type"))
}

func TestResolve_NoHits(t *testing.T) {
	t.Parallel()
	api, c := newFakeAPI(t)
	api.respond("search", `{"items":[]}`)

	_, err := c.Resolve(context.Background(), "k", "@ghost")
	assert.ErrorIs(t, err, harvest.ErrNotFound)
}

func TestFetchChannel(t *testing.T) {
	t.Parallel()
	api, c := newFakeAPI(t)
	api.respond("channels", `{"items":[{
		"snippet":{"title":"Creator","description":"about","customUrl":"@creator","country":"DE","publishedAt":"2020-01-02T03:04:05Z"},
		"statistics":{"subscriberCount":"1200","videoCount":"34","viewCount":"98765"},
		"contentDetails":{"relatedPlaylists":{"uploads":"UUabc"}},
		"topicDetails":{"topicCategories":["https://en.wikipedia.org/wiki/Music"]},
		"status":{"privacyStatus":"public","madeForKids":false}
	}]}`)

	snap, err := c.FetchChannel(context.Background(), "k", "UCabc")
	require.NoError(t, err)
	assert.Equal(t, "UCabc", snap.ID)
	assert.Equal(t, "@creator", snap.Handle)
	assert.Equal(t, "Creator", snap.Title)
	assert.Equal(t, int64(1200), snap.SubscriberCount)
	assert.Equal(t, int64(34), snap.VideoCount)
	assert.Equal(t, int64(98765), snap.ViewCount)
	assert.Equal(t, "UUabc", snap.UploadsPlaylistID)
	assert.Equal(t, "DE", snap.Country)
	assert.Equal(t, time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), snap.PublishedAt)
	assert.Equal(t, []string{"https://en.wikipedia.org/wiki/Music"}, snap.TopicCategories)
	assert.Equal(t, "public", snap.PrivacyStatus)
}

func TestFetchChannel_Empty(t *testing.T) {
	t.Parallel()
	api, c := newFakeAPI(t)
	api.respond("channels", `{"items":[]}`)

	_, err := c.FetchChannel(context.Background(), "k", "UCgone")
	assert.ErrorIs(t, err, harvest.ErrNotFound)
}

func TestFetchVideoPage(t *testing.T) {
	t.Parallel()
	api, c := newFakeAPI(t)
	api.respond("playlistItems", `{"nextPageToken":"tok2","items":[
		{"snippet":{"title":"one","description":"d1","publishedAt":"2024-05-06T07:08:09Z","channelTitle":"Creator"},"contentDetails":{"videoId":"vid1"}},
		{"snippet":{"title":"broken"},"contentDetails":{}},
		{"snippet":{"title":"two"},"contentDetails":{"videoId":"vid2"}}
	]}`)

	items, next, err := c.FetchVideoPage(context.Background(), "k", "UUabc", "tok1")
	require.NoError(t, err)
	assert.Equal(t, "tok2", next)

	// The item without a video ID is dropped.
	require.Len(t, items, 2)
	assert.Equal(t, "vid1", items[0].VideoID)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid1", items[0].URL)
	assert.Equal(t, "Creator", items[0].ChannelTitle)
	assert.Equal(t, "vid2", items[1].VideoID)

	q := api.requests[0].URL.Query()
	assert.Equal(t, "tok1", q.Get("pageToken"))
	assert.Equal(t, "50", q.Get("maxResults"))
}

func TestFetchVideoPage_LastPage(t *testing.T) {
	t.Parallel()
	api, c := newFakeAPI(t)
	api.respond("playlistItems", `{"items":[]}`)

	items, next, err := c.FetchVideoPage(context.Background(), "k", "UUabc", "")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, next)
	assert.Empty(t, api.requests[0].URL.Query().Get("pageToken"))
}

func TestFetchStats(t *testing.T) {
	t.Parallel()
	api, c := newFakeAPI(t)
	api.respond("videos", `{"items":[{
		"id":"vid1",
		"snippet":{"tags":["go","testing"],"categoryId":"28"},
		"statistics":{"likeCount":"10","commentCount":"3","viewCount":"250"},
		"contentDetails":{"duration":"PT4M13S","definition":"hd"},
		"status":{"license":"youtube","madeForKids":true}
	}]}`)

	stats, err := c.FetchStats(context.Background(), "k", []string{"vid1", "vid2"})
	require.NoError(t, err)

	// vid2 was requested but not returned; it is simply absent.
	require.Len(t, stats, 1)
	s := stats["vid1"]
	assert.Equal(t, int64(10), s.Likes)
	assert.Equal(t, int64(3), s.Comments)
	assert.Equal(t, int64(250), s.Views)
	assert.Equal(t, "go,testing", s.Tags)
	assert.Equal(t, "PT4M13S", s.Duration)
	assert.Equal(t, "hd", s.Definition)
	assert.Equal(t, "28", s.CategoryID)
	assert.Equal(t, "youtube", s.License)
	assert.True(t, s.MadeForKids)

	assert.Equal(t, "vid1,vid2", api.requests[0].URL.Query().Get("id"))
}

func TestGet_MalformedBodyIsTransient(t *testing.T) {
	t.Parallel()
	api, c := newFakeAPI(t)
	api.respond("search", `{"items": [`)

	_, err := c.Resolve(context.Background(), "k", "@x")
	assert.Equal(t, harvest.ClassTransient, harvest.Classify(err))
}

func TestGet_ErrorClassification(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		status int
		body   string
		want   harvest.Class
	}{
		{"quota exceeded", 403, apiErrorBody("quotaExceeded"), harvest.ClassQuotaExhausted},
		{"daily limit", 403, apiErrorBody("dailyLimitExceeded"), harvest.ClassQuotaExhausted},
		{"rate limit", 403, apiErrorBody("rateLimitExceeded"), harvest.ClassQuotaExhausted},
		{"bare 403", 403, `{"error":{"message":"forbidden"}}`, harvest.ClassQuotaExhausted},
		{"key invalid", 400, apiErrorBody("keyInvalid"), harvest.ClassFatalAuth},
		{"key expired", 400, apiErrorBody("keyExpired"), harvest.ClassFatalAuth},
		{"access not configured", 403, apiErrorBody("accessNotConfigured"), harvest.ClassFatalAuth},
		{"unauthorized", 401, `{}`, harvest.ClassFatalAuth},
		{"not found", 404, `{}`, harvest.ClassNotFound},
		{"server error", 500, `{}`, harvest.ClassTransient},
		{"bad gateway", 502, `not json at all`, harvest.ClassTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			api, c := newFakeAPI(t)
			api.fail("search", tc.status, tc.body)

			_, err := c.Resolve(context.Background(), "k", "@x")
			require.Error(t, err)
			assert.Equal(t, tc.want, harvest.Classify(err))
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	c := NewClient("", 0)
	assert.Equal(t, defaultBaseURL, c.baseURL)

	c = NewClient("http://example.test/api/", time.Second)
	assert.Equal(t, "http://example.test/api", c.baseURL)
}

func TestParseHelpers(t *testing.T) {
	t.Parallel()
	assert.Equal(t, int64(0), parseCount(""))
	assert.Equal(t, int64(0), parseCount("abc"))
	assert.Equal(t, int64(42), parseCount("42"))

	assert.True(t, parseTime("").IsZero())
	assert.True(t, parseTime("garbage").IsZero())
	assert.Equal(t, time.Date(2023, 2, 3, 4, 5, 6, 0, time.UTC), parseTime("2023-02-03T04:05:06Z"))
}
