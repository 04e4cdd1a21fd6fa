// Package youtube is a thin adapter over the YouTube Data API v3. It maps
// every response to the harvest classification taxonomy: quota vs. transient
// vs. not-found vs. fatal auth.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kestreldata/channelharvest/internal/harvest"
)

const defaultBaseURL = "https://www.googleapis.com/youtube/v3"

// pageSize is the API maximum for playlistItems.list.
const pageSize = 50

// Client implements harvest.Fetcher against the Data API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client. baseURL is overridable for tests; timeout is
// the per-call budget.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Resolve converts an @handle to a channel ID via channel search, taking the
// first hit.
func (c *Client) Resolve(ctx context.Context, secret, handle string) (string, error) {
	q := url.Values{
		"part":       {"snippet"},
		"q":          {strings.TrimPrefix(strings.TrimSpace(handle), "@")},
		"type":       {"channel"},
		"maxResults": {"1"},
	}
	var resp searchResponse
	if err := c.get(ctx, secret, "search", q, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet.ChannelID == "" {
		return "", harvest.ErrNotFound
	}
	return resp.Items[0].Snippet.ChannelID, nil
}

// FetchChannel returns the full channel snapshot.
func (c *Client) FetchChannel(ctx context.Context, secret, channelID string) (harvest.ChannelSnapshot, error) {
	q := url.Values{
		"part": {"snippet,statistics,contentDetails,topicDetails,status"},
		"id":   {channelID},
	}
	var resp channelListResponse
	if err := c.get(ctx, secret, "channels", q, &resp); err != nil {
		return harvest.ChannelSnapshot{}, err
	}
	if len(resp.Items) == 0 {
		return harvest.ChannelSnapshot{}, harvest.ErrNotFound
	}
	item := resp.Items[0]
	return harvest.ChannelSnapshot{
		ID:                channelID,
		Handle:            item.Snippet.CustomURL,
		Title:             item.Snippet.Title,
		Description:       item.Snippet.Description,
		SubscriberCount:   parseCount(item.Statistics.SubscriberCount),
		VideoCount:        parseCount(item.Statistics.VideoCount),
		ViewCount:         parseCount(item.Statistics.ViewCount),
		UploadsPlaylistID: item.ContentDetails.RelatedPlaylists.Uploads,
		Country:           item.Snippet.Country,
		PublishedAt:       parseTime(item.Snippet.PublishedAt),
		TopicCategories:   item.TopicDetails.TopicCategories,
		MadeForKids:       item.Status.MadeForKids,
		PrivacyStatus:     item.Status.PrivacyStatus,
	}, nil
}

// FetchVideoPage returns one page of the uploads playlist and the
// continuation token; empty token means last page.
func (c *Client) FetchVideoPage(ctx context.Context, secret, playlistID, pageToken string) ([]harvest.VideoListing, string, error) {
	q := url.Values{
		"part":       {"snippet,contentDetails"},
		"playlistId": {playlistID},
		"maxResults": {strconv.Itoa(pageSize)},
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	var resp playlistItemsResponse
	if err := c.get(ctx, secret, "playlistItems", q, &resp); err != nil {
		return nil, "", err
	}
	items := make([]harvest.VideoListing, 0, len(resp.Items))
	for _, it := range resp.Items {
		id := it.ContentDetails.VideoID
		if id == "" {
			continue
		}
		items = append(items, harvest.VideoListing{
			VideoID:      id,
			Title:        it.Snippet.Title,
			Description:  it.Snippet.Description,
			PublishedAt:  parseTime(it.Snippet.PublishedAt),
			URL:          "https://www.youtube.com/watch?v=" + id,
			ChannelTitle: it.Snippet.ChannelTitle,
		})
	}
	return items, resp.NextPageToken, nil
}

// FetchStats returns statistics for up to 50 video IDs. IDs the API omits
// are simply absent from the map.
func (c *Client) FetchStats(ctx context.Context, secret string, videoIDs []string) (map[string]harvest.VideoStats, error) {
	q := url.Values{
		"part": {"statistics,snippet,contentDetails,status"},
		"id":   {strings.Join(videoIDs, ",")},
	}
	var resp videoListResponse
	if err := c.get(ctx, secret, "videos", q, &resp); err != nil {
		return nil, err
	}
	stats := make(map[string]harvest.VideoStats, len(resp.Items))
	for _, it := range resp.Items {
		stats[it.ID] = harvest.VideoStats{
			Likes:       parseCount(it.Statistics.LikeCount),
			Comments:    parseCount(it.Statistics.CommentCount),
			Views:       parseCount(it.Statistics.ViewCount),
			Tags:        strings.Join(it.Snippet.Tags, ","),
			Duration:    it.ContentDetails.Duration,
			Definition:  it.ContentDetails.Definition,
			CategoryID:  it.Snippet.CategoryID,
			License:     it.Status.License,
			MadeForKids: it.Status.MadeForKids,
		}
	}
	return stats, nil
}

func (c *Client) get(ctx context.Context, secret, endpoint string, q url.Values, out any) error {
	q.Set("key", secret)
	u := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return transientf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return transientf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return transientf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		return classifyAPIError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return transientf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func parseCount(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
