package harvest

import (
	"context"
	"time"
)

// Fetcher is the external metadata API boundary. Every method returns errors
// that resolve unambiguously under Classify: ErrNotFound, *QuotaError,
// *AuthError or *TransientError. The secret is the currently acquired
// credential's key.
type Fetcher interface {
	// Resolve converts a handle to a channel ID, or ErrNotFound.
	Resolve(ctx context.Context, secret, handle string) (string, error)
	// FetchChannel returns the channel snapshot, or ErrNotFound.
	FetchChannel(ctx context.Context, secret, channelID string) (ChannelSnapshot, error)
	// FetchVideoPage returns one page of the uploads playlist plus the
	// continuation token; an empty token means the listing is complete.
	FetchVideoPage(ctx context.Context, secret, playlistID, pageToken string) ([]VideoListing, string, error)
	// FetchStats returns statistics for up to StatsBatchSize video IDs.
	// IDs absent from the result simply had no stats available.
	FetchStats(ctx context.Context, secret string, videoIDs []string) (map[string]VideoStats, error)
}

// Sink persists merged records idempotently, keyed by (channel_id, video_id).
type Sink interface {
	// UpsertVideos writes the batch in a single transaction; on failure the
	// batch rolls back as a unit and the error classifies as persistence.
	UpsertVideos(ctx context.Context, records []VideoRecord) error
	// HasChannel reports whether committed records already exist for the
	// channel (the duplicate guard).
	HasChannel(ctx context.Context, channelID string) (bool, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
