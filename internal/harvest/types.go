// Package harvest defines the core ingestion types and the per-task pipeline.
package harvest

import "time"

// Task is one unit of crawl work: a single handle from the input list.
// Identity is the position in the original ordered input; tasks are
// immutable once enqueued.
type Task struct {
	Index  int
	Handle string
}

// ChannelSnapshot is the denormalized public profile of one channel plus
// its aggregate statistics, as returned by the metadata API.
type ChannelSnapshot struct {
	ID                string
	Handle            string
	Title             string
	Description       string
	SubscriberCount   int64
	VideoCount        int64
	ViewCount         int64
	UploadsPlaylistID string
	Country           string
	PublishedAt       time.Time
	TopicCategories   []string
	MadeForKids       bool
	PrivacyStatus     string
}

// VideoListing is the per-video metadata from the uploads playlist.
type VideoListing struct {
	VideoID      string
	Title        string
	Description  string
	PublishedAt  time.Time
	URL          string
	ChannelTitle string
}

// VideoStats is the statistics shard fetched separately per video batch.
type VideoStats struct {
	Likes       int64
	Comments    int64
	Views       int64
	Tags        string
	Duration    string
	Definition  string
	CategoryID  string
	License     string
	MadeForKids bool
}

// VideoRecord is one fully merged row keyed by (ChannelID, VideoID):
// listing fields joined with stats fields and denormalized channel fields.
type VideoRecord struct {
	// Channel fields, denormalized into every row.
	ChannelID          string
	ChannelHandle      string
	ChannelTitle       string
	ChannelDescription string
	SubscriberCount    int64
	ChannelVideoCount  int64
	ChannelViewCount   int64
	UploadsPlaylistID  string
	Country            string
	ChannelPublishedAt time.Time
	TopicCategories    string
	ChannelForKids     bool
	PrivacyStatus      string
	ScrapedAt          time.Time

	// Video fields.
	VideoID           string
	Title             string
	Description       string
	VideoPublishedAt  time.Time
	VideoURL          string
	ChannelTitleVideo string

	// Stats fields; zero-valued when the stats shard had no entry.
	Tags        string
	Likes       int64
	Comments    int64
	Views       int64
	Duration    string
	Definition  string
	CategoryID  string
	License     string
	MadeForKids bool
}

// Outcome is the terminal state of one task.
type Outcome string

// Terminal task outcomes.
const (
	OutcomePersisted               Outcome = "persisted"
	OutcomeSkippedNoEntity         Outcome = "skipped_no_entity"
	OutcomeSkippedNoChildren       Outcome = "skipped_no_children"
	OutcomeSkippedAlreadyProcessed Outcome = "skipped_already_processed"
	OutcomeFailed                  Outcome = "failed"
)

// Committable reports whether the outcome is durable enough to advance the
// checkpoint past the task. Every terminal outcome commits; a run-stopping
// error (credential pool empty) never reaches a terminal outcome.
func (o Outcome) Committable() bool {
	switch o {
	case OutcomePersisted, OutcomeSkippedNoEntity, OutcomeSkippedNoChildren,
		OutcomeSkippedAlreadyProcessed, OutcomeFailed:
		return true
	}
	return false
}

// TaskResult records how a task terminated.
type TaskResult struct {
	Task    Task
	Outcome Outcome
	Videos  int
	Err     error
}
