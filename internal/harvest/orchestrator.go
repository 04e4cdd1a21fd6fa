package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kestreldata/channelharvest/internal/credentials"
	"github.com/kestreldata/channelharvest/internal/metrics"
)

// StatsBatchSize is the maximum number of video IDs per statistics request,
// an external API limit.
const StatsBatchSize = 50

// Orchestrator runs the per-task fetch pipeline:
// resolve -> duplicate guard -> channel -> paginated videos -> stats -> merge
// -> upsert. The four fetch stages run sequentially within one worker since
// each stage depends on IDs produced by the previous one.
type Orchestrator struct {
	fetcher   Fetcher
	sink      Sink
	creds     *credentials.Pool
	policy    *RetryPolicy
	clock     Clock
	logger    *zap.Logger
	callDelay time.Duration
	maxPages  int
}

// OrchestratorConfig carries the tunables for task processing.
type OrchestratorConfig struct {
	CallDelay time.Duration
	MaxPages  int
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(
	fetcher Fetcher,
	sink Sink,
	creds *credentials.Pool,
	policy *RetryPolicy,
	clock Clock,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 400
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		fetcher:   fetcher,
		sink:      sink,
		creds:     creds,
		policy:    policy,
		clock:     clock,
		logger:    logger,
		callDelay: cfg.CallDelay,
		maxPages:  cfg.MaxPages,
	}
}

// Process executes the full pipeline for one task and returns its terminal
// outcome. Two conditions escape without a terminal outcome, leaving the task
// uncommitted for the next run: ErrCredentialsExhausted (at any stage) and a
// cancelled run context.
func (o *Orchestrator) Process(ctx context.Context, task Task) TaskResult {
	log := o.logger.With(zap.Int("task_index", task.Index), zap.String("handle", task.Handle))

	var channelID string
	err := o.call(ctx, "resolve", log, func(secret string) error {
		id, rerr := o.fetcher.Resolve(ctx, secret, task.Handle)
		channelID = id
		return rerr
	})
	switch {
	case errors.Is(err, ErrNotFound):
		log.Info("handle did not resolve", zap.String("classification", ClassNotFound.String()))
		return TaskResult{Task: task, Outcome: OutcomeSkippedNoEntity}
	case err != nil:
		return o.failed(ctx, task, log, "resolve", err)
	}

	var seen bool
	err = o.retrySink(ctx, "duplicate guard", log, func() error {
		var herr error
		seen, herr = o.sink.HasChannel(ctx, channelID)
		return herr
	})
	if err != nil {
		return o.failed(ctx, task, log, "duplicate guard", err)
	}
	if seen {
		log.Info("channel already processed", zap.String("channel_id", channelID))
		return TaskResult{Task: task, Outcome: OutcomeSkippedAlreadyProcessed}
	}

	var channel ChannelSnapshot
	err = o.call(ctx, "fetch channel", log, func(secret string) error {
		snap, cerr := o.fetcher.FetchChannel(ctx, secret, channelID)
		channel = snap
		return cerr
	})
	switch {
	case errors.Is(err, ErrNotFound):
		log.Info("channel vanished after resolve", zap.String("channel_id", channelID))
		return TaskResult{Task: task, Outcome: OutcomeSkippedNoEntity}
	case err != nil:
		return o.failed(ctx, task, log, "fetch channel", err)
	}
	if channel.Handle == "" {
		channel.Handle = task.Handle
	}
	if channel.UploadsPlaylistID == "" {
		log.Info("channel has no uploads playlist", zap.String("channel_id", channelID))
		return TaskResult{Task: task, Outcome: OutcomeSkippedNoChildren}
	}

	videos, err := o.fetchAllVideos(ctx, log, channel.UploadsPlaylistID)
	if err != nil {
		return o.failed(ctx, task, log, "fetch videos", err)
	}
	if len(videos) == 0 {
		log.Info("channel has no videos", zap.String("channel_id", channelID))
		return TaskResult{Task: task, Outcome: OutcomeSkippedNoChildren}
	}

	stats, err := o.fetchAllStats(ctx, log, videos)
	if err != nil {
		return o.failed(ctx, task, log, "fetch stats", err)
	}

	records := Merge(channel, videos, stats, o.clock.Now())

	err = o.retrySink(ctx, "upsert", log, func() error {
		return o.sink.UpsertVideos(ctx, records)
	})
	if err != nil {
		return o.failed(ctx, task, log, "upsert", err)
	}

	log.Info("channel persisted",
		zap.String("channel_id", channelID),
		zap.Int("videos", len(records)),
	)
	return TaskResult{Task: task, Outcome: OutcomePersisted, Videos: len(records)}
}

// failed maps a pipeline error to the task's result. Credential exhaustion
// and a finished run context yield no terminal outcome: the task stays
// uncommitted and the next run picks it up again.
func (o *Orchestrator) failed(ctx context.Context, task Task, log *zap.Logger, stage string, err error) TaskResult {
	if errors.Is(err, ErrCredentialsExhausted) || ctx.Err() != nil {
		return TaskResult{Task: task, Err: err}
	}
	log.Warn("task failed",
		zap.String("stage", stage),
		zap.String("classification", Classify(err).String()),
		zap.Error(err),
	)
	return TaskResult{Task: task, Outcome: OutcomeFailed, Err: err}
}

// fetchAllVideos walks the uploads playlist until the API stops returning a
// continuation token. Total pages are bounded defensively so a paging bug on
// the remote side cannot loop forever.
func (o *Orchestrator) fetchAllVideos(ctx context.Context, log *zap.Logger, playlistID string) ([]VideoListing, error) {
	var videos []VideoListing
	pageToken := ""
	for page := 0; page < o.maxPages; page++ {
		var (
			items []VideoListing
			next  string
		)
		err := o.call(ctx, "fetch video page", log, func(secret string) error {
			batch, token, ferr := o.fetcher.FetchVideoPage(ctx, secret, playlistID, pageToken)
			items, next = batch, token
			return ferr
		})
		if errors.Is(err, ErrNotFound) {
			// Playlist disappeared mid-listing; keep what we have.
			return videos, nil
		}
		if err != nil {
			return nil, err
		}
		videos = append(videos, items...)
		if next == "" {
			return videos, nil
		}
		pageToken = next
		Pause(ctx, o.callDelay)
	}
	log.Warn("playlist page bound reached",
		zap.String("playlist_id", playlistID),
		zap.Int("max_pages", o.maxPages),
	)
	return videos, nil
}

// fetchAllStats gathers statistics in fixed-size ID batches. A batch that
// still fails after retries degrades to zero-valued stats for its IDs; the
// merge step never drops a video over missing stats. Credential exhaustion
// is the exception: it must stop the task before anything is persisted, so
// it propagates instead of degrading.
func (o *Orchestrator) fetchAllStats(ctx context.Context, log *zap.Logger, videos []VideoListing) (map[string]VideoStats, error) {
	stats := make(map[string]VideoStats, len(videos))
	for start := 0; start < len(videos); start += StatsBatchSize {
		end := start + StatsBatchSize
		if end > len(videos) {
			end = len(videos)
		}
		ids := make([]string, 0, end-start)
		for _, v := range videos[start:end] {
			ids = append(ids, v.VideoID)
		}
		err := o.call(ctx, "fetch stats", log, func(secret string) error {
			batch, serr := o.fetcher.FetchStats(ctx, secret, ids)
			for id, s := range batch {
				stats[id] = s
			}
			return serr
		})
		if err != nil && !errors.Is(err, ErrNotFound) {
			if errors.Is(err, ErrCredentialsExhausted) {
				return nil, err
			}
			log.Warn("stats batch degraded to zero values",
				zap.Int("batch_start", start),
				zap.String("classification", Classify(err).String()),
				zap.Error(err),
			)
		}
		Pause(ctx, o.callDelay)
	}
	return stats, nil
}

// retrySink runs a storage call under the transient retry budget. Batches
// roll back as a unit in the sink, so a retry never sees partial rows. No
// credential is involved; the final failure classifies as persistence.
func (o *Orchestrator) retrySink(ctx context.Context, op string, log *zap.Logger, fn func() error) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		err := fn()
		if err == nil {
			return nil
		}
		attempt++
		if !o.policy.ShouldRetry(attempt) {
			return fmt.Errorf("%s: retries exhausted: %w", op, &PersistenceError{Err: err})
		}
		log.Warn("storage call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		Pause(ctx, o.policy.Backoff(attempt))
	}
}

// call runs fn under the retry and rotation policy. Transient and
// persistence failures retry with backoff up to the policy budget. Quota and
// auth failures mark the credential exhausted and retry immediately with a
// fresh credential, without consuming the budget; when no credential
// remains, ErrCredentialsExhausted is returned.
func (o *Orchestrator) call(ctx context.Context, op string, log *zap.Logger, fn func(secret string) error) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		cred, ok := o.creds.Acquire()
		if !ok {
			return fmt.Errorf("%s: %w", op, ErrCredentialsExhausted)
		}
		err := fn(cred.Secret)
		switch Classify(err) {
		case ClassSuccess:
			return nil
		case ClassNotFound:
			return err
		case ClassQuotaExhausted, ClassFatalAuth:
			o.creds.MarkExhausted(cred.ID)
			metrics.CredentialExhausted()
			log.Warn("credential exhausted",
				zap.Int("credential_id", cred.ID),
				zap.String("op", op),
				zap.String("classification", Classify(err).String()),
				zap.Int("remaining", o.creds.Remaining()),
			)
		case ClassTransient, ClassPersistence:
			attempt++
			if !o.policy.ShouldRetry(attempt) {
				return fmt.Errorf("%s: retries exhausted: %w", op, err)
			}
			log.Debug("retrying after failure",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			Pause(ctx, o.policy.Backoff(attempt))
		}
	}
}

// Merge joins listing fields with stats and denormalized channel fields into
// complete records. Videos with no stats entry get zero-valued stats fields,
// never dropped.
func Merge(channel ChannelSnapshot, videos []VideoListing, stats map[string]VideoStats, now time.Time) []VideoRecord {
	records := make([]VideoRecord, 0, len(videos))
	for _, v := range videos {
		s := stats[v.VideoID]
		records = append(records, VideoRecord{
			ChannelID:          channel.ID,
			ChannelHandle:      channel.Handle,
			ChannelTitle:       channel.Title,
			ChannelDescription: truncate(channel.Description, 1000),
			SubscriberCount:    channel.SubscriberCount,
			ChannelVideoCount:  channel.VideoCount,
			ChannelViewCount:   channel.ViewCount,
			UploadsPlaylistID:  channel.UploadsPlaylistID,
			Country:            channel.Country,
			ChannelPublishedAt: channel.PublishedAt,
			TopicCategories:    strings.Join(channel.TopicCategories, "|"),
			ChannelForKids:     channel.MadeForKids,
			PrivacyStatus:      channel.PrivacyStatus,
			ScrapedAt:          now,

			VideoID:           v.VideoID,
			Title:             v.Title,
			Description:       truncate(v.Description, 1000),
			VideoPublishedAt:  v.PublishedAt,
			VideoURL:          v.URL,
			ChannelTitleVideo: v.ChannelTitle,

			Tags:        s.Tags,
			Likes:       s.Likes,
			Comments:    s.Comments,
			Views:       s.Views,
			Duration:    s.Duration,
			Definition:  s.Definition,
			CategoryID:  s.CategoryID,
			License:     s.License,
			MadeForKids: s.MadeForKids,
		})
	}
	return records
}

// truncate cuts s to at most n bytes without splitting a multi-byte rune;
// a byte-wise cut could emit invalid UTF-8 that Postgres rejects.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
