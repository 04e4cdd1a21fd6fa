// Package postgres provides the Postgres-backed persistence sink.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kestreldata/channelharvest/internal/harvest"
)

var validIdent = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// VideoStoreConfig controls the Postgres connection pool.
type VideoStoreConfig struct {
	DSN             string
	Schema          string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pgxPool is the slice of pgxpool.Pool the store needs; pgxmock satisfies it
// in tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// VideoStore writes merged video rows into Postgres, keyed by
// (channel_id, video_id).
type VideoStore struct {
	pool   pgxPool
	schema string
	table  string
}

func (s *VideoStore) qualified() string {
	return s.schema + "." + s.table
}

// NewVideoStore creates a Postgres-backed VideoStore using the provided config.
func NewVideoStore(ctx context.Context, cfg VideoStoreConfig) (*VideoStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	schema, table, err := identifiers(cfg.Schema, cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &VideoStore{pool: pool, schema: schema, table: table}, nil
}

// NewVideoStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewVideoStoreWithPool(pool pgxPool, schema, table string) (*VideoStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	schema, table, err := identifiers(schema, table)
	if err != nil {
		return nil, err
	}
	return &VideoStore{pool: pool, schema: schema, table: table}, nil
}

func identifiers(schema, table string) (string, string, error) {
	if schema == "" {
		schema = "recycle_bin"
	}
	if table == "" {
		table = "youtube_scraped_data"
	}
	if !validIdent.MatchString(schema) {
		return "", "", fmt.Errorf("invalid schema name %q", schema)
	}
	if !validIdent.MatchString(table) {
		return "", "", fmt.Errorf("invalid table name %q", table)
	}
	return schema, table, nil
}

// Close releases the underlying pool resources.
func (s *VideoStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the schema and table when absent.
func (s *VideoStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", s.schema)); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	channel_id VARCHAR(255),
	channel_handle VARCHAR(255),
	channel_title TEXT,
	channel_description TEXT,
	subscriber_count BIGINT,
	video_count BIGINT,
	view_count BIGINT,
	uploads_playlist_id VARCHAR(255),
	country VARCHAR(10),
	published_at TIMESTAMPTZ,
	topic_categories TEXT,
	made_for_kids BOOLEAN,
	privacy_status VARCHAR(50),
	scraped_at TIMESTAMPTZ DEFAULT NOW(),
	video_id VARCHAR(255),
	title TEXT,
	description TEXT,
	video_published TIMESTAMPTZ,
	video_url TEXT,
	channel_title_video TEXT,
	tags TEXT,
	likes BIGINT,
	comments BIGINT,
	views BIGINT,
	duration VARCHAR(50),
	definition VARCHAR(20),
	category_id VARCHAR(10),
	license VARCHAR(50),
	video_made_for_kids BOOLEAN,
	PRIMARY KEY (channel_id, video_id)
)`, s.qualified())
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// upsertColumns is the full column order for inserts.
const upsertColumns = `channel_id, channel_handle, channel_title, channel_description,
subscriber_count, video_count, view_count, uploads_playlist_id, country,
published_at, topic_categories, made_for_kids, privacy_status, scraped_at,
video_id, title, description, video_published, video_url, channel_title_video,
tags, likes, comments, views, duration, definition, category_id, license,
video_made_for_kids`

// UpsertVideos writes the batch inside one transaction. On conflict of the
// (channel_id, video_id) key, mutable fields are overwritten with incoming
// values; re-running the same batch is a no-op beyond refreshed timestamps.
// Any failure rolls the whole batch back.
func (s *VideoStore) UpsertVideos(ctx context.Context, records []harvest.VideoRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("video store is not configured")
	}
	if len(records) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
	$21,$22,$23,$24,$25,$26,$27,$28,$29
)
ON CONFLICT (channel_id, video_id) DO UPDATE SET
	channel_title = EXCLUDED.channel_title,
	channel_description = EXCLUDED.channel_description,
	subscriber_count = EXCLUDED.subscriber_count,
	video_count = EXCLUDED.video_count,
	view_count = EXCLUDED.view_count,
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	tags = EXCLUDED.tags,
	likes = EXCLUDED.likes,
	comments = EXCLUDED.comments,
	views = EXCLUDED.views,
	scraped_at = EXCLUDED.scraped_at`, s.qualified(), upsertColumns)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range records {
		if r.ChannelID == "" || r.VideoID == "" {
			return fmt.Errorf("record missing key: channel=%q video=%q", r.ChannelID, r.VideoID)
		}
		args := []any{
			r.ChannelID, r.ChannelHandle, r.ChannelTitle, r.ChannelDescription,
			r.SubscriberCount, r.ChannelVideoCount, r.ChannelViewCount,
			r.UploadsPlaylistID, r.Country, r.ChannelPublishedAt,
			r.TopicCategories, r.ChannelForKids, r.PrivacyStatus, r.ScrapedAt,
			r.VideoID, r.Title, r.Description, r.VideoPublishedAt, r.VideoURL,
			r.ChannelTitleVideo, r.Tags, r.Likes, r.Comments, r.Views,
			r.Duration, r.Definition, r.CategoryID, r.License, r.MadeForKids,
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert video %s/%s: %w", r.ChannelID, r.VideoID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

// HasChannel reports whether any committed rows exist for the channel.
func (s *VideoStore) HasChannel(ctx context.Context, channelID string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, fmt.Errorf("video store is not configured")
	}
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE channel_id = $1)", s.qualified())
	var exists bool
	if err := s.pool.QueryRow(ctx, query, channelID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check channel %s: %w", channelID, err)
	}
	return exists, nil
}

// VideoText is the scorable text of one ingested row.
type VideoText struct {
	ChannelID   string
	VideoID     string
	Title       string
	Description string
	Tags        string
}

// ListVideoTexts returns title/description/tags for every ingested row, for
// the keyword tagging command.
func (s *VideoStore) ListVideoTexts(ctx context.Context) ([]VideoText, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("video store is not configured")
	}
	query := fmt.Sprintf(`SELECT channel_id, video_id,
COALESCE(title, ''), COALESCE(description, ''), COALESCE(tags, '')
FROM %s ORDER BY channel_id, video_id`, s.qualified())
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list video texts: %w", err)
	}
	defer rows.Close()

	var out []VideoText
	for rows.Next() {
		var vt VideoText
		if err := rows.Scan(&vt.ChannelID, &vt.VideoID, &vt.Title, &vt.Description, &vt.Tags); err != nil {
			return nil, fmt.Errorf("scan video text: %w", err)
		}
		out = append(out, vt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate video texts: %w", err)
	}
	return out, nil
}
