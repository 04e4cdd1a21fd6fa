package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestreldata/channelharvest/internal/harvest"
)

func newMockStore(t *testing.T) (*VideoStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewVideoStoreWithPool(mock, "recycle_bin", "youtube_scraped_data")
	require.NoError(t, err)
	return store, mock
}

// anyArgs returns n pgxmock.AnyArg matchers; pgxmock requires the expected
// argument count to match even when the values are unconstrained.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func record(channelID, videoID string) harvest.VideoRecord {
	return harvest.VideoRecord{
		ChannelID:     channelID,
		ChannelHandle: "@creator",
		ChannelTitle:  "Creator",
		VideoID:       videoID,
		Title:         "a video",
		Views:         100,
		ScrapedAt:     time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestIdentifiers(t *testing.T) {
	t.Parallel()

	schema, table, err := identifiers("", "")
	require.NoError(t, err)
	assert.Equal(t, "recycle_bin", schema)
	assert.Equal(t, "youtube_scraped_data", table)

	_, _, err = identifiers("bad-schema", "t")
	require.Error(t, err)

	_, _, err = identifiers("s", `t"; DROP TABLE x`)
	require.Error(t, err)
}

func TestNewVideoStoreWithPool_NilPool(t *testing.T) {
	t.Parallel()
	_, err := NewVideoStoreWithPool(nil, "", "")
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS recycle_bin`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS recycle_bin\.youtube_scraped_data`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertVideos_CommitsBatch(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO recycle_bin\.youtube_scraped_data`).
		WithArgs(anyArgs(29)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO recycle_bin\.youtube_scraped_data`).
		WithArgs(anyArgs(29)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	records := []harvest.VideoRecord{record("UC1", "v1"), record("UC1", "v2")}
	require.NoError(t, store.UpsertVideos(context.Background(), records))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertVideos_RollsBackOnFailure(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO recycle_bin\.youtube_scraped_data`).
		WithArgs(anyArgs(29)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO recycle_bin\.youtube_scraped_data`).
		WithArgs(anyArgs(29)...).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	records := []harvest.VideoRecord{record("UC1", "v1"), record("UC1", "v2")}
	err := store.UpsertVideos(context.Background(), records)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert video UC1/v2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertVideos_RejectsMissingKey(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.UpsertVideos(context.Background(), []harvest.VideoRecord{record("", "v1")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing key")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertVideos_EmptyBatchIsNoop(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	require.NoError(t, store.UpsertVideos(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasChannel(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM recycle_bin\.youtube_scraped_data WHERE channel_id = \$1\)`).
		WithArgs("UC1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	seen, err := store.HasChannel(context.Background(), "UC1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasChannel_QueryError(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("UC1").
		WillReturnError(errors.New("connection refused"))

	_, err := store.HasChannel(context.Background(), "UC1")
	require.Error(t, err)
}

func TestListVideoTexts(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"channel_id", "video_id", "title", "description", "tags"}).
		AddRow("UC1", "v1", "first", "about one", "go,testing").
		AddRow("UC1", "v2", "second", "", "")
	mock.ExpectQuery(`SELECT channel_id, video_id`).WillReturnRows(rows)

	texts, err := store.ListVideoTexts(context.Background())
	require.NoError(t, err)
	require.Len(t, texts, 2)
	assert.Equal(t, VideoText{ChannelID: "UC1", VideoID: "v1", Title: "first", Description: "about one", Tags: "go,testing"}, texts[0])
	assert.Equal(t, "v2", texts[1].VideoID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
