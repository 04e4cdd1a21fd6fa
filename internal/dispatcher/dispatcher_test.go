package dispatcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kestreldata/channelharvest/internal/checkpoint"
	"github.com/kestreldata/channelharvest/internal/clock/system"
	"github.com/kestreldata/channelharvest/internal/credentials"
	"github.com/kestreldata/channelharvest/internal/harvest"
	"github.com/kestreldata/channelharvest/internal/worker"
)

type stubFetcher struct {
	err error
}

func (f *stubFetcher) Resolve(_ context.Context, _, handle string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "UC_" + strings.TrimPrefix(handle, "@"), nil
}

func (f *stubFetcher) FetchChannel(_ context.Context, _, channelID string) (harvest.ChannelSnapshot, error) {
	return harvest.ChannelSnapshot{ID: channelID, UploadsPlaylistID: "UU_" + channelID}, nil
}

func (f *stubFetcher) FetchVideoPage(_ context.Context, _, playlistID, _ string) ([]harvest.VideoListing, string, error) {
	return []harvest.VideoListing{{VideoID: playlistID + "_v1"}}, "", nil
}

func (f *stubFetcher) FetchStats(_ context.Context, _ string, _ []string) (map[string]harvest.VideoStats, error) {
	return map[string]harvest.VideoStats{}, nil
}

type countingSink struct {
	mu       sync.Mutex
	channels map[string]int
}

func (s *countingSink) UpsertVideos(_ context.Context, records []harvest.VideoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channels == nil {
		s.channels = map[string]int{}
	}
	for _, r := range records {
		s.channels[r.ChannelID]++
	}
	return nil
}

func (s *countingSink) HasChannel(context.Context, string) (bool, error) {
	return false, nil
}

func (s *countingSink) counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.channels))
	for k, v := range s.channels {
		out[k] = v
	}
	return out
}

func newTestDispatcher(t *testing.T, fetcher harvest.Fetcher, sink harvest.Sink, secrets []string, size int) (*Dispatcher, *checkpoint.Tracker) {
	t.Helper()
	store := checkpoint.NewStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	tracker := checkpoint.NewTracker(store, system.New(), checkpoint.State{})
	orch := harvest.NewOrchestrator(
		fetcher, sink,
		credentials.NewPool(secrets),
		harvest.NewRetryPolicy(3),
		system.New(),
		harvest.OrchestratorConfig{CallDelay: 0, MaxPages: 10},
		zap.NewNop(),
	)
	return New(orch, tracker, size, worker.Config{}, zap.NewNop()), tracker
}

func TestPoolSize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 3, PoolSize(3, 5))
	assert.Equal(t, 2, PoolSize(3, 2))
	assert.Equal(t, 1, PoolSize(0, 5))
	assert.Equal(t, 1, PoolSize(3, 0))
	assert.Equal(t, 1, PoolSize(-1, -1))
}

func TestRun_ProcessesEveryTaskExactlyOnce(t *testing.T) {
	t.Parallel()
	sink := &countingSink{}
	d, tracker := newTestDispatcher(t, &stubFetcher{}, sink, []string{"k0", "k1", "k2"}, 3)

	var tasks []harvest.Task
	for i := 0; i < 12; i++ {
		tasks = append(tasks, harvest.Task{Index: i, Handle: fmt.Sprintf("@creator%02d", i)})
	}

	require.NoError(t, d.Run(context.Background(), tasks))

	counts := sink.counts()
	require.Len(t, counts, 12)
	for channel, n := range counts {
		assert.Equal(t, 1, n, "channel %s written more than once", channel)
	}
	assert.Equal(t, 12, tracker.State().ProcessedRows)
}

func TestRun_EmptyTaskList(t *testing.T) {
	t.Parallel()
	d, tracker := newTestDispatcher(t, &stubFetcher{}, &countingSink{}, []string{"k0"}, 2)

	require.NoError(t, d.Run(context.Background(), nil))
	assert.Equal(t, 0, tracker.State().ProcessedRows)
}

func TestRun_CredentialExhaustionStopsRun(t *testing.T) {
	t.Parallel()
	fetcher := &stubFetcher{err: &harvest.QuotaError{Reason: "quotaExceeded"}}
	sink := &countingSink{}
	d, tracker := newTestDispatcher(t, fetcher, sink, []string{"k0", "k1"}, 2)

	tasks := []harvest.Task{
		{Index: 0, Handle: "@a"},
		{Index: 1, Handle: "@b"},
		{Index: 2, Handle: "@c"},
	}

	err := d.Run(context.Background(), tasks)
	require.Error(t, err)
	assert.ErrorIs(t, err, harvest.ErrCredentialsExhausted)
	assert.Empty(t, sink.counts())
	assert.Equal(t, 0, tracker.State().ProcessedRows)
}

type cancelingFetcher struct {
	stubFetcher
	cancel context.CancelFunc
}

func (f *cancelingFetcher) FetchChannel(ctx context.Context, _, _ string) (harvest.ChannelSnapshot, error) {
	f.cancel()
	return harvest.ChannelSnapshot{}, ctx.Err()
}

func TestRun_CancelMidTaskDoesNotCommit(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &countingSink{}
	d, tracker := newTestDispatcher(t, &cancelingFetcher{cancel: cancel}, sink, []string{"k0"}, 1)

	// The run ends cleanly, but the aborted task stays uncommitted so the
	// next run redoes it instead of skipping the handle forever.
	require.NoError(t, d.Run(ctx, []harvest.Task{{Index: 0, Handle: "@interrupted"}}))
	assert.Empty(t, sink.counts())
	assert.Equal(t, 0, tracker.State().ProcessedRows)
}

func TestRun_CanceledContextIsClean(t *testing.T) {
	t.Parallel()
	d, _ := newTestDispatcher(t, &stubFetcher{}, &countingSink{}, []string{"k0"}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, d.Run(ctx, []harvest.Task{{Index: 0, Handle: "@a"}}))
}
