package watcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"tokensite/pkg/config"
	"tokensite/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testToken = "0x59EB0583C532c0EF4e887308d8D477e48d02f7F8"

type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) FetchMarketData(ctx context.Context, tokenAddress string) (models.MarketSnapshot, error) {
	args := m.Called(ctx, tokenAddress)
	return args.Get(0).(models.MarketSnapshot), args.Error(1)
}

// funcDataSource adapts a function to DataSource.
type funcDataSource func(ctx context.Context, tokenAddress string) (models.MarketSnapshot, error)

func (f funcDataSource) FetchMarketData(ctx context.Context, tokenAddress string) (models.MarketSnapshot, error) {
	return f(ctx, tokenAddress)
}

func testConfig(interval time.Duration) *config.AppConfig {
	return &config.AppConfig{
		Token:  models.TokenDescriptor{Address: testToken, Symbol: "TFPC", Decimals: 18},
		Market: config.MarketConfig{APIURL: "http://127.0.0.1:0", PollInterval: interval, HTTPTimeout: time.Second},
	}
}

func nextEvent(t *testing.T, sub Subscriber) Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPoll(t *testing.T) {
	tests := []struct {
		name       string
		snap       models.MarketSnapshot
		err        error
		wantStatus models.SnapshotStatus
		wantReason models.Reason
	}{
		{
			name:       "ready",
			snap:       models.ReadySnapshot(1.23, 4560000),
			wantStatus: models.StatusReady,
		},
		{
			name:       "transport fault",
			snap:       models.MarketSnapshot{},
			err:        errors.New("connection refused"),
			wantStatus: models.StatusError,
			wantReason: models.ReasonMarketFetch,
		},
		{
			name:       "parse failure keeps reason",
			snap:       models.ErrorSnapshot(models.ReasonMarketParse),
			err:        errors.New("no trading pairs"),
			wantStatus: models.StatusError,
			wantReason: models.ReasonMarketParse,
		},
		{
			name:       "ready status without figures",
			snap:       models.MarketSnapshot{Status: models.StatusReady},
			wantStatus: models.StatusError,
			wantReason: models.ReasonMarketParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockDS := new(MockDataSource)
			mockDS.On("FetchMarketData", mock.Anything, testToken).Return(tt.snap, tt.err)

			w := NewWatcher(testConfig(time.Minute), nil, nil)
			w.SetDataSource(mockDS)

			snap := w.Poll(context.Background())
			mockDS.AssertExpectations(t)
			assert.Equal(t, tt.wantStatus, snap.Status)
			assert.Equal(t, tt.wantReason, snap.Reason)
			if tt.wantStatus == models.StatusReady {
				require.NotNil(t, snap.Price)
				assert.Equal(t, 1.23, *snap.Price)
				require.NotNil(t, snap.MarketCap)
				assert.Equal(t, 4560000.0, *snap.MarketCap)
			} else {
				assert.Nil(t, snap.Price)
				assert.Nil(t, snap.MarketCap)
			}
		})
	}
}

func TestPoll_NoTokenAddress(t *testing.T) {
	mockDS := new(MockDataSource)
	cfg := testConfig(time.Minute)
	cfg.Token.Address = ""
	w := NewWatcher(cfg, nil, nil)
	w.SetDataSource(mockDS)

	snap := w.Poll(context.Background())
	assert.Equal(t, models.StatusError, snap.Status)
	assert.Equal(t, models.ReasonConfigMissing, snap.Reason)
	mockDS.AssertNotCalled(t, "FetchMarketData", mock.Anything, mock.Anything)
}

func TestPoll_RecoversPanic(t *testing.T) {
	w := NewWatcher(testConfig(time.Minute), nil, nil)
	w.SetDataSource(funcDataSource(func(context.Context, string) (models.MarketSnapshot, error) {
		panic("boom")
	}))

	snap := w.Poll(context.Background())
	assert.Equal(t, models.StatusError, snap.Status)
	assert.Nil(t, snap.Price)
}

func TestStart_LoadingThenReady(t *testing.T) {
	defer goleak.VerifyNone(t)

	mockDS := new(MockDataSource)
	mockDS.On("FetchMarketData", mock.Anything, testToken).Return(models.ReadySnapshot(2, 20), nil)

	w := NewWatcher(testConfig(time.Hour), nil, nil)
	w.SetDataSource(mockDS)
	sub := w.Subscribe()

	w.Start(context.Background())

	first := nextEvent(t, sub)
	assert.Equal(t, EventMarketUpdated, first.Type)
	assert.Equal(t, models.StatusLoading, first.Data.(models.MarketSnapshot).Status)
	assert.Nil(t, first.Data.(models.MarketSnapshot).Price)

	second := nextEvent(t, sub)
	snap := second.Data.(models.MarketSnapshot)
	assert.Equal(t, models.StatusReady, snap.Status)
	assert.Equal(t, uint64(1), snap.Seq)

	w.Stop()
	assert.Equal(t, models.StatusReady, w.Snapshot().Status)
	assert.Len(t, w.History(), 1)

	_, open := <-sub
	assert.False(t, open, "subscribers are closed on Stop")
}

func TestStart_TickerPolls(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	w := NewWatcher(testConfig(10*time.Millisecond), nil, nil)
	w.SetDataSource(funcDataSource(func(context.Context, string) (models.MarketSnapshot, error) {
		calls.Add(1)
		return models.ReadySnapshot(1, 1), nil
	}))

	w.Start(context.Background())
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	w.Stop()
}

func TestSkipIfBusy(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	started := make(chan struct{}, 10)
	release := make(chan struct{})
	w := NewWatcher(testConfig(time.Hour), nil, nil)
	w.SetDataSource(funcDataSource(func(ctx context.Context, _ string) (models.MarketSnapshot, error) {
		calls.Add(1)
		started <- struct{}{}
		select {
		case <-release:
			return models.ReadySnapshot(1, 1), nil
		case <-ctx.Done():
			return models.MarketSnapshot{}, ctx.Err()
		}
	}))

	w.Start(context.Background())
	<-started

	for i := 0; i < 5; i++ {
		w.Refresh()
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, int32(1), calls.Load(), "refreshes during an in-flight poll are skipped")

	close(release)
	assert.Eventually(t, func() bool {
		return w.Snapshot().Status == models.StatusReady && !w.busy.Load()
	}, 2*time.Second, 5*time.Millisecond)

	w.Refresh()
	<-started
	assert.Equal(t, int32(2), calls.Load())
	w.Stop()
}

func TestApply_IssueOrder(t *testing.T) {
	w := NewWatcher(testConfig(time.Hour), nil, nil)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	defer w.cancel()

	newer := models.ReadySnapshot(2, 20)
	newer.Seq = 2
	older := models.ReadySnapshot(1, 10)
	older.Seq = 1

	w.apply(newer)
	w.apply(older)

	got := w.Snapshot()
	assert.Equal(t, uint64(2), got.Seq)
	require.NotNil(t, got.Price)
	assert.Equal(t, 2.0, *got.Price)
}

func TestApply_HistoryBounded(t *testing.T) {
	w := NewWatcher(testConfig(time.Hour), nil, nil)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	defer w.cancel()

	for i := 1; i <= maxHistory+10; i++ {
		s := models.ReadySnapshot(float64(i), 1)
		s.Seq = uint64(i)
		w.apply(s)
	}
	h := w.History()
	assert.Len(t, h, maxHistory)
	assert.Equal(t, float64(maxHistory+10), h[len(h)-1].Value)
}

func TestStop_MidFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	w := NewWatcher(testConfig(time.Hour), nil, nil)
	w.SetDataSource(funcDataSource(func(ctx context.Context, _ string) (models.MarketSnapshot, error) {
		close(started)
		<-ctx.Done()
		// A late answer must not be applied after teardown.
		return models.ReadySnapshot(9, 9), nil
	}))
	sub := w.Subscribe()

	w.Start(context.Background())
	<-started
	w.Stop()

	snap := w.Snapshot()
	assert.Equal(t, models.StatusLoading, snap.Status)
	assert.Nil(t, snap.Price)
	assert.Empty(t, w.History())

	var events []Event
	for ev := range sub {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	assert.Equal(t, models.StatusLoading, events[0].Data.(models.MarketSnapshot).Status)

	// Further refreshes are ignored.
	w.Refresh()
	assert.Equal(t, models.StatusLoading, w.Snapshot().Status)
}

func TestStop_ParentContextCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	w := NewWatcher(testConfig(time.Hour), nil, nil)
	w.SetDataSource(funcDataSource(func(ctx context.Context, _ string) (models.MarketSnapshot, error) {
		close(started)
		<-ctx.Done()
		return models.ReadySnapshot(9, 9), nil
	}))

	w.Start(ctx)
	<-started
	cancel()
	w.Stop()
	assert.Equal(t, models.StatusLoading, w.Snapshot().Status)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	w := NewWatcher(testConfig(time.Hour), nil, nil)
	sub := w.Subscribe()
	assert.NotNil(t, sub)

	w.mu.RLock()
	assert.Equal(t, 1, len(w.subscribers))
	w.mu.RUnlock()

	w.Unsubscribe(sub)
	w.mu.RLock()
	assert.Equal(t, 0, len(w.subscribers))
	w.mu.RUnlock()
}

func TestPublish(t *testing.T) {
	w := NewWatcher(testConfig(time.Hour), nil, nil)
	sub := w.Subscribe()

	w.Publish(Event{Type: EventWalletUpdated, Data: models.WalletSession{Address: "0xabc"}})
	ev := nextEvent(t, sub)
	assert.Equal(t, EventWalletUpdated, ev.Type)

	w.Stop()
	late := w.Subscribe()
	_, open := <-late
	assert.False(t, open, "subscribing after Stop yields a closed channel")
}
