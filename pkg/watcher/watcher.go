package watcher

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"tokensite/pkg/analytics"
	"tokensite/pkg/config"
	"tokensite/pkg/models"
	"tokensite/pkg/rpc"

	"go.uber.org/zap"
)

// maxHistory bounds the price history kept for charts (48h at 60s).
const maxHistory = 2880

// DataSource defines the interface for fetching market data.
type DataSource interface {
	FetchMarketData(ctx context.Context, tokenAddress string) (models.MarketSnapshot, error)
}

// HTTPDataSource implements DataSource using the rpc package.
type HTTPDataSource struct {
	Client  *http.Client
	BaseURL string
}

func (d *HTTPDataSource) FetchMarketData(ctx context.Context, tokenAddress string) (models.MarketSnapshot, error) {
	return rpc.FetchMarketData(ctx, d.Client, d.BaseURL, tokenAddress)
}

// Watcher polls market data for the configured token and fans snapshots out to
// subscribers. At most one poll is in flight; ticks arriving while busy are
// skipped and results are applied in issue order.
type Watcher struct {
	token    string
	interval time.Duration

	logger   *zap.Logger
	recorder analytics.Recorder

	snapshot    models.MarketSnapshot
	history     []models.PricePoint
	lastApplied uint64
	stopped     bool

	subscribers []Subscriber
	mu          sync.RWMutex
	dataSource  DataSource

	seq     atomic.Uint64
	busy    atomic.Bool
	refresh chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a new Watcher instance.
func NewWatcher(cfg *config.AppConfig, logger *zap.Logger, recorder analytics.Recorder) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = analytics.Nop{}
	}
	return &Watcher{
		token:    cfg.Token.Address,
		interval: cfg.Market.PollInterval,
		logger:   logger.Named("watcher"),
		recorder: recorder,
		snapshot: models.LoadingSnapshot(),
		refresh:  make(chan struct{}, 1),
		dataSource: &HTTPDataSource{
			Client:  &http.Client{Timeout: cfg.Market.HTTPTimeout},
			BaseURL: cfg.Market.APIURL,
		},
	}
}

// SetDataSource allows overriding the data source (useful for testing).
func (w *Watcher) SetDataSource(ds DataSource) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dataSource = ds
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (w *Watcher) Subscribe() Subscriber {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(Subscriber, 100)
	if w.stopped {
		close(ch)
		return ch
	}
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (w *Watcher) Unsubscribe(ch Subscriber) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, sub := range w.subscribers {
		if sub == ch {
			w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (w *Watcher) notify(event Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	for _, sub := range w.subscribers {
		select {
		case sub <- event:
		default:
			// slow subscriber, drop
		}
	}
}

// Publish broadcasts an event produced outside the watcher, such as a wallet
// session change.
func (w *Watcher) Publish(event Event) {
	w.notify(event)
}

// Start begins the polling loop. It returns immediately.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.mu.Lock()
		w.ctx, w.cancel = context.WithCancel(ctx)
		w.mu.Unlock()

		w.wg.Add(1)
		go w.pollingLoop()
	})
}

// Stop cancels the schedule and any poll in flight, and waits for both to
// exit. No snapshot is applied or published after Stop returns.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		cancel := w.cancel
		w.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		w.wg.Wait()

		w.mu.Lock()
		for _, sub := range w.subscribers {
			close(sub)
		}
		w.subscribers = nil
		w.mu.Unlock()
	})
}

// Refresh requests an immediate poll. It is a no-op while a poll is in flight
// or before Start.
func (w *Watcher) Refresh() {
	select {
	case w.refresh <- struct{}{}:
	default:
	}
}

func (w *Watcher) pollingLoop() {
	defer w.wg.Done()

	// Initial fetch
	w.trigger()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.trigger()
		case <-w.refresh:
			w.trigger()
		case <-w.ctx.Done():
			return
		}
	}
}

// trigger starts a poll unless one is already running. It is only called from
// the polling loop.
func (w *Watcher) trigger() bool {
	if !w.busy.CompareAndSwap(false, true) {
		w.logger.Debug("poll skipped, previous one still in flight")
		return false
	}
	seq := w.seq.Add(1)

	loading := models.LoadingSnapshot()
	loading.Seq = seq
	w.apply(loading)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.busy.Store(false)
		snap := w.Poll(w.ctx)
		snap.Seq = seq
		w.apply(snap)
	}()
	return true
}

// Poll performs one fetch and always resolves to a snapshot: ready when both
// figures parsed, error otherwise.
func (w *Watcher) Poll(ctx context.Context) (snap models.MarketSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("market poll panicked", zap.Any("panic", r))
			snap = models.ErrorSnapshot(models.ReasonMarketFetch)
		}
	}()

	if w.token == "" {
		return models.ErrorSnapshot(models.ReasonConfigMissing)
	}

	w.mu.RLock()
	ds := w.dataSource
	w.mu.RUnlock()

	snap, err := ds.FetchMarketData(ctx, w.token)
	if err != nil {
		reason := snap.Reason
		if reason == models.ReasonNone {
			reason = models.ReasonMarketFetch
		}
		w.logger.Warn("market poll failed", zap.String("reason", string(reason)), zap.Error(err))
		return models.ErrorSnapshot(reason)
	}
	if snap.Status != models.StatusReady || snap.Price == nil || snap.MarketCap == nil {
		w.logger.Warn("market poll returned incomplete data")
		return models.ErrorSnapshot(models.ReasonMarketParse)
	}
	return snap
}

// apply installs snap unless the watcher is stopped or a newer poll has
// already been applied. Only called after Start.
func (w *Watcher) apply(snap models.MarketSnapshot) {
	w.mu.Lock()
	if w.stopped || w.ctx.Err() != nil || snap.Seq < w.lastApplied {
		w.mu.Unlock()
		return
	}
	w.lastApplied = snap.Seq
	w.snapshot = snap
	if snap.Status == models.StatusReady {
		w.history = append(w.history, models.PricePoint{Timestamp: snap.UpdatedAt, Value: *snap.Price})
		if len(w.history) > maxHistory {
			w.history = w.history[len(w.history)-maxHistory:]
		}
	}
	w.mu.Unlock()

	if snap.Status != models.StatusLoading {
		w.recorder.Record(analytics.EventMarketPoll, map[string]any{
			"status": string(snap.Status),
			"reason": string(snap.Reason),
		})
	}
	w.notify(Event{Type: EventMarketUpdated, Data: snap})
}

// Snapshot returns the current market snapshot.
func (w *Watcher) Snapshot() models.MarketSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot
}

// History returns a copy of the ready prices seen so far.
func (w *Watcher) History() []models.PricePoint {
	w.mu.RLock()
	defer w.mu.RUnlock()
	cp := make([]models.PricePoint, len(w.history))
	copy(cp, w.history)
	return cp
}
