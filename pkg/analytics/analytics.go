// Package analytics is the fire-and-forget event sink used by the wallet
// reconciler, the market watcher and the HTTP/terminal front ends.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"tokensite/pkg/config"

	"go.uber.org/zap"
)

// Event names emitted by the site.
const (
	EventConnectClick    = "connect_wallet_click"
	EventConnectSuccess  = "connect_wallet_success"
	EventConnectError    = "connect_wallet_error"
	EventSwitchSuccess   = "switch_network_success"
	EventSwitchError     = "switch_network_error"
	EventAddChainSuccess = "add_chain_success"
	EventAddChainError   = "add_chain_error"
	EventWatchClick      = "watch_asset_click"
	EventWatchSuccess    = "watch_asset_success"
	EventWatchError      = "watch_asset_error"
	EventLogout          = "wallet_logout"
	EventBuyOpen         = "buy_open"
	EventBuyClose        = "buy_close"
	EventCopyContract    = "copy_contract"
	EventMarketPoll      = "market_poll"
)

// Recorder receives analytics events. Implementations must not block the
// caller for long and must never fail it.
type Recorder interface {
	Record(event string, attrs map[string]any)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(string, map[string]any) {}

// LogRecorder writes events to a zap logger.
type LogRecorder struct {
	logger *zap.Logger
}

// NewLogRecorder returns a recorder logging at debug level.
func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogRecorder{logger: logger.Named("analytics")}
}

func (r *LogRecorder) Record(event string, attrs map[string]any) {
	r.logger.Debug("track", zap.String("event", event), zap.Any("attributes", attrs))
}

// Multi fans an event out to several recorders.
type Multi []Recorder

func (m Multi) Record(event string, attrs map[string]any) {
	for _, r := range m {
		r.Record(event, attrs)
	}
}

// DefaultGA4Endpoint is the GA4 measurement protocol collection URL.
const DefaultGA4Endpoint = "https://www.google-analytics.com/mp/collect"

// GA4Recorder forwards events to the GA4 measurement protocol. Sends happen in
// the background; Close waits for the ones in flight.
type GA4Recorder struct {
	endpoint string
	clientID string
	client   *http.Client
	logger   *zap.Logger
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewGA4Recorder builds a recorder for the given measurement id and secret.
func NewGA4Recorder(endpoint, measurementID, apiSecret, clientID string, timeout time.Duration, logger *zap.Logger) *GA4Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := url.Values{}
	q.Set("measurement_id", measurementID)
	q.Set("api_secret", apiSecret)
	return &GA4Recorder{
		endpoint: endpoint + "?" + q.Encode(),
		clientID: clientID,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type ga4Event struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

type ga4Payload struct {
	ClientID string     `json:"client_id"`
	Events   []ga4Event `json:"events"`
}

func (r *GA4Recorder) Record(event string, attrs map[string]any) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		if err := r.send(context.Background(), event, attrs); err != nil {
			r.logger.Debug("analytics send failed", zap.String("event", event), zap.Error(err))
		}
	}()
}

func (r *GA4Recorder) send(ctx context.Context, event string, attrs map[string]any) error {
	body, err := json.Marshal(ga4Payload{
		ClientID: r.clientID,
		Events:   []ga4Event{{Name: event, Params: attrs}},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

// Close stops accepting events and waits for pending sends.
func (r *GA4Recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}

// New builds the recorder for the configuration: always a log recorder, plus
// GA4 when both the measurement id and API secret are set. The returned close
// function must be called on shutdown.
func New(cfg config.AnalyticsConfig, timeout time.Duration, logger *zap.Logger) (Recorder, func()) {
	rec := Multi{NewLogRecorder(logger)}
	if cfg.MeasurementID == "" || cfg.APISecret == "" {
		return rec, func() {}
	}
	ga := NewGA4Recorder(DefaultGA4Endpoint, cfg.MeasurementID, cfg.APISecret, "tokensite", timeout, logger)
	return append(rec, ga), ga.Close
}
