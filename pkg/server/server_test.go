package server

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tokensite/pkg/config"
	"tokensite/pkg/models"
	"tokensite/pkg/wallet"
	"tokensite/pkg/watcher"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "0x59EB0583C532c0EF4e887308d8D477e48d02f7F8"

type stubProvider struct {
	chainID  int64
	accounts []string
	watchErr error
}

func (p *stubProvider) RequestAccounts(context.Context) ([]string, error) { return p.accounts, nil }
func (p *stubProvider) ChainID(context.Context) (*big.Int, error) { return big.NewInt(p.chainID), nil }
func (p *stubProvider) SwitchChain(context.Context, string) error {
	return &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "User rejected the request."}
}
func (p *stubProvider) AddChain(context.Context, models.NetworkDescriptor) error { return nil }
func (p *stubProvider) WatchAsset(context.Context, models.TokenDescriptor) (bool, error) {
	return p.watchErr == nil, p.watchErr
}

type stubCapability struct {
	provider wallet.Provider
}

func (c *stubCapability) Source() models.WalletSource { return models.SourceInjected }
func (c *stubCapability) Available() bool { return true }
func (c *stubCapability) Open(context.Context) (wallet.Provider, error) { return c.provider, nil }
func (c *stubCapability) Close(context.Context) error { return nil }

type captured struct {
	mu     sync.Mutex
	events []string
}

func (c *captured) Record(event string, _ map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Token: models.TokenDescriptor{Address: testToken, Symbol: "TFPC", Decimals: 18},
		Network: models.NetworkDescriptor{
			ChainID:           137,
			ChainName:         "Polygon Mainnet",
			NativeCurrency:    models.NativeCurrency{Name: "MATIC", Symbol: "MATIC", Decimals: 18},
			RPCURLs:           []string{"https://polygon-rpc.com"},
			BlockExplorerURLs: []string{"https://polygonscan.com"},
		},
		Links: config.LinksConfig{
			SwapBaseURL:  "https://quickswap.exchange/#/swap",
			ChartBaseURL: "https://dexscreener.com/polygon",
		},
		Market: config.MarketConfig{APIURL: "http://127.0.0.1:0", PollInterval: time.Hour, HTTPTimeout: time.Second},
	}
}

func newTestServer(t *testing.T, caps wallet.Capabilities) (*Server, *watcher.Watcher, *captured) {
	t.Helper()
	cfg := testConfig()
	rec := &captured{}
	w := watcher.NewWatcher(cfg, nil, nil)
	r := wallet.NewReconciler(cfg, caps, nil, nil)
	r.OnChange(func(s models.WalletSession) {
		w.Publish(watcher.Event{Type: watcher.EventWalletUpdated, Data: s})
	})
	t.Cleanup(w.Stop)
	return NewServer(cfg, w, r, rec, nil), w, rec
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	var resp map[string]interface{}
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	}
	return rr, resp
}

func TestHandleStatus(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	rr, resp := do(t, s, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, resp, "market")
	assert.Contains(t, resp, "wallet")
	assert.Equal(t, []interface{}{}, resp["capabilities"])

	market := resp["market"].(map[string]interface{})
	assert.Equal(t, "loading", market["status"])
}

func TestHandleSite(t *testing.T) {
	s, _, _ := newTestServer(t, wallet.Capabilities{models.SourceInjected: &stubCapability{}})

	rr, resp := do(t, s, http.MethodGet, "/api/site", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []interface{}{"injected"}, resp["wallets"])

	site := resp["site"].(map[string]interface{})
	assert.Equal(t, "https://quickswap.exchange/#/swap?outputCurrency="+testToken, site["swapUrl"])
	assert.Equal(t, "https://polygonscan.com/token/"+testToken, site["explorerUrl"])
	assert.NotContains(t, site, "liquidityLock")
}

func TestMethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/market", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHandleRefresh(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	rr, resp := do(t, s, http.MethodPost, "/api/market/refresh", "")
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, true, resp["ok"])
}

func TestHandleConnect(t *testing.T) {
	caps := wallet.Capabilities{models.SourceInjected: &stubCapability{
		provider: &stubProvider{chainID: 137, accounts: []string{"0xabc"}},
	}}

	tests := []struct {
		name       string
		body       string
		wantCode   int
		wantOK     interface{}
		wantReason interface{}
	}{
		{name: "default source", body: "", wantCode: http.StatusOK, wantOK: true},
		{name: "injected", body: `{"source":"injected"}`, wantCode: http.StatusOK, wantOK: true},
		{name: "not configured", body: `{"source":"privy"}`, wantCode: http.StatusOK, wantOK: false, wantReason: "no_provider"},
		{name: "unknown source", body: `{"source":"ledger"}`, wantCode: http.StatusBadRequest},
		{name: "malformed", body: `{"source":`, wantCode: http.StatusBadRequest},
		{name: "unknown field", body: `{"wallet":"privy"}`, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestServer(t, caps)
			rr, resp := do(t, s, http.MethodPost, "/api/wallet/connect", tt.body)
			assert.Equal(t, tt.wantCode, rr.Code)
			if tt.wantCode != http.StatusOK {
				assert.Contains(t, resp, "error")
				return
			}
			assert.Equal(t, tt.wantOK, resp["ok"])
			assert.Equal(t, tt.wantReason, resp["reason"])
			if tt.wantOK == true {
				assert.Equal(t, "0xabc", resp["address"])
			}
		})
	}
}

func TestHandleNetwork_Rejected(t *testing.T) {
	caps := wallet.Capabilities{models.SourceInjected: &stubCapability{
		provider: &stubProvider{chainID: 1},
	}}
	s, _, _ := newTestServer(t, caps)

	rr, resp := do(t, s, http.MethodPost, "/api/wallet/network", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, resp["ok"])
	assert.Equal(t, "switch_rejected", resp["reason"])
	assert.Equal(t, models.ReasonSwitchRejected.Message(), resp["message"])
}

func TestHandleToken(t *testing.T) {
	caps := wallet.Capabilities{models.SourceInjected: &stubCapability{
		provider: &stubProvider{chainID: 137},
	}}
	s, _, _ := newTestServer(t, caps)

	_, resp := do(t, s, http.MethodPost, "/api/wallet/token", "")
	assert.Equal(t, true, resp["ok"])
	session := resp["session"].(map[string]interface{})
	assert.Equal(t, "TFPC added to wallet.", session["status"])
}

func TestHandleLogout(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	_, resp := do(t, s, http.MethodPost, "/api/wallet/logout", "")
	assert.Equal(t, true, resp["ok"])

	rr, session := do(t, s, http.MethodGet, "/api/wallet", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Disconnected.", session["status"])
}

func TestHandleTrack(t *testing.T) {
	s, _, rec := newTestServer(t, nil)

	rr, _ := do(t, s, http.MethodPost, "/api/track", `{"event":"buy_open","attributes":{"source":"header"}}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr, _ = do(t, s, http.MethodPost, "/api/track", `{"event":"Bad Event!"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = do(t, s, http.MethodPost, "/api/track", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Equal(t, []string{"buy_open"}, rec.events)
}

func TestHandleWS(t *testing.T) {
	caps := wallet.Capabilities{models.SourceInjected: &stubCapability{
		provider: &stubProvider{chainID: 137, accounts: []string{"0xabc"}},
	}}
	s, _, _ := newTestServer(t, caps)
	go s.listenToWatcher(s.watcher.Subscribe())

	server := httptest.NewServer(s.Handler())
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()

	var msg map[string]interface{}
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, "initial", msg["type"])
	assert.Contains(t, msg["data"], "market")

	// A wallet change is pushed to connected clients.
	resp, err := http.Post(server.URL+"/api/wallet/connect", "application/json", strings.NewReader(`{"source":"injected"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var ev watcher.Event
		require.NoError(t, ws.ReadJSON(&ev))
		if ev.Type != watcher.EventWalletUpdated {
			continue
		}
		session := ev.Data.(map[string]interface{})
		if session["address"] == "0xabc" {
			break
		}
	}
}

func TestStart_Shutdown(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, 0) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
