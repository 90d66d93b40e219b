package tui

import (
	"context"
	"time"

	"tokensite/pkg/models"
	"tokensite/pkg/wallet"
	"tokensite/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
)

// walletTimeout bounds how long the view waits on a wallet prompt.
const walletTimeout = 2 * time.Minute

var (
	chartRanges      = []time.Duration{time.Hour, 6 * time.Hour, 24 * time.Hour, 48 * time.Hour}
	chartRangeLabels = []string{"1h", "6h", "24h", "48h"}
)

type watcherClosedMsg struct{}

// listenForWatcher waits for the next event on the view's single
// subscription.
func listenForWatcher(sub watcher.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return watcherClosedMsg{}
		}
		return ev
	}
}

func walletCmd(op string, fn func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), walletTimeout)
		defer cancel()
		address, err := fn(ctx)
		return walletResultMsg{op: op, address: address, err: err}
	}
}

func connectCmd(r *wallet.Reconciler, source models.WalletSource) tea.Cmd {
	return walletCmd("connect", func(ctx context.Context) (string, error) {
		return r.Connect(ctx, source)
	})
}

func networkCmd(r *wallet.Reconciler) tea.Cmd {
	return walletCmd("network", func(ctx context.Context) (string, error) {
		return "", r.EnsureNetwork(ctx, r.Network())
	})
}

func tokenCmd(r *wallet.Reconciler) tea.Cmd {
	return walletCmd("token", func(ctx context.Context) (string, error) {
		return "", r.RegisterToken(ctx, r.Token())
	})
}

func logoutCmd(r *wallet.Reconciler) tea.Cmd {
	return walletCmd("logout", func(ctx context.Context) (string, error) {
		return "", r.Logout(ctx)
	})
}

// filterHistory returns the prices observed within rng of now.
func filterHistory(history []models.PricePoint, rng time.Duration, now time.Time) []float64 {
	var out []float64
	for _, p := range history {
		if now.Sub(p.Timestamp) <= rng {
			out = append(out, p.Value)
		}
	}
	return out
}

func priceStats(values []float64) (low, avg, high float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	low, high = values[0], values[0]
	sum := 0.0
	for _, v := range values {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
		sum += v
	}
	return low, sum / float64(len(values)), high
}

// walletResultText is the status line shown after a wallet operation.
func walletResultText(msg walletResultMsg, session models.WalletSession) string {
	if msg.err != nil {
		return wallet.ReasonOf(msg.err).Message()
	}
	if msg.op == "logout" {
		return "Wallet disconnected."
	}
	return session.Status
}
