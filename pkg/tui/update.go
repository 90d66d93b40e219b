package tui

import (
	"fmt"
	"time"

	"tokensite/pkg/analytics"
	"tokensite/pkg/models"
	"tokensite/pkg/watcher"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case watcher.Event:
		cmds = append(cmds, listenForWatcher(m.sub))

		switch msg.Type {
		case watcher.EventMarketUpdated:
			if snap, ok := msg.Data.(models.MarketSnapshot); ok {
				m.market = snap
				if snap.Status == models.StatusReady {
					m.history = m.watcher.History()
				}
			}
		case watcher.EventWalletUpdated:
			if session, ok := msg.Data.(models.WalletSession); ok {
				m.session = session
			}
		}

	case watcherClosedMsg:
		// The watcher is gone; keep showing the last state.

	case walletResultMsg:
		m.busy = ""
		m.session = m.reconciler.Session()
		m.statusMessage = walletResultText(msg, m.session)
		cmds = append(cmds, clearStatusAfter(4*time.Second))

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.showHelp {
			switch msg.String() {
			case "?", "q", "esc":
				m.showHelp = false
			}
			return m, nil
		}
		if m.showBuy {
			return m.updateBuy(msg)
		}
		if m.showChart {
			return m.updateChart(msg)
		}

		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "?":
			m.showHelp = true
			return m, nil
		case "c":
			cmds = append(cmds, m.startWallet("connect", connectCmd(m.reconciler, models.SourceInjected)))
		case "p":
			cmds = append(cmds, m.startWallet("connect", connectCmd(m.reconciler, models.SourcePrivy)))
		case "w":
			cmds = append(cmds, m.startWallet("connect", connectCmd(m.reconciler, models.SourceWeb3Auth)))
		case "n":
			cmds = append(cmds, m.startWallet("network", networkCmd(m.reconciler)))
		case "a":
			cmds = append(cmds, m.startWallet("token", tokenCmd(m.reconciler)))
		case "l":
			cmds = append(cmds, m.startWallet("logout", logoutCmd(m.reconciler)))
		case "b":
			m.showBuy = true
			m.recorder.Record(analytics.EventBuyOpen, map[string]any{"source": "header"})
		case "g":
			m.showChart = true
		case "d":
			cmds = append(cmds, m.open(m.site.ChartURL, "Chart"))
		case "e":
			cmds = append(cmds, m.open(m.site.ExplorerURL, "Explorer"))
		case "y":
			cmds = append(cmds, m.copyContract())
		case "r":
			m.watcher.Refresh()
			m.statusMessage = "Refreshing market data..."
			cmds = append(cmds, clearStatusAfter(2*time.Second))
		}

	case uiTickMsg:
		cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }))

	case clearStatusMsg:
		if m.busy == "" {
			m.statusMessage = ""
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// startWallet runs cmd unless another wallet request is pending.
func (m *model) startWallet(op string, cmd tea.Cmd) tea.Cmd {
	if m.busy != "" {
		m.statusMessage = "Wallet request in progress..."
		return nil
	}
	m.busy = op
	m.statusMessage = "Waiting for wallet..."
	return cmd
}

func (m model) updateBuy(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "b", "q":
		m.showBuy = false
		m.recorder.Record(analytics.EventBuyClose, map[string]any{"source": "modal"})
		return m, nil
	case "o":
		cmd := m.open(m.site.SwapURL, "Swap")
		return m, cmd
	case "y":
		cmd := m.copyContract()
		return m, cmd
	case "a":
		cmd := m.startWallet("token", tokenCmd(m.reconciler))
		return m, cmd
	}
	return m, nil
}

func (m model) updateChart(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "g", "q":
		m.showChart = false
	case "<", "left":
		if m.chartRangeIndex > 0 {
			m.chartRangeIndex--
		}
	case ">", "right":
		if m.chartRangeIndex < len(chartRanges)-1 {
			m.chartRangeIndex++
		}
	case "r":
		m.watcher.Refresh()
	}
	return m, nil
}

func (m *model) open(url, label string) tea.Cmd {
	if url == "" {
		m.statusMessage = fmt.Sprintf("%s link not configured", label)
		return clearStatusAfter(2 * time.Second)
	}
	if err := m.openURL(url); err != nil {
		m.statusMessage = fmt.Sprintf("Failed to open browser: %v", err)
	} else {
		m.statusMessage = fmt.Sprintf("%s opened in browser", label)
	}
	return clearStatusAfter(2 * time.Second)
}

func (m *model) copyContract() tea.Cmd {
	if m.site.Token.Address == "" {
		m.statusMessage = models.ReasonMissingAddress.Message()
		return clearStatusAfter(2 * time.Second)
	}
	if err := m.copyText(m.site.Token.Address); err != nil {
		m.statusMessage = "Failed to copy to clipboard"
	} else {
		m.recorder.Record(analytics.EventCopyContract, map[string]any{"token": m.site.Token.Symbol})
		m.statusMessage = "Contract address copied to clipboard!"
	}
	return clearStatusAfter(2 * time.Second)
}
