package tui

import (
	"time"

	"tokensite/pkg/analytics"
	"tokensite/pkg/config"
	"tokensite/pkg/models"
	"tokensite/pkg/wallet"
	"tokensite/pkg/watcher"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Version is set by Start()
var Version = "dev"

// --- Messages ---

type clearStatusMsg struct{}
type uiTickMsg time.Time

// walletResultMsg carries the outcome of a wallet operation run off the
// update loop.
type walletResultMsg struct {
	op      string
	address string
	err     error
}

// --- Model ---

type model struct {
	site       config.Site
	watcher    *watcher.Watcher
	reconciler *wallet.Reconciler
	recorder   analytics.Recorder
	sub        watcher.Subscriber

	market  models.MarketSnapshot
	history []models.PricePoint
	session models.WalletSession
	wallets []models.WalletSource

	width           int
	height          int
	spinner         spinner.Model
	statusMessage   string
	busy            string // wallet operation in flight
	showBuy         bool
	showChart       bool
	showHelp        bool
	chartRangeIndex int

	copyText func(string) error
	openURL  func(string) error
}

// Options wires the view to the running components.
type Options struct {
	Config     *config.AppConfig
	Watcher    *watcher.Watcher
	Reconciler *wallet.Reconciler
	Recorder   analytics.Recorder
	Version    string
}

func initialModel(opts Options) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	recorder := opts.Recorder
	if recorder == nil {
		recorder = analytics.Nop{}
	}

	return model{
		site:       opts.Config.Site(),
		watcher:    opts.Watcher,
		reconciler: opts.Reconciler,
		recorder:   recorder,
		sub:        opts.Watcher.Subscribe(),
		market:     opts.Watcher.Snapshot(),
		history:    opts.Watcher.History(),
		session:    opts.Reconciler.Session(),
		wallets:    opts.Reconciler.Capabilities(),
		spinner:    s,
		copyText:   clipboard.WriteAll,
		openURL:    openBrowser,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		listenForWatcher(m.sub),
		m.spinner.Tick,
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }),
	)
}
