package tui

import (
	"fmt"
	"strings"
	"time"

	"tokensite/pkg/models"
	"tokensite/pkg/utils"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

func (m model) View() string {
	if m.showHelp {
		return m.viewHelp()
	}
	if m.showBuy {
		return m.viewBuy()
	}
	if m.showChart {
		return m.viewChart()
	}

	token := m.site.Token
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render(fmt.Sprintf("%s on %s", token.Symbol, m.site.Network.ChainName)),
		" ",
		subtleStyle.Render(Version),
	)

	contract := token.Address
	if contract == "" {
		contract = errStyle.Render("not configured")
	}
	contractLine := fmt.Sprintf("Contract  %s", contract)

	sections := []string{
		header,
		"",
		contractLine,
		"",
		lipgloss.JoinHorizontal(lipgloss.Top, m.viewMarket(), " ", m.viewWallet()),
	}

	if lock := m.site.LiquidityLock; lock != nil {
		sections = append(sections, "", fmt.Sprintf("%s  %s", lock.Label, subtleStyle.Render(lock.URL)))
	}

	status := ""
	if m.statusMessage != "" {
		status = infoStyle.Render(m.statusMessage)
		if m.busy != "" {
			status = m.spinner.View() + " " + status
		}
	}
	sections = append(sections, "", status)

	footer := subtleStyle.Render("c/p/w: connect • n: network • a: add token • b: buy • g: chart • y: copy • ?: help • q: quit")
	sections = append(sections, footer)

	return lipgloss.NewStyle().Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m model) viewMarket() string {
	price := utils.Placeholder
	mcap := utils.Placeholder
	var state string

	switch m.market.Status {
	case models.StatusReady:
		price = utils.FormatMoneyPtr(m.market.Price)
		mcap = utils.FormatMoneyPtr(m.market.MarketCap)
		state = statusStyle(models.StatusReady).Render("updated " + m.market.UpdatedAt.Format("15:04:05"))
	case models.StatusLoading:
		state = m.spinner.View() + statusStyle(models.StatusLoading).Render(" loading")
	case models.StatusError:
		state = statusStyle(models.StatusError).Render(m.market.Reason.Message())
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		tableHeaderStyle.Render("Market"),
		fmt.Sprintf("Price       %s", valueStyle.Render(price)),
		fmt.Sprintf("Market Cap  %s", valueStyle.Render(mcap)),
		state,
	)
	return boxStyle.Width(34).Render(body)
}

func (m model) viewWallet() string {
	lines := []string{tableHeaderStyle.Render("Wallet")}
	if m.session.Connected() {
		lines = append(lines,
			fmt.Sprintf("Address  %s", utils.ShortAddress(m.session.Address)),
			fmt.Sprintf("Via      %s", m.session.Source),
		)
	} else {
		lines = append(lines, subtleStyle.Render("not connected"))
	}
	lines = append(lines, m.session.Status)

	if len(m.wallets) == 0 {
		lines = append(lines, errStyle.Render(models.ReasonNoProvider.Message()))
	} else {
		names := make([]string, len(m.wallets))
		for i, w := range m.wallets {
			names[i] = string(w)
		}
		lines = append(lines, subtleStyle.Render("available: "+strings.Join(names, ", ")))
	}
	return boxStyle.Width(40).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m model) viewBuy() string {
	token := m.site.Token
	swap := m.site.SwapURL
	if swap == "" {
		swap = errStyle.Render("swap link not configured")
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(fmt.Sprintf("Buy %s", token.Symbol)),
		"",
		"Swap into the token on the configured exchange:",
		swap,
		"",
		fmt.Sprintf("Contract  %s", token.Address),
		fmt.Sprintf("Network   %s (chain %d)", m.site.Network.ChainName, m.site.Network.ChainID),
		"",
		infoStyle.Render(m.statusMessage),
		subtleStyle.Render("o: open swap • a: add token to wallet • y: copy contract • esc: close"),
	)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, boxStyle.Render(body))
}

func (m model) viewChart() string {
	rangeLabel := chartRangeLabels[m.chartRangeIndex]
	header := titleStyle.Render(fmt.Sprintf("%s Price (USD) - Last %s", m.site.Token.Symbol, rangeLabel))

	targetBoxWidth := m.width - 4
	if targetBoxWidth < 0 {
		targetBoxWidth = 0
	}

	values := filterHistory(m.history, chartRanges[m.chartRangeIndex], time.Now())

	var graph, stats string
	if len(values) > 1 {
		low, avg, high := priceStats(values)
		stats = subtleStyle.Render(fmt.Sprintf("Low: %s • Avg: %s • High: %s",
			utils.FormatFloat(low, 6), utils.FormatFloat(avg, 6), utils.FormatFloat(high, 6)))

		graphWidth := targetBoxWidth - 14
		if graphWidth < 10 {
			graphWidth = 10
		}
		graphHeight := m.height - 14
		if graphHeight < 1 {
			graphHeight = 1
		}
		graph = asciigraph.Plot(values,
			asciigraph.Height(graphHeight),
			asciigraph.Width(graphWidth),
			asciigraph.Precision(6),
			asciigraph.Caption("Price history (USD)"),
		)
	} else {
		graph = "Not enough data to draw graph."
	}

	content := boxStyle.Width(targetBoxWidth).Align(lipgloss.Center).Render(lipgloss.JoinVertical(lipgloss.Center, header, "\n", stats, "\n", graph))
	footer := subtleStyle.Render("g/q/esc: back • r: refresh • </>: change range")

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

func (m model) viewHelp() string {
	shortcuts := []string{
		"c: Connect browser wallet",
		"p: Connect with Privy",
		"w: Connect with Web3Auth",
		"n: Switch wallet to " + m.site.Network.ChainName,
		"a: Add " + m.site.Token.Symbol + " to wallet",
		"l: Log out wallet",
		"b: Buy",
		"g: Price chart",
		"d: Open chart in browser",
		"e: Open explorer",
		"y: Copy contract address",
		"r: Refresh market data",
		"q/ctrl+c: Quit",
		"?: Toggle Help",
	}

	header := titleStyle.Render("Help")
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", strings.Join(shortcuts, "\n")))
	footer := subtleStyle.Render("Press '?' or 'esc' to close")

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer),
	)
}
