package config

import "tokensite/pkg/models"

// Link is a labelled outbound URL.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Site is the public view of the configuration. It never carries secrets or
// wallet bridge endpoints.
type Site struct {
	Token         models.TokenDescriptor   `json:"token"`
	Network       models.NetworkDescriptor `json:"network"`
	SwapURL       string                   `json:"swapUrl,omitempty"`
	ChartURL      string                   `json:"chartUrl,omitempty"`
	ExplorerURL   string                   `json:"explorerUrl,omitempty"`
	LiquidityLock *Link                    `json:"liquidityLock,omitempty"`
	AnalyticsID   string                   `json:"analyticsId,omitempty"`
}

// Site builds the public view.
func (c *AppConfig) Site() Site {
	s := Site{
		Token:       c.Token,
		Network:     c.Network,
		SwapURL:     c.SwapURL(),
		ChartURL:    c.ChartURL(),
		ExplorerURL: c.ExplorerTokenURL(),
		AnalyticsID: c.Analytics.MeasurementID,
	}
	if c.Links.LiquidityLockURL != "" {
		label := c.Links.LiquidityLockLabel
		if label == "" {
			label = "Liquidity Lock"
		}
		s.LiquidityLock = &Link{Label: label, URL: c.Links.LiquidityLockURL}
	}
	return s
}
