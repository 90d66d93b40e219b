package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"tokensite/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// ErrInvalid is wrapped by every validation failure returned from Load.
var ErrInvalid = errors.New(string(models.ReasonConfigMissing))

// WalletConfig holds the optional wallet integrations. An empty field disables
// the corresponding provider.
type WalletConfig struct {
	InjectedRPCURL   string
	PrivyAppID       string
	PrivyRPCURL      string
	Web3AuthClientID string
	Web3AuthRPCURL   string
}

// LinksConfig holds the outbound links shown on the page.
type LinksConfig struct {
	SwapBaseURL        string
	ChartBaseURL       string
	LiquidityLockURL   string
	LiquidityLockLabel string
}

// AnalyticsConfig holds the optional GA4 measurement protocol credentials.
type AnalyticsConfig struct {
	MeasurementID string
	APISecret     string
}

// MarketConfig holds the price poller settings.
type MarketConfig struct {
	APIURL       string
	PollInterval time.Duration
	HTTPTimeout  time.Duration
}

// AppConfig is built once at startup and shared read-only by every component.
type AppConfig struct {
	SiteURL   string
	Token     models.TokenDescriptor
	Network   models.NetworkDescriptor
	Wallets   WalletConfig
	Links     LinksConfig
	Analytics AnalyticsConfig
	Market    MarketConfig
}

var defaults = map[string]any{
	"site_url":                  "",
	"token_address":             "0x59EB0583C532c0EF4e887308d8D477e48d02f7F8",
	"token_symbol":              "TFPC",
	"token_decimals":            18,
	"token_image_path":          "/logo.png",
	"network_chain_id":          137,
	"network_name":              "Polygon Mainnet",
	"network_currency_name":     "POL",
	"network_currency_symbol":   "POL",
	"network_currency_decimals": 18,
	"network_rpc_urls":          "https://polygon-rpc.com,https://rpc.ankr.com/polygon",
	"network_explorer_urls":     "https://polygonscan.com",
	"wallet_rpc_url":            "",
	"privy_app_id":              "",
	"privy_rpc_url":             "",
	"web3auth_client_id":        "",
	"web3auth_rpc_url":          "",
	"ga_measurement_id":         "",
	"ga_api_secret":             "",
	"swap_base_url":             "https://quickswap.exchange/#/swap",
	"chart_base_url":            "https://dexscreener.com/polygon",
	"liq_lock_url":              "",
	"liq_lock_label":            "Liquidity Lock",
	"market_api_url":            "https://api.dexscreener.com",
	"market_poll_interval":      "60s",
	"http_timeout":              "10s",
}

// Load reads the configuration from the environment. When envFile is set it is
// read as a dotenv file first; real environment variables take precedence.
func Load(envFile string) (*AppConfig, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read env file %s: %w", envFile, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*AppConfig, error) {
	decimals := v.GetInt("token_decimals")
	if decimals < 0 || decimals > 255 {
		return nil, fmt.Errorf("%w: TOKEN_DECIMALS out of range: %d", ErrInvalid, decimals)
	}

	cfg := &AppConfig{
		SiteURL: strings.TrimRight(strings.TrimSpace(v.GetString("site_url")), "/"),
		Token: models.TokenDescriptor{
			Address:  strings.TrimSpace(v.GetString("token_address")),
			Symbol:   strings.TrimSpace(v.GetString("token_symbol")),
			Decimals: uint8(decimals),
		},
		Network: models.NetworkDescriptor{
			ChainID:   v.GetInt64("network_chain_id"),
			ChainName: strings.TrimSpace(v.GetString("network_name")),
			NativeCurrency: models.NativeCurrency{
				Name:     v.GetString("network_currency_name"),
				Symbol:   v.GetString("network_currency_symbol"),
				Decimals: v.GetInt("network_currency_decimals"),
			},
			RPCURLs:           splitList(v.GetString("network_rpc_urls")),
			BlockExplorerURLs: splitList(v.GetString("network_explorer_urls")),
		},
		Wallets: WalletConfig{
			InjectedRPCURL:   strings.TrimSpace(v.GetString("wallet_rpc_url")),
			PrivyAppID:       strings.TrimSpace(v.GetString("privy_app_id")),
			PrivyRPCURL:      strings.TrimSpace(v.GetString("privy_rpc_url")),
			Web3AuthClientID: strings.TrimSpace(v.GetString("web3auth_client_id")),
			Web3AuthRPCURL:   strings.TrimSpace(v.GetString("web3auth_rpc_url")),
		},
		Links: LinksConfig{
			SwapBaseURL:        strings.TrimSpace(v.GetString("swap_base_url")),
			ChartBaseURL:       strings.TrimRight(strings.TrimSpace(v.GetString("chart_base_url")), "/"),
			LiquidityLockURL:   strings.TrimSpace(v.GetString("liq_lock_url")),
			LiquidityLockLabel: strings.TrimSpace(v.GetString("liq_lock_label")),
		},
		Analytics: AnalyticsConfig{
			MeasurementID: strings.TrimSpace(v.GetString("ga_measurement_id")),
			APISecret:     strings.TrimSpace(v.GetString("ga_api_secret")),
		},
		Market: MarketConfig{
			APIURL:       strings.TrimRight(strings.TrimSpace(v.GetString("market_api_url")), "/"),
			PollInterval: v.GetDuration("market_poll_interval"),
			HTTPTimeout:  v.GetDuration("http_timeout"),
		},
	}
	cfg.Token.Image = cfg.tokenImageURL(strings.TrimSpace(v.GetString("token_image_path")))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the required parts of the configuration. Optional features
// with missing values are left disabled rather than reported.
func (c *AppConfig) Validate() error {
	if c.Token.Address != "" && !common.IsHexAddress(c.Token.Address) {
		return fmt.Errorf("%w: TOKEN_ADDRESS is not a hex address: %q", ErrInvalid, c.Token.Address)
	}
	if err := c.Network.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Market.PollInterval <= 0 {
		return fmt.Errorf("%w: MARKET_POLL_INTERVAL must be positive", ErrInvalid)
	}
	if c.Market.HTTPTimeout <= 0 {
		return fmt.Errorf("%w: HTTP_TIMEOUT must be positive", ErrInvalid)
	}
	return nil
}

// tokenImageURL resolves the image path against the site URL. Absolute URLs are
// kept as is; a relative path without a site URL yields no image.
func (c *AppConfig) tokenImageURL(path string) string {
	if path == "" {
		return ""
	}
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	if c.SiteURL == "" {
		return ""
	}
	return c.SiteURL + "/" + strings.TrimLeft(path, "/")
}

// SwapURL returns the DEX swap link preselecting the token as output.
func (c *AppConfig) SwapURL() string {
	if c.Links.SwapBaseURL == "" || c.Token.Address == "" {
		return ""
	}
	return c.Links.SwapBaseURL + "?outputCurrency=" + c.Token.Address
}

// ChartURL returns the price chart link for the token.
func (c *AppConfig) ChartURL() string {
	if c.Links.ChartBaseURL == "" || c.Token.Address == "" {
		return ""
	}
	return c.Links.ChartBaseURL + "/" + c.Token.Address
}

// ExplorerTokenURL returns the block explorer page of the token contract.
func (c *AppConfig) ExplorerTokenURL() string {
	if len(c.Network.BlockExplorerURLs) == 0 || c.Token.Address == "" {
		return ""
	}
	return strings.TrimRight(c.Network.BlockExplorerURLs[0], "/") + "/token/" + c.Token.Address
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
