package models

import (
	"fmt"
	"strings"
	"time"
)

// NativeCurrency describes the gas currency of a network.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// NetworkDescriptor identifies the network the wallet must be attached to.
type NetworkDescriptor struct {
	ChainID           int64          `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls"`
}

// ChainIDHex returns the chain id as a 0x-prefixed lowercase hex quantity.
func (n NetworkDescriptor) ChainIDHex() string {
	return fmt.Sprintf("0x%x", n.ChainID)
}

// Validate checks the invariants of a network descriptor.
func (n NetworkDescriptor) Validate() error {
	if n.ChainID <= 0 {
		return fmt.Errorf("chain id must be positive, got %d", n.ChainID)
	}
	if strings.TrimSpace(n.ChainName) == "" {
		return fmt.Errorf("chain %d has no name", n.ChainID)
	}
	if len(n.RPCURLs) == 0 {
		return fmt.Errorf("chain %q has no RPC URLs", n.ChainName)
	}
	if len(n.BlockExplorerURLs) == 0 {
		return fmt.Errorf("chain %q has no block explorer URLs", n.ChainName)
	}
	return nil
}

// TokenDescriptor identifies the asset registered in the wallet.
type TokenDescriptor struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Image    string `json:"image,omitempty"`
}

// WalletSource is the provider a session was opened with.
type WalletSource string

const (
	SourceInjected WalletSource = "injected"
	SourcePrivy    WalletSource = "privy"
	SourceWeb3Auth WalletSource = "web3auth"
)

// Sources lists every known wallet source in display order.
var Sources = []WalletSource{SourceInjected, SourcePrivy, SourceWeb3Auth}

// ParseWalletSource maps a user supplied name to a WalletSource.
func ParseWalletSource(s string) (WalletSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "injected", "metamask":
		return SourceInjected, nil
	case "privy":
		return SourcePrivy, nil
	case "web3auth":
		return SourceWeb3Auth, nil
	default:
		return "", fmt.Errorf("unknown wallet source %q", s)
	}
}

// WalletSession is the in-memory state of the connected wallet.
type WalletSession struct {
	Address string       `json:"address,omitempty"`
	Source  WalletSource `json:"source,omitempty"`
	Status  string       `json:"status"`
}

// Connected reports whether the session holds an address.
func (s WalletSession) Connected() bool {
	return s.Address != ""
}

// SnapshotStatus is the lifecycle tag of a MarketSnapshot.
type SnapshotStatus string

const (
	StatusLoading SnapshotStatus = "loading"
	StatusReady   SnapshotStatus = "ready"
	StatusError   SnapshotStatus = "error"
)

// MarketSnapshot is the latest price/valuation pair for the token.
// Price and MarketCap are nil unless Status is StatusReady.
type MarketSnapshot struct {
	Price     *float64       `json:"price"`
	MarketCap *float64       `json:"marketCap"`
	Status    SnapshotStatus `json:"status"`
	Reason    Reason         `json:"reason,omitempty"`
	Seq       uint64         `json:"seq"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// LoadingSnapshot returns a snapshot in the loading state.
func LoadingSnapshot() MarketSnapshot {
	return MarketSnapshot{Status: StatusLoading, UpdatedAt: time.Now()}
}

// ErrorSnapshot returns a snapshot in the error state with both figures cleared.
func ErrorSnapshot(reason Reason) MarketSnapshot {
	return MarketSnapshot{Status: StatusError, Reason: reason, UpdatedAt: time.Now()}
}

// ReadySnapshot returns a snapshot in the ready state.
func ReadySnapshot(price, marketCap float64) MarketSnapshot {
	return MarketSnapshot{
		Price:     &price,
		MarketCap: &marketCap,
		Status:    StatusReady,
		UpdatedAt: time.Now(),
	}
}

// PricePoint holds a timestamped price.
type PricePoint struct {
	Timestamp time.Time
	Value     float64
}

// TokenMetadata contains the result of a token metadata fetch.
type TokenMetadata struct {
	Symbol   string
	Decimals int
	Err      error
}

// RPCResult holds check results for a specific RPC URL.
type RPCResult struct {
	URL       string `json:"url"`
	Status    string `json:"status"` // "ok" or "error"
	ChainID   int64  `json:"chain_id,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// TokenResult holds the on-chain view of the configured token.
type TokenResult struct {
	Address          string `json:"address"`
	ConfigSymbol     string `json:"config_symbol"`
	ConfigDecimals   int    `json:"config_decimals"`
	ObservedSymbol   string `json:"observed_symbol,omitempty"`
	ObservedDecimals int    `json:"observed_decimals,omitempty"`
	Mismatch         bool   `json:"mismatch"`
	Error            string `json:"error,omitempty"`
}

// CheckReport holds the results of the configuration check.
type CheckReport struct {
	ValidStructure  bool         `json:"valid_structure"`
	StructureErrors []string     `json:"structure_errors,omitempty"`
	ChainID         int64        `json:"chain_id"`
	ChainName       string       `json:"chain_name"`
	RPCs            []RPCResult  `json:"rpcs,omitempty"`
	Inconsistent    bool         `json:"inconsistent"`
	Token           *TokenResult `json:"token,omitempty"`
	Wallets         []string     `json:"wallets"`
}
