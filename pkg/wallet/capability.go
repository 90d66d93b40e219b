package wallet

import (
	"context"
	"sync"
	"time"

	"tokensite/pkg/config"
	"tokensite/pkg/models"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

const (
	probeTimeout = 3 * time.Second

	privyAppIDHeader       = "privy-app-id"
	web3AuthClientIDHeader = "x-web3auth-client-id"
)

// Capability is one way of reaching a wallet. It is selected once at startup;
// consumers never branch on configuration.
type Capability interface {
	Source() models.WalletSource
	Available() bool
	// Open returns a provider for the wallet, logging in where the wallet
	// needs it.
	Open(ctx context.Context) (Provider, error)
	// Close ends the wallet session (embedded logout).
	Close(ctx context.Context) error
}

type absent struct {
	source models.WalletSource
}

func (a absent) Source() models.WalletSource { return a.source }
func (absent) Available() bool { return false }
func (absent) Open(context.Context) (Provider, error) { return nil, ErrNoProvider }
func (absent) Close(context.Context) error { return nil }

// rpcCapability reaches a wallet through an EIP-1193 JSON-RPC endpoint. The
// client is dialed lazily and dropped on Close.
type rpcCapability struct {
	source         models.WalletSource
	url            string
	header         string
	credential     string
	accountsMethod string

	mu       sync.Mutex
	provider *RPCProvider
}

func (c *rpcCapability) Source() models.WalletSource { return c.source }
func (c *rpcCapability) Available() bool { return true }

func (c *rpcCapability) Open(ctx context.Context) (Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.provider != nil {
		return c.provider, nil
	}
	client, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.provider = NewRPCProvider(client, c.accountsMethod)
	return c.provider, nil
}

func (c *rpcCapability) dial(ctx context.Context) (*gethrpc.Client, error) {
	var opts []gethrpc.ClientOption
	if c.header != "" {
		opts = append(opts, gethrpc.WithHeader(c.header, c.credential))
	}
	client, err := gethrpc.DialOptions(ctx, c.url, opts...)
	if err != nil {
		return nil, wrap(models.ReasonTransport, "dial "+string(c.source), err)
	}
	return client, nil
}

func (c *rpcCapability) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.provider != nil {
		c.provider.Close()
		c.provider = nil
	}
	return nil
}

// Capabilities is the set of wallets found at startup, keyed by source.
type Capabilities map[models.WalletSource]Capability

// Get returns the capability for source, or an absent one.
func (c Capabilities) Get(source models.WalletSource) Capability {
	if capability, ok := c[source]; ok && capability != nil {
		return capability
	}
	return absent{source: source}
}

// Available lists the usable sources in display order.
func (c Capabilities) Available() []models.WalletSource {
	var out []models.WalletSource
	for _, source := range models.Sources {
		if c.Get(source).Available() {
			out = append(out, source)
		}
	}
	return out
}

// Close ends every open session.
func (c Capabilities) Close(ctx context.Context) {
	for _, capability := range c {
		_ = capability.Close(ctx)
	}
}

// NewInjected returns a capability for a browser-style wallet at url.
func NewInjected(url string) Capability {
	return &rpcCapability{source: models.SourceInjected, url: url}
}

// NewPrivy returns the embedded wallet reached through a Privy bridge.
func NewPrivy(url, appID string) Capability {
	return &rpcCapability{
		source:     models.SourcePrivy,
		url:        url,
		header:     privyAppIDHeader,
		credential: appID,
	}
}

// NewWeb3Auth returns the embedded wallet reached through a Web3Auth bridge.
func NewWeb3Auth(url, clientID string) Capability {
	return &rpcCapability{
		source:         models.SourceWeb3Auth,
		url:            url,
		header:         web3AuthClientIDHeader,
		credential:     clientID,
		accountsMethod: "eth_accounts",
	}
}

// Probe detects the wallets reachable with cfg. Embedded wallets are enabled
// when configured; the injected one must answer eth_chainId within a short
// timeout.
func Probe(ctx context.Context, cfg config.WalletConfig, logger *zap.Logger) Capabilities {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("wallet")
	caps := Capabilities{}

	if cfg.InjectedRPCURL != "" {
		injected := NewInjected(cfg.InjectedRPCURL)
		if err := probe(ctx, injected); err != nil {
			logger.Info("injected wallet not detected", zap.String("url", cfg.InjectedRPCURL), zap.Error(err))
			_ = injected.Close(ctx)
		} else {
			logger.Info("injected wallet detected", zap.String("url", cfg.InjectedRPCURL))
			caps[models.SourceInjected] = injected
		}
	}
	if cfg.PrivyAppID != "" && cfg.PrivyRPCURL != "" {
		caps[models.SourcePrivy] = NewPrivy(cfg.PrivyRPCURL, cfg.PrivyAppID)
		logger.Info("embedded wallet enabled", zap.String("source", string(models.SourcePrivy)))
	}
	if cfg.Web3AuthClientID != "" && cfg.Web3AuthRPCURL != "" {
		caps[models.SourceWeb3Auth] = NewWeb3Auth(cfg.Web3AuthRPCURL, cfg.Web3AuthClientID)
		logger.Info("embedded wallet enabled", zap.String("source", string(models.SourceWeb3Auth)))
	}
	return caps
}

func probe(ctx context.Context, capability Capability) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	p, err := capability.Open(ctx)
	if err != nil {
		return err
	}
	_, err = p.ChainID(ctx)
	return err
}
