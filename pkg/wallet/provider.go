package wallet

import (
	"context"
	"math/big"

	"tokensite/pkg/models"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Provider is the subset of an EIP-1193 wallet the site talks to.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]string, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SwitchChain(ctx context.Context, chainIDHex string) error
	AddChain(ctx context.Context, network models.NetworkDescriptor) error
	WatchAsset(ctx context.Context, token models.TokenDescriptor) (bool, error)
}

// RPCProvider speaks EIP-1193 over a JSON-RPC connection.
type RPCProvider struct {
	client         *gethrpc.Client
	accountsMethod string
}

// NewRPCProvider wraps client. accountsMethod is the call that yields the
// session accounts, eth_requestAccounts when empty.
func NewRPCProvider(client *gethrpc.Client, accountsMethod string) *RPCProvider {
	if accountsMethod == "" {
		accountsMethod = "eth_requestAccounts"
	}
	return &RPCProvider{client: client, accountsMethod: accountsMethod}
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.client.CallContext(ctx, &accounts, p.accountsMethod); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *RPCProvider) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := p.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return nil, err
	}
	return (*big.Int)(&id), nil
}

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

func (p *RPCProvider) SwitchChain(ctx context.Context, chainIDHex string) error {
	return p.client.CallContext(ctx, nil, "wallet_switchEthereumChain", switchChainParams{ChainID: chainIDHex})
}

type addChainParams struct {
	ChainID           string                `json:"chainId"`
	ChainName         string                `json:"chainName"`
	NativeCurrency    models.NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string              `json:"rpcUrls"`
	BlockExplorerURLs []string              `json:"blockExplorerUrls"`
}

func (p *RPCProvider) AddChain(ctx context.Context, network models.NetworkDescriptor) error {
	params := addChainParams{
		ChainID:           network.ChainIDHex(),
		ChainName:         network.ChainName,
		NativeCurrency:    network.NativeCurrency,
		RPCURLs:           network.RPCURLs,
		BlockExplorerURLs: network.BlockExplorerURLs,
	}
	return p.client.CallContext(ctx, nil, "wallet_addEthereumChain", params)
}

type watchAssetOptions struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Image    string `json:"image,omitempty"`
}

type watchAssetParams struct {
	Type    string            `json:"type"`
	Options watchAssetOptions `json:"options"`
}

func (p *RPCProvider) WatchAsset(ctx context.Context, token models.TokenDescriptor) (bool, error) {
	params := watchAssetParams{
		Type: "ERC20",
		Options: watchAssetOptions{
			Address:  token.Address,
			Symbol:   token.Symbol,
			Decimals: token.Decimals,
			Image:    token.Image,
		},
	}
	var added bool
	if err := p.client.CallContext(ctx, &added, "wallet_watchAsset", params); err != nil {
		return false, err
	}
	return added, nil
}

// Close releases the underlying connection.
func (p *RPCProvider) Close() {
	p.client.Close()
}
