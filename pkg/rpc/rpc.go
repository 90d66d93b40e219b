package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tokensite/pkg/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	// ErrNoPairs is returned when the price endpoint lists no trading pair.
	ErrNoPairs = errors.New("no trading pairs")
	// ErrBadFigure is returned when a price or valuation is missing or not finite.
	ErrBadFigure = errors.New("missing or non-finite figure")
)

// MarketError tags a failed market fetch with its reason.
type MarketError struct {
	Reason models.Reason
	Err    error
}

func (e *MarketError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *MarketError) Unwrap() error {
	return e.Err
}

type dexPair struct {
	PriceUSD  json.RawMessage `json:"priceUsd"`
	MarketCap json.RawMessage `json:"marketCap"`
	FDV       json.RawMessage `json:"fdv"`
}

type dexTokensResponse struct {
	Pairs []dexPair `json:"pairs"`
}

// FetchMarketData fetches the first trading pair of the token from a
// DexScreener compatible endpoint. On failure it returns an error snapshot
// together with a *MarketError.
func FetchMarketData(ctx context.Context, client *http.Client, baseURL, tokenAddress string) (models.MarketSnapshot, error) {
	fail := func(reason models.Reason, err error) (models.MarketSnapshot, error) {
		return models.ErrorSnapshot(reason), &MarketError{Reason: reason, Err: err}
	}

	url := fmt.Sprintf("%s/latest/dex/tokens/%s", strings.TrimRight(baseURL, "/"), tokenAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail(models.ReasonMarketFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fail(models.ReasonMarketFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(models.ReasonMarketFetch, fmt.Errorf("unexpected status %s", resp.Status))
	}

	var result dexTokensResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fail(models.ReasonMarketParse, err)
	}
	if len(result.Pairs) == 0 {
		return fail(models.ReasonMarketParse, ErrNoPairs)
	}

	pair := result.Pairs[0]
	price, ok := parseFigure(pair.PriceUSD)
	if !ok {
		return fail(models.ReasonMarketParse, fmt.Errorf("priceUsd: %w", ErrBadFigure))
	}
	valuationRaw := pair.MarketCap
	if isNull(valuationRaw) {
		valuationRaw = pair.FDV
	}
	valuation, ok := parseFigure(valuationRaw)
	if !ok {
		return fail(models.ReasonMarketParse, fmt.Errorf("marketCap/fdv: %w", ErrBadFigure))
	}

	return models.ReadySnapshot(price, valuation), nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// parseFigure accepts a JSON number or a numeric JSON string.
func parseFigure(raw json.RawMessage) (float64, bool) {
	if isNull(raw) {
		return 0, false
	}
	text := string(bytes.TrimSpace(raw))
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		text = strings.TrimSpace(s)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FetchChainID dials an RPC URL and returns the chain id it reports.
func FetchChainID(ctx context.Context, rpcURL string) (*big.Int, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	id, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	return id, nil
}

// FetchTokenMetadata fetches the symbol and decimals for a token address.
func FetchTokenMetadata(ctx context.Context, rpcURLs []string, tokenAddress string) (models.TokenMetadata, error) {
	targetAddr := common.HexToAddress(tokenAddress)
	// symbol() selector: 0x95d89b41
	symbolData := []byte{0x95, 0xd8, 0x9b, 0x41}
	// decimals() selector: 0x313ce567
	decimalsData := []byte{0x31, 0x3c, 0xe5, 0x67}

	for _, rpcURL := range rpcURLs {
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		client, err := ethclient.DialContext(callCtx, rpcURL)
		if err != nil {
			cancel()
			continue
		}

		var symbol string
		msgSymbol := ethereum.CallMsg{To: &targetAddr, Data: symbolData}
		resSymbol, err := client.CallContract(callCtx, msgSymbol, nil)
		if err == nil && len(resSymbol) > 0 {
			symbol = decodeSymbol(resSymbol)
		}

		msgDecimals := ethereum.CallMsg{To: &targetAddr, Data: decimalsData}
		resDecimals, err := client.CallContract(callCtx, msgDecimals, nil)
		client.Close()
		cancel()

		if err == nil && len(resDecimals) > 0 {
			decimals := int(new(big.Int).SetBytes(resDecimals).Int64())
			return models.TokenMetadata{Symbol: symbol, Decimals: decimals}, nil
		}
	}
	err := fmt.Errorf("failed to fetch metadata for %s", tokenAddress)
	return models.TokenMetadata{Err: err}, err
}

// decodeSymbol handles both bytes32 and ABI string return values.
func decodeSymbol(res []byte) string {
	if len(res) == 32 {
		return string(bytes.TrimRight(res, "\x00"))
	}
	if len(res) >= 64 {
		length := new(big.Int).SetBytes(res[32:64]).Int64()
		if length > 0 && 64+int(length) <= len(res) {
			return string(res[64 : 64+length])
		}
	}
	return ""
}
