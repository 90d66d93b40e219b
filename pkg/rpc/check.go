package rpc

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"tokensite/pkg/config"
	"tokensite/pkg/models"
)

// CheckConfig validates the configured network against its RPC endpoints and
// compares the configured token with what the contract reports on chain.
func CheckConfig(ctx context.Context, cfg *config.AppConfig) models.CheckReport {
	report := models.CheckReport{
		ValidStructure: true,
		ChainID:        cfg.Network.ChainID,
		ChainName:      cfg.Network.ChainName,
	}

	if err := cfg.Network.Validate(); err != nil {
		report.ValidStructure = false
		report.StructureErrors = append(report.StructureErrors, err.Error())
		return report
	}

	want := big.NewInt(cfg.Network.ChainID)
	var observed *big.Int
	for _, url := range cfg.Network.RPCURLs {
		res := models.RPCResult{URL: url}
		start := time.Now()
		id, err := FetchChainID(ctx, url)
		res.LatencyMS = time.Since(start).Milliseconds()
		if err != nil {
			res.Status = "error"
			res.Error = err.Error()
			report.RPCs = append(report.RPCs, res)
			continue
		}
		res.Status = "ok"
		res.ChainID = id.Int64()
		if id.Cmp(want) != 0 {
			res.Error = fmt.Sprintf("Mismatch! Expected %d", cfg.Network.ChainID)
		}
		if observed == nil {
			observed = id
		} else if observed.Cmp(id) != 0 {
			report.Inconsistent = true
		}
		report.RPCs = append(report.RPCs, res)
	}

	if cfg.Token.Address != "" {
		tr := &models.TokenResult{
			Address:        cfg.Token.Address,
			ConfigSymbol:   cfg.Token.Symbol,
			ConfigDecimals: int(cfg.Token.Decimals),
		}
		meta, err := FetchTokenMetadata(ctx, cfg.Network.RPCURLs, cfg.Token.Address)
		if err != nil {
			tr.Error = err.Error()
		} else {
			tr.ObservedSymbol = meta.Symbol
			tr.ObservedDecimals = meta.Decimals
			tr.Mismatch = meta.Decimals != int(cfg.Token.Decimals) ||
				(meta.Symbol != "" && !strings.EqualFold(meta.Symbol, cfg.Token.Symbol))
		}
		report.Token = tr
	}

	return report
}
