package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"tokensite/pkg/config"
	"tokensite/pkg/models"
	"tokensite/pkg/rpc"
	"tokensite/pkg/utils"
	"tokensite/pkg/wallet"

	"github.com/spf13/cobra"
)

const checkTimeout = 30 * time.Second

var jsonOut bool

var errCheckFailed = errors.New("configuration check failed")

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Test the configuration against the network and exit",
	Long: `check loads the configuration, asks every configured RPC endpoint for its
chain id, reads the token's symbol and decimals from the contract and probes
the configured wallet bridges.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	checkCmd.Flags().BoolVar(&jsonOut, "json", false, "Output check results as JSON")
}

func runCheck(parent context.Context, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		if jsonOut {
			writeReport(out, models.CheckReport{
				StructureErrors: []string{err.Error()},
				Wallets:         []string{},
			})
		} else {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
		return errCheckFailed
	}

	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	report := rpc.CheckConfig(ctx, cfg)
	caps := wallet.Probe(ctx, cfg.Wallets, logger)
	defer caps.Close(context.Background())
	report.Wallets = []string{}
	for _, s := range caps.Available() {
		report.Wallets = append(report.Wallets, string(s))
	}

	if jsonOut {
		writeReport(out, report)
	} else {
		printReport(out, cfg, report)
	}

	if !report.ValidStructure {
		return errCheckFailed
	}
	return nil
}

func writeReport(out io.Writer, report models.CheckReport) {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}

func printReport(out io.Writer, cfg *config.AppConfig, report models.CheckReport) {
	fmt.Fprintf(out, "Testing network: %s (chain %d)\n", report.ChainName, report.ChainID)
	if !report.ValidStructure {
		for _, msg := range report.StructureErrors {
			fmt.Fprintf(out, "Error: %s\n", msg)
		}
		return
	}

	for _, r := range report.RPCs {
		fmt.Fprintf(out, "  RPC: %s ... ", utils.TruncateString(r.URL, 48))
		if r.Status != "ok" {
			fmt.Fprintf(out, "Failed: %s\n", r.Error)
			continue
		}
		fmt.Fprintf(out, "OK (ChainID: %d, %dms)", r.ChainID, r.LatencyMS)
		if r.Error != "" {
			fmt.Fprintf(out, " - %s", r.Error)
		} else {
			fmt.Fprint(out, " - Verified")
		}
		fmt.Fprintln(out)
	}
	if report.Inconsistent {
		fmt.Fprintln(out, "\nWARNING: Inconsistent RPCs detected! Endpoints returned conflicting chain ids.")
	}

	if t := report.Token; t != nil {
		fmt.Fprintf(out, "Token: %s (%s) ... ", t.ConfigSymbol, utils.ShortAddress(t.Address))
		switch {
		case t.Error != "":
			fmt.Fprintf(out, "Failed: %s\n", t.Error)
		case t.Mismatch:
			fmt.Fprintf(out, "MISMATCH! Contract reports %s with %d decimals, configured %s with %d\n",
				t.ObservedSymbol, t.ObservedDecimals, t.ConfigSymbol, t.ConfigDecimals)
		default:
			fmt.Fprintf(out, "OK (%d decimals)\n", t.ObservedDecimals)
		}
	} else {
		fmt.Fprintf(out, "Token: %s\n", models.ReasonConfigMissing.Message())
	}

	if len(report.Wallets) == 0 {
		fmt.Fprintf(out, "Wallets: %s\n", models.ReasonNoProvider.Message())
	} else {
		fmt.Fprintf(out, "Wallets: %v\n", report.Wallets)
	}
	if cfg.Analytics.MeasurementID == "" {
		fmt.Fprintln(out, "Analytics: disabled")
	} else {
		fmt.Fprintf(out, "Analytics: %s\n", cfg.Analytics.MeasurementID)
	}
}
