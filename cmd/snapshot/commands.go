package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Reconstruct Beanstalk balances at the Arbitrum snapshot block",
	Long: `snapshot merges live Arbitrum state with the frozen Ethereum fixtures for
each Beanstalk asset class, classifies every holder as wallet or contract,
validates the totals against on-chain aggregates and writes one document per
asset to OUTPUT_DIR. Every expensive step is cached in CACHE_DIR so an
interrupted run resumes where it stopped.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:       "run <asset...|all>",
	Short:     "Reconcile one or more asset classes (barn, field, silo)",
	Args:      cobra.MinimumNArgs(1),
	ValidArgs: append(assetNames(), "all"),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := resolveAssets(args)
		if err != nil {
			return err
		}
		return execute(func(ctx context.Context, a *app) error {
			return a.runAssets(ctx, names)
		})
	},
}

var classifyLedger string

var classifyCmd = &cobra.Command{
	Use:   "classify <address...>",
	Short: "Report whether addresses hold contract code, using the classification cache",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(func(ctx context.Context, a *app) error {
			result, err := a.classify(ctx, classifyLedger, args)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		})
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyLedger, "ledger", "arb", "ledger to classify on: arb or eth")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(classifyCmd)
}
