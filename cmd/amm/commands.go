package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/clearportx/amm-client/pkg/db"
	"github.com/clearportx/amm-client/pkg/holdings"
	"github.com/clearportx/amm-client/pkg/liquidity"
)

func newAddLiquidityCommand(a *app) *cobra.Command {
	var (
		req              liquidity.AddRequest
		amountA, amountB string
	)
	cmd := &cobra.Command{
		Use:   "add-liquidity",
		Short: "Send both inbound transfers and settle them into an LP position",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if req.LegA.Amount, err = decimal.NewFromString(amountA); err != nil {
				return fmt.Errorf("invalid --amount-a %q: %w", amountA, err)
			}
			if req.LegB.Amount, err = decimal.NewFromString(amountB); err != nil {
				return fmt.Errorf("invalid --amount-b %q: %w", amountB, err)
			}
			if req.Party == "" {
				req.Party = a.components.Backend.Party()
			}

			state, runErr := a.components.Liquidity.Run(cmd.Context(), req)
			if state != nil {
				if err := writeJSON(cmd.OutOrStdout(), state); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.RequestID, "request-id", "", "correlation id (default: generated)")
	f.StringVar(&req.PoolID, "pool", "", "pool id, e.g. ETH-USDC-01")
	f.StringVar(&req.Party, "party", "", "providing party (default: BACKEND_PARTY)")
	f.StringVar(&req.LegA.InstrumentAdmin, "admin-a", "", "instrument admin of leg A")
	f.StringVar(&req.LegA.InstrumentID, "instrument-a", "", "instrument id of leg A")
	f.StringVar(&amountA, "amount-a", "", "amount of leg A")
	f.StringVar(&req.LegB.InstrumentAdmin, "admin-b", "", "instrument admin of leg B")
	f.StringVar(&req.LegB.InstrumentID, "instrument-b", "", "instrument id of leg B")
	f.StringVar(&amountB, "amount-b", "", "amount of leg B")
	for _, name := range []string{"pool", "admin-a", "instrument-a", "amount-a", "admin-b", "instrument-b", "amount-b"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newResolvePoolCommand(a *app) *cobra.Command {
	var poolID, party string
	cmd := &cobra.Command{
		Use:   "resolve-pool",
		Short: "Resolve a pool id to a contract the party can see",
		RunE: func(cmd *cobra.Command, args []string) error {
			if party == "" {
				party = a.components.Backend.Party()
			}
			res, err := a.components.Pools.Resolve(cmd.Context(), poolID, party)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&poolID, "pool", "", "pool id")
	cmd.Flags().StringVar(&party, "party", "", "party (default: BACKEND_PARTY)")
	_ = cmd.MarkFlagRequired("pool")
	return cmd
}

func newSelectHoldingCommand(a *app) *cobra.Command {
	var (
		req       holdings.Request
		minAmount string
	)
	cmd := &cobra.Command{
		Use:   "select-holding",
		Short: "Wait for a holding of an instrument with at least a minimum amount",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(minAmount)
			if err != nil {
				return fmt.Errorf("invalid --min-amount %q: %w", minAmount, err)
			}
			req.MinAmount = amount
			if req.OwnerParty == "" {
				req.OwnerParty = a.components.Backend.Party()
			}
			res, err := a.components.Holdings.Select(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.OwnerParty, "owner", "", "owner party (default: BACKEND_PARTY)")
	f.StringVar(&req.InstrumentAdmin, "admin", "", "instrument admin")
	f.StringVar(&req.InstrumentID, "instrument", "", "instrument id")
	f.StringVar(&minAmount, "min-amount", "0", "minimum holding amount")
	f.IntVar(&req.TimeoutSeconds, "timeout", holdings.DefaultTimeoutSeconds, "seconds to keep polling")
	f.IntVar(&req.PollIntervalMs, "poll-ms", holdings.DefaultPollIntervalMs, "poll interval in milliseconds")
	_ = cmd.MarkFlagRequired("admin")
	_ = cmd.MarkFlagRequired("instrument")
	return cmd
}

func newMigrateStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "migrate-status",
		Short:       "Print the baseline database migration version",
		Annotations: map[string]string{"standalone": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !db.Enabled() {
				return fmt.Errorf("DB_HOST is not set")
			}
			version, dirty, err := db.MigrationStatus(a.log)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
			return err
		},
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
