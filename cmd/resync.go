package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/loomtrack/internal/model"
)

var (
	resyncTenant string
	resyncFrom   string
	resyncTo     string
)

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Recompute daily summaries for a tenant and date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := parseRange(resyncFrom, resyncTo)
		if err != nil {
			return err
		}

		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		res, err := a.production.Resync(cmd.Context(), resyncTenant, r)
		if err != nil {
			return err
		}
		zap.L().Info("resync finished",
			zap.String("tenant_id", resyncTenant),
			zap.Int("dates", res.Dates),
			zap.Strings("failed", res.Failed),
		)
		if len(res.Failed) > 0 {
			return eris.Errorf("resync: %d of %d dates failed", len(res.Failed), res.Dates)
		}
		return nil
	},
}

// parseRange parses a YYYY-MM-DD range; an empty end defaults to the start.
func parseRange(from, to string) (model.DateRange, error) {
	start, err := model.ParseDate(from)
	if err != nil {
		return model.DateRange{}, fmt.Errorf("invalid --from %q: %w", from, err)
	}
	if to == "" {
		to = from
	}
	end, err := model.ParseDate(to)
	if err != nil {
		return model.DateRange{}, fmt.Errorf("invalid --to %q: %w", to, err)
	}
	return model.DateRange{From: model.NormalizeDate(start), To: model.NormalizeDate(end)}, nil
}

func init() {
	resyncCmd.Flags().StringVar(&resyncTenant, "tenant", "", "tenant id")
	resyncCmd.Flags().StringVar(&resyncFrom, "from", "", "first date (YYYY-MM-DD)")
	resyncCmd.Flags().StringVar(&resyncTo, "to", "", "last date (YYYY-MM-DD, default --from)")
	_ = resyncCmd.MarkFlagRequired("tenant")
	_ = resyncCmd.MarkFlagRequired("from")
	rootCmd.AddCommand(resyncCmd)
}
