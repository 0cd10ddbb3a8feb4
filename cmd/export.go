package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/loomtrack/internal/export"
	"github.com/sells-group/loomtrack/internal/production"
)

var (
	exportTenant string
	exportFrom   string
	exportTo     string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write daily summaries and shift records to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := parseRange(exportFrom, exportTo)
		if err != nil {
			return err
		}
		if err := production.ValidateRange(r); err != nil {
			return err
		}

		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		if err := export.NewExporter(a.store, a.catalog).WriteFile(cmd.Context(), exportTenant, r, exportOut); err != nil {
			return err
		}
		zap.L().Info("export written",
			zap.String("tenant_id", exportTenant),
			zap.String("path", exportOut),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportTenant, "tenant", "", "tenant id")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "first date (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "last date (YYYY-MM-DD, default --from)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "summaries.xlsx", "output file")
	_ = exportCmd.MarkFlagRequired("tenant")
	_ = exportCmd.MarkFlagRequired("from")
	rootCmd.AddCommand(exportCmd)
}
