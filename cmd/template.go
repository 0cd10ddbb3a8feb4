package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	templateTenant string
	templateUser   string
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage screenshot extraction templates",
}

var templateImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create or update templates from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open template file")
		}
		defer f.Close() //nolint:errcheck

		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck

		ts, err := a.templates.Import(cmd.Context(), templateTenant, templateUser, f)
		if err != nil {
			return err
		}
		for _, t := range ts {
			zap.L().Info("template imported",
				zap.String("id", t.ID),
				zap.String("name", t.Name),
				zap.Int("fields", len(t.FieldMappings)),
				zap.Bool("default", t.IsDefault),
			)
		}
		return nil
	},
}

func init() {
	templateImportCmd.Flags().StringVar(&templateTenant, "tenant", "", "tenant id")
	templateImportCmd.Flags().StringVar(&templateUser, "user", "cli", "user recorded as creator")
	_ = templateImportCmd.MarkFlagRequired("tenant")
	templateCmd.AddCommand(templateImportCmd)
	rootCmd.AddCommand(templateCmd)
}
