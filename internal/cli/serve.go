package cli

import (
	"github.com/avstrong/pension/internal/app"
	"github.com/spf13/cobra"
)

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, l, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = l.Sync() }()

		if err := app.Run(l, cfg); err != nil {
			l.LogErrorf("Failed to run app: %v", err.Error())

			return err
		}

		return nil
	},
}
