package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/wbcard-cli/internal/config"
	"github.com/sells-group/wbcard-cli/internal/output"
)

var (
	cfg     *config.Config
	printer *output.Printer
)

var rootCmd = &cobra.Command{
	Use:   "wbcard",
	Short: "Operator console for AI-generated Wildberries product cards",
	Long: "Runs the card-generation backend on marketplace articles, follows its event stream, " +
		"lets the operator pick old or new values per field and exports or submits the final card.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		colorFlag, _ := cmd.Flags().GetString("color")
		if colorFlag == "" {
			colorFlag = cfg.Output.Color
		}
		mode, err := output.ParseColorMode(colorFlag)
		if err != nil {
			return err
		}
		printer = output.NewPrinterWithWriters(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ResolveColors(mode))

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().String("color", "", "color output: auto, always or never (default from output.color)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
