package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alanmeadows/interviewpro/internal/config"
	"github.com/alanmeadows/interviewpro/internal/logging"
)

var (
	verbose    bool
	configPath string
	appConfig  *config.Config
	rootCmd    = &cobra.Command{
		Use:   "interviewpro",
		Short: "Rehearse job interviews against an AI interviewer",
		Long: `interviewpro reads a resume and a job description, asks a model to write a
chronological interview script grounded in the resume, then lets you answer
the interviewer's questions turn by turn in the terminal or the browser.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Additional JSONC config file merged over the user config")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logging.Setup(logging.Options{
			Verbose: verbose,
			Quiet:   cmd == interviewCmd,
		})
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		appConfig = cfg
		return nil
	}

	rootCmd.AddCommand(interviewCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(historyCmd)
}

func Execute() error {
	return rootCmd.Execute()
}
