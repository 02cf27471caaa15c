package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/itzamna-labs/chasqui/internal/config"
)

// Version is set at build time via -ldflags "-X github.com/itzamna-labs/chasqui/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "chasqui",
	Short: "Chasqui — business messaging assistant gateway",
	Long:  "Chasqui: automated assistant for business messaging. Listens on WhatsApp, Telegram and Discord, replies on the owner's behalf, and answers natural-language questions about the message history.",
	Run: func(cmd *cobra.Command, args []string) {
		runGateway()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.chasqui/config.json or $CHASQUI_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(onboardCmd())
	rootCmd.AddCommand(migrateCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chasqui %s\n", Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
