package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/itzamna-labs/chasqui/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard",
		Run: func(cmd *cobra.Command, args []string) {
			runOnboard(resolveConfigPath())
		},
	}
}

// runOnboard walks the user through a minimal working config and writes it to
// disk. Secrets are collected for a .env example only; they never land in the
// config file.
func runOnboard(cfgPath string) {
	cfg := config.Default()

	var (
		ownerName  string
		timezone   = cfg.Assistant.Timezone
		model      = cfg.AI.Model
		dbMode     = cfg.Database.Mode
		scope      = "individual"
		whatsappOn bool
		bridgeURL  string
		digestOn   bool
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Business owner name").
				Description("Used in assistant replies and prompts.").
				Value(&ownerName),
			huh.NewInput().
				Title("Timezone").
				Description("IANA name, e.g. America/Mexico_City.").
				Value(&timezone),
			huh.NewInput().
				Title("Model").
				Description("OpenAI-compatible model for the gate and replies.").
				Value(&model),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which messages should the assistant handle?").
				Options(
					huh.NewOption("Individual chats only", "individual"),
					huh.NewOption("Individual and group chats", "groups"),
					huh.NewOption("Everything (incl. reactions and lists)", "all"),
				).
				Value(&scope),
			huh.NewConfirm().
				Title("Connect a WhatsApp bridge?").
				Value(&whatsappOn),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("WhatsApp bridge URL").
				Description("ws://host:port of the bridge process.").
				Value(&bridgeURL),
		).WithHideFunc(func() bool { return !whatsappOn }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Storage backend").
				Options(
					huh.NewOption("SQLite (single file, zero setup)", "sqlite"),
					huh.NewOption("Postgres (CHASQUI_POSTGRES_DSN from env)", "postgres"),
				).
				Value(&dbMode),
			huh.NewConfirm().
				Title("Enable the daily priority digest?").
				Value(&digestOn),
		),
	)

	if err := form.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "setup cancelled:", err)
		os.Exit(1)
	}

	cfg.Assistant.OwnerName = ownerName
	cfg.Assistant.Timezone = timezone
	cfg.AI.Model = model
	cfg.Database.Mode = dbMode
	cfg.Digest.Enabled = digestOn

	switch scope {
	case "all":
		cfg.Preferences = config.PreferencesConfig{AllMessages: true}
	case "groups":
		cfg.Preferences = config.PreferencesConfig{IndividualMessages: true, GroupMessages: true}
	default:
		cfg.Preferences = config.PreferencesConfig{IndividualMessages: true}
	}

	if whatsappOn && bridgeURL != "" {
		cfg.Channels.WhatsApp.Enabled = true
		cfg.Channels.WhatsApp.BridgeURL = bridgeURL
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "could not write config:", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("Config written to", cfgPath)
	fmt.Println()
	fmt.Println("Secrets are read from the environment, never from the config file:")
	fmt.Println("  export CHASQUI_OPENAI_API_KEY=sk-...")
	fmt.Println("  export CHASQUI_GATEWAY_TOKEN=...        # protects the HTTP API")
	fmt.Println("  export CHASQUI_TELEGRAM_TOKEN=...       # enables Telegram")
	fmt.Println("  export CHASQUI_DISCORD_TOKEN=...        # enables Discord")
	if dbMode == "postgres" {
		fmt.Println("  export CHASQUI_POSTGRES_DSN=postgres://...")
	}
	fmt.Println()
	fmt.Println("Then start the gateway:  chasqui")
}
