package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"checkinbot/internal/config"

	"github.com/spf13/cobra"
)

// platformMeta describes a chat platform option for the setup wizard.
type platformMeta struct {
	Name     string
	Desc     string
	TokenEnv string
}

var knownPlatforms = []platformMeta{
	{Name: "discord", Desc: "Discord bot (message content intent required)", TokenEnv: "DISCORD_TOKEN"},
	{Name: "telegram", Desc: "Telegram bot (token from @BotFather)", TokenEnv: "TELEGRAM_TOKEN"},
	{Name: "slack", Desc: "Slack app in Socket Mode", TokenEnv: "SLACK_BOT_TOKEN"},
}

// providerMeta describes a generation backend option for the setup wizard.
type providerMeta struct {
	Name         string
	EnvVar       string
	DefaultModel string
}

var knownProviders = []providerMeta{
	{Name: "gemini", EnvVar: "GEMINI_KEY", DefaultModel: "gemini-2.5-flash"},
	{Name: "openai", EnvVar: "OPENAI_API_KEY", DefaultModel: "gpt-4o-mini"},
}

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup: platform → channel → provider → schedule → save config",
		Long:  "Guides you through the chat platform and token, the channel to serve, the AI provider and the daily check-in time. Writes config to the path used by --config or default.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			cfg, err := config.LoadRaw(cfgPath)
			if err != nil {
				cfg = config.Defaults()
			}
			if err := runSetup(os.Stdin, os.Stdout, cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "\nConfig saved to %s\n", cfgPath)
			fmt.Println("Next: run 'checkinbot doctor', then 'checkinbot run'.")
			return nil
		},
	}
}

// runSetup asks its questions on out, reads answers from in and fills cfg.
// An empty answer keeps the value shown in brackets.
func runSetup(in io.Reader, out io.Writer, cfg *config.Config) error {
	reader := bufio.NewReader(in)
	prompt := func(def string) (string, error) {
		if def != "" {
			fmt.Fprintf(out, " [%s]: ", def)
		} else {
			fmt.Fprint(out, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" && def != "" {
			return def, nil
		}
		return s, nil
	}
	choose := func(n int, def int) (int, error) {
		choice, err := prompt(strconv.Itoa(def))
		if err != nil {
			return 0, err
		}
		idx, err := strconv.Atoi(choice)
		if err != nil || idx < 1 || idx > n {
			return def, nil
		}
		return idx, nil
	}

	// Step 1: Platform
	fmt.Fprintln(out, "\n--- Step 1: Chat platform ---")
	defIdx := 1
	for i, p := range knownPlatforms {
		fmt.Fprintf(out, "  %d) %s: %s\n", i+1, p.Name, p.Desc)
		if p.Name == cfg.Channel.Platform {
			defIdx = i + 1
		}
	}
	fmt.Fprintf(out, "Choose platform (1-%d)", len(knownPlatforms))
	idx, err := choose(len(knownPlatforms), defIdx)
	if err != nil {
		return err
	}
	platform := knownPlatforms[idx-1]
	cfg.Channel.Platform = platform.Name

	fmt.Fprintf(out, "Bot token: paste token or env var")
	tok, err := prompt("${" + platform.TokenEnv + "}")
	if err != nil {
		return err
	}
	switch platform.Name {
	case "discord":
		cfg.Discord.Token = tok
	case "telegram":
		cfg.Telegram.Token = tok
	case "slack":
		cfg.Slack.BotToken = tok
		fmt.Fprintf(out, "App-level token (xapp-...)")
		appTok, err := prompt("${SLACK_APP_TOKEN}")
		if err != nil {
			return err
		}
		cfg.Slack.AppToken = appTok
	}

	// Step 2: Channel
	fmt.Fprintln(out, "\n--- Step 2: Channel ---")
	fmt.Fprint(out, "Channel or chat ID the bot serves")
	chID := cfg.Channel.ID
	if chID == "" {
		chID = "${CHANNEL_ID}"
	}
	if cfg.Channel.ID, err = prompt(chID); err != nil {
		return err
	}

	// Step 3: Provider
	fmt.Fprintln(out, "\n--- Step 3: AI provider ---")
	defIdx = 1
	for i, p := range knownProviders {
		fmt.Fprintf(out, "  %d) %s (set %s)\n", i+1, p.Name, p.EnvVar)
		if p.Name == cfg.Provider.Kind {
			defIdx = i + 1
		}
	}
	fmt.Fprintf(out, "Choose provider (1-%d)", len(knownProviders))
	if idx, err = choose(len(knownProviders), defIdx); err != nil {
		return err
	}
	prov := knownProviders[idx-1]
	if cfg.Provider.Kind != prov.Name {
		cfg.Provider.Model = prov.DefaultModel
	}
	cfg.Provider.Kind = prov.Name
	fmt.Fprintf(out, "API key: paste key or env var")
	if cfg.Provider.APIKey, err = prompt("${" + prov.EnvVar + "}"); err != nil {
		return err
	}

	// Step 4: Schedule
	fmt.Fprintln(out, "\n--- Step 4: Daily check-in ---")
	fmt.Fprint(out, "Time of day (HH:MM)")
	at, err := prompt(fmt.Sprintf("%02d:%02d", cfg.Schedule.Hour, cfg.Schedule.Minute))
	if err != nil {
		return err
	}
	var hour, minute int
	if _, err := fmt.Sscanf(at, "%d:%d", &hour, &minute); err != nil {
		return fmt.Errorf("invalid time %q, want HH:MM", at)
	}
	cfg.Schedule.Hour, cfg.Schedule.Minute = hour, minute
	fmt.Fprint(out, "Timezone (IANA name or Local)")
	if cfg.Schedule.Timezone, err = prompt(cfg.Schedule.Timezone); err != nil {
		return err
	}

	// Secrets may still be ${VAR} references here; they are checked when
	// the bot loads the file.
	if err := config.ValidateRaw(cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "  Using %s channel %s, %s provider, check-in %s\n",
		cfg.Channel.Platform, cfg.Channel.ID, cfg.Provider.Kind, scheduleLabel(cfg.Schedule))
	return nil
}
