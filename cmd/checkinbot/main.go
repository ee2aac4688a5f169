package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	_ "time/tzdata" // timezones on hosts without a zoneinfo database

	"checkinbot/internal/config"
	"checkinbot/internal/prompts"
	"checkinbot/internal/schedule"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("cannot read .env", "err", err)
	}

	root := &cobra.Command{
		Use:     "checkinbot",
		Short:   "checkinbot: daily check-in chat bot",
		Long:    "checkinbot posts a daily check-in to one chat channel and answers replies there with an AI model.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.checkinbot/config.json)")

	root.AddCommand(runCmd())
	root.AddCommand(initCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(promptsCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())
	root.AddCommand(setupCmd())
	root.AddCommand(serviceCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// newLogger builds the process logger. With a log file configured, output
// goes to stderr and to a size-rotated file.
func newLogger(gc config.GeneralConfig) (*slog.Logger, io.Closer) {
	var out io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)
	if gc.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   gc.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, rotator)
		closer = rotator
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: parseLevel(gc.LogLevel)})), closer
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildBank returns the prompt bank from the prompt file, the inline
// questions, or the built-in list, in that order.
func buildBank(pc config.PromptsConfig) (*prompts.Bank, error) {
	if pc.File != "" {
		return prompts.LoadFile(pc.File)
	}
	questions := pc.Questions
	if len(questions) == 0 {
		questions = prompts.DefaultQuestions
	}
	return prompts.New(pc.Greeting, questions)
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			cfg.Discord.Token = "${DISCORD_TOKEN}"
			cfg.Provider.APIKey = "${GEMINI_KEY}"
			cfg.Channel.ID = "${CHANNEL_ID}"
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			fmt.Printf("Config written to %s\nSet DISCORD_TOKEN, GEMINI_KEY and CHANNEL_ID (or edit the file), then run 'checkinbot run'.\n", cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration summary and the next check-in time",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath, true)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sched, err := schedule.Parse(cfg.Schedule.Hour, cfg.Schedule.Minute, cfg.Schedule.Timezone, cfg.Schedule.Cron)
			if err != nil {
				return err
			}
			runner := schedule.NewRunner(schedule.RunnerConfig{Schedule: sched, Logger: logger})

			fmt.Printf("checkinbot v%s\n", version)
			fmt.Printf("  config:    %s\n", cfgPath)
			fmt.Printf("  channel:   %s %s\n", cfg.Channel.Platform, cfg.Channel.ID)
			fmt.Printf("  provider:  %s (model %s, flatten %t)\n", cfg.Provider.Kind, cfg.Provider.Model, cfg.Provider.Flatten)
			fmt.Printf("  memory:    %s\n", cfg.Memory.Strategy)
			fmt.Printf("  schedule:  %s, strategy %s, enabled %t\n", scheduleLabel(cfg.Schedule), cfg.Schedule.Strategy, cfg.Schedule.Enabled)
			if cfg.Schedule.Enabled {
				fmt.Printf("  next fire: %s\n", runner.NextRun().Format("Mon 2006-01-02 15:04 MST"))
			}
			if cfg.Metrics.Enabled {
				fmt.Printf("  metrics:   http://%s%s\n", cfg.Metrics.Listen, cfg.Metrics.Endpoint)
			}
			return nil
		},
	}
}

func scheduleLabel(sc config.ScheduleConfig) string {
	if sc.Cron != "" {
		return fmt.Sprintf("cron %q (%s)", sc.Cron, sc.Timezone)
	}
	return fmt.Sprintf("daily %02d:%02d (%s)", sc.Hour, sc.Minute, sc.Timezone)
}

func promptsCmd() *cobra.Command {
	var strategy string
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Preview the daily check-in message",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath(), true)
			if err != nil {
				// Previewing needs only the prompts section.
				logger.Debug("config invalid, previewing with defaults", "err", err)
				cfg = config.Defaults()
			}
			bank, err := buildBank(cfg.Prompts)
			if err != nil {
				return err
			}
			if strategy == "" {
				strategy = cfg.Schedule.Strategy
			}
			fmt.Println(bank.DailyMessage(prompts.Strategy(strategy)))
			return nil
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", "", "all | random (default: schedule.strategy)")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. schedule.hour)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath(), true)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. schedule.hour 8)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			// Edit works on the raw file so ${VAR} references are not written
			// back as literal secrets, and refuses values that would not load.
			if err := config.Edit(cfgPath, args[0], args[1]); err != nil {
				return fmt.Errorf("set %s: %w", args[0], err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	var flat bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all config values (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath(), true)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = config.Sanitize(cfg)
			if flat {
				values := config.ListPaths(cfg)
				for _, p := range config.SortedPaths(cfg) {
					data, _ := json.Marshal(values[p])
					fmt.Printf("%s = %s\n", p, data)
				}
				return nil
			}
			data, _ := json.MarshalIndent(cfg, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
	listCmd.Flags().BoolVar(&flat, "paths", false, "print one settable path per line")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
