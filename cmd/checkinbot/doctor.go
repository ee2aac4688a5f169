package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"checkinbot/internal/config"
	"checkinbot/internal/provider"
	"checkinbot/internal/schedule"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your checkinbot setup",
		Long: `Verifies that the configuration, timezone, prompts, provider and
log/metrics settings are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			fmt.Printf("checkinbot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var r doctorReport

			// 1. Config file (optional: env variables alone are enough)
			if _, err := os.Stat(cfgPath); err != nil {
				r.warn("Config file", fmt.Sprintf("not found at %s, using defaults and environment", cfgPath))
			} else {
				r.pass("Config file", cfgPath)
			}

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath, true)
			if err != nil {
				for _, line := range strings.Split(err.Error(), "\n") {
					r.fail("Config validation", line)
				}
				fmt.Printf("\nRun 'checkinbot init' or set DISCORD_TOKEN, GEMINI_KEY and CHANNEL_ID.\n")
				return r.finish()
			}
			r.pass("Config validation", "valid")

			// 3. Timezone and next fire time
			sched, err := schedule.Parse(cfg.Schedule.Hour, cfg.Schedule.Minute, cfg.Schedule.Timezone, cfg.Schedule.Cron)
			if err != nil {
				r.fail("Schedule", err.Error())
			} else if !cfg.Schedule.Enabled {
				r.warn("Schedule", "daily check-in disabled")
			} else {
				next := schedule.NewRunner(schedule.RunnerConfig{Schedule: sched, Logger: logger}).NextRun()
				r.pass("Schedule", fmt.Sprintf("%s, next at %s", scheduleLabel(cfg.Schedule), next.Format("2006-01-02 15:04 MST")))
			}

			// 4. Prompt bank
			if bank, err := buildBank(cfg.Prompts); err != nil {
				r.fail("Prompts", err.Error())
			} else {
				r.pass("Prompts", fmt.Sprintf("%d question(s)", len(bank.Questions())))
			}

			// 5. Provider can be constructed (no request is sent)
			if gen, err := provider.New(context.Background(), cfg.Provider, logger); err != nil {
				r.fail("Provider", err.Error())
			} else {
				model := cfg.Provider.Model
				if model == "" {
					model = "default model"
				}
				r.pass("Provider", fmt.Sprintf("%s (%s)", gen.Name(), model))
			}

			// 6. Log directory writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			// 7. Metrics listen address free
			if cfg.Metrics.Enabled {
				if err := checkListen(cfg.Metrics.Listen); err != nil {
					r.warn("Metrics", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Listen, err))
				} else {
					r.pass("Metrics", fmt.Sprintf("http://%s%s", cfg.Metrics.Listen, cfg.Metrics.Endpoint))
				}
			}

			return r.finish()
		},
	}
}

type doctorReport struct {
	passed, warned, failed int
}

func (r *doctorReport) pass(check, detail string) {
	r.passed++
	printPass(check, detail)
}

func (r *doctorReport) warn(check, detail string) {
	r.warned++
	printWarn(check, detail)
}

func (r *doctorReport) fail(check, detail string) {
	r.failed++
	printFail(check, detail)
}

func (r *doctorReport) finish() error {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		fmt.Printf("\nPlease fix the failed checks before running checkinbot.\n")
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	if r.warned > 0 {
		fmt.Printf("\ncheckinbot should work but consider fixing the warnings.\n")
	} else {
		fmt.Printf("\nAll checks passed! checkinbot is ready to run.\n")
	}
	return nil
}

func checkListen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

