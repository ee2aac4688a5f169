package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"checkinbot/internal/config"
	"checkinbot/internal/memory"
	"checkinbot/internal/prompts"
)

func init() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	l, closer := newLogger(config.GeneralConfig{LogLevel: "info", LogFile: path})
	l.Info("hello", "k", "v")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "msg=hello") {
		t.Fatalf("unexpected log content: %s", data)
	}
}

func TestBuildBank(t *testing.T) {
	bank, err := buildBank(config.PromptsConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if len(bank.Questions()) != len(prompts.DefaultQuestions) {
		t.Fatalf("expected built-in questions, got %v", bank.Questions())
	}

	bank, err = buildBank(config.PromptsConfig{Greeting: "Hi!", Questions: []string{"One?"}})
	if err != nil {
		t.Fatal(err)
	}
	if got := bank.DailyMessage(prompts.StrategyAll); got != "Hi!\n\n1. One?" {
		t.Fatalf("unexpected message %q", got)
	}

	if _, err := buildBank(config.PromptsConfig{File: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Fatal("expected error for missing prompt file")
	}
}

func TestBuildChannel(t *testing.T) {
	for _, platform := range []string{"discord", "telegram", "slack"} {
		cfg := config.Defaults()
		cfg.Channel.Platform = platform
		ch, err := buildChannel(cfg)
		if err != nil {
			t.Fatalf("%s: %v", platform, err)
		}
		if ch.Name() != platform {
			t.Fatalf("expected %s channel, got %s", platform, ch.Name())
		}
	}
	cfg := config.Defaults()
	cfg.Channel.Platform = "irc"
	if _, err := buildChannel(cfg); err == nil {
		t.Fatal("expected error for unknown platform")
	}
}

func TestBuildMemory(t *testing.T) {
	cfg := config.Defaults()
	cfg.Schedule.Timezone = "Europe/Berlin"
	ch, _ := buildChannel(cfg)

	mem, err := buildMemory(cfg, ch)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mem.(*memory.PerUser); !ok {
		t.Fatalf("expected per-user memory, got %T", mem)
	}

	cfg.Memory.Strategy = memory.StrategyWindow
	mem, err = buildMemory(cfg, ch)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mem.(*memory.Window); !ok {
		t.Fatalf("expected window memory, got %T", mem)
	}

	cfg.Schedule.Timezone = "Nowhere/Special"
	if _, err := buildMemory(cfg, ch); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestScheduleLabel(t *testing.T) {
	sc := config.ScheduleConfig{Hour: 7, Minute: 5, Timezone: "UTC"}
	if got := scheduleLabel(sc); got != "daily 07:05 (UTC)" {
		t.Fatalf("got %q", got)
	}
	sc.Cron = "30 8 * * 1-5"
	if got := scheduleLabel(sc); !strings.HasPrefix(got, `cron "30 8 * * 1-5"`) {
		t.Fatalf("got %q", got)
	}
}
