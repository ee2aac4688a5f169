package main

import (
	"bytes"
	"strings"
	"testing"

	"checkinbot/internal/config"
)

func TestRunSetup_Defaults(t *testing.T) {
	cfg := config.Defaults()
	// Accept every default.
	in := strings.Repeat("\n", 7)
	var out bytes.Buffer
	if err := runSetup(strings.NewReader(in), &out, cfg); err != nil {
		t.Fatalf("runSetup: %v\noutput:\n%s", err, out.String())
	}
	if cfg.Channel.Platform != "discord" || cfg.Discord.Token != "${DISCORD_TOKEN}" {
		t.Fatalf("unexpected platform settings: %+v %+v", cfg.Channel, cfg.Discord)
	}
	if cfg.Channel.ID != "${CHANNEL_ID}" {
		t.Fatalf("unexpected channel id %q", cfg.Channel.ID)
	}
	if cfg.Provider.Kind != "gemini" || cfg.Provider.APIKey != "${GEMINI_KEY}" {
		t.Fatalf("unexpected provider: %+v", cfg.Provider)
	}
	if cfg.Schedule.Hour != 9 || cfg.Schedule.Minute != 0 {
		t.Fatalf("unexpected time %02d:%02d", cfg.Schedule.Hour, cfg.Schedule.Minute)
	}
}

func TestRunSetup_SlackOpenAI(t *testing.T) {
	cfg := config.Defaults()
	answers := []string{
		"3",          // slack
		"xoxb-bot",   // bot token
		"xapp-app",   // app token
		"C0123",      // channel
		"2",          // openai
		"sk-test",    // api key
		"07:30",      // time
		"Asia/Tokyo", // timezone
	}
	var out bytes.Buffer
	if err := runSetup(strings.NewReader(strings.Join(answers, "\n")+"\n"), &out, cfg); err != nil {
		t.Fatalf("runSetup: %v", err)
	}
	if cfg.Channel.Platform != "slack" || cfg.Slack.BotToken != "xoxb-bot" || cfg.Slack.AppToken != "xapp-app" {
		t.Fatalf("unexpected slack settings: %+v", cfg.Slack)
	}
	if cfg.Provider.Kind != "openai" || cfg.Provider.Model != "gpt-4o-mini" || cfg.Provider.APIKey != "sk-test" {
		t.Fatalf("unexpected provider: %+v", cfg.Provider)
	}
	if cfg.Schedule.Hour != 7 || cfg.Schedule.Minute != 30 || cfg.Schedule.Timezone != "Asia/Tokyo" {
		t.Fatalf("unexpected schedule: %+v", cfg.Schedule)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("setup produced invalid config: %v", err)
	}
}

func TestRunSetup_BadTime(t *testing.T) {
	answers := []string{"1", "tok", "123", "1", "key", "noon"}
	err := runSetup(strings.NewReader(strings.Join(answers, "\n")+"\n"), &bytes.Buffer{}, config.Defaults())
	if err == nil || !strings.Contains(err.Error(), "HH:MM") {
		t.Fatalf("expected time format error, got %v", err)
	}
}

func TestRenderService(t *testing.T) {
	unit := renderService(systemdTemplate, map[string]string{"EXEC": "/usr/local/bin/checkinbot", "CONFIG": "/etc/checkinbot.yaml"})
	if !strings.Contains(unit, "ExecStart=/usr/local/bin/checkinbot run --config /etc/checkinbot.yaml") {
		t.Fatalf("unexpected unit:\n%s", unit)
	}
	if strings.Contains(unit, "{{") {
		t.Fatalf("unreplaced placeholder:\n%s", unit)
	}
}
