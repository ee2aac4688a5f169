package config

// Defaults returns a config matching the original bot: Discord, Gemini,
// all questions at 09:00 local time, per-user memory.
func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			MaxConcurrentMessages: 5,
		},
		Channel: ChannelConfig{
			Platform: "discord",
		},
		Provider: ProviderConfig{
			Kind:           "gemini",
			Model:          "gemini-2.5-flash",
			TimeoutSeconds: 60,
		},
		Schedule: ScheduleConfig{
			Enabled:  true,
			Hour:     9,
			Minute:   0,
			Timezone: "Local",
			Strategy: "all",
		},
		Memory: MemoryConfig{
			Strategy:   "per_user",
			WindowSize: 10,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Listen:   "127.0.0.1:9464",
			Endpoint: "/metrics",
		},
	}
}
