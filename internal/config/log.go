package config

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Dev   bool   // LOG_DEV: console encoder with colors
	Level string // LOG_LEVEL: debug, info, warn, error
}

func LoadLogConfig() LogConfig {
	return LogConfig{
		Dev:   envBool("LOG_DEV", false),
		Level: getenv("LOG_LEVEL", "info"),
	}
}
