package config

// LogConfig configures the zap logger.
type LogConfig struct {
    Level             string // debug, info, warn, error
    Encoding          string // json or console
    Development       bool
    DisableCaller     bool
    DisableStacktrace bool
    Sampling          bool
}

// LoadLogConfig reads the LOG_* variables.
func LoadLogConfig() LogConfig {
    return LogConfig{
        Level:             envStr("LOG_LEVEL", "info"),
        Encoding:          envStr("LOG_ENCODING", "json"),
        Development:       envBool("LOG_DEVELOPMENT", false),
        DisableCaller:     envBool("LOG_DISABLE_CALLER", false),
        DisableStacktrace: envBool("LOG_DISABLE_STACKTRACE", true),
        Sampling:          envBool("LOG_SAMPLING", false),
    }
}
