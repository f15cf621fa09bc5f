package main

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Zereker/framechat/internal/config"
)

// envPrefix namespaces environment overrides, e.g. FRAMECHAT_MAX_BODY.
const envPrefix = "framechat"

// setupFlags declares the client flags and binds them, together with the
// matching environment variables, into v.
func setupFlags(cmd *cobra.Command, v *viper.Viper) {
	d := config.Default()
	f := cmd.Flags()

	f.String("config", "", "path to a TOML config file")
	f.Int("max-body", d.MaxBodyLength, "largest message body sent or accepted, in bytes")
	f.Int("buffer-size", d.BufferSize, "messages the input loop may hand over without waiting")
	f.Int("max-queue", d.MaxQueueLength, "bound on unsent messages, 0 for unbounded")
	f.Duration("read-timeout", d.ReadTimeout, "close the connection if a frame takes longer to arrive, 0 disables")
	f.Duration("write-timeout", d.WriteTimeout, "close the connection if a frame takes longer to send, 0 disables")
	f.Duration("dial-timeout", d.DialTimeout, "time allowed to resolve and connect")
	f.String("log-level", d.LogLevel, "debug, info, warn or error")
	f.String("metrics-addr", d.MetricsAddr, "serve Prometheus metrics on this address")
	f.String("history", d.HistoryFile, "readline history file")

	_ = v.BindPFlags(f)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// loadDotEnv reads .env.local and .env into the environment without
// replacing variables that are already set.
func loadDotEnv() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")
}

// loadConfig resolves the configuration: flags win over the environment,
// which wins over the config file, which wins over the defaults.
func loadConfig(v *viper.Viper) (config.Config, error) {
	cfg := config.Default()

	if path := v.GetString("config"); path != "" {
		if err := config.LoadFile(path, &cfg); err != nil {
			return config.Config{}, err
		}
	}

	if v.IsSet("max-body") {
		cfg.MaxBodyLength = v.GetInt("max-body")
	}
	if v.IsSet("buffer-size") {
		cfg.BufferSize = v.GetInt("buffer-size")
	}
	if v.IsSet("max-queue") {
		cfg.MaxQueueLength = v.GetInt("max-queue")
	}
	if v.IsSet("read-timeout") {
		cfg.ReadTimeout = v.GetDuration("read-timeout")
	}
	if v.IsSet("write-timeout") {
		cfg.WriteTimeout = v.GetDuration("write-timeout")
	}
	if v.IsSet("dial-timeout") {
		cfg.DialTimeout = v.GetDuration("dial-timeout")
	}
	if v.IsSet("log-level") {
		cfg.LogLevel = v.GetString("log-level")
	}
	if v.IsSet("metrics-addr") {
		cfg.MetricsAddr = v.GetString("metrics-addr")
	}
	if v.IsSet("history") {
		cfg.HistoryFile = v.GetString("history")
	}

	return cfg, cfg.Validate()
}
