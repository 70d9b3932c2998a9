package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "AUGMEGO"

// Load reads configuration from a file and environment variables. A .env file in the
// working directory, when present, is loaded into the environment first.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()

	// 1. Set default values
	setDefaults(v)

	// 2. Set config file details
	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".") // look for config in the working directory

	// 3. Set up environment variable handling
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Read the configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return nil, err
		}
		logger.Warn("Config file not found. ignoring error and relying on defaults/env vars")
	}

	// 5. Unmarshal the configuration into our struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Info("Configuration loaded",
		slog.String("address", cfg.Server.Address),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("auth", cfg.Auth.Mode),
		slog.Bool("redis", cfg.Presence.Redis.Addr != ""),
	)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowedOrigins", []string{})
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.connectionLimit.maxPerUser", 5)
	v.SetDefault("server.connectionLimit.mode", "reject")

	v.SetDefault("auth.mode", "jwt")
	v.SetDefault("auth.jwtSecret", "default-secret-key-change-me")
	v.SetDefault("auth.cookieName", "augmego_session")
	v.SetDefault("auth.sessionKeys", []string{"default-session-key-change-me"})
	v.SetDefault("auth.sessionName", "augmego")

	v.SetDefault("transport.readTimeout", "60s")
	v.SetDefault("transport.readLimit", 64*1024)
	v.SetDefault("transport.sendBuffer", 256)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "augmego.db")
	v.SetDefault("storage.migrate", true)

	v.SetDefault("party.inviteTTL", "20s")
	v.SetDefault("party.inviteCooldown", "8s")
	v.SetDefault("party.sweepInterval", "5s")

	v.SetDefault("chat.globalHistory", 100)
	v.SetDefault("chat.partyHistory", 100)
	v.SetDefault("chat.maxLength", 500)

	v.SetDefault("presence.redis.addr", "")
	v.SetDefault("presence.redis.password", "")
	v.SetDefault("presence.redis.db", 0)
	v.SetDefault("presence.redis.ttl", "60s")
	v.SetDefault("presence.redis.nodeID", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	switch c.Server.ConnectionLimit.Mode {
	case "reject", "cycle":
	default:
		return fmt.Errorf("invalid server.connectionLimit.mode %q: must be reject or cycle", c.Server.ConnectionLimit.Mode)
	}
	switch c.Auth.Mode {
	case "jwt", "cookie":
	default:
		return fmt.Errorf("invalid auth.mode %q: must be jwt or cookie", c.Auth.Mode)
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("invalid storage.driver %q", c.Storage.Driver)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q: must be text or json", c.Log.Format)
	}
	if c.Party.InviteTTL <= 0 || c.Party.InviteCooldown < 0 || c.Party.SweepInterval <= 0 {
		return fmt.Errorf("party durations must be positive")
	}
	if c.Chat.GlobalHistory <= 0 || c.Chat.PartyHistory <= 0 || c.Chat.MaxLength <= 0 {
		return fmt.Errorf("chat limits must be positive")
	}
	return nil
}
