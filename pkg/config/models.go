package config

import "time"

type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Transport TransportConfig
	Storage   StorageConfig
	Party     PartyConfig
	Chat      ChatConfig
	Presence  PresenceConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address         string
	AllowedOrigins  []string              `mapstructure:"allowedOrigins"`
	ShutdownTimeout time.Duration         `mapstructure:"shutdownTimeout"`
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	Mode        string   `mapstructure:"mode"` // "jwt" or "cookie"
	JWTSecret   string   `mapstructure:"jwtSecret"`
	CookieName  string   `mapstructure:"cookieName"`
	SessionKeys []string `mapstructure:"sessionKeys"`
	SessionName string   `mapstructure:"sessionName"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	ReadLimit   int64         `mapstructure:"readLimit"`
	SendBuffer  int           `mapstructure:"sendBuffer"`
}

type StorageConfig struct {
	Driver  string `mapstructure:"driver"` // "sqlite", "postgres" or "mysql"
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

type PartyConfig struct {
	InviteTTL      time.Duration `mapstructure:"inviteTTL"`
	InviteCooldown time.Duration `mapstructure:"inviteCooldown"`
	SweepInterval  time.Duration `mapstructure:"sweepInterval"`
}

type ChatConfig struct {
	GlobalHistory int `mapstructure:"globalHistory"`
	PartyHistory  int `mapstructure:"partyHistory"`
	MaxLength     int `mapstructure:"maxLength"`
}

type PresenceConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig enables the presence mirror when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	NodeID   string        `mapstructure:"nodeID"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}
