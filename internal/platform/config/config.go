package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "casbot/pkg/platform/strings"
)

// Backend names accepted by ROSTER_BACKEND and TOKEN_BACKEND.
const (
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
)

// Config is the full process configuration, built from the environment.
type Config struct {
	DiscordToken string
	PolicyFile   string
	Admins       []string

	Links    LinkConfig
	Callback CallbackConfig
	Roster   RosterConfig
	Tokens   TokenConfig
	Redis    RedisConfig
	Log      LogConfig
}

// LinkConfig describes the externally reachable portal used to build sign-in links.
type LinkConfig struct {
	Protocol string
	Host     string
	Port     string
	Subpath  string
}

// BaseURL renders protocol://host[:port]subpath. The port suffix is only
// added when PORT is set explicitly.
func (l LinkConfig) BaseURL() string {
	var b strings.Builder
	b.WriteString(l.Protocol)
	b.WriteString("://")
	b.WriteString(l.Host)
	if l.Port != "" {
		b.WriteString(":")
		b.WriteString(l.Port)
	}
	b.WriteString(l.Subpath)
	return b.String()
}

// CallbackConfig is the private listener the portal posts verified identities to.
type CallbackConfig struct {
	PrivateIP string
	Port      int
}

// Addr returns the host:port the callback server binds.
func (c CallbackConfig) Addr() string {
	return net.JoinHostPort(c.PrivateIP, strconv.Itoa(c.Port))
}

// RosterConfig selects and configures the roster store.
type RosterConfig struct {
	Backend       string
	MongoURI      string
	MongoDatabase string
	PostgresURL   string
}

// TokenConfig selects the verification token registry backend.
type TokenConfig struct {
	Backend string
}

// RedisConfig configures the shared Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// FromEnv builds a Config from environment variables so main stays lean.
// Call godotenv.Load beforehand to pick up a .env file.
func FromEnv() (Config, error) {
	callbackPort, err := intEnv("CALLBACK_PORT", 80)
	if err != nil {
		return Config{}, err
	}
	poolSize, err := intEnv("REDIS_POOL_SIZE", 10)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DiscordToken: os.Getenv("DISCORD_TOKEN"),
		PolicyFile:   envOr("SERVER_CONFIG", "server_config.ini"),
		Admins:       platformstrings.SplitList(os.Getenv("BOT_ADMINS")),
		Links: LinkConfig{
			Protocol: envOr("PROTOCOL", "https"),
			Host:     os.Getenv("HOST"),
			Port:     os.Getenv("PORT"),
			Subpath:  os.Getenv("SUBPATH"),
		},
		Callback: CallbackConfig{
			PrivateIP: os.Getenv("BOT_PRIVATE_IP"),
			Port:      callbackPort,
		},
		Roster: RosterConfig{
			Backend:       envOr("ROSTER_BACKEND", BackendMongo),
			MongoURI:      os.Getenv("MONGO_URI"),
			MongoDatabase: os.Getenv("MONGO_DATABASE"),
			PostgresURL:   os.Getenv("POSTGRES_URL"),
		},
		Tokens: TokenConfig{
			Backend: envOr("TOKEN_BACKEND", BackendMemory),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     poolSize,
			MinIdleConns: 1,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Log: LogConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "json"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.DiscordToken == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is required"))
	}
	if c.Links.Host == "" {
		errs = append(errs, errors.New("HOST is required to build sign-in links"))
	}
	if err := validatePrivateIP(c.Callback.PrivateIP); err != nil {
		errs = append(errs, err)
	}

	switch c.Roster.Backend {
	case BackendMongo:
		if c.Roster.MongoURI == "" || c.Roster.MongoDatabase == "" {
			errs = append(errs, errors.New("MONGO_URI and MONGO_DATABASE are required for the mongo roster"))
		}
	case BackendPostgres:
		if c.Roster.PostgresURL == "" {
			errs = append(errs, errors.New("POSTGRES_URL is required for the postgres roster"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown ROSTER_BACKEND %q", c.Roster.Backend))
	}

	switch c.Tokens.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis token backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TOKEN_BACKEND %q", c.Tokens.Backend))
	}
	return errors.Join(errs...)
}

// validatePrivateIP keeps the unauthenticated callback endpoint off public interfaces.
func validatePrivateIP(raw string) error {
	if raw == "" {
		return errors.New("BOT_PRIVATE_IP is required")
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return fmt.Errorf("BOT_PRIVATE_IP %q is not an IP address: %w", raw, err)
	}
	if !addr.IsPrivate() && !addr.IsLoopback() {
		return fmt.Errorf("BOT_PRIVATE_IP %s is not a private or loopback address", raw)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

