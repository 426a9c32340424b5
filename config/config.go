/* config.go
 * Contains the service configuration read from the environment. A .env file in the working directory is loaded first
 * when one exists
 * Authors: Zachary Bower
 */

package config

import (
	"fmt"
	"inhouse-bot/api/api"
	"inhouse-bot/api/external"
	"inhouse-bot/api/logic"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultHTTPAddr      = ":8080"
	DefaultMongoDB       = "inhouse"
	DefaultPublicBaseURL = "http://localhost:8080"
)

// Config holds every setting the service reads at startup
type Config struct {
	MongoURI string
	MongoDB  string

	HTTPAddr      string
	PublicBaseURL string
	JWTSecret     string

	DiscordToken    string
	DiscordAdminIDs []string

	DatHostURL      string
	DatHostUser     string
	DatHostPassword string
	GameServerID    string

	SteamAPIKey string

	MapPool              []string
	LeaderSelectionDelay time.Duration
	CommandTimeout       time.Duration
	LockTTL              time.Duration
	CancelCommand        string
}

// Load reads the configuration from the environment after loading .env. A missing .env file is not an error
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds the configuration from a lookup function with the same contract as os.LookupEnv
// Preconditions: Receives the lookup function
// Postconditions: Returns the configuration with defaults applied, or an error naming the first invalid setting
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key string, fallback string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	cfg := &Config{
		MongoURI:        get("MONGO_URI", ""),
		MongoDB:         get("MONGO_DB", DefaultMongoDB),
		HTTPAddr:        get("HTTP_ADDR", DefaultHTTPAddr),
		PublicBaseURL:   strings.TrimRight(get("PUBLIC_BASE_URL", DefaultPublicBaseURL), "/"),
		JWTSecret:       get("JWT_SECRET", ""),
		DiscordToken:    get("DISCORD_TOKEN", ""),
		DiscordAdminIDs: splitList(get("DISCORD_ADMIN_IDS", "")),
		DatHostURL:      get("DATHOST_URL", external.DefaultDatHostURL),
		DatHostUser:     get("DATHOST_USER", ""),
		DatHostPassword: get("DATHOST_PASSWORD", ""),
		GameServerID:    get("GAME_SERVER_ID", ""),
		SteamAPIKey:     get("STEAM_API_KEY", ""),
		MapPool:         splitList(get("MAP_POOL", strings.Join(logic.DefaultMapPool, ","))),
		CancelCommand:   api.DefaultCancelCommand,
	}

	// An explicitly empty cancel command disables it
	if v, ok := lookup("CANCEL_COMMAND"); ok {
		cfg.CancelCommand = strings.TrimSpace(v)
	}

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"LEADER_SELECTION_DELAY", logic.DefaultLeaderSelectionDelay, &cfg.LeaderSelectionDelay},
		{"COMMAND_TIMEOUT", api.DefaultCommandTimeout, &cfg.CommandTimeout},
		{"LOCK_TTL", api.DefaultLockTTL, &cfg.LockTTL},
	}
	for _, d := range durations {
		*d.dst = d.fallback
		raw := get(d.key, "")
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", d.key)
		}
		*d.dst = v
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set")
	}
	if len(cfg.MapPool) == 0 {
		return nil, fmt.Errorf("MAP_POOL must name at least one map")
	}
	if cfg.CommandTimeout == 0 {
		return nil, fmt.Errorf("invalid COMMAND_TIMEOUT: must be positive")
	}
	return cfg, nil
}

// Rules returns the draft rules for the configured map pool and delay
func (c *Config) Rules() logic.Rules {
	rules := logic.DefaultRules()
	rules.MapPool = append([]string{}, c.MapPool...)
	rules.LeaderSelectionDelay = c.LeaderSelectionDelay
	return rules
}

// APIConfig returns the game server settings for the api
func (c *Config) APIConfig() api.Config {
	return api.Config{
		ServerID:       c.GameServerID,
		PublicBaseURL:  c.PublicBaseURL,
		CommandTimeout: c.CommandTimeout,
		LockTTL:        c.LockTTL,
		CancelCommand:  c.CancelCommand,
	}
}

// HasDatHost reports whether game server commands can be sent
func (c *Config) HasDatHost() bool {
	return c.DatHostUser != "" && c.DatHostPassword != "" && c.GameServerID != ""
}

// Helper that splits a comma separated list, dropping blanks and duplicates
func splitList(raw string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}
