package config

import "time"

// Config holds runtime settings for the authkit CLI.
//
// Fields:
//   - ServerBaseURL: base URL of the backend auth API, including the path
//     prefix (e.g. "http://localhost:8080/api").
//   - RequestTimeout: per-request deadline applied by the HTTP gateway.
//   - DatabaseDSN: path of the local SQLite file holding the session record.
//
// Units: RequestTimeout is a time.Duration (e.g., 10*time.Second).
type Config struct {
	ServerBaseURL  string
	DatabaseDSN    string
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://localhost:8080/api"
	c.RequestTimeout = 10 * time.Second
	c.DatabaseDSN = "auth.db"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
