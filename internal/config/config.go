package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Default configuration values (production)
const (
	DefaultAddr     = ":5000"
	DefaultOrigins  = "*"
	DefaultLogLevel = "info"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
)

// Config holds application configuration for both the relay server and
// the peer-link client SDK.
type Config struct {
	// Addr is the listen address of the signaling server.
	Addr string

	// AllowedOrigins restricts websocket upgrades; "*" allows all.
	AllowedOrigins []string

	// Logging
	LogLevel    string
	LogFile     string
	Development bool

	// ICE servers for client-side peer links
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Options for loading config with CLI flag overrides
type Options struct {
	Addr           string
	AllowedOrigins string
	LogLevel       string
	LogFile        string
	EnvFile        string
	Development    bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables (optionally seeded from a .env file)
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	} else {
		// A missing default .env is fine; env vars still apply.
		_ = godotenv.Load()
	}

	addr := firstNonEmpty(opts.Addr, os.Getenv("ADDR"), DefaultAddr)
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	origins := firstNonEmpty(opts.AllowedOrigins, os.Getenv("ALLOWED_ORIGINS"), DefaultOrigins)

	return &Config{
		Addr:           addr,
		AllowedOrigins: splitCSV(origins),
		LogLevel:       firstNonEmpty(opts.LogLevel, os.Getenv("LOG_LEVEL"), DefaultLogLevel),
		LogFile:        firstNonEmpty(opts.LogFile, os.Getenv("LOG_FILE")),
		Development:    opts.Development || os.Getenv("MODE") == "development",
		STUNServer:     firstNonEmpty(os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer:     os.Getenv("TURN_SERVER"),
		TURNUser:       os.Getenv("TURN_USERNAME"),
		TURNPass:       os.Getenv("TURN_PASSWORD"),
	}, nil
}

// AllowsOrigin reports whether the given Origin header value may upgrade.
func (c *Config) AllowsOrigin(origin string) bool {
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// GetSTUNServers returns STUN server URLs as strings.
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password.
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
