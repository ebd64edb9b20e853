// Package daemonconfig resolves daemon-internal settings (bind address,
// bearer token, home directory, tunables) from flags and environment
// variables. User-facing YAML/JSON configuration files are explicitly out
// of scope for this daemon — see SPEC_FULL.md §1 — so this package never
// reads one; it only resolves the handful of settings the daemon process
// itself needs to start.
package daemonconfig

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config is the resolved set of daemon-internal settings.
type Config struct {
	Host               string
	Port               int
	Token              string // bearer token; empty disables auth
	Home               string // defaults to <user-home>/.agent-worker
	DefaultIdleTimeout  int64  // ms; 0 disables
	HealthThreshold    int    // Health Tracker T; 0 uses health.DefaultThreshold
	RetryMaxRetries    int
	PostgresDSN        string // optional; empty keeps the in-memory state store
	RunRPM             int    // requests/min allowed on POST /run; 0 disables the limiter
	ServeRPM           int    // requests/min allowed on POST /serve; 0 disables the limiter
}

const (
	defaultHost        = "127.0.0.1"
	defaultPort        = 8787
	defaultIdleTimeout = int64(30 * 60 * 1000) // 30 minutes, per spec 4.H
	defaultRunRPM      = 60
	defaultServeRPM    = 120
)

// Resolve builds a Config following flag → environment → default
// precedence, matching the teacher's resolveConfigPath/resolveDSN
// convention: explicit overrides win, secrets are environment-only and
// never logged.
func Resolve(flagHost string, flagPort int, flagHome string) (Config, error) {
	cfg := Config{
		Host:               defaultHost,
		Port:               defaultPort,
		DefaultIdleTimeout: defaultIdleTimeout,
		RunRPM:             defaultRunRPM,
		ServeRPM:           defaultServeRPM,
	}

	if flagHost != "" {
		cfg.Host = flagHost
	} else if v := os.Getenv("AGENTWORKER_HOST"); v != "" {
		cfg.Host = v
	}

	if flagPort != 0 {
		cfg.Port = flagPort
	} else if v := os.Getenv("AGENTWORKER_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, err
		}
		cfg.Port = p
	}

	if flagHome != "" {
		cfg.Home = flagHome
	} else if v := os.Getenv("AGENTWORKER_HOME"); v != "" {
		cfg.Home = v
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, err
		}
		cfg.Home = filepath.Join(home, ".agent-worker")
	}

	// Token is a secret: environment only, never accepted as a flag value
	// that could end up in shell history or a process listing.
	cfg.Token = os.Getenv("AGENTWORKER_TOKEN")
	cfg.PostgresDSN = os.Getenv("AGENTWORKER_POSTGRES_DSN")

	if v := os.Getenv("AGENTWORKER_IDLE_TIMEOUT_MS"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, err
		}
		cfg.DefaultIdleTimeout = ms
	}

	if v := os.Getenv("AGENTWORKER_HEALTH_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, err
		}
		cfg.HealthThreshold = n
	}

	if v := os.Getenv("AGENTWORKER_RETRY_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, err
		}
		cfg.RetryMaxRetries = n
	}

	if v := os.Getenv("AGENTWORKER_RUN_RPM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, err
		}
		cfg.RunRPM = n
	}

	if v := os.Getenv("AGENTWORKER_SERVE_RPM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, err
		}
		cfg.ServeRPM = n
	}

	return cfg, nil
}
