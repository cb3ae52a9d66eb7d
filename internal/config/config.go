// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"respack/internal/errors"

	"github.com/caarlos0/env/v11"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "respack.json"

type Config struct {
	Server struct {
		Host string `json:"host" env:"RESPACK_SERVER_HOST"`
		Port int    `json:"port" env:"RESPACK_SERVER_PORT"`
	} `json:"server"`

	// Watch configures the daemon, which packs Input into Output on change.
	Watch struct {
		Input    string   `json:"input" env:"RESPACK_WATCH_INPUT"`
		Output   string   `json:"output" env:"RESPACK_WATCH_OUTPUT"`
		Debounce Duration `json:"debounce" env:"RESPACK_WATCH_DEBOUNCE"`
	} `json:"watch"`

	ProjectRoot  string `json:"project_root" env:"RESPACK_PROJECT_ROOT"`
	DocumentsDir string `json:"documents_dir" env:"RESPACK_DOCUMENTS_DIR"`
	FrameworkDir string `json:"framework_dir" env:"RESPACK_FRAMEWORK_DIR"`
	StateDir     string `json:"state_dir" env:"RESPACK_STATE_DIR"` // badger directory for history and the digest memo

	MaxTextureSize  int    `json:"max_texture_size" env:"RESPACK_MAX_TEXTURE_SIZE"`
	Lightmaps       bool   `json:"lightmaps" env:"RESPACK_LIGHTMAPS"`
	ClearProcessDir bool   `json:"clear_process_dir" env:"RESPACK_CLEAR_PROCESS_DIR"`
	Guard           string `json:"guard" env:"RESPACK_GUARD"` // input, output
	HashMemo        bool   `json:"hash_memo" env:"RESPACK_HASH_MEMO"`
	HistoryKeep     int    `json:"history_keep" env:"RESPACK_HISTORY_KEEP"` // 0 keeps every run

	Environment string `json:"environment" env:"RESPACK_ENV"`     // dev, prod
	LogLevel    string `json:"log_level" env:"RESPACK_LOG_LEVEL"` // debug, info, warn, error
}

// Duration reads "500ms"-style strings from JSON and the environment.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func Default() *Config {
	cfg := &Config{
		StateDir:       ".respack",
		MaxTextureSize: 2048,
		Guard:          "input",
		HistoryKeep:    100,
		Environment:    "prod",
		LogLevel:       "info",
	}
	cfg.Server.Host = "localhost"
	cfg.Server.Port = 8090
	cfg.Watch.Debounce = Duration{500 * time.Millisecond}
	return cfg
}

// Load reads path over the defaults, then applies RESPACK_* overrides. A
// missing file is not an error; the defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, err
	default:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any RESPACK_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Guard != "input" && c.Guard != "output" {
		return errors.InvalidArgument("guard must be input or output", map[string]string{"guard": c.Guard})
	}
	if c.MaxTextureSize <= 0 {
		return errors.InvalidArgument("max_texture_size must be positive", map[string]int{"max_texture_size": c.MaxTextureSize})
	}
	if c.HistoryKeep < 0 {
		return errors.InvalidArgument("history_keep cannot be negative", map[string]int{"history_keep": c.HistoryKeep})
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.InvalidArgument("server.port out of range", map[string]int{"port": c.Server.Port})
	}
	return nil
}

// Addr is the listen address of the status server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
