// Package config loads the cutm configuration document (JSON or TOML),
// applies .env and environment overrides, and validates it before any work
// starts.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cutmassively/cutm/internal/timecode"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cast"
)

const (
	// Default values
	DefaultFileName     = "config.json"
	DefaultLogLevel     = "info"
	DefaultTemporaryDir = "tmp"
	DefaultFFmpeg       = "ffmpeg"
	DefaultCutTimeout   = 600 // seconds
	DefaultHeadRow      = 1
	DefaultNHeadRows    = 1
	DefaultLogFile      = "cut-massively.log"

	// LedgerDisabled as ledger_path turns the run ledger off.
	LedgerDisabled = "-"

	// Database filename
	DBFilename = "cutm.db"

	// Environment variable names
	EnvLogLevel     = "CUTM_LOG_LEVEL"
	EnvDoUpload     = "CUTM_DO_UPLOAD"
	EnvFFmpeg       = "CUTM_FFMPEG"
	EnvTemporaryDir = "CUTM_TEMPORARY_DIR"
	EnvAuthToken    = "CUTM_AUTH_TOKEN"
	EnvStatusAddr   = "CUTM_STATUS_ADDR"
	EnvCutTimeout   = "CUTM_CUT_TIMEOUT"
)

var ErrMissingKey = errors.New("missing configuration key")

// Correction holds the integer-second offsets applied to every cut.
type Correction struct {
	StartTime int `json:"start_time" toml:"start_time"`
	EndTime   int `json:"end_time" toml:"end_time"`
}

// Config is the configuration document.
type Config struct {
	VideoURL     string              `json:"video_url" toml:"video_url"`
	WorksheetURL string              `json:"worksheet_url" toml:"worksheet_url"`
	OutputDirURL string              `json:"output_dir_url" toml:"output_dir_url"`
	AuthToken    string              `json:"auth_token" toml:"auth_token"`
	HeadRow      int                 `json:"head_row" toml:"head_row"`
	NHeadRows    int                 `json:"n_head_rows" toml:"n_head_rows"`
	Columns      timecode.TabColumns `json:"columns" toml:"columns"`
	Correct      Correction          `json:"correct" toml:"correct"`
	FFmpeg       string              `json:"ffmpeg" toml:"ffmpeg"`
	TemporaryDir string              `json:"temporary_dir" toml:"temporary_dir"`
	DoUpload     bool                `json:"do_upload" toml:"do_upload"`
	LogLevel     string              `json:"log_level" toml:"log_level"`

	CutTimeoutSeconds int    `json:"cut_timeout" toml:"cut_timeout"`
	StatusAddr        string `json:"status_addr" toml:"status_addr"`
	LogFile           string `json:"log_file" toml:"log_file"`
	Ledger            string `json:"ledger_path" toml:"ledger_path"`

	path string
}

// Default returns a Config holding every default; Load decodes on top of it.
func Default() *Config {
	return &Config{
		HeadRow:           DefaultHeadRow,
		NHeadRows:         DefaultNHeadRows,
		FFmpeg:            DefaultFFmpeg,
		TemporaryDir:      DefaultTemporaryDir,
		DoUpload:          true,
		LogLevel:          DefaultLogLevel,
		CutTimeoutSeconds: DefaultCutTimeout,
	}
}

// DefaultPath is config.json beside the executable.
func DefaultPath() string {
	return filepath.Join(ApplicationDir(), DefaultFileName)
}

// Load reads the document at path, merges a sibling .env file and CUTM_*
// environment variables, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	cfg.path = path
	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return nil
}

// loadDotEnv loads KEY=VALUE pairs without overriding variables already
// set in the environment. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvFFmpeg); v != "" {
		c.FFmpeg = v
	}
	if v := os.Getenv(EnvTemporaryDir); v != "" {
		c.TemporaryDir = v
	}
	if v := os.Getenv(EnvAuthToken); v != "" {
		c.AuthToken = v
	}
	if v := os.Getenv(EnvStatusAddr); v != "" {
		c.StatusAddr = v
	}
	if v := os.Getenv(EnvDoUpload); v != "" {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDoUpload, err)
		}
		c.DoUpload = b
	}
	if v := os.Getenv(EnvCutTimeout); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCutTimeout, err)
		}
		c.CutTimeoutSeconds = n
	}
	return nil
}

// Validate reports the first missing or out-of-range setting.
func (c *Config) Validate() error {
	required := []struct {
		key, value string
	}{
		{"video_url", c.VideoURL},
		{"worksheet_url", c.WorksheetURL},
		{"output_dir_url", c.OutputDirURL},
		{"auth_token", c.AuthToken},
		{"columns.slice", c.Columns.Selector},
		{"columns.start", c.Columns.Start},
		{"columns.end", c.Columns.End},
		{"columns.name", c.Columns.Name},
		{"temporary_dir", c.TemporaryDir},
		{"ffmpeg", c.FFmpeg},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s", ErrMissingKey, r.key)
		}
	}

	if c.HeadRow < 1 {
		return fmt.Errorf("invalid head_row %d: must be >= 1", c.HeadRow)
	}
	if c.NHeadRows < 0 {
		return fmt.Errorf("invalid n_head_rows %d: must be >= 0", c.NHeadRows)
	}
	if c.CutTimeoutSeconds < 0 {
		return fmt.Errorf("invalid cut_timeout %d: must be >= 0", c.CutTimeoutSeconds)
	}
	return nil
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// FragmentsDir is the fragment cache under the temporary dir.
func (c *Config) FragmentsDir() string {
	return filepath.Join(c.TemporaryDir, "fragments")
}

// CutTimeout returns the per-cut limit; zero means none.
func (c *Config) CutTimeout() time.Duration {
	return time.Duration(c.CutTimeoutSeconds) * time.Second
}

// LedgerPath returns the SQLite ledger path, or "" when disabled.
func (c *Config) LedgerPath() string {
	switch c.Ledger {
	case LedgerDisabled:
		return ""
	case "":
		return filepath.Join(c.TemporaryDir, DBFilename)
	default:
		return c.Ledger
	}
}

// LogPath returns the log file path.
func (c *Config) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return DefaultLogFile
}

// ApplicationDir is the directory of the running executable.
func ApplicationDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// CheckedPath returns p when it exists, else p relative to the application
// directory when that exists.
func CheckedPath(p string) (string, error) {
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}
	if !filepath.IsAbs(p) {
		q := filepath.Join(ApplicationDir(), p)
		if _, err := os.Stat(q); err == nil {
			return q, nil
		}
	}
	return "", fmt.Errorf("path doesn't exist: %s", p)
}

// Version information (set at build time via ldflags)
var (
	Version   = "1.0.0-dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
