// Package config loads todosync configuration from layered JSONC files,
// CLI overrides and the environment.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// Errors returned while loading configuration.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config")
	ErrEndpointRequired   = errors.New("endpoint is required")
	ErrInvalidEnv         = errors.New("env must be production or development")
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Environment variables that override file values.
const (
	EnvVarEndpoint = "TODOSYNC_ENDPOINT"
	EnvVarAPIKey   = "TODOSYNC_API_KEY"
	EnvVarEnv      = "TODOSYNC_ENV"
)

// FileName is the project config file name.
const FileName = ".todosync.json"

// Duration is a time.Duration stored as a string like "60s".
type Duration time.Duration

// MarshalJSON implements [json.Marshaler].
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements [json.Unmarshaler].
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string

	err := json.Unmarshal(data, &s)
	if err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(parsed)

	return nil
}

// Config holds all configuration options.
type Config struct {
	// GraphQL endpoint of the remote service.
	Endpoint string `json:"endpoint"`

	// Static key sent as x-api-key.
	APIKey string `json:"api_key,omitempty"`

	// Directory of the local database, relative to the working directory.
	DBDir string `json:"db_dir"`

	DBName string `json:"db_name"`

	// production or development. Development validates every local write.
	Env string `json:"env"`

	// HTTP timeout of remote calls.
	Timeout Duration `json:"timeout"`

	// Resolved values (not serialized)
	EffectiveCwd string  `json:"-"`
	DBDirAbs     string  `json:"-"`
	Sources      Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded
	Project string // Path to project or explicit config if loaded
	Env     []string
}

// Production reports whether Env is production.
func (c Config) Production() bool {
	return c.Env == EnvProduction
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		DBDir:   ".todosync",
		DBName:  "mydb2",
		Env:     EnvDevelopment,
		Timeout: Duration(60 * time.Second),
	}
}

// GlobalPath returns $XDG_CONFIG_HOME/todosync/config.json, falling back to
// ~/.config/todosync/config.json. Empty if neither variable is set.
func GlobalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "todosync", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "todosync", "config.json")
	}

	return ""
}

// LoadInput holds the inputs of [Load].
type LoadInput struct {
	WorkDir    string            // if empty, os.Getwd() is used
	ConfigPath string            // --config value; the file must exist
	Overrides  Config            // non-zero fields win over files
	Env        map[string]string // process environment
}

// Load merges, lowest precedence first: defaults, the global config, the
// project config (or the explicit --config file), CLI overrides, and the
// TODOSYNC_* environment variables.
//
// The endpoint is not required here; commands that talk to the service
// check it with [Config.RequireEndpoint].
func Load(in LoadInput) (Config, error) {
	workDir := in.WorkDir
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	if globalPath := GlobalPath(in.Env); globalPath != "" {
		globalCfg, loaded, err := loadFile(globalPath, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = merge(cfg, globalCfg)
			cfg.Sources.Global = globalPath
		}
	}

	projectPath := filepath.Join(workDir, FileName)
	mustExist := false

	if in.ConfigPath != "" {
		projectPath = in.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true
	}

	projectCfg, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = merge(cfg, projectCfg)
		cfg.Sources.Project = projectPath
	}

	cfg = merge(cfg, in.Overrides)

	for _, ev := range []struct {
		name string
		dst  *string
	}{
		{EnvVarEndpoint, &cfg.Endpoint},
		{EnvVarAPIKey, &cfg.APIKey},
		{EnvVarEnv, &cfg.Env},
	} {
		if v, ok := in.Env[ev.name]; ok && v != "" {
			*ev.dst = v
			cfg.Sources.Env = append(cfg.Sources.Env, ev.name)
		}
	}

	err = validate(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	cfg.DBDirAbs = cfg.DBDir
	if !filepath.IsAbs(cfg.DBDirAbs) {
		cfg.DBDirAbs = filepath.Join(workDir, cfg.DBDirAbs)
	}

	return cfg, nil
}

// RequireEndpoint fails when no endpoint is configured.
func (c Config) RequireEndpoint() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("%w: set it in %s, with --endpoint, or via %s", ErrEndpointRequired, FileName, EnvVarEndpoint)
	}

	return nil
}

func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

// Parse decodes JSONC (JSON with comments and trailing commas). Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()

	var cfg Config

	err = dec.Decode(&cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.Endpoint != "" {
		base.Endpoint = overlay.Endpoint
	}

	if overlay.APIKey != "" {
		base.APIKey = overlay.APIKey
	}

	if overlay.DBDir != "" {
		base.DBDir = overlay.DBDir
	}

	if overlay.DBName != "" {
		base.DBName = overlay.DBName
	}

	if overlay.Env != "" {
		base.Env = overlay.Env
	}

	if overlay.Timeout != 0 {
		base.Timeout = overlay.Timeout
	}

	return base
}

func validate(cfg Config) error {
	if cfg.Env != EnvDevelopment && cfg.Env != EnvProduction {
		return fmt.Errorf("%w, got %q", ErrInvalidEnv, cfg.Env)
	}

	if cfg.DBName == "" || filepath.Base(cfg.DBName) != cfg.DBName {
		return fmt.Errorf("%w: db_name %q", ErrConfigInvalid, cfg.DBName)
	}

	if cfg.Timeout < 0 {
		return fmt.Errorf("%w: timeout is negative", ErrConfigInvalid)
	}

	return nil
}

// Format renders cfg as indented JSON without the API key.
func Format(cfg Config) (string, error) {
	redacted := cfg
	if redacted.APIKey != "" {
		redacted.APIKey = "<redacted>"
	}

	data, err := encode(redacted)
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}

	return string(data), nil
}

// encode is indented JSON without HTML escaping and without the trailing
// newline.
func encode(cfg Config) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	err := enc.Encode(cfg)
	if err != nil {
		return nil, err
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Save writes cfg to path atomically as a JSONC file with a header comment.
func Save(path string, cfg Config) error {
	data, err := encode(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	ast, err := hujson.Parse(data)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	ast.Format()

	var buf bytes.Buffer

	buf.WriteString("// todosync project configuration\n")
	buf.Write(ast.Pack())

	err = os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	err = atomic.WriteFile(path, &buf)
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	return nil
}
