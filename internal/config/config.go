package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultLogLevel       = "info"
	DefaultLogFormat      = LogFormatText
	DefaultDBFileName     = "library.db"
	DefaultConfigFileName = ".meshvault.toml"

	DefaultImportMultiplier     = 2
	DefaultAllowGCode           = true
	DefaultAllowStep            = false
	DefaultThumbnailSize        = 512
	DefaultThumbnailBackground  = "#dfdfdf"
	DefaultThumbnailFallback    = true
	DefaultThumbnailPreferEmbed = false

	configDirEnvKey = "MESHVAULT_CONFIG_DIR"
	dataDirEnvKey   = "MESHVAULT_DATA_DIR"
	dbPathEnvKey    = "MESHVAULT_DB"

	defaultDataDirRelativePath = ".local/share/meshvault"
)

// Log handler formats accepted by log_format.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// DefaultThumbnailRotation is the x, y, z rotation in degrees applied before rendering.
var DefaultThumbnailRotation = []float64{35, 0, 25}

var hexColorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ImportConfig controls the ingestion coordinator.
type ImportConfig struct {
	Parallelism      int  `toml:"parallelism"`
	Multiplier       int  `toml:"multiplier"`
	AllowGCode       bool `toml:"allow_gcode"`
	AllowStep        bool `toml:"allow_step"`
	ShortContentKeys bool `toml:"short_content_keys"`
}

// ThumbnailConfig controls the thumbnail pool.
type ThumbnailConfig struct {
	Parallelism      int       `toml:"parallelism"`
	PreferEmbedded   bool      `toml:"prefer_embedded"`
	FallbackEmbedded bool      `toml:"fallback_embedded"`
	Renderer         string    `toml:"renderer"`
	Width            int       `toml:"width"`
	Height           int       `toml:"height"`
	Rotation         []float64 `toml:"rotation"`
	Background       string    `toml:"background"`
}

// Config defines runtime configuration for meshvault.
type Config struct {
	DataDir    string          `toml:"data_dir"`
	DBPath     string          `toml:"db_path"`
	LogLevel   string          `toml:"log_level"`
	LogFormat  string          `toml:"log_format"`
	Import     ImportConfig    `toml:"import"`
	Thumbnails ThumbnailConfig `toml:"thumbnails"`
	LoadedFrom string          `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Import: ImportConfig{
			Parallelism: runtime.NumCPU(),
			Multiplier:  DefaultImportMultiplier,
			AllowGCode:  DefaultAllowGCode,
			AllowStep:   DefaultAllowStep,
		},
		Thumbnails: ThumbnailConfig{
			PreferEmbedded:   DefaultThumbnailPreferEmbed,
			FallbackEmbedded: DefaultThumbnailFallback,
			Width:            DefaultThumbnailSize,
			Height:           DefaultThumbnailSize,
			Rotation:         append([]float64(nil), DefaultThumbnailRotation...),
			Background:       DefaultThumbnailBackground,
		},
	}
}

// BlobDir is where managed blob payloads live.
func (c *Config) BlobDir() string {
	return filepath.Join(c.DataDir, "blobs")
}

// ThumbnailDir is where rendered images live.
func (c *Config) ThumbnailDir() string {
	return filepath.Join(c.DataDir, "thumbnails")
}

// ImportLockPath is the lock file serializing imports across processes.
func (c *Config) ImportLockPath() string {
	return filepath.Join(c.DataDir, "import.lock")
}

// ImportWorkers is the size of the directory fan-out pool.
func (c *Config) ImportWorkers() int {
	return max(c.Import.Parallelism, 1) * max(c.Import.Multiplier, 1)
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

var allowedKeys = []string{
	"data_dir",
	"db_path",
	"log_level",
	"log_format",
	"import.parallelism",
	"import.multiplier",
	"import.allow_gcode",
	"import.allow_step",
	"import.short_content_keys",
	"thumbnails.parallelism",
	"thumbnails.prefer_embedded",
	"thumbnails.fallback_embedded",
	"thumbnails.renderer",
	"thumbnails.width",
	"thumbnails.height",
	"thumbnails.rotation",
	"thumbnails.background",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "data_dir":
		return c.DataDir, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	case "import.parallelism":
		return strconv.Itoa(c.Import.Parallelism), nil
	case "import.multiplier":
		return strconv.Itoa(c.Import.Multiplier), nil
	case "import.allow_gcode":
		return strconv.FormatBool(c.Import.AllowGCode), nil
	case "import.allow_step":
		return strconv.FormatBool(c.Import.AllowStep), nil
	case "import.short_content_keys":
		return strconv.FormatBool(c.Import.ShortContentKeys), nil
	case "thumbnails.parallelism":
		return strconv.Itoa(c.Thumbnails.Parallelism), nil
	case "thumbnails.prefer_embedded":
		return strconv.FormatBool(c.Thumbnails.PreferEmbedded), nil
	case "thumbnails.fallback_embedded":
		return strconv.FormatBool(c.Thumbnails.FallbackEmbedded), nil
	case "thumbnails.renderer":
		return c.Thumbnails.Renderer, nil
	case "thumbnails.width":
		return strconv.Itoa(c.Thumbnails.Width), nil
	case "thumbnails.height":
		return strconv.Itoa(c.Thumbnails.Height), nil
	case "thumbnails.rotation":
		parts := make([]string, 0, len(c.Thumbnails.Rotation))
		for _, v := range c.Thumbnails.Rotation {
			parts = append(parts, strconv.FormatFloat(v, 'f', -1, 64))
		}
		return strings.Join(parts, ","), nil
	case "thumbnails.background":
		return c.Thumbnails.Background, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigFileName), nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, DefaultConfigFileName), true
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads the config file and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	loaded, err := loadFileIfExists(path, &cfg)
	if err != nil {
		return nil, err
	}
	if loaded {
		cfg.LoadedFrom = path
	}

	if dataDir := strings.TrimSpace(os.Getenv(dataDirEnvKey)); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if dbPath := strings.TrimSpace(os.Getenv(dbPathEnvKey)); dbPath != "" {
		cfg.DBPath = dbPath
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.DataDir) == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}
		c.DataDir = filepath.Join(home, defaultDataDirRelativePath)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		c.DBPath = filepath.Join(c.DataDir, DefaultDBFileName)
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if !validLogFormat(c.LogFormat) {
		return fmt.Errorf("log_format must be %s or %s, got %q", LogFormatText, LogFormatJSON, c.LogFormat)
	}

	if c.Import.Parallelism <= 0 {
		c.Import.Parallelism = runtime.NumCPU()
	}
	if c.Import.Multiplier <= 0 {
		c.Import.Multiplier = DefaultImportMultiplier
	}
	if c.Thumbnails.Parallelism <= 0 {
		c.Thumbnails.Parallelism = c.Import.Parallelism
	}
	if c.Thumbnails.Width <= 0 {
		c.Thumbnails.Width = DefaultThumbnailSize
	}
	if c.Thumbnails.Height <= 0 {
		c.Thumbnails.Height = DefaultThumbnailSize
	}
	if len(c.Thumbnails.Rotation) != 3 {
		c.Thumbnails.Rotation = append([]float64(nil), DefaultThumbnailRotation...)
	}
	c.Thumbnails.Background = strings.TrimSpace(c.Thumbnails.Background)
	if c.Thumbnails.Background == "" {
		c.Thumbnails.Background = DefaultThumbnailBackground
	}
	if !hexColorRegex.MatchString(c.Thumbnails.Background) {
		return fmt.Errorf("thumbnails.background must be #rrggbb, got %q", c.Thumbnails.Background)
	}
	return nil
}

func validLogFormat(format string) bool {
	return format == LogFormatText || format == LogFormatJSON
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "import.parallelism", "import.multiplier", "thumbnails.parallelism", "thumbnails.width", "thumbnails.height":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return int64(parsed), nil
	case "import.allow_gcode", "import.allow_step", "import.short_content_keys",
		"thumbnails.prefer_embedded", "thumbnails.fallback_embedded":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "thumbnails.rotation":
		parts := splitCSV(value)
		if len(parts) != 3 {
			return nil, fmt.Errorf("%s must be three comma-separated numbers", key)
		}
		out := make([]float64, 0, 3)
		for _, part := range parts {
			parsed, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return nil, fmt.Errorf("%s must be three comma-separated numbers", key)
			}
			out = append(out, parsed)
		}
		return out, nil
	case "thumbnails.background":
		if !hexColorRegex.MatchString(value) {
			return nil, fmt.Errorf("%s must be #rrggbb", key)
		}
		return value, nil
	case "log_level":
		return strings.ToLower(value), nil
	case "log_format":
		value = strings.ToLower(value)
		if !validLogFormat(value) {
			return nil, fmt.Errorf("%s must be %s or %s", key, LogFormatText, LogFormatJSON)
		}
		return value, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
