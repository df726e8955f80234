package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL      = "http://127.0.0.1:8787"
	DefaultDBFileName  = ".moodboard.db"
	DefaultLogLevel    = "info"
	DefaultBlobBackend = "local"

	DefaultMaxImageBytes      int64 = 10 * 1024 * 1024
	DefaultMaxFileBytes       int64 = 50 * 1024 * 1024
	DefaultMultipartMaxMemory int64 = 8 * 1024 * 1024
	DefaultImageGCBatchSize         = 500
	DefaultRedisTTL                 = 10 * time.Minute

	ConfigFileName = ".moodboard.toml"
	EnvFileName    = ".env"
	EnvPrefix      = "MOODBOARD_"

	configDirEnvKey          = "MOODBOARD_CONFIG_DIR"
	trustProjectConfigEnvKey = "MOODBOARD_TRUST_PROJECT_CONFIG"
)

// BlobConfig selects where uploaded bytes are stored.
type BlobConfig struct {
	Backend string `toml:"backend"`
	Root    string `toml:"root"`
}

// S3Config configures the S3-compatible blob backend.
type S3Config struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	PathStyle bool   `toml:"path_style"`
}

// RedisConfig enables the image existence cache when URL is set.
type RedisConfig struct {
	URL string        `toml:"url"`
	TTL time.Duration `toml:"ttl"`
}

// UploadConfig bounds multipart uploads.
type UploadConfig struct {
	MaxImageBytes      int64 `toml:"max_image_bytes"`
	MaxFileBytes       int64 `toml:"max_file_bytes"`
	MultipartMaxMemory int64 `toml:"multipart_max_memory"`
}

// ImageConfig tunes image cleanup and blob GC.
type ImageConfig struct {
	CleanupGracePeriod time.Duration `toml:"cleanup_grace_period"`
	GCBatchSize        int           `toml:"gc_batch_size"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Config defines runtime configuration for moodboard.
type Config struct {
	APIURL                   string       `toml:"api_url"`
	DBPath                   string       `toml:"db_path"`
	LogLevel                 string       `toml:"log_level"`
	PublicURL                string       `toml:"public_url"`
	Blobs                    BlobConfig   `toml:"blobs"`
	S3                       S3Config     `toml:"s3"`
	Redis                    RedisConfig  `toml:"redis"`
	Uploads                  UploadConfig `toml:"uploads"`
	Images                   ImageConfig  `toml:"images"`
	CORS                     CORSConfig   `toml:"cors"`
	TrustedProjectConfigPath string       `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		DBPath:   "",
		LogLevel: DefaultLogLevel,
		Blobs:    BlobConfig{Backend: DefaultBlobBackend},
		Redis:    RedisConfig{TTL: DefaultRedisTTL},
		Uploads: UploadConfig{
			MaxImageBytes:      DefaultMaxImageBytes,
			MaxFileBytes:       DefaultMaxFileBytes,
			MultipartMaxMemory: DefaultMultipartMaxMemory,
		},
		Images: ImageConfig{GCBatchSize: DefaultImageGCBatchSize},
	}
}

// BlobRoot returns the local blob directory, defaulting next to the database.
func (c *Config) BlobRoot() string {
	if root := strings.TrimSpace(c.Blobs.Root); root != "" {
		return root
	}
	return filepath.Join(filepath.Dir(c.DBPath), ".moodboard", "blobs")
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

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, ConfigFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"log_level",
	"public_url",
	"blobs.backend",
	"blobs.root",
	"s3.endpoint",
	"s3.region",
	"s3.bucket",
	"s3.access_key",
	"s3.secret_key",
	"s3.use_ssl",
	"s3.path_style",
	"redis.url",
	"redis.ttl",
	"uploads.max_image_bytes",
	"uploads.max_file_bytes",
	"uploads.multipart_max_memory",
	"images.cleanup_grace_period",
	"images.gc_batch_size",
	"cors.allowed_origins",
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

// EnvKey returns the environment variable overriding key.
func EnvKey(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "public_url":
		return c.PublicURL, nil
	case "blobs.backend":
		return c.Blobs.Backend, nil
	case "blobs.root":
		return c.Blobs.Root, nil
	case "s3.endpoint":
		return c.S3.Endpoint, nil
	case "s3.region":
		return c.S3.Region, nil
	case "s3.bucket":
		return c.S3.Bucket, nil
	case "s3.access_key":
		return c.S3.AccessKey, nil
	case "s3.secret_key":
		if c.S3.SecretKey == "" {
			return "", nil
		}
		return "********", nil
	case "s3.use_ssl":
		return strconv.FormatBool(c.S3.UseSSL), nil
	case "s3.path_style":
		return strconv.FormatBool(c.S3.PathStyle), nil
	case "redis.url":
		return c.Redis.URL, nil
	case "redis.ttl":
		return c.Redis.TTL.String(), nil
	case "uploads.max_image_bytes":
		return strconv.FormatInt(c.Uploads.MaxImageBytes, 10), nil
	case "uploads.max_file_bytes":
		return strconv.FormatInt(c.Uploads.MaxFileBytes, 10), nil
	case "uploads.multipart_max_memory":
		return strconv.FormatInt(c.Uploads.MultipartMaxMemory, 10), nil
	case "images.cleanup_grace_period":
		return c.Images.CleanupGracePeriod.String(), nil
	case "images.gc_batch_size":
		return strconv.Itoa(c.Images.GCBatchSize), nil
	case "cors.allowed_origins":
		return strings.Join(c.CORS.AllowedOrigins, ","), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// apply stores a value already parsed by parseSetValue.
func (c *Config) apply(key string, value any) {
	switch v := value.(type) {
	case string:
		switch key {
		case "api_url":
			c.APIURL = v
		case "db_path":
			c.DBPath = v
		case "log_level":
			c.LogLevel = v
		case "public_url":
			c.PublicURL = v
		case "blobs.backend":
			c.Blobs.Backend = v
		case "blobs.root":
			c.Blobs.Root = v
		case "s3.endpoint":
			c.S3.Endpoint = v
		case "s3.region":
			c.S3.Region = v
		case "s3.bucket":
			c.S3.Bucket = v
		case "s3.access_key":
			c.S3.AccessKey = v
		case "s3.secret_key":
			c.S3.SecretKey = v
		case "redis.url":
			c.Redis.URL = v
		case "redis.ttl":
			c.Redis.TTL, _ = time.ParseDuration(v)
		case "images.cleanup_grace_period":
			c.Images.CleanupGracePeriod, _ = time.ParseDuration(v)
		}
	case bool:
		switch key {
		case "s3.use_ssl":
			c.S3.UseSSL = v
		case "s3.path_style":
			c.S3.PathStyle = v
		}
	case int64:
		switch key {
		case "uploads.max_image_bytes":
			c.Uploads.MaxImageBytes = v
		case "uploads.max_file_bytes":
			c.Uploads.MaxFileBytes = v
		case "uploads.multipart_max_memory":
			c.Uploads.MultipartMaxMemory = v
		}
	case int:
		if key == "images.gc_batch_size" {
			c.Images.GCBatchSize = v
		}
	case []string:
		if key == "cors.allowed_origins" {
			c.CORS.AllowedOrigins = v
		}
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, ConfigFileName), nil
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

// Load reads config from trusted files, loads a .env file from the working
// directory, and applies MOODBOARD_* environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, ConfigFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, ConfigFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}

	cfg.normalizeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Blobs.Backend {
	case "local":
	case "s3":
		if strings.TrimSpace(c.S3.Endpoint) == "" || strings.TrimSpace(c.S3.Bucket) == "" {
			return fmt.Errorf("blobs.backend s3 requires s3.endpoint and s3.bucket")
		}
	default:
		return fmt.Errorf("blobs.backend must be local or s3, got %q", c.Blobs.Backend)
	}
	if c.Images.CleanupGracePeriod < 0 {
		return fmt.Errorf("images.cleanup_grace_period must not be negative")
	}
	return nil
}

// loadDotEnv loads .env from the working directory without overriding
// variables already set. A missing file is not an error.
func loadDotEnv() error {
	cwd, err := os.Getwd()
	if err != nil {
		return nil
	}
	path := filepath.Join(cwd, EnvFileName)
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	for _, key := range allowedKeys {
		raw, ok := os.LookupEnv(EnvKey(key))
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		value, err := parseSetValue(key, raw)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvKey(key), err)
		}
		c.apply(key, value)
	}
	return nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "uploads.max_image_bytes", "uploads.max_file_bytes", "uploads.multipart_max_memory":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "images.gc_batch_size":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "s3.use_ssl", "s3.path_style":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "redis.ttl", "images.cleanup_grace_period":
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a duration such as 10m or 24h", key)
		}
		return parsed.String(), nil
	case "blobs.backend":
		value = strings.ToLower(value)
		if value != "local" && value != "s3" {
			return nil, fmt.Errorf("%s must be local or s3", key)
		}
		return value, nil
	case "cors.allowed_origins":
		return splitCSV(value), nil
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

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.Blobs.Backend = strings.ToLower(strings.TrimSpace(c.Blobs.Backend))
	if c.Blobs.Backend == "" {
		c.Blobs.Backend = DefaultBlobBackend
	}
	c.PublicURL = strings.TrimRight(strings.TrimSpace(c.PublicURL), "/")
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = DefaultRedisTTL
	}
	if c.Uploads.MaxImageBytes <= 0 {
		c.Uploads.MaxImageBytes = DefaultMaxImageBytes
	}
	if c.Uploads.MaxFileBytes <= 0 {
		c.Uploads.MaxFileBytes = DefaultMaxFileBytes
	}
	if c.Uploads.MultipartMaxMemory <= 0 {
		c.Uploads.MultipartMaxMemory = DefaultMultipartMaxMemory
	}
	if c.Images.GCBatchSize <= 0 {
		c.Images.GCBatchSize = DefaultImageGCBatchSize
	}
}
