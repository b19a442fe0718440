package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// VisionConfig configures the multimodal chat endpoint.
type VisionConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

// EmbedderConfig configures the text embedding endpoint.
type EmbedderConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// DatasetsConfig configures corpus indexing.
type DatasetsConfig struct {
	Dir            string `yaml:"dir"`
	MaxRowsPerFile int    `yaml:"max_rows_per_file"`
	Workers        int    `yaml:"workers"`
}

// SearchConfig configures the retrieval cascade.
type SearchConfig struct {
	ProcessCommand     []string `yaml:"process_command"`
	ProcessTimeoutSecs int      `yaml:"process_timeout_secs"`
	DefaultTopK        int      `yaml:"default_top_k"`
	PageSize           int      `yaml:"page_size"`
	FilesystemMaxFiles int      `yaml:"filesystem_max_files"`
	FilesystemDirs     []string `yaml:"filesystem_dirs"`
}

// FusionConfig carries the tunable fusion constants.
type FusionConfig struct {
	TextWeight        float64 `yaml:"text_weight"`
	ImageWeight       float64 `yaml:"image_weight"`
	SeverityThreshold float64 `yaml:"severity_threshold"`
	ModerateThreshold float64 `yaml:"moderate_threshold"`
	TopN              int     `yaml:"top_n"`
}

// MongoConfig configures the optional record mirror.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// MilvusConfig configures the optional prototype vector store.
type MilvusConfig struct {
	Address    string `yaml:"address"`
	Collection string `yaml:"collection"`
}

// PrototypesConfig configures the on-disk prototype store.
type PrototypesConfig struct {
	CacheDir string `yaml:"cache_dir"`
}

// TelegramConfig configures the chat front end.
type TelegramConfig struct {
	Token          string `yaml:"token"`
	AdminUserIDs   string `yaml:"admin_user_ids"`
	AllowedUserIDs string `yaml:"allowed_user_ids"`
}

// LogConfig configures logging.
type LogConfig struct {
	Debug bool `yaml:"debug"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Vision     VisionConfig     `yaml:"vision"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Datasets   DatasetsConfig   `yaml:"datasets"`
	Search     SearchConfig     `yaml:"search"`
	Fusion     FusionConfig     `yaml:"fusion"`
	Mongo      MongoConfig      `yaml:"mongo"`
	Milvus     MilvusConfig     `yaml:"milvus"`
	Prototypes PrototypesConfig `yaml:"prototypes"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Log        LogConfig        `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadWithEnv loads .env (if present), reads the YAML file and overlays
// environment variables.
func LoadWithEnv(path string) (*AppConfig, error) {
	_ = godotenv.Load()
	if path == "" {
		path = getEnvWithDefault("MEDSAGE_CONFIG", "config.yaml")
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	return cfg, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *AppConfig) {
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		cfg.Vision.Endpoint = host
		cfg.Embedder.Endpoint = host
	}
	cfg.Vision.Model = getEnvWithDefault("VISION_MODEL", cfg.Vision.Model)
	cfg.Embedder.Model = getEnvWithDefault("EMBED_MODEL", cfg.Embedder.Model)
	cfg.Datasets.Dir = getEnvWithDefault("DATASETS_DIR", cfg.Datasets.Dir)
	cfg.Mongo.URI = getEnvWithDefault("MONGODB_URI", cfg.Mongo.URI)
	cfg.Milvus.Address = getEnvWithDefault("MILVUS_ADDRESS", cfg.Milvus.Address)
	cfg.Telegram.Token = getEnvWithDefault("TG_BOT_TOKEN", cfg.Telegram.Token)
	cfg.Telegram.AdminUserIDs = getEnvWithDefault("ADMIN_USER_IDS", cfg.Telegram.AdminUserIDs)
	cfg.Telegram.AllowedUserIDs = getEnvWithDefault("ALLOWED_USER_IDS", cfg.Telegram.AllowedUserIDs)
	cfg.Server.Addr = getEnvWithDefault("HTTP_ADDR", cfg.Server.Addr)
	if proc := os.Getenv("SEARCH_PROCESS"); proc != "" {
		cfg.Search.ProcessCommand = strings.Fields(proc)
	}
	if v := os.Getenv("DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Log.Debug = b
		}
	}
}

// getEnvWithDefault gets an environment variable or returns a default value.
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Vision.Endpoint == "" {
		cfg.Vision.Endpoint = "http://localhost:11434"
	}
	if cfg.Vision.Model == "" {
		cfg.Vision.Model = "llava"
	}
	if cfg.Vision.TimeoutSecs == 0 {
		cfg.Vision.TimeoutSecs = 120
	}
	if cfg.Vision.JPEGQuality == 0 {
		cfg.Vision.JPEGQuality = 90
	}
	if cfg.Embedder.Endpoint == "" {
		cfg.Embedder.Endpoint = "http://localhost:11434"
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = "nomic-embed-text"
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 30
	}
	if cfg.Datasets.Dir == "" {
		cfg.Datasets.Dir = "datasets"
	}
	if cfg.Datasets.MaxRowsPerFile == 0 {
		cfg.Datasets.MaxRowsPerFile = 1000
	}
	if cfg.Datasets.Workers == 0 {
		cfg.Datasets.Workers = 4
	}
	if cfg.Search.ProcessTimeoutSecs == 0 {
		cfg.Search.ProcessTimeoutSecs = 10
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 50
	}
	if cfg.Search.PageSize == 0 {
		cfg.Search.PageSize = 10
	}
	if cfg.Search.FilesystemMaxFiles == 0 {
		cfg.Search.FilesystemMaxFiles = 20
	}
	if len(cfg.Search.FilesystemDirs) == 0 {
		cfg.Search.FilesystemDirs = []string{"medical-transcriptions", "pubmedqa", "medical-knowledge", "guidelines"}
	}
	if cfg.Fusion.TextWeight == 0 && cfg.Fusion.ImageWeight == 0 {
		cfg.Fusion.TextWeight = 0.5
		cfg.Fusion.ImageWeight = 0.5
	}
	if cfg.Fusion.SeverityThreshold == 0 {
		cfg.Fusion.SeverityThreshold = 0.5
	}
	if cfg.Fusion.ModerateThreshold == 0 {
		cfg.Fusion.ModerateThreshold = 0.6
	}
	if cfg.Fusion.TopN == 0 {
		cfg.Fusion.TopN = 3
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = "healthcare_app"
	}
	if cfg.Mongo.Collection == "" {
		cfg.Mongo.Collection = "medical_search_index"
	}
	if cfg.Milvus.Collection == "" {
		cfg.Milvus.Collection = "condition_prototypes"
	}
	if cfg.Prototypes.CacheDir == "" {
		cfg.Prototypes.CacheDir = "prototype_cache"
	}
}
