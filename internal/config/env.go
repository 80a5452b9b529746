package config

import (
    "os"
    "path/filepath"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// RenderConfig defines how the background renderer produces thumbnails.
type RenderConfig struct {
    AntialiasFactor int
    Timeout         time.Duration
    MinThumbSize    int
    MaxThumbSize    int
}

// ExportConfig defines the export engines.
type ExportConfig struct {
    ToolPath    string
    ToolTimeout time.Duration
    DjVuScale   float64
}

// StorageConfig defines the session work directory and remote document access.
type StorageConfig struct {
    WorkDir     string
    S3Bucket    string
    S3Region    string
    S3Endpoint  string
    S3AccessKey string
    S3SecretKey string
    HTTPTimeout time.Duration
}

// CacheConfig defines the optional shared thumbnail cache.
type CacheConfig struct {
    RedisURL string
    TTL      time.Duration
}

// MetricsConfig defines the optional metrics listener.
type MetricsConfig struct {
    Addr string
}

// Config is the top-level configuration.
type Config struct {
    Logging   LoggingConfig
    Axiom     AxiomConfig
    Render    RenderConfig
    Export    ExportConfig
    Storage   StorageConfig
    Cache     CacheConfig
    Metrics   MetricsConfig
    PrefsPath string
    // ThumbDir and Output drive the command-line run: thumbnails are
    // written to ThumbDir and the page list exported to Output when set.
    ThumbDir string
    Output   string
}

// Load reads an optional .env file and then builds the configuration from the environment.
func Load() Config {
    _ = godotenv.Load()
    return FromEnv()
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    // Logging defaults
    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", filepath.Join(userStateDir(), "pdfsnip.log")),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "20"), 20),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "3"), 3),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "14"), 14),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    // Axiom defaults
    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_pdfsnip",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    cfg.Render = RenderConfig{
        AntialiasFactor: parseInt(getEnv("ANTIALIAS_FACTOR", "4"), 4),
        Timeout:         parseDuration(getEnv("RENDER_TIMEOUT", "30s"), 30*time.Second),
        MinThumbSize:    parseInt(getEnv("MIN_THUMB_SIZE", "50"), 50),
        MaxThumbSize:    parseInt(getEnv("MAX_THUMB_SIZE", "1600"), 1600),
    }
    if cfg.Render.AntialiasFactor < 1 { cfg.Render.AntialiasFactor = 1 }
    if cfg.Render.MinThumbSize <= 0 { cfg.Render.MinThumbSize = 50 }
    if cfg.Render.MaxThumbSize < cfg.Render.MinThumbSize { cfg.Render.MaxThumbSize = cfg.Render.MinThumbSize }

    cfg.Export = ExportConfig{
        ToolPath:    getEnv("EXPORT_TOOL", "pdftk"),
        ToolTimeout: parseDuration(getEnv("EXPORT_TOOL_TIMEOUT", "5m"), 5*time.Minute),
        DjVuScale:   parseFloat(getEnv("EXPORT_DJVU_SCALE", "1"), 1),
    }

    cfg.Storage = StorageConfig{
        WorkDir:     getEnv("WORK_DIR", ""),
        S3Bucket:    getEnv("AWS_S3_BUCKET", ""),
        S3Region:    getEnv("AWS_REGION", ""),
        S3Endpoint:  getEnv("AWS_S3_ENDPOINT", ""),
        S3AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
        S3SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
        HTTPTimeout: parseDuration(getEnv("HTTP_TIMEOUT", "60s"), 60*time.Second),
    }

    cfg.Cache = CacheConfig{
        RedisURL: getEnv("REDIS_URL", ""),
        TTL:      parseDuration(getEnv("THUMB_CACHE_TTL", "24h"), 24*time.Hour),
    }

    cfg.Metrics = MetricsConfig{Addr: getEnv("METRICS_ADDR", "")}
    cfg.PrefsPath = getEnv("PREFS_PATH", filepath.Join(userStateDir(), "prefs.db"))
    cfg.ThumbDir = getEnv("THUMB_DIR", "")
    cfg.Output = getEnv("OUTPUT", "")

    return cfg
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}

func userStateDir() string {
    if dir, err := os.UserConfigDir(); err == nil && dir != "" {
        return filepath.Join(dir, "pdfsnip")
    }
    return filepath.Join(os.TempDir(), "pdfsnip")
}
