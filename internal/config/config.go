package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Session   SessionConfig   `mapstructure:"session"`
	Captcha   CaptchaConfig   `mapstructure:"captcha"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Color     ColorConfig     `mapstructure:"color"`
	Logistics LogisticsConfig `mapstructure:"logistics"`
	ImageHost ImageHostConfig `mapstructure:"imagehost"`
	Export    ExportConfig    `mapstructure:"export"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type ScraperConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	Country            string        `mapstructure:"country"`
	MaxConcurrent      int           `mapstructure:"max_concurrent"`
	ShippingThreshold  int           `mapstructure:"shipping_threshold"`
	PageDelayMin       time.Duration `mapstructure:"page_delay_min"`
	PageDelayMax       time.Duration `mapstructure:"page_delay_max"`
	DetailDelayMin     time.Duration `mapstructure:"detail_delay_min"`
	DetailDelayMax     time.Duration `mapstructure:"detail_delay_max"`
	CategoryDelay      time.Duration `mapstructure:"category_delay"`
	CardTimeout        time.Duration `mapstructure:"card_timeout"`
	DescriptionTimeout time.Duration `mapstructure:"description_timeout"`
	DataDir            string        `mapstructure:"data_dir"`
	SnapshotFile       string        `mapstructure:"snapshot_file"`
}

type BrowserConfig struct {
	Headless         bool          `mapstructure:"headless"`
	Timeout          time.Duration `mapstructure:"timeout"`
	ViewportWidth    int           `mapstructure:"viewport_width"`
	ViewportHeight   int           `mapstructure:"viewport_height"`
	Locale           string        `mapstructure:"locale"`
	TimezoneID       string        `mapstructure:"timezone"`
	UserAgent        string        `mapstructure:"user_agent"`
	ProxyServer      string        `mapstructure:"proxy_server"`
	StorageStatePath string        `mapstructure:"storage_state_path"`
}

type SessionConfig struct {
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	LoginSettle time.Duration `mapstructure:"login_settle"`
}

type CaptchaConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	ImageTimeout time.Duration `mapstructure:"image_timeout"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	ReloadDelay  time.Duration `mapstructure:"reload_delay"`
	OCRURL       string        `mapstructure:"ocr_url"`
	OCRAPIKey    string        `mapstructure:"ocr_api_key"`
	OCRTimeout   time.Duration `mapstructure:"ocr_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RelayConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	Stream       string        `mapstructure:"stream"`
}

type ColorConfig struct {
	CacheFile   string        `mapstructure:"cache_file"`
	APIURL      string        `mapstructure:"api_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type LogisticsConfig struct {
	URL               string        `mapstructure:"url"`
	Platform          string        `mapstructure:"platform"`
	StartCountry      string        `mapstructure:"start_country"`
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type ImageHostConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url"`
	Token      string        `mapstructure:"token"`
	Category   string        `mapstructure:"category"`
	MaxRetries int           `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type ExportConfig struct {
	BatchSize int    `mapstructure:"batch_size"`
	Status    string `mapstructure:"status"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads defaults, then the optional YAML file, then environment overrides.
// An empty path looks for config.yaml in the working directory and ./config.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := bindSecrets(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.BaseURL == "" {
		return fmt.Errorf("SCRAPER_BASE_URL is required")
	}

	if c.Scraper.MaxConcurrent < 1 {
		return fmt.Errorf("SCRAPER_MAX_CONCURRENT must be at least 1")
	}

	if c.Scraper.PageDelayMin > c.Scraper.PageDelayMax {
		return fmt.Errorf("SCRAPER_PAGE_DELAY_MIN cannot be greater than SCRAPER_PAGE_DELAY_MAX")
	}

	if c.Scraper.DetailDelayMin > c.Scraper.DetailDelayMax {
		return fmt.Errorf("SCRAPER_DETAIL_DELAY_MIN cannot be greater than SCRAPER_DETAIL_DELAY_MAX")
	}

	if c.Captcha.MaxAttempts < 1 {
		return fmt.Errorf("CAPTCHA_MAX_ATTEMPTS must be at least 1")
	}

	if c.Export.BatchSize < 1 {
		return fmt.Errorf("EXPORT_BATCH_SIZE must be at least 1")
	}

	if c.Logistics.RequestsPerSecond < 1 {
		return fmt.Errorf("LOGISTICS_REQUESTS_PER_SECOND must be at least 1")
	}

	if c.ImageHost.Enabled && c.ImageHost.Token == "" {
		return fmt.Errorf("IMAGEHOST_TOKEN is required when image rehosting is enabled")
	}

	return nil
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("scraper.base_url", "https://www.cjdropshipping.com/")
	v.SetDefault("scraper.country", "US")
	v.SetDefault("scraper.max_concurrent", 3)
	v.SetDefault("scraper.shipping_threshold", 5)
	v.SetDefault("scraper.page_delay_min", 1500*time.Millisecond)
	v.SetDefault("scraper.page_delay_max", 4*time.Second)
	v.SetDefault("scraper.detail_delay_min", 200*time.Millisecond)
	v.SetDefault("scraper.detail_delay_max", 600*time.Millisecond)
	v.SetDefault("scraper.category_delay", 5*time.Second)
	v.SetDefault("scraper.card_timeout", 15*time.Second)
	v.SetDefault("scraper.description_timeout", 35*time.Second)
	v.SetDefault("scraper.data_dir", "./data")
	v.SetDefault("scraper.snapshot_file", "./data/category_paths.json")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.timeout", 30*time.Second)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "America/New_York")
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.proxy_server", "")
	v.SetDefault("browser.storage_state_path", "./data/session_state.json")

	v.SetDefault("session.username", "")
	v.SetDefault("session.password", "")
	v.SetDefault("session.login_settle", 5*time.Second)

	v.SetDefault("captcha.max_attempts", 5)
	v.SetDefault("captcha.image_timeout", 5*time.Second)
	v.SetDefault("captcha.settle_delay", 2*time.Second)
	v.SetDefault("captcha.reload_delay", 1500*time.Millisecond)
	v.SetDefault("captcha.ocr_url", "http://localhost:9898/ocr")
	v.SetDefault("captcha.ocr_api_key", "")
	v.SetDefault("captcha.ocr_timeout", 20*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "cj_catalog")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("relay.poll_interval", 5*time.Second)
	v.SetDefault("relay.batch_size", 100)
	v.SetDefault("relay.stream", "stream:catalog_products")

	v.SetDefault("color.cache_file", "./data/color_cache.txt")
	v.SetDefault("color.api_url", "https://api.deepseek.com/chat/completions")
	v.SetDefault("color.api_key", "")
	v.SetDefault("color.model", "deepseek-reasoner")
	v.SetDefault("color.temperature", 0.3)
	v.SetDefault("color.timeout", 60*time.Second)

	v.SetDefault("logistics.url", "https://www.cjdropshipping.com/product-api/assign/batchUnionLogisticsFreightV355")
	v.SetDefault("logistics.platform", "shopify")
	v.SetDefault("logistics.start_country", "US")
	v.SetDefault("logistics.requests_per_second", 2)
	v.SetDefault("logistics.timeout", 30*time.Second)

	v.SetDefault("imagehost.enabled", false)
	v.SetDefault("imagehost.url", "https://api.superbed.cn/upload")
	v.SetDefault("imagehost.token", "")
	v.SetDefault("imagehost.category", "catalog")
	v.SetDefault("imagehost.max_retries", 5)
	v.SetDefault("imagehost.timeout", 30*time.Second)

	v.SetDefault("export.batch_size", 100)
	v.SetDefault("export.status", "active")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindSecrets maps the short environment names used in deployments onto config keys.
func bindSecrets(v *viper.Viper) error {
	bindings := map[string][]string{
		"session.username":    {"CJ_USERNAME", "SESSION_USERNAME"},
		"session.password":    {"CJ_PASSWORD", "SESSION_PASSWORD"},
		"color.api_key":       {"LLM_API_KEY", "COLOR_API_KEY"},
		"imagehost.token":     {"IMAGEHOST_TOKEN"},
		"captcha.ocr_api_key": {"OCR_API_KEY", "CAPTCHA_OCR_API_KEY"},
		"database.password":   {"DB_PASSWORD", "DATABASE_PASSWORD"},
		"logging.level":       {"LOG_LEVEL", "LOGGING_LEVEL"},
		"logging.format":      {"LOG_FORMAT", "LOGGING_FORMAT"},
	}

	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	return nil
}
