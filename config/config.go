package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Store      StoreConfig
	Proxy      ProxyConfig
	Delegate   DelegateConfig
	Notify     NotifyConfig
	Identity   IdentityConfig
	Sweep      SweepConfig
	Defaults   DefaultsConfig
	ExpressVPN ExpressVPNConfig
	LogPath    string
}

type StoreConfig struct {
	Backend string // sqlite, postgres, s3
	DBPath  string
	PGURL   string
	S3      S3Config
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

type ProxyConfig struct {
	URL string
}

type DelegateConfig struct {
	BaseURL string
	APIKey  string
}

type NotifyConfig struct {
	WebhookURL string
}

type IdentityConfig struct {
	FixedUserAgent      string
	FixedAcceptLanguage string
	ExtraUserAgents     []string
	ExtraLocales        []string
}

type SweepConfig struct {
	Cron     string
	Interval time.Duration
}

type DefaultsConfig struct {
	IntervalSeconds int
	MaxRetries      int
}

type ExpressVPNConfig struct {
	ActivationCode string
	AutoConnect    bool
	Region         string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", "sqlite"),
			DBPath:  getEnv("DB_PATH", "shopmon.db"),
			PGURL:   os.Getenv("DATABASE_URL"),
			S3: S3Config{
				Bucket:          os.Getenv("S3_BUCKET"),
				Region:          getEnv("S3_REGION", "us-east-1"),
				Endpoint:        os.Getenv("S3_ENDPOINT"),
				AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
				Prefix:          getEnv("S3_PREFIX", "shopmon"),
			},
		},
		Proxy: ProxyConfig{
			URL: os.Getenv("PROXY_URL"),
		},
		Delegate: DelegateConfig{
			BaseURL: os.Getenv("DELEGATE_URL"),
			APIKey:  os.Getenv("DELEGATE_API_KEY"),
		},
		Notify: NotifyConfig{
			WebhookURL: os.Getenv("WEBHOOK_URL"),
		},
		Identity: IdentityConfig{
			FixedUserAgent:      os.Getenv("FIXED_USER_AGENT"),
			FixedAcceptLanguage: os.Getenv("FIXED_ACCEPT_LANGUAGE"),
		},
		Sweep: SweepConfig{
			Cron:     os.Getenv("SWEEP_CRON"),
			Interval: getEnvDuration("SWEEP_INTERVAL", 0),
		},
		Defaults: DefaultsConfig{
			IntervalSeconds: getEnvInt("DEFAULT_INTERVAL_SECONDS", 300),
			MaxRetries:      getEnvInt("DEFAULT_MAX_RETRIES", 5),
		},
		ExpressVPN: ExpressVPNConfig{
			ActivationCode: os.Getenv("EXPRESSVPN_ACTIVATION_CODE"),
			AutoConnect:    os.Getenv("EXPRESSVPN_AUTOCONNECT") == "true",
			Region:         getEnv("EXPRESSVPN_REGION", "smart"),
		},
		LogPath: getEnv("LOG_PATH", "shopmon.log"),
	}

	if err := cfg.loadIdentityFile(getEnv("IDENTITY_FILE", "config/identity.yaml")); err != nil {
		return nil, err
	}

	return cfg, nil
}

// identityFile extends the built-in user agent and locale pools.
type identityFile struct {
	UserAgents      []string `yaml:"user_agents"`
	AcceptLanguages []string `yaml:"accept_languages"`
}

func (c *Config) loadIdentityFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var f identityFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}

	c.Identity.ExtraUserAgents = f.UserAgents
	c.Identity.ExtraLocales = f.AcceptLanguages
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
