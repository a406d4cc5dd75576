package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Storage struct {
		DBPath   string `yaml:"db_path"`
		MediaDir string `yaml:"media_dir"`
	} `yaml:"storage"`
	Cache struct {
		TTLSeconds int `yaml:"ttl_seconds"`
		Size       int `yaml:"size"`
	} `yaml:"cache"`
	Session struct {
		MaxAgeHours int `yaml:"max_age_hours"`
	} `yaml:"session"`
	Templates string `yaml:"templates"`
	Logging   struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Storage.DBPath = "./data/microblog.db"
	cfg.Storage.MediaDir = "./data/media"
	cfg.Cache.TTLSeconds = 20
	cfg.Cache.Size = 1024
	cfg.Session.MaxAgeHours = 24
	cfg.Templates = "./web/templates"
	cfg.Logging.Level = "info"
	return cfg
}

// Load reads the optional yaml file at path, then applies env overrides.
// A missing file is fine; defaults serve.
func Load(path string) (*Config, error) {
	godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Addr = ":" + v
	}
	if v := os.Getenv("ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("MEDIA_DIR"); v != "" {
		cfg.Storage.MediaDir = v
	}
	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.TTLSeconds = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

func (c *Config) SessionMaxAge() time.Duration {
	return time.Duration(c.Session.MaxAgeHours) * time.Hour
}
