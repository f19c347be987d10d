package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Gateway struct {
		Secret                string `yaml:"secret"`
		CallbackBaseURL       string `yaml:"callback_base_url"`
		RequiredConfirmations int64  `yaml:"required_confirmations"`
		AllowLateUpdates      bool   `yaml:"allow_late_updates"`
	} `yaml:"gateway"`
	Address struct {
		// Mode selects where receiving addresses come from:
		// "remote" queries the address API, "local" derives from the xpub.
		Mode              string   `yaml:"mode"`
		APIBaseURLs       []string `yaml:"api_base_urls"`
		APIKey            string   `yaml:"api_key"`
		XPub              string   `yaml:"xpub"`
		GapLimit          int      `yaml:"gap_limit"`
		FailoverThreshold int      `yaml:"failover_threshold"`
		HRP               string   `yaml:"hrp"`
	} `yaml:"address"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if cfg.Gateway.Secret == "" {
		return nil, errors.New("gateway.secret is required")
	}
	if cfg.Gateway.CallbackBaseURL == "" {
		return nil, errors.New("gateway.callback_base_url is required")
	}
	if cfg.Gateway.RequiredConfirmations <= 0 {
		cfg.Gateway.RequiredConfirmations = 3
	}
	switch cfg.Address.Mode {
	case "", "remote":
		cfg.Address.Mode = "remote"
		if len(cfg.Address.APIBaseURLs) == 0 {
			return nil, errors.New("address.api_base_urls is required in remote mode")
		}
		if cfg.Address.APIKey == "" {
			return nil, errors.New("address.api_key is required in remote mode")
		}
	case "local":
		if cfg.Address.HRP == "" {
			cfg.Address.HRP = "bc"
		}
	default:
		return nil, errors.New("address.mode must be remote or local")
	}
	if cfg.Address.XPub == "" {
		return nil, errors.New("address.xpub is required")
	}
	if cfg.Address.FailoverThreshold <= 0 {
		cfg.Address.FailoverThreshold = 3
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("GATEWAY_SECRET"); v != "" {
		cfg.Gateway.Secret = v
	}
	if v := os.Getenv("GATEWAY_CALLBACK_BASE_URL"); v != "" {
		cfg.Gateway.CallbackBaseURL = v
	}
	if v := os.Getenv("GATEWAY_REQUIRED_CONFIRMATIONS"); v != "" {
		cfg.Gateway.RequiredConfirmations = atoi64Or(cfg.Gateway.RequiredConfirmations, v)
	}
	if v := os.Getenv("GATEWAY_ALLOW_LATE_UPDATES"); v != "" {
		cfg.Gateway.AllowLateUpdates = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("ADDRESS_MODE"); v != "" {
		cfg.Address.Mode = v
	}
	if v := os.Getenv("ADDRESS_API_BASE_URLS"); v != "" {
		cfg.Address.APIBaseURLs = splitCommaList(v)
	}
	if v := os.Getenv("ADDRESS_API_KEY"); v != "" {
		cfg.Address.APIKey = v
	}
	if v := os.Getenv("ADDRESS_XPUB"); v != "" {
		cfg.Address.XPub = v
	}
	if v := os.Getenv("ADDRESS_GAP_LIMIT"); v != "" {
		cfg.Address.GapLimit = atoiOr(cfg.Address.GapLimit, v)
	}
	if v := os.Getenv("ADDRESS_FAILOVER_THRESHOLD"); v != "" {
		cfg.Address.FailoverThreshold = atoiOr(cfg.Address.FailoverThreshold, v)
	}
	if v := os.Getenv("ADDRESS_HRP"); v != "" {
		cfg.Address.HRP = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
