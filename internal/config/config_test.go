package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ROKIFY_SECRET_KEY", "sk")
	t.Setenv("ROKIFY_COMPANY_ID", "company")
	t.Setenv("DELIVERY_URL", "https://t.me/+vip")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("expected 5s poll interval, got %s", cfg.PollInterval)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected 30m session ttl, got %s", cfg.SessionTTL)
	}
	if cfg.Price != 29.90 || cfg.OrderBumpPrice != 9.90 {
		t.Fatalf("unexpected catalog prices: %v %v", cfg.Price, cfg.OrderBumpPrice)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ROKIFY_SECRET_KEY", "sk")
	t.Setenv("ROKIFY_COMPANY_ID", "company")
	t.Setenv("PRICE", "19,90")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Price != 19.90 {
		t.Fatalf("expected comma decimal to parse, got %v", cfg.Price)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("expected 2s, got %s", cfg.PollInterval)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
}

func TestValidateFailsFast(t *testing.T) {
	base := func() *Config {
		return &Config{
			GatewaySecretKey:  "sk",
			GatewayCompanyID:  "company",
			GatewayBaseURL:    "https://gateway.example",
			GatewayAuthMode:   GatewayAuthBasic,
			GatewayAmountUnit: AmountUnitCents,
			DeliveryURL:       "https://t.me/+vip",
			Price:             29.90,
			PollInterval:      time.Second,
			SessionTTL:        time.Minute,
			ReconcileInterval: time.Minute,
			DBDriver:          DBDriverSQLite,
			SQLitePath:        "x.db",
			SessionStore:      SessionStoreMemory,
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("expected base config to be valid: %v", err)
	}

	cases := map[string]func(c *Config){
		"missing credentials":   func(c *Config) { c.GatewaySecretKey = "" },
		"oauth without token":   func(c *Config) { c.GatewayAuthMode = GatewayAuthClientCredentials },
		"bad amount unit":       func(c *Config) { c.GatewayAmountUnit = "reais" },
		"zero price":            func(c *Config) { c.Price = 0 },
		"missing delivery url":  func(c *Config) { c.DeliveryURL = "" },
		"bad session store":     func(c *Config) { c.SessionStore = "memcached" },
		"bad db driver":         func(c *Config) { c.DBDriver = "mysql" },
		"telegram without chat": func(c *Config) { c.TelegramBotToken = "token" },
		"zero reconcile":        func(c *Config) { c.ReconcileInterval = 0 },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
