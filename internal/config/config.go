package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

const (
	defaultBindAddr    = ":8080"
	defaultPollHours   = 6
	defaultDBPath      = "./feeds.db"
	defaultConfigFile  = "./feedwatch.yaml"
	defaultOpenAIModel = "gpt-4o-mini"
	defaultSMTPPort    = 465
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	BindAddr     string
	PollInterval time.Duration
	DBPath       string
	ConfigFile   string
	OpenAIKey    string
	OpenAIModel  string
	OpenAIBase   string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPass     string
	MailFrom     string
	MailTo       string
}

// Load reads environment variables, filling in reasonable defaults.
func Load() Config {
	cfg := Config{
		BindAddr:     stringWithDefault("BIND_ADDR", defaultBindAddr),
		PollInterval: durationFromHours("POLL_INTERVAL_HOURS", defaultPollHours),
		DBPath:       stringWithDefault("DB_PATH", defaultDBPath),
		ConfigFile:   stringWithDefault("CONFIG_FILE", defaultConfigFile),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  stringWithDefault("OPENAI_MODEL", defaultOpenAIModel),
		OpenAIBase:   os.Getenv("OPENAI_BASE_URL"),
		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     intWithDefault("SMTP_PORT", defaultSMTPPort),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPass:     os.Getenv("SMTP_PASS"),
		MailFrom:     os.Getenv("MAIL_FROM"),
		MailTo:       os.Getenv("MAIL_TO"),
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = cfg.SMTPUser
	}
	return cfg
}

func stringWithDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationFromHours(key string, fallback int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			return time.Duration(hours) * time.Hour
		}
		log.Printf("invalid %s=%s, using default %d hours", key, v, fallback)
	}
	return time.Duration(fallback) * time.Hour
}

func intWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
		log.Printf("invalid %s=%s, using default %d", key, v, fallback)
	}
	return fallback
}
