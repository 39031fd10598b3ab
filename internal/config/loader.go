package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"go.yaml.in/yaml/v3"
)

// Config captures configuration values for the field-work scheduler.
type Config struct {
	HTTPPort  int
	SQLiteDSN string
	LogLevel  string
	LogFormat string
	// Location is the business time zone used to decide what "today" is.
	Location *time.Location

	Jobs     JobSchedules
	Delivery DeliveryConfig
	SMTP     SMTPConfig
	Graph    GraphConfig
	Weather  WeatherConfig
	Redis    RedisConfig
}

// JobSchedules holds cron expressions for the periodic sweeps.
type JobSchedules struct {
	Rerouting     string
	Notifications string
	Maintenance   string
	Weather       string
}

// DeliveryConfig bounds outbound message delivery.
type DeliveryConfig struct {
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	// Recipients receive operational alerts (conflicts, maintenance, reorder).
	Recipients []string
}

// SMTPConfig configures the secondary delivery channel.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// GraphConfig configures the identity-bound primary channel. The channel is
// disabled when AccessToken is empty.
type GraphConfig struct {
	BaseURL     string
	AccessToken string
}

// WeatherConfig configures observation ingestion.
type WeatherConfig struct {
	APIKey          string
	BaseURL         string
	Locations       []string
	DefaultLocation string
}

// RedisConfig configures the optional audit stream mirror. Empty Addr disables it.
type RedisConfig struct {
	Addr   string
	Stream string
}

// fileConfig mirrors the optional YAML configuration file.
type fileConfig struct {
	HTTPPort  int    `yaml:"http_port"`
	SQLiteDSN string `yaml:"sqlite_dsn"`
	Log       struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	TimeZone string `yaml:"time_zone"`
	Jobs     struct {
		Rerouting     string `yaml:"rerouting"`
		Notifications string `yaml:"notifications"`
		Maintenance   string `yaml:"maintenance"`
		Weather       string `yaml:"weather"`
	} `yaml:"jobs"`
	Delivery struct {
		Timeout       string   `yaml:"timeout"`
		RatePerSecond float64  `yaml:"rate_per_second"`
		Burst         int      `yaml:"burst"`
		Recipients    []string `yaml:"recipients"`
	} `yaml:"delivery"`
	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`
	Graph struct {
		BaseURL     string `yaml:"base_url"`
		AccessToken string `yaml:"access_token"`
	} `yaml:"graph"`
	Weather struct {
		APIKey          string   `yaml:"api_key"`
		BaseURL         string   `yaml:"base_url"`
		Locations       []string `yaml:"locations"`
		DefaultLocation string   `yaml:"default_location"`
	} `yaml:"weather"`
	Redis struct {
		Addr   string `yaml:"addr"`
		Stream string `yaml:"stream"`
	} `yaml:"redis"`
}

func defaults() Config {
	return Config{
		HTTPPort:  8080,
		SQLiteDSN: "fieldsched.db",
		LogLevel:  "info",
		LogFormat: "json",
		Location:  time.UTC,
		Jobs: JobSchedules{
			Rerouting:     "@hourly",
			Notifications: "0 6 * * *",
			Maintenance:   "@daily",
			Weather:       "0 */3 * * *",
		},
		Delivery: DeliveryConfig{
			Timeout:       15 * time.Second,
			RatePerSecond: 5,
			Burst:         5,
			Recipients:    []string{"recipient1@example.com", "recipient2@example.com"},
		},
		SMTP: SMTPConfig{
			Host: "smtp.gmail.com",
			Port: 587,
		},
		Graph: GraphConfig{
			BaseURL: "https://graph.microsoft.com",
		},
		Weather: WeatherConfig{
			BaseURL:         "https://api.openweathermap.org",
			Locations:       []string{"Site A"},
			DefaultLocation: "Site A",
		},
		Redis: RedisConfig{
			Stream: "fieldsched:audit",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// FIELDSCHED_CONFIG, and finally the process environment.
//
// Every missing or malformed entry is collected so operators see all problems
// at once.
func Load() (Config, error) {
	cfg := defaults()

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)

	if path := strings.TrimSpace(os.Getenv("FIELDSCHED_CONFIG")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, fmt.Errorf("設定ファイルを読み込めません: %w", err)
		}
	}

	if portValue := env("FIELDSCHED_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "FIELDSCHED_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	setString(&cfg.SQLiteDSN, "FIELDSCHED_SQLITE_DSN")
	setString(&cfg.LogLevel, "FIELDSCHED_LOG_LEVEL")
	setString(&cfg.LogFormat, "FIELDSCHED_LOG_FORMAT")

	if tz := env("FIELDSCHED_TIME_ZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			invalid = append(invalid, "FIELDSCHED_TIME_ZONE")
		} else {
			cfg.Location = loc
		}
	}

	setString(&cfg.Jobs.Rerouting, "FIELDSCHED_CRON_REROUTING")
	setString(&cfg.Jobs.Notifications, "FIELDSCHED_CRON_NOTIFICATIONS")
	setString(&cfg.Jobs.Maintenance, "FIELDSCHED_CRON_MAINTENANCE")
	setString(&cfg.Jobs.Weather, "FIELDSCHED_CRON_WEATHER")

	if value := env("FIELDSCHED_DELIVERY_TIMEOUT"); value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "FIELDSCHED_DELIVERY_TIMEOUT")
		} else {
			cfg.Delivery.Timeout = timeout
		}
	}
	if value := env("FIELDSCHED_DELIVERY_RATE"); value != "" {
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil || rate <= 0 {
			invalid = append(invalid, "FIELDSCHED_DELIVERY_RATE")
		} else {
			cfg.Delivery.RatePerSecond = rate
		}
	}
	if value := env("FIELDSCHED_NOTIFICATION_RECIPIENTS"); value != "" {
		cfg.Delivery.Recipients = splitList(value)
	}

	setString(&cfg.SMTP.Host, "FIELDSCHED_SMTP_HOST")
	if value := env("FIELDSCHED_SMTP_PORT"); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 {
			invalid = append(invalid, "FIELDSCHED_SMTP_PORT")
		} else {
			cfg.SMTP.Port = port
		}
	}
	setString(&cfg.SMTP.Username, "FIELDSCHED_SMTP_USER")
	setString(&cfg.SMTP.Password, "FIELDSCHED_SMTP_PASSWORD")
	setString(&cfg.SMTP.From, "FIELDSCHED_SMTP_FROM")
	if cfg.SMTP.Username == "" {
		missing = append(missing, "FIELDSCHED_SMTP_USER")
	}
	if cfg.SMTP.Password == "" {
		missing = append(missing, "FIELDSCHED_SMTP_PASSWORD")
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}

	setString(&cfg.Graph.BaseURL, "FIELDSCHED_GRAPH_BASE_URL")
	setString(&cfg.Graph.AccessToken, "FIELDSCHED_GRAPH_TOKEN")

	setString(&cfg.Weather.APIKey, "FIELDSCHED_WEATHER_API_KEY")
	setString(&cfg.Weather.BaseURL, "FIELDSCHED_WEATHER_BASE_URL")
	if value := env("FIELDSCHED_WEATHER_LOCATIONS"); value != "" {
		cfg.Weather.Locations = splitList(value)
	}
	setString(&cfg.Weather.DefaultLocation, "FIELDSCHED_WEATHER_DEFAULT_LOCATION")

	setString(&cfg.Redis.Addr, "FIELDSCHED_REDIS_ADDR")
	setString(&cfg.Redis.Stream, "FIELDSCHED_REDIS_STREAM")

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if fc.HTTPPort > 0 {
		cfg.HTTPPort = fc.HTTPPort
	}
	overlay(&cfg.SQLiteDSN, fc.SQLiteDSN)
	overlay(&cfg.LogLevel, fc.Log.Level)
	overlay(&cfg.LogFormat, fc.Log.Format)
	if tz := strings.TrimSpace(fc.TimeZone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("time_zone: %w", err)
		}
		cfg.Location = loc
	}

	overlay(&cfg.Jobs.Rerouting, fc.Jobs.Rerouting)
	overlay(&cfg.Jobs.Notifications, fc.Jobs.Notifications)
	overlay(&cfg.Jobs.Maintenance, fc.Jobs.Maintenance)
	overlay(&cfg.Jobs.Weather, fc.Jobs.Weather)

	if value := strings.TrimSpace(fc.Delivery.Timeout); value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil || timeout <= 0 {
			return fmt.Errorf("delivery.timeout: invalid duration %q", value)
		}
		cfg.Delivery.Timeout = timeout
	}
	if fc.Delivery.RatePerSecond > 0 {
		cfg.Delivery.RatePerSecond = fc.Delivery.RatePerSecond
	}
	if fc.Delivery.Burst > 0 {
		cfg.Delivery.Burst = fc.Delivery.Burst
	}
	if len(fc.Delivery.Recipients) > 0 {
		cfg.Delivery.Recipients = fc.Delivery.Recipients
	}

	overlay(&cfg.SMTP.Host, fc.SMTP.Host)
	if fc.SMTP.Port > 0 {
		cfg.SMTP.Port = fc.SMTP.Port
	}
	overlay(&cfg.SMTP.Username, fc.SMTP.Username)
	overlay(&cfg.SMTP.Password, fc.SMTP.Password)
	overlay(&cfg.SMTP.From, fc.SMTP.From)

	overlay(&cfg.Graph.BaseURL, fc.Graph.BaseURL)
	overlay(&cfg.Graph.AccessToken, fc.Graph.AccessToken)

	overlay(&cfg.Weather.APIKey, fc.Weather.APIKey)
	overlay(&cfg.Weather.BaseURL, fc.Weather.BaseURL)
	if len(fc.Weather.Locations) > 0 {
		cfg.Weather.Locations = fc.Weather.Locations
	}
	overlay(&cfg.Weather.DefaultLocation, fc.Weather.DefaultLocation)

	overlay(&cfg.Redis.Addr, fc.Redis.Addr)
	overlay(&cfg.Redis.Stream, fc.Redis.Stream)
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(target *string, key string) {
	if value := env(key); value != "" {
		*target = value
	}
}

func overlay(target *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*target = value
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
