package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfigInvariant marks a config update rejected for violating an
// invariant (for example threshold ordering).
var ErrConfigInvariant = errors.New("config invariant violated")

type Config struct {
	LogLevel   string           `json:"log_level" yaml:"log_level"`
	LogFile    LogFileConfig    `json:"log_file" yaml:"log_file"`
	API        APIConfig        `json:"api" yaml:"api"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Ingest     IngestConfig     `json:"ingest" yaml:"ingest"`
	Prediction PredictionConfig `json:"prediction" yaml:"prediction"`
	Alerting   AlertingConfig   `json:"alerting" yaml:"alerting"`
	Notify     NotifyConfig     `json:"notify" yaml:"notify"`
}

type LogFileConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

type IngestConfig struct {
	ChannelBuffer int         `json:"channel_buffer" yaml:"channel_buffer"`
	REST          RESTConfig  `json:"rest" yaml:"rest"`
	Kafka         KafkaConfig `json:"kafka" yaml:"kafka"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type PredictionConfig struct {
	Enabled         bool  `json:"enabled" yaml:"enabled"`
	IntervalMinutes int   `json:"interval_minutes" yaml:"interval_minutes"`
	LookbackDays    int   `json:"lookback_days" yaml:"lookback_days"`
	MinSpanDays     int   `json:"min_span_days" yaml:"min_span_days"`
	MaxSpanDays     int   `json:"max_span_days" yaml:"max_span_days"`
	Horizons        []int `json:"horizons" yaml:"horizons"`
	MaxTrendPoints  int   `json:"max_trend_points" yaml:"max_trend_points"`
}

// AlertingConfig is the user-editable alert configuration. The threshold
// ordering invariant high < medium is enforced by Validate.
type AlertingConfig struct {
	HighThresholdMgDl   float64 `json:"high_threshold_mgdl" yaml:"high_threshold_mgdl"`
	MediumThresholdMgDl float64 `json:"medium_threshold_mgdl" yaml:"medium_threshold_mgdl"`
	AlertsEnabled       bool    `json:"alerts_enabled" yaml:"alerts_enabled"`
	EmailEnabled        bool    `json:"email_enabled" yaml:"email_enabled"`
	WebhookEnabled      bool    `json:"webhook_enabled" yaml:"webhook_enabled"`
	StoreLimit          int     `json:"store_limit" yaml:"store_limit"`
}

type NotifyConfig struct {
	Email              EmailConfig   `json:"email" yaml:"email"`
	Webhook            WebhookConfig `json:"webhook" yaml:"webhook"`
	MaxAttempts        int           `json:"max_attempts" yaml:"max_attempts"`
	BackoffSeedSeconds int           `json:"backoff_seed_seconds" yaml:"backoff_seed_seconds"`
}

type EmailConfig struct {
	SMTPHost string   `json:"smtp_host" yaml:"smtp_host"`
	SMTPPort int      `json:"smtp_port" yaml:"smtp_port"`
	Username string   `json:"username" yaml:"username"`
	Password string   `json:"password" yaml:"password"`
	From     string   `json:"from" yaml:"from"`
	To       []string `json:"to" yaml:"to"`
}

type WebhookConfig struct {
	URL            string `json:"url" yaml:"url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		LogFile: LogFileConfig{
			Enabled:    false,
			Path:       "logs/glucowatch.log",
			MaxSizeMB:  50,
			MaxBackups: 7,
			MaxAgeDays: 30,
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Driver: "sqlite", DSN: "file:glucowatch.db?_pragma=busy_timeout(5000)"},
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			Kafka:         KafkaConfig{Enabled: false},
		},
		Prediction: PredictionConfig{
			Enabled:         true,
			IntervalMinutes: 5,
			LookbackDays:    1,
			MinSpanDays:     1,
			MaxSpanDays:     7,
			Horizons:        []int{10, 20, 30},
			MaxTrendPoints:  15,
		},
		Alerting: AlertingConfig{
			HighThresholdMgDl:   70,
			MediumThresholdMgDl: 80,
			AlertsEnabled:       true,
			EmailEnabled:        false,
			WebhookEnabled:      false,
			StoreLimit:          1000,
		},
		Notify: NotifyConfig{
			Email:              EmailConfig{SMTPPort: 587},
			Webhook:            WebhookConfig{TimeoutSeconds: 10},
			MaxAttempts:        3,
			BackoffSeedSeconds: 1,
		},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Prediction.IntervalMinutes <= 0 {
		cfg.Prediction.IntervalMinutes = 5
	}
	if cfg.Prediction.LookbackDays <= 0 {
		cfg.Prediction.LookbackDays = 1
	}
	if cfg.Prediction.MinSpanDays <= 0 {
		cfg.Prediction.MinSpanDays = 1
	}
	if cfg.Prediction.MaxSpanDays <= 0 {
		cfg.Prediction.MaxSpanDays = 7
	}
	if len(cfg.Prediction.Horizons) == 0 {
		cfg.Prediction.Horizons = []int{10, 20, 30}
	}
	if cfg.Prediction.MaxTrendPoints <= 0 {
		cfg.Prediction.MaxTrendPoints = 15
	}
	if cfg.Alerting.StoreLimit <= 0 {
		cfg.Alerting.StoreLimit = 1000
	}
	if cfg.Notify.MaxAttempts <= 0 {
		cfg.Notify.MaxAttempts = 3
	}
	if cfg.Notify.BackoffSeedSeconds <= 0 {
		cfg.Notify.BackoffSeedSeconds = 1
	}
	if cfg.Notify.Webhook.TimeoutSeconds <= 0 {
		cfg.Notify.Webhook.TimeoutSeconds = 10
	}
	if cfg.Notify.Email.SMTPPort <= 0 {
		cfg.Notify.Email.SMTPPort = 587
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Storage.Driver == "" {
		return errors.New("storage.driver required")
	}
	if cfg.Prediction.MinSpanDays > cfg.Prediction.MaxSpanDays {
		return fmt.Errorf("prediction.min_span_days %d exceeds max_span_days %d",
			cfg.Prediction.MinSpanDays, cfg.Prediction.MaxSpanDays)
	}
	for _, h := range cfg.Prediction.Horizons {
		if h <= 0 {
			return fmt.Errorf("prediction.horizons contains non-positive horizon: %d", h)
		}
	}
	return ValidateAlerting(cfg.Alerting)
}

// ValidateAlerting enforces the threshold ordering invariant on its own so
// runtime updates through the API reuse the same check.
func ValidateAlerting(a AlertingConfig) error {
	if a.HighThresholdMgDl <= 0 || a.MediumThresholdMgDl <= 0 {
		return fmt.Errorf("%w: thresholds must be positive", ErrConfigInvariant)
	}
	if a.HighThresholdMgDl >= a.MediumThresholdMgDl {
		return fmt.Errorf("%w: high_threshold_mgdl %.0f must be below medium_threshold_mgdl %.0f",
			ErrConfigInvariant, a.HighThresholdMgDl, a.MediumThresholdMgDl)
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps a config without file backing, for tests and
// embedded use.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	applyDefaults(cfg)
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
		if info, err := os.Stat(m.path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	m.cfg.Store(cfg)
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
