package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/bryanwahyu/survey-intake/internal/domain/surveys"
	"github.com/bryanwahyu/survey-intake/internal/infra/notify"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Survey   SurveyConfig   `yaml:"survey"`
	Email    EmailConfig    `yaml:"email"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Minio    MinioConfig    `yaml:"minio"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

type ServerConfig struct {
	Port           int               `yaml:"port"`
	Environment    string            `yaml:"environment"`
	AllowedOrigins []string          `yaml:"allowedOrigins"`
	AdminKeys      map[string]string `yaml:"adminKeys"`
	RateLimit      RateLimitConfig   `yaml:"rateLimit"`
}

type RateLimitConfig struct {
	Disabled        bool `yaml:"disabled"`
	Capacity        int  `yaml:"capacity"`
	RefillPerSecond int  `yaml:"refillPerSecond"`
}

// Limits returns the bucket capacity and refill rate. A zero capacity means
// the limiter is off.
func (r RateLimitConfig) Limits() (capacity, refill int) {
	if r.Disabled {
		return 0, 0
	}
	return r.Capacity, r.RefillPerSecond
}

type StorageConfig struct {
	DataDir   string `yaml:"dataDir"`
	CSVFile   string `yaml:"csvFile"`
	BackupDir string `yaml:"backupDir"`
	Sync      *bool  `yaml:"sync"`
}

// SyncWrites defaults to true when sync is not set.
func (s StorageConfig) SyncWrites() bool {
	return s.Sync == nil || *s.Sync
}

type SurveyConfig struct {
	Name      string           `yaml:"name"`
	Scale     ScaleConfig      `yaml:"scale"`
	Questions []QuestionConfig `yaml:"questions"`
}

type ScaleConfig struct {
	Min    int            `yaml:"min"`
	Max    int            `yaml:"max"`
	Labels map[int]string `yaml:"labels"`
}

type QuestionConfig struct {
	ID       string `yaml:"id"`
	Text     string `yaml:"text"`
	Type     string `yaml:"type"`
	Subscale string `yaml:"subscale"`
	Reverse  bool   `yaml:"reverse"`
}

type EmailConfig struct {
	SMTPServer string `yaml:"smtpServer"`
	SMTPPort   int    `yaml:"smtpPort"`
	Sender     string `yaml:"sender"`
	Password   string `yaml:"password"`
	Recipient  string `yaml:"recipient"`
	PublicURL  string `yaml:"publicURL"`
}

type DeliveryConfig struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queueSize"`
	Timeout   time.Duration `yaml:"timeout"`
}

type MinioConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
	BucketName string `yaml:"bucketName"`
	Region     string `yaml:"region"`
	UseSSL     bool   `yaml:"useSSL"`
	Prefix     string `yaml:"prefix"`
}

type ArchiveConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// Load baca file config.yaml, lalu env override. File boleh tidak ada.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	if err := num("PORT", &c.Server.Port); err != nil {
		return err
	}
	if err := num("SMTP_PORT", &c.Email.SMTPPort); err != nil {
		return err
	}
	str("SERVICE_ENVIRONMENT", &c.Server.Environment)
	str("DATA_DIR", &c.Storage.DataDir)
	str("SMTP_SERVER", &c.Email.SMTPServer)
	str("SENDER_EMAIL", &c.Email.Sender)
	str("SENDER_PASSWORD", &c.Email.Password)
	str("RECIPIENT_EMAIL", &c.Email.Recipient)
	str("PUBLIC_URL", &c.Email.PublicURL)
	str("ARCHIVE_DRIVER", &c.Archive.Driver)
	str("ARCHIVE_DSN", &c.Archive.DSN)
	str("MINIO_ENDPOINT", &c.Minio.Endpoint)
	str("MINIO_ACCESS_KEY", &c.Minio.AccessKey)
	str("MINIO_SECRET_KEY", &c.Minio.SecretKey)
	str("MINIO_BUCKET", &c.Minio.BucketName)
	if getenv("MINIO_ENDPOINT") != "" {
		c.Minio.Enabled = true
	}

	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	if v := getenv("ADMIN_KEYS"); v != "" {
		keys, err := parseKeys(v)
		if err != nil {
			return fmt.Errorf("ADMIN_KEYS: %w", err)
		}
		c.Server.AdminKeys = keys
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.RateLimit.Capacity == 0 {
		c.Server.RateLimit.Capacity = 60
	}
	if c.Server.RateLimit.RefillPerSecond == 0 {
		c.Server.RateLimit.RefillPerSecond = 1
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Email.SMTPServer == "" {
		c.Email.SMTPServer = "smtp.gmail.com"
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Delivery.Workers == 0 {
		c.Delivery.Workers = 2
	}
	if c.Delivery.QueueSize == 0 {
		c.Delivery.QueueSize = 100
	}
	if c.Delivery.Timeout == 0 {
		c.Delivery.Timeout = 10 * time.Second
	}
	if c.Minio.Prefix == "" {
		c.Minio.Prefix = "responses"
	}
	c.Archive.Driver = strings.ToLower(strings.TrimSpace(c.Archive.Driver))
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimit.Capacity < 0 || c.Server.RateLimit.RefillPerSecond < 0 {
		errs = append(errs, errors.New("server.rateLimit values must not be negative"))
	}
	if c.Delivery.Workers < 0 || c.Delivery.QueueSize < 0 || c.Delivery.Timeout < 0 {
		errs = append(errs, errors.New("delivery values must not be negative"))
	}
	switch c.Archive.Driver {
	case "", "mysql", "postgres":
	default:
		errs = append(errs, fmt.Errorf("archive.driver %q not supported (mysql, postgres)", c.Archive.Driver))
	}
	if c.Minio.Enabled && (c.Minio.Endpoint == "" || c.Minio.BucketName == "") {
		errs = append(errs, errors.New("minio.endpoint and minio.bucketName are required when minio is enabled"))
	}
	if _, err := c.Survey.Schema(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Schema builds the survey schema. No questions means the WISDOM default.
func (s SurveyConfig) Schema() (*domain.Schema, error) {
	if len(s.Questions) == 0 {
		return domain.DefaultSchema(), nil
	}
	scale := domain.LikertScale()
	if s.Scale.Min != 0 || s.Scale.Max != 0 {
		scale = domain.Scale{Min: s.Scale.Min, Max: s.Scale.Max, Labels: s.Scale.Labels}
	}
	qs := make([]domain.Question, 0, len(s.Questions))
	for _, q := range s.Questions {
		qs = append(qs, domain.Question{
			ID:       domain.QuestionID(q.ID),
			Text:     q.Text,
			Type:     domain.QuestionType(strings.ToLower(q.Type)),
			Subscale: q.Subscale,
			Reverse:  q.Reverse,
		})
	}
	name := s.Name
	if name == "" {
		name = "survey"
	}
	return domain.NewSchema(name, scale, qs)
}

func (c *Config) Notify() notify.Config {
	return notify.Config{
		SMTPServer: c.Email.SMTPServer,
		SMTPPort:   c.Email.SMTPPort,
		Sender:     c.Email.Sender,
		Password:   c.Email.Password,
		Recipient:  c.Email.Recipient,
		PublicURL:  c.Email.PublicURL,
	}
}

// EmailEnabled is true only when sender, password and recipient are all set.
func (c *Config) EmailEnabled() bool {
	return c.Notify().Enabled()
}

// ArchiveDSN returns archive.dsn, or builds one from the host fields.
func (c *Config) ArchiveDSN() string {
	a := c.Archive
	if a.DSN != "" {
		return a.DSN
	}
	switch a.Driver {
	case "mysql":
		port := a.Port
		if port == 0 {
			port = 3306
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			a.User, a.Password, a.Host, port, a.Name)
	case "postgres":
		port := a.Port
		if port == 0 {
			port = 5432
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			a.User, a.Password, a.Host, port, a.Name)
	}
	return ""
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseKeys reads "name:key,name2:key2".
func parseKeys(v string) (map[string]string, error) {
	keys := map[string]string{}
	for _, pair := range splitList(v) {
		name, key, ok := strings.Cut(pair, ":")
		name, key = strings.TrimSpace(name), strings.TrimSpace(key)
		if !ok || name == "" || key == "" {
			return nil, fmt.Errorf("entry %q is not name:key", pair)
		}
		keys[name] = key
	}
	return keys, nil
}
