package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendRedis    = "redis"
	StoreBackendMemory   = "memory"
)

const (
	defaultRetryMaxAttempts  = 5
	defaultRetryBaseDelay    = 50 * time.Millisecond
	defaultRetryMaxDelay     = time.Second
	defaultPublishAttempts   = 3
	defaultEmployeeTimeout   = 3 * time.Second
	defaultRedisChannel      = "case-completed"
	defaultRedisKeyPrefix    = "onboarding:case:"
	defaultLogMode           = "development"
	defaultDatabaseAppName   = "codex-onboarding"
	defaultRedisDialTimeout  = 5 * time.Second
	defaultDatabaseSSLMode   = "disable"
	defaultStoreBackend      = StoreBackendPostgres
	defaultHealthCheckPeriod = time.Minute
)

// Config はアプリケーション全体の設定を表現します。
type Config struct {
	Server            ServerConfig            `yaml:"server"`
	Log               LogConfig               `yaml:"log"`
	Metrics           MetricsConfig           `yaml:"metrics"`
	Store             StoreConfig             `yaml:"store"`
	Database          DatabaseConfig          `yaml:"database"`
	Redis             RedisConfig             `yaml:"redis"`
	EmployeeDirectory EmployeeDirectoryConfig `yaml:"employee_directory"`
	Onboarding        OnboardingConfig        `yaml:"onboarding"`
}

// ServerConfig は gRPC サーバーに関する設定です。
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig はロガーの動作モードです。
type LogConfig struct {
	Mode string `yaml:"mode"`
}

// MetricsConfig は Prometheus エンドポイントの設定です。ListenAddr が空なら公開しません。
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// StoreConfig はケース集約の保存先を選択します。
type StoreConfig struct {
	Backend string `yaml:"backend"`
}

// DatabaseConfig は PostgreSQL 接続に関する設定です。
type DatabaseConfig struct {
	Host                 string        `yaml:"host"`
	Port                 int           `yaml:"port"`
	User                 string        `yaml:"user"`
	Password             string        `yaml:"password"`
	Name                 string        `yaml:"name"`
	SSLMode              string        `yaml:"ssl_mode"`
	ApplicationName      string        `yaml:"application_name"`
	MaxOpenConns         int           `yaml:"max_open_conns"`
	MaxIdleConns         int           `yaml:"max_idle_conns"`
	ConnMaxLifetime      time.Duration `yaml:"-"`
	ConnMaxIdleTime      time.Duration `yaml:"-"`
	StatementTimeout     time.Duration `yaml:"-"`
	HealthCheckPeriod    time.Duration `yaml:"-"`
	ConnMaxLifetimeRaw   string        `yaml:"conn_max_lifetime"`
	ConnMaxIdleTimeRaw   string        `yaml:"conn_max_idle_time"`
	StatementTimeoutRaw  string        `yaml:"statement_timeout"`
	HealthCheckPeriodRaw string        `yaml:"health_check_period"`
}

// RedisConfig は Redis 接続とキー・チャンネルの設定です。
type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	Channel        string        `yaml:"channel"`
	KeyPrefix      string        `yaml:"key_prefix"`
	DialTimeout    time.Duration `yaml:"-"`
	DialTimeoutRaw string        `yaml:"dial_timeout"`
}

// EmployeeDirectoryConfig は社員ディレクトリ gRPC サービスへの接続設定です。
type EmployeeDirectoryConfig struct {
	Addr       string        `yaml:"addr"`
	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// OnboardingConfig はオンボーディングコアの動作設定です。
type OnboardingConfig struct {
	Retry           RetryConfig      `yaml:"retry"`
	PublishAttempts int              `yaml:"publish_attempts"`
	Templates       []TemplateConfig `yaml:"templates"`
}

// RetryConfig は楽観ロックの再試行ポリシーです。
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	BaseDelay    time.Duration `yaml:"-"`
	MaxDelay     time.Duration `yaml:"-"`
	BaseDelayRaw string        `yaml:"base_delay"`
	MaxDelayRaw  string        `yaml:"max_delay"`
}

// TemplateConfig はタスクテンプレート 1 件の設定です。
type TemplateConfig struct {
	Description       string `yaml:"description"`
	TaskType          string `yaml:"task_type"`
	Order             int    `yaml:"order"`
	DueDateOffsetDays int    `yaml:"due_date_offset_days"`
}

// Load は指定されたパスから設定ファイルを読み込みます。
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validateAndNormalize() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must be set")
	}

	if c.Log.Mode == "" {
		c.Log.Mode = defaultLogMode
	}

	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	switch c.Store.Backend {
	case StoreBackendPostgres:
		if err := c.Database.validateAndNormalize(); err != nil {
			return err
		}
	case StoreBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: redis.addr must be set when store.backend is redis")
		}
	case StoreBackendMemory:
	default:
		return fmt.Errorf("config: store.backend %q is not supported", c.Store.Backend)
	}

	if err := c.Redis.validateAndNormalize(); err != nil {
		return err
	}

	if err := c.EmployeeDirectory.validateAndNormalize(); err != nil {
		return err
	}

	return c.Onboarding.validateAndNormalize()
}

func (d *DatabaseConfig) validateAndNormalize() error {
	if d.Host == "" {
		return fmt.Errorf("config: database.host must be set")
	}
	if d.Port == 0 {
		return fmt.Errorf("config: database.port must be set")
	}
	if d.User == "" {
		return fmt.Errorf("config: database.user must be set")
	}
	if d.Password == "" {
		return fmt.Errorf("config: database.password must be set")
	}
	if d.Name == "" {
		return fmt.Errorf("config: database.name must be set")
	}
	if d.SSLMode == "" {
		d.SSLMode = defaultDatabaseSSLMode
	}
	if d.ApplicationName == "" {
		d.ApplicationName = defaultDatabaseAppName
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime

	idleTime, err := parseDurationAllowEmpty(d.ConnMaxIdleTimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_idle_time: %w", err)
	}
	d.ConnMaxIdleTime = idleTime

	statementTimeout, err := parseDurationAllowEmpty(d.StatementTimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: database.statement_timeout: %w", err)
	}
	d.StatementTimeout = statementTimeout

	healthCheck, err := parseDurationAllowEmpty(d.HealthCheckPeriodRaw)
	if err != nil {
		return fmt.Errorf("config: database.health_check_period: %w", err)
	}
	if healthCheck == 0 {
		healthCheck = defaultHealthCheckPeriod
	}
	d.HealthCheckPeriod = healthCheck

	return nil
}

func (r *RedisConfig) validateAndNormalize() error {
	if r.Channel == "" {
		r.Channel = defaultRedisChannel
	}
	if r.KeyPrefix == "" {
		r.KeyPrefix = defaultRedisKeyPrefix
	}
	if r.DB < 0 {
		return fmt.Errorf("config: redis.db must not be negative")
	}

	dial, err := parseDurationAllowEmpty(r.DialTimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: redis.dial_timeout: %w", err)
	}
	if dial == 0 {
		dial = defaultRedisDialTimeout
	}
	r.DialTimeout = dial
	return nil
}

func (e *EmployeeDirectoryConfig) validateAndNormalize() error {
	if e.Addr == "" {
		return fmt.Errorf("config: employee_directory.addr must be set")
	}

	timeout, err := parseDurationAllowEmpty(e.TimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: employee_directory.timeout: %w", err)
	}
	if timeout == 0 {
		timeout = defaultEmployeeTimeout
	}
	e.Timeout = timeout
	return nil
}

func (o *OnboardingConfig) validateAndNormalize() error {
	if o.Retry.MaxAttempts < 0 {
		return fmt.Errorf("config: onboarding.retry.max_attempts must not be negative")
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry.MaxAttempts = defaultRetryMaxAttempts
	}

	base, err := parseDurationAllowEmpty(o.Retry.BaseDelayRaw)
	if err != nil {
		return fmt.Errorf("config: onboarding.retry.base_delay: %w", err)
	}
	if base == 0 {
		base = defaultRetryBaseDelay
	}
	o.Retry.BaseDelay = base

	maxDelay, err := parseDurationAllowEmpty(o.Retry.MaxDelayRaw)
	if err != nil {
		return fmt.Errorf("config: onboarding.retry.max_delay: %w", err)
	}
	if maxDelay == 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if maxDelay < base {
		return fmt.Errorf("config: onboarding.retry.max_delay must be >= base_delay")
	}
	o.Retry.MaxDelay = maxDelay

	if o.PublishAttempts < 0 {
		return fmt.Errorf("config: onboarding.publish_attempts must not be negative")
	}
	if o.PublishAttempts == 0 {
		o.PublishAttempts = defaultPublishAttempts
	}

	for i := range o.Templates {
		tmpl := &o.Templates[i]
		tmpl.Description = strings.TrimSpace(tmpl.Description)
		tmpl.TaskType = strings.TrimSpace(tmpl.TaskType)
		if tmpl.Description == "" {
			return fmt.Errorf("config: onboarding.templates[%d].description must be set", i)
		}
	}
	return nil
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return d, nil
}

// DSN は pgx 用の接続文字列を返します。
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   d.Host + ":" + strconv.Itoa(d.Port),
		Path:   "/" + d.Name,
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
