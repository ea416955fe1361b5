/*
 * @module service/config/config
 * @description 应用配置加载，支持 YAML 配置文件与环境变量覆盖
 * @architecture 分层架构 - 基础设施层
 * @documentReference DESIGN.md
 * @stateFlow 默认值 -> 配置文件 -> 环境变量覆盖 -> 校验
 * @rules 环境变量优先级最高；校验失败时拒绝启动
 * @dependencies gopkg.in/yaml.v3
 * @refs service/init.go, main.go
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ApplicationConfig 应用配置
type ApplicationConfig struct {
	Server       ServerConfig       `json:"server" yaml:"server"`
	Database     DatabaseConfig     `json:"database" yaml:"database"`
	Redis        RedisConfig        `json:"redis" yaml:"redis"`
	Logging      LoggingConfig      `json:"logging" yaml:"logging"`
	Analysis     AnalysisConfig     `json:"analysis" yaml:"analysis"`
	Events       EventsConfig       `json:"events" yaml:"events"`
	Housekeeping HousekeepingConfig `json:"housekeeping" yaml:"housekeeping"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port        int    `json:"port" yaml:"port"`
	BaseContext string `json:"base_context" yaml:"base_context"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver       string `json:"driver" yaml:"driver"` // postgres, sqlite
	URL          string `json:"url" yaml:"url"`
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	Database     string `json:"database" yaml:"database"`
	Username     string `json:"username" yaml:"username"`
	Password     string `json:"password" yaml:"password"`
	SSLMode      string `json:"ssl_mode" yaml:"ssl_mode"`
	Schema       string `json:"schema" yaml:"schema"`
	SQLitePath   string `json:"sqlite_path" yaml:"sqlite_path"`
	MaxOpenConns int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns" yaml:"max_idle_conns"`
}

// RedisConfig Redis配置，Host 为空时使用进程内锁
type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// AnalysisConfig 聚类任务编排配置
type AnalysisConfig struct {
	Workers     int           `json:"workers" yaml:"workers"`
	QueueSize   int           `json:"queue_size" yaml:"queue_size"`
	RunTimeout  time.Duration `json:"run_timeout" yaml:"run_timeout"`
	DefaultSeed *int64        `json:"default_seed,omitempty" yaml:"default_seed"`
	LockTTL     time.Duration `json:"lock_ttl" yaml:"lock_ttl"`

	// 每个客户端在窗口内允许提交的运行数，0 表示不限流
	SubmitRateLimit  int           `json:"submit_rate_limit" yaml:"submit_rate_limit"`
	SubmitRateWindow time.Duration `json:"submit_rate_window" yaml:"submit_rate_window"`
}

// EventsConfig 运行事件发布配置，各通道独立开启
type EventsConfig struct {
	KafkaBrokers []string `json:"kafka_brokers" yaml:"kafka_brokers"`
	KafkaTopic   string   `json:"kafka_topic" yaml:"kafka_topic"`
	MQTTBroker   string   `json:"mqtt_broker" yaml:"mqtt_broker"`
	MQTTTopic    string   `json:"mqtt_topic" yaml:"mqtt_topic"`
	MQTTClientID string   `json:"mqtt_client_id" yaml:"mqtt_client_id"`
	DaprPubSub   string   `json:"dapr_pubsub" yaml:"dapr_pubsub"`
	DaprTopic    string   `json:"dapr_topic" yaml:"dapr_topic"`
}

// HousekeepingConfig 后台清理配置
type HousekeepingConfig struct {
	Cron  string        `json:"cron" yaml:"cron"`
	Grace time.Duration `json:"grace" yaml:"grace"`
}

// 数据库驱动
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// 默认值
const (
	DefaultPort              = 80
	DefaultWorkers           = 4
	DefaultQueueSize         = 64
	DefaultRunTimeout        = 10 * time.Minute
	DefaultLockTTL           = 15 * time.Minute
	DefaultSubmitRateWindow  = time.Minute
	DefaultHousekeepingCron  = "0 * * * * *"
	DefaultHousekeepingGrace = time.Minute
	DefaultEventTopic        = "clusterhub.runs"
)

// Default 返回默认配置
func Default() *ApplicationConfig {
	return &ApplicationConfig{
		Server: ServerConfig{Port: DefaultPort},
		Database: DatabaseConfig{
			Driver:     DriverPostgres,
			Host:       "localhost",
			Port:       5432,
			Database:   "postgres",
			Username:   "postgres",
			SSLMode:    "disable",
			Schema:     "public",
			SQLitePath: "clusterhub.db",
		},
		Redis:   RedisConfig{Port: 6379},
		Logging: LoggingConfig{Level: "info"},
		Analysis: AnalysisConfig{
			Workers:    DefaultWorkers,
			QueueSize:  DefaultQueueSize,
			RunTimeout: DefaultRunTimeout,
			LockTTL:    DefaultLockTTL,

			SubmitRateWindow: DefaultSubmitRateWindow,
		},
		Events: EventsConfig{
			KafkaTopic:   DefaultEventTopic,
			MQTTTopic:    DefaultEventTopic,
			MQTTClientID: "clusterhub-service",
			DaprTopic:    DefaultEventTopic,
		},
		Housekeeping: HousekeepingConfig{
			Cron:  DefaultHousekeepingCron,
			Grace: DefaultHousekeepingGrace,
		},
	}
}

// Load 加载配置：默认值 -> path 指定的 YAML 文件（可为空） -> 环境变量
func Load(path string) (*ApplicationConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides 使用环境变量覆盖配置
func (c *ApplicationConfig) applyEnvOverrides() error {
	var err error

	if val := os.Getenv("LISTEN_PORT"); val != "" {
		if c.Server.Port, err = strconv.Atoi(val); err != nil {
			return fmt.Errorf("LISTEN_PORT 无效: %w", err)
		}
	}
	if val := os.Getenv("BASE_CONTEXT"); val != "" {
		c.Server.BaseContext = val
	}

	if val := os.Getenv("DB_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		c.Database.URL = val
	}
	c.Database.Host = getEnvWithDefault("DB_HOST", c.Database.Host)
	if val := os.Getenv("DB_PORT"); val != "" {
		if c.Database.Port, err = strconv.Atoi(val); err != nil {
			return fmt.Errorf("DB_PORT 无效: %w", err)
		}
	}
	c.Database.Username = getEnvWithDefault("DB_USER", c.Database.Username)
	c.Database.Password = getEnvWithDefault("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnvWithDefault("DB_NAME", c.Database.Database)
	c.Database.SSLMode = getEnvWithDefault("DB_SSLMODE", c.Database.SSLMode)
	c.Database.Schema = getEnvWithDefault("DB_SCHEMA", c.Database.Schema)
	c.Database.SQLitePath = getEnvWithDefault("SQLITE_PATH", c.Database.SQLitePath)

	c.Redis.Host = getEnvWithDefault("REDIS_HOST", c.Redis.Host)
	c.Redis.Password = getEnvWithDefault("REDIS_PASSWORD", c.Redis.Password)
	if val := os.Getenv("REDIS_PORT"); val != "" {
		if c.Redis.Port, err = strconv.Atoi(val); err != nil {
			return fmt.Errorf("REDIS_PORT 无效: %w", err)
		}
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if c.Redis.DB, err = strconv.Atoi(val); err != nil {
			return fmt.Errorf("REDIS_DB 无效: %w", err)
		}
	}

	c.Logging.Level = getEnvWithDefault("LOG_LEVEL", c.Logging.Level)

	if val := os.Getenv("ANALYSIS_WORKERS"); val != "" {
		if c.Analysis.Workers, err = strconv.Atoi(val); err != nil {
			return fmt.Errorf("ANALYSIS_WORKERS 无效: %w", err)
		}
	}
	if val := os.Getenv("ANALYSIS_QUEUE_SIZE"); val != "" {
		if c.Analysis.QueueSize, err = strconv.Atoi(val); err != nil {
			return fmt.Errorf("ANALYSIS_QUEUE_SIZE 无效: %w", err)
		}
	}
	if val := os.Getenv("ANALYSIS_RUN_TIMEOUT"); val != "" {
		if c.Analysis.RunTimeout, err = time.ParseDuration(val); err != nil {
			return fmt.Errorf("ANALYSIS_RUN_TIMEOUT 无效: %w", err)
		}
	}
	if val := os.Getenv("ANALYSIS_SUBMIT_RATE_LIMIT"); val != "" {
		if c.Analysis.SubmitRateLimit, err = strconv.Atoi(val); err != nil {
			return fmt.Errorf("ANALYSIS_SUBMIT_RATE_LIMIT 无效: %w", err)
		}
	}
	if val := os.Getenv("ANALYSIS_DEFAULT_SEED"); val != "" {
		seed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("ANALYSIS_DEFAULT_SEED 无效: %w", err)
		}
		c.Analysis.DefaultSeed = &seed
	}

	if val := os.Getenv("KAFKA_BROKERS"); val != "" {
		c.Events.KafkaBrokers = splitAndTrim(val)
	}
	c.Events.KafkaTopic = getEnvWithDefault("KAFKA_TOPIC", c.Events.KafkaTopic)
	c.Events.MQTTBroker = getEnvWithDefault("MQTT_BROKER", c.Events.MQTTBroker)
	c.Events.MQTTTopic = getEnvWithDefault("MQTT_TOPIC", c.Events.MQTTTopic)
	c.Events.DaprPubSub = getEnvWithDefault("DAPR_PUBSUB", c.Events.DaprPubSub)
	c.Events.DaprTopic = getEnvWithDefault("DAPR_TOPIC", c.Events.DaprTopic)

	c.Housekeeping.Cron = getEnvWithDefault("HOUSEKEEPING_CRON", c.Housekeeping.Cron)

	return nil
}

// Validate 校验配置
func (c *ApplicationConfig) Validate() error {
	if c.Analysis.Workers <= 0 {
		return fmt.Errorf("analysis.workers 必须大于0，当前为 %d", c.Analysis.Workers)
	}
	if c.Analysis.QueueSize <= 0 {
		return fmt.Errorf("analysis.queue_size 必须大于0，当前为 %d", c.Analysis.QueueSize)
	}
	if c.Analysis.RunTimeout <= 0 {
		return fmt.Errorf("analysis.run_timeout 必须大于0")
	}
	if c.Analysis.SubmitRateLimit > 0 && c.Analysis.SubmitRateWindow < time.Second {
		return fmt.Errorf("analysis.submit_rate_window 不能小于1秒")
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
	}
	return nil
}

// PostgresDSN 构建 PostgreSQL 连接字符串，优先使用 URL
func (d DatabaseConfig) PostgresDSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s search_path=%s TimeZone=Asia/Shanghai",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode, d.Schema)
}

// RedisEnabled 是否配置了 Redis
func (r RedisConfig) RedisEnabled() bool {
	return r.Host != ""
}

// Addr Redis 地址
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}
