package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	Database      DatabaseConfig      `json:"database" yaml:"database"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	Redis         RedisConfig         `json:"redis" yaml:"redis"`
	Elasticsearch ElasticsearchConfig `json:"elasticsearch" yaml:"elasticsearch"`
	Kafka         KafkaConfig         `json:"kafka" yaml:"kafka"`
	Prometheus    PrometheusConfig    `json:"prometheus" yaml:"prometheus"`
	Notice        NoticeConfig        `json:"notice" yaml:"notice"`
	Strategy      StrategyConfig      `json:"strategy" yaml:"strategy"`
	AIOps         AIOpsConfig         `json:"aiops" yaml:"aiops"`
}

type ServerConfig struct {
	BindAddr        string `json:"bindAddr" yaml:"bind_addr"`
	ChartRenderAddr string `json:"chartRenderAddr" yaml:"chart_render_addr"`
	ShutdownTimeout string `json:"shutdownTimeout" yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"dbname" yaml:"dbname"`
	SSLMode  string `json:"sslmode" yaml:"sslmode"`
}

// DSN libpq 格式连接串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

type ElasticsearchConfig struct {
	URLs          []string `json:"urls" yaml:"urls"`
	Username      string   `json:"username" yaml:"username"`
	Password      string   `json:"password" yaml:"password"`
	AlertIndex    string   `json:"alertIndex" yaml:"alert_index"`
	EventIndex    string   `json:"eventIndex" yaml:"event_index"`
	AlertLogIndex string   `json:"alertLogIndex" yaml:"alert_log_index"`
	// BucketLimit 单次聚合的桶上限
	BucketLimit int `json:"bucketLimit" yaml:"bucket_limit"`
}

type KafkaConfig struct {
	Brokers     []string `json:"brokers" yaml:"brokers"`
	GroupID     string   `json:"groupID" yaml:"group_id"`
	RenderTopic string   `json:"renderTopic" yaml:"render_topic"`
	OutputTopic string   `json:"outputTopic" yaml:"output_topic"`
	Enabled     bool     `json:"enabled" yaml:"enabled"`
}

type PrometheusConfig struct {
	URL          string `json:"url" yaml:"url"`
	QueryTimeout string `json:"queryTimeout" yaml:"query_timeout"`
}

type NoticeConfig struct {
	Language           string   `json:"language" yaml:"language"`
	Timezone           string   `json:"timezone" yaml:"timezone"`
	EventCenterURL     string   `json:"eventCenterURL" yaml:"event_center_url"`
	MobileURL          string   `json:"mobileURL" yaml:"mobile_url"`
	MonitorHost        string   `json:"monitorHost" yaml:"monitor_host"`
	MarkdownNoticeWays []string `json:"markdownNoticeWays" yaml:"markdown_notice_ways"`
	MobileNoticeWays   []string `json:"mobileNoticeWays" yaml:"mobile_notice_ways"`
	ChartRenderEnabled bool     `json:"chartRenderEnabled" yaml:"chart_render_enabled"`
	ChartRenderURL     string   `json:"chartRenderURL" yaml:"chart_render_url"`
	PointPrecision     int      `json:"pointPrecision" yaml:"point_precision"`
	ActionTimeout      string   `json:"actionTimeout" yaml:"action_timeout"`
	MaxActionTimeout   string   `json:"maxActionTimeout" yaml:"max_action_timeout"`
}

type StrategyConfig struct {
	TenantID          string `json:"tenantID" yaml:"tenant_id"`
	FacetWorkers      int    `json:"facetWorkers" yaml:"facet_workers"`
	RequestTimeout    string `json:"requestTimeout" yaml:"request_timeout"`
	ScenarioLabelFile string `json:"scenarioLabelFile" yaml:"scenario_label_file"`
}

type AIOpsConfig struct {
	URL        string  `json:"url" yaml:"url"`
	Timeout    string  `json:"timeout" yaml:"timeout"`
	EnabledBiz []int64 `json:"enabledBiz" yaml:"enabled_biz"`
}

func Load() (*Config, error) {
	configFile := flag.String("f", "", "Path to configuration file")
	flag.Parse()
	return LoadFile(*configFile)
}

// LoadFile 环境变量给出默认值，文件覆盖
func LoadFile(configFile string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			BindAddr:        getEnv("SERVER_BIND_ADDR", "0.0.0.0:8080"),
			ChartRenderAddr: getEnv("CHART_RENDER_BIND_ADDR", ":9999"),
			ShutdownTimeout: getEnv("SERVER_SHUTDOWN_TIMEOUT", "10s"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "bkmonitor"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "debug"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Elasticsearch: ElasticsearchConfig{
			URLs:          getEnvList("ES_URLS", []string{"http://localhost:9200"}),
			Username:      getEnv("ES_USERNAME", ""),
			Password:      getEnv("ES_PASSWORD", ""),
			AlertIndex:    getEnv("ES_ALERT_INDEX", "bkfta_alert*"),
			EventIndex:    getEnv("ES_EVENT_INDEX", "bkfta_event*"),
			AlertLogIndex: getEnv("ES_ALERT_LOG_INDEX", "bkfta_alert_log*"),
			BucketLimit:   getEnvInt("ES_BUCKET_LIMIT", 10000),
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID:     getEnv("KAFKA_GROUP_ID", "alertcore-render"),
			RenderTopic: getEnv("KAFKA_RENDER_TOPIC", "bkmonitor_notice_render"),
			OutputTopic: getEnv("KAFKA_OUTPUT_TOPIC", "bkmonitor_notice_rendered"),
			Enabled:     getEnvBool("KAFKA_ENABLED", false),
		},
		Prometheus: PrometheusConfig{
			URL:          getEnv("PROMETHEUS_URL", "http://localhost:9090"),
			QueryTimeout: getEnv("PROMETHEUS_QUERY_TIMEOUT", "30s"),
		},
		Notice: NoticeConfig{
			Language:           getEnv("NOTICE_LANGUAGE", "zh"),
			Timezone:           getEnv("NOTICE_TIMEZONE", "Asia/Shanghai"),
			EventCenterURL:     getEnv("EVENT_CENTER_URL", "http://localhost/?bizId={bk_biz_id}#/event-center/detail/{action_id}?actionId={collect_id}"),
			MobileURL:          getEnv("MOBILE_URL", "http://localhost/weixin/?bizId={bk_biz_id}&collectId={collect_id}"),
			MonitorHost:        getEnv("BK_MONITOR_HOST", "http://localhost/"),
			MarkdownNoticeWays: getEnvList("MD_SUPPORTED_NOTICE_WAYS", []string{"wxwork-bot", "bkchat", "markdown"}),
			MobileNoticeWays:   getEnvList("MOBILE_NOTICE_WAYS", []string{"weixin", "rtx"}),
			ChartRenderEnabled: getEnvBool("GRAPH_RENDER_SERVICE_ENABLED", false),
			ChartRenderURL:     getEnv("GRAPH_RENDER_SERVICE_URL", "http://localhost:9999"),
			PointPrecision:     getEnvInt("CHART_POINT_PRECISION", 2),
			ActionTimeout:      getEnv("ACTION_TIMEOUT", "10s"),
			MaxActionTimeout:   getEnv("MAX_ACTION_TIMEOUT", "60s"),
		},
		Strategy: StrategyConfig{
			TenantID:          getEnv("BK_TENANT_ID", "system"),
			FacetWorkers:      getEnvInt("STRATEGY_FACET_WORKERS", 10),
			RequestTimeout:    getEnv("STRATEGY_REQUEST_TIMEOUT", "30s"),
			ScenarioLabelFile: getEnv("SCENARIO_LABEL_FILE", ""),
		},
		AIOps: AIOpsConfig{
			URL:     getEnv("AIOPS_URL", ""),
			Timeout: getEnv("AIOPS_TIMEOUT", "5s"),
		},
	}

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			log.Error().Err(err).Str("file", configFile).Msg("load config file failed")
			return nil, err
		}
	}

	// fill reasonable defaults when fields omitted in file
	if cfg.Server.BindAddr == "" {
		cfg.Server.BindAddr = "0.0.0.0:8080"
	}
	if cfg.Server.ChartRenderAddr == "" {
		cfg.Server.ChartRenderAddr = ":9999"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Elasticsearch.BucketLimit <= 0 {
		cfg.Elasticsearch.BucketLimit = 10000
	}
	if cfg.Notice.Language == "" {
		cfg.Notice.Language = "zh"
	}
	if cfg.Notice.Timezone == "" {
		cfg.Notice.Timezone = "Asia/Shanghai"
	}
	if cfg.Notice.PointPrecision <= 0 {
		cfg.Notice.PointPrecision = 2
	}
	if cfg.Strategy.FacetWorkers <= 0 {
		cfg.Strategy.FacetWorkers = 10
	}
	if cfg.Strategy.TenantID == "" {
		cfg.Strategy.TenantID = "system"
	}

	return cfg, nil
}

// Validate 返回非致命的配置诊断信息，由调用方记录
func (c *Config) Validate() []string {
	var diags []string
	timeout := ParseDuration(c.Notice.ActionTimeout, 10*time.Second)
	maxTimeout := ParseDuration(c.Notice.MaxActionTimeout, 60*time.Second)
	if timeout > maxTimeout {
		diags = append(diags, fmt.Sprintf("notice.actionTimeout %s exceeds notice.maxActionTimeout %s, %s is used", timeout, maxTimeout, maxTimeout))
	}
	if c.Notice.ChartRenderEnabled && c.Notice.ChartRenderURL == "" {
		diags = append(diags, "notice.chartRenderEnabled is set without notice.chartRenderURL, charts are skipped")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		diags = append(diags, "kafka.enabled is set without brokers, render worker is not started")
	}
	return diags
}

func loadFromFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	return nil
}

// ParseDuration 解析失败时返回默认值
func ParseDuration(s string, d time.Duration) time.Duration {
	if s == "" {
		return d
	}
	if v, err := time.ParseDuration(s); err == nil {
		return v
	}
	return d
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvList 逗号分隔
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
