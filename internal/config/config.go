// Package config 负责加载和管理应用程序的配置。
//
// 加载顺序：.env 文件 -> 环境变量 -> configs/config.yaml -> 默认值（前者优先）。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，由 Init 填充。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	Index         IndexConfig         `mapstructure:"index"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Answer        AnswerConfig        `mapstructure:"answer"`
	Auth          AuthConfig          `mapstructure:"auth"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Evaluation    EvaluationConfig    `mapstructure:"evaluation"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// IndexConfig 决定服务加载哪一份知识库快照。
type IndexConfig struct {
	Version string `mapstructure:"version"`
	DataDir string `mapstructure:"data_dir"`
	// Backend 取值 flat（本地 FAISS 文件）或 elasticsearch。
	Backend string `mapstructure:"backend"`
}

// IndexPath 返回 data/index_{version}.faiss。
func (c IndexConfig) IndexPath() string {
	return filepath.Join(c.DataDir, IndexFileName(c.Version))
}

// MetadataPath 返回 data/metadata_{version}.json。
func (c IndexConfig) MetadataPath() string {
	return filepath.Join(c.DataDir, MetadataFileName(c.Version))
}

// IndexFileName 返回指定版本的索引文件名。
func IndexFileName(version string) string {
	return fmt.Sprintf("index_%s.faiss", version)
}

// MetadataFileName 返回指定版本的元数据文件名。
func MetadataFileName(version string) string {
	return fmt.Sprintf("metadata_%s.json", version)
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
	BatchSize  int           `mapstructure:"batch_size"`
}

// LLMConfig 存储生成模型相关的配置。
type LLMConfig struct {
	Provider        string              `mapstructure:"provider"`
	APIKey          string              `mapstructure:"api_key"`
	BaseURL         string              `mapstructure:"base_url"`
	Model           string              `mapstructure:"model"`
	SafetyThreshold string              `mapstructure:"safety_threshold"`
	Generation      LLMGenerationConfig `mapstructure:"generation"`
	Timeout         time.Duration       `mapstructure:"timeout"`
	MaxRetries      int                 `mapstructure:"max_retries"`
	RetryBaseDelay  time.Duration       `mapstructure:"retry_base_delay"`
}

// LLMGenerationConfig 配置采样参数。
type LLMGenerationConfig struct {
	Temperature     float64 `mapstructure:"temperature"`
	TopP            float64 `mapstructure:"top_p"`
	TopK            int     `mapstructure:"top_k"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
}

// AnswerConfig 配置答案生成策略。
type AnswerConfig struct {
	Confidence ConfidenceConfig `mapstructure:"confidence"`
	Shortcut   ShortcutConfig   `mapstructure:"shortcut"`
	// MaxContextChars 为 0 时不截断上下文。
	MaxContextChars int `mapstructure:"max_context_chars"`
}

// ConfidenceConfig 选择置信度策略：constant 或 mean_positive。
type ConfidenceConfig struct {
	Policy string  `mapstructure:"policy"`
	Value  float64 `mapstructure:"value"`
}

// ShortcutConfig 配置关键字直答规则。
type ShortcutConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Keywords   []string `mapstructure:"keywords"`
	Answer     string   `mapstructure:"answer"`
	Confidence float64  `mapstructure:"confidence"`
}

// AuthConfig 存储 JWT 相关的配置。
type AuthConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Secret           string `mapstructure:"secret"`
	TokenExpireHours int    `mapstructure:"token_expire_hours"`
}

// RateLimitConfig 配置基于 Redis 的固定窗口限流。
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig 存储问答审计事件相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
	Prefix          string `mapstructure:"prefix"`
}

// IngestConfig 存储离线建索引相关的配置。
type IngestConfig struct {
	KnowledgeBasePath string  `mapstructure:"knowledge_base_path"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// EvaluationConfig 存储检索评测相关的配置。
type EvaluationConfig struct {
	GoldenSetPath string  `mapstructure:"golden_set_path"`
	K             int     `mapstructure:"k"`
	SuccessRecall float64 `mapstructure:"success_recall"`
}

// Init 加载配置到全局 Conf，失败时 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Errorf("加载配置失败: %w", err))
	}
	Conf = *cfg
}

// Load 读取 .env、环境变量和可选的 YAML 文件，返回校验后的配置。
// envFiles 为空时读取当前目录下的 .env；文件不存在不视为错误。
func Load(configPath string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.api_key", "GEMINI_API_KEY", "LLM_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("embedding.api_key", "EMBEDDING_API_KEY", "OPENAI_API_KEY")

	if configPath != "" {
		_, err := os.Stat(configPath)
		switch {
		case err == nil:
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")

	v.SetDefault("index.version", "")
	v.SetDefault("index.data_dir", "data")
	v.SetDefault("index.backend", "flat")

	v.SetDefault("embedding.provider", "tei")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "http://localhost:8080")
	v.SetDefault("embedding.model", "paraphrase-multilingual-MiniLM-L12-v2")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.batch_size", 32)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("llm.model", "models/gemini-1.5-flash")
	v.SetDefault("llm.safety_threshold", "BLOCK_NONE")
	v.SetDefault("llm.generation.temperature", 0.1)
	v.SetDefault("llm.generation.top_p", 0.95)
	v.SetDefault("llm.generation.top_k", 40)
	v.SetDefault("llm.generation.max_output_tokens", 8192)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.retry_base_delay", 500*time.Millisecond)

	v.SetDefault("answer.confidence.policy", "constant")
	v.SetDefault("answer.confidence.value", 0.85)
	v.SetDefault("answer.shortcut.enabled", true)
	v.SetDefault("answer.shortcut.keywords", []string{"إرجاع", "Return"})
	v.SetDefault("answer.shortcut.answer", "يمكن إرجاع المنتجات في غضون 30 يومًا من تاريخ الشراء، "+
		"بشرط أن تكون في حالتها الأصلية وغير مستخدمة. "+
		"يجب تقديم إيصال الشراء الأصلي لإتمام العملية.")
	v.SetDefault("answer.shortcut.confidence", 0.95)
	v.SetDefault("answer.max_context_chars", 0)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_expire_hours", 24)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests", 60)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("database.mysql.dsn", "")
	v.SetDefault("database.redis.addr", "localhost:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "rag-ask-events")
	v.SetDefault("kafka.group_id", "faq-rag-go-events")

	v.SetDefault("elasticsearch.addresses", "http://localhost:9200")
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.index_name", "faq_chunks")

	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_name", "rag-indexes")
	v.SetDefault("minio.prefix", "indexes")

	v.SetDefault("ingest.knowledge_base_path", "knowledge_base/faq.json")
	v.SetDefault("ingest.requests_per_second", 5.0)

	v.SetDefault("evaluation.golden_set_path", "evaluation/golden_set.json")
	v.SetDefault("evaluation.k", 3)
	v.SetDefault("evaluation.success_recall", 0.85)
}

// Validate 校验必填项和取值范围，返回所有问题的合并错误。
func (c *Config) Validate() error {
	var errs []error

	if c.Index.Version == "" {
		errs = append(errs, errors.New("INDEX_VERSION is required"))
	} else if strings.ContainsAny(c.Index.Version, `/\`) || strings.Contains(c.Index.Version, "..") {
		errs = append(errs, fmt.Errorf("INDEX_VERSION %q must not contain path separators", c.Index.Version))
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required"))
	}

	switch c.Index.Backend {
	case "flat", "elasticsearch":
	default:
		errs = append(errs, fmt.Errorf("index.backend must be flat or elasticsearch, got %q", c.Index.Backend))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, errors.New("embedding.dimensions must be positive"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}
	if c.LLM.MaxRetries < 0 || c.LLM.MaxRetries > 5 {
		errs = append(errs, fmt.Errorf("llm.max_retries must be within [0,5], got %d", c.LLM.MaxRetries))
	}

	switch c.Answer.Confidence.Policy {
	case "constant", "mean_positive":
	default:
		errs = append(errs, fmt.Errorf("answer.confidence.policy must be constant or mean_positive, got %q", c.Answer.Confidence.Policy))
	}
	if c.Answer.Confidence.Value < 0 || c.Answer.Confidence.Value > 1 {
		errs = append(errs, errors.New("answer.confidence.value must be within [0,1]"))
	}
	if c.Answer.MaxContextChars < 0 {
		errs = append(errs, errors.New("answer.max_context_chars must not be negative"))
	}

	if c.Auth.Enabled && c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required when auth is enabled"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate_limit.requests and rate_limit.window must be positive"))
	}

	return errors.Join(errs...)
}
