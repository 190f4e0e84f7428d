package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	anthropicllm "github.com/zhouzirui/askmore/backend/internal/llm/anthropic"
	openaillm "github.com/zhouzirui/askmore/backend/internal/llm/openai"
	"github.com/zhouzirui/askmore/backend/internal/model/question"
)

// 支持的模型提供方。
const (
	ProviderArk       = "ark"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Questions QuestionConfig
	Session   SessionConfig
	Log       LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	k := koanf.New(".")
	// 环境变量名统一转为小写键，例如 LLM_PROVIDER -> llm_provider
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	src := source{k: k}

	server, err := loadServerConfig(src)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(src)
	if err != nil {
		return nil, err
	}

	questions, err := loadQuestionConfig(src)
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig(src)
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig(src)
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Questions: questions, Session: session, Log: logCfg}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(src source) (ServerConfig, error) {
	port := src.getEnvOrDefault("PORT", "8080")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider    string
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
	Timeout     time.Duration
	RateLimit   float64
	RateBurst   int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	case ProviderOpenAI, ProviderAnthropic:
		return c.APIKey != ""
	default:
		return false
	}
}

// NewChatModel 按提供方创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s 凭证或模型配置缺失，请设置 API_CREDENTIAL 与 LLM_MODEL", c.Provider)
	}

	switch c.Provider {
	case ProviderOpenAI:
		return openaillm.NewChatModel(func(o *openaillm.Options) {
			o.APIKey = c.APIKey
			o.BaseURL = c.BaseURL
			if c.Model != "" {
				o.Model = c.Model
			}
			if c.Temperature != nil {
				o.Temperature = *c.Temperature
			}
			if c.MaxTokens != nil {
				o.MaxCompletionTokens = int64(*c.MaxTokens)
			}
		}), nil

	case ProviderAnthropic:
		return anthropicllm.NewChatModel(func(o *anthropicllm.Options) {
			o.APIKey = c.APIKey
			o.BaseURL = c.BaseURL
			if c.Model != "" {
				o.Model = c.Model
			}
			if c.Temperature != nil {
				o.Temperature = *c.Temperature
			}
			if c.MaxTokens != nil {
				o.MaxTokens = int64(*c.MaxTokens)
			}
		}), nil
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	// 重试由编排器负责，SDK 内部只发一次请求
	retryTimes := 0

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		RetryTimes:  &retryTimes,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig(src source) (AIConfig, error) {
	provider := strings.ToLower(src.getEnvOrDefault("LLM_PROVIDER", ProviderArk))
	var providerKey string
	switch provider {
	case ProviderArk:
		providerKey = "ARK_API_KEY"
	case ProviderOpenAI:
		providerKey = "OPENAI_API_KEY"
	case ProviderAnthropic:
		providerKey = "ANTHROPIC_API_KEY"
	default:
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", provider)
	}

	temperature, err := src.parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		val := 0.7
		temperature = &val
	}
	if *temperature < 0 || *temperature > 2 {
		return AIConfig{}, fmt.Errorf("invalid LLM_TEMPERATURE value %v: want 0..2", *temperature)
	}

	maxTokens, err := src.parseOptionalIntEnv("LLM_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}
	if maxTokens == nil {
		val := 500
		maxTokens = &val
	}
	if *maxTokens < 1 {
		return AIConfig{}, fmt.Errorf("invalid LLM_MAX_TOKENS value %d", *maxTokens)
	}

	timeout, err := src.parseDurationEnv("LLM_TIMEOUT", 30*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	rateLimit := 2.0
	if override, err := src.parseOptionalFloatEnv("LLM_RATE_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		rateLimit = *override
	}

	rateBurst := 4
	if override, err := src.parseOptionalIntEnv("LLM_RATE_BURST"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		rateBurst = *override
	}

	apiKey := src.getEnvOrDefault("API_CREDENTIAL", src.getEnvOrDefault(providerKey, ""))

	cfg := AIConfig{
		Provider:    provider,
		APIKey:      apiKey,
		Model:       src.getEnvOrDefault("LLM_MODEL", ""),
		BaseURL:     src.getEnvOrDefault("LLM_BASE_URL", ""),
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
		RateLimit:   rateLimit,
		RateBurst:   rateBurst,
	}

	if provider == ProviderArk {
		// Ark 额外支持 AK/SK 鉴权与区域配置
		cfg.AccessKey = src.getEnvOrDefault("ARK_ACCESS_KEY", "")
		cfg.SecretKey = src.getEnvOrDefault("ARK_SECRET_KEY", "")
		cfg.Region = src.getEnvOrDefault("ARK_REGION", "cn-beijing")
		if cfg.Model == "" {
			cfg.Model = src.getEnvOrDefault("ARK_MODEL", "")
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://ark.cn-beijing.volces.com/api/v3"
		}
	}

	return cfg, nil
}

// QuestionConfig 描述问题生成的默认参数。
type QuestionConfig struct {
	NumQuestions int
	NumAnswers   int
	MaxRetries   int
	StrictCount  bool
}

func loadQuestionConfig(src source) (QuestionConfig, error) {
	numQuestions, err := src.parseIntEnv("NUM_QUESTIONS", 3)
	if err != nil {
		return QuestionConfig{}, err
	}
	if numQuestions < question.MinQuestions || numQuestions > question.MaxQuestions {
		return QuestionConfig{}, fmt.Errorf("invalid NUM_QUESTIONS value %d: want %d..%d",
			numQuestions, question.MinQuestions, question.MaxQuestions)
	}

	numAnswers, err := src.parseIntEnv("NUM_ANSWERS", 3)
	if err != nil {
		return QuestionConfig{}, err
	}
	if numAnswers < question.MinAnswers || numAnswers > question.MaxAnswers {
		return QuestionConfig{}, fmt.Errorf("invalid NUM_ANSWERS value %d: want %d..%d",
			numAnswers, question.MinAnswers, question.MaxAnswers)
	}

	maxRetries, err := src.parseIntEnv("MAX_RETRIES", 4)
	if err != nil {
		return QuestionConfig{}, err
	}
	if maxRetries < 1 {
		return QuestionConfig{}, fmt.Errorf("invalid MAX_RETRIES value %d: want at least 1", maxRetries)
	}

	strict, err := src.parseBoolEnv("QUESTION_STRICT_COUNT", false)
	if err != nil {
		return QuestionConfig{}, err
	}

	return QuestionConfig{
		NumQuestions: numQuestions,
		NumAnswers:   numAnswers,
		MaxRetries:   maxRetries,
		StrictCount:  strict,
	}, nil
}

// SessionConfig 描述会话生命周期配置。
type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

func loadSessionConfig(src source) (SessionConfig, error) {
	ttl, err := src.parseDurationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}
	if ttl <= 0 {
		return SessionConfig{}, fmt.Errorf("invalid SESSION_TTL value %s", ttl)
	}

	// 0 表示关闭定期清理
	sweep, err := src.parseDurationEnv("SESSION_SWEEP_INTERVAL", 10*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}
	if sweep < 0 {
		return SessionConfig{}, fmt.Errorf("invalid SESSION_SWEEP_INTERVAL value %s", sweep)
	}

	return SessionConfig{TTL: ttl, SweepInterval: sweep}, nil
}

// LogConfig 描述日志输出配置。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig(src source) (LogConfig, error) {
	format := strings.ToLower(src.getEnvOrDefault("LOG_FORMAT", "json"))
	if format != "json" && format != "console" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q: want json or console", format)
	}
	return LogConfig{
		Level:  strings.ToLower(src.getEnvOrDefault("LOG_LEVEL", "info")),
		Format: format,
	}, nil
}
