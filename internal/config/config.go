package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Redis (rate-limit counters)
	RedisURL string

	// JWT
	JWTSecret string

	// Providers
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	MistralBaseURL    string
	MistralAPIKey     string
	DeepSeekBaseURL   string
	DeepSeekAPIKey    string
	AppReferer        string

	// Models
	DefaultModel            string
	ProModel                string
	ProModelAlias           string
	VisionModel             string
	StandaloneQuestionModel string

	// RAG
	RAGEndpoint         string
	RAGAPIKey           string
	RAGMinMessageLength int
	SimilarityTopK      int

	// Moderation
	OpenAIBaseURL         string
	OpenAIAPIKey          string
	ModerationTimeoutSecs int
	ModerationThreshold   float64

	// Plugin detector
	UsePluginDetector        bool
	DetectorMaxMessageLength int

	// Web search tool
	WebSearchEndpoint string
	WebSearchAPIKey   string

	// Rate limits (requests per window)
	ChatRateLimit       int
	ChatProRateLimit    int
	DetectorRateLimit   int
	RateLimitWindowMins int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:      getEnvOrDefault("PORT", "8080"),
		Env:       getEnvOrDefault("ENV", "development"),
		RedisURL:  mustGetEnv("REDIS_URL"),
		JWTSecret: mustGetEnv("JWT_SECRET"),

		OpenRouterBaseURL: getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterAPIKey:  mustGetEnv("OPENROUTER_API_KEY"),
		MistralBaseURL:    getEnvOrDefault("MISTRAL_BASE_URL", "https://api.mistral.ai/v1"),
		MistralAPIKey:     getEnvOrDefault("MISTRAL_API_KEY", ""),
		DeepSeekBaseURL:   getEnvOrDefault("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1"),
		DeepSeekAPIKey:    getEnvOrDefault("DEEPSEEK_API_KEY", ""),
		AppReferer:        getEnvOrDefault("APP_REFERER", "https://chatgate.app"),

		DefaultModel:            getEnvOrDefault("CHAT_DEFAULT_MODEL", "mistralai/mistral-small"),
		ProModel:                getEnvOrDefault("CHAT_PRO_MODEL", "mistralai/mistral-large"),
		ProModelAlias:           getEnvOrDefault("CHAT_PRO_MODEL_ALIAS", "mistral-large"),
		VisionModel:             getEnvOrDefault("CHAT_VISION_MODEL", "pixtral-large-2411"),
		StandaloneQuestionModel: getEnvOrDefault("STANDALONE_QUESTION_MODEL", "mistralai/mistral-small"),

		RAGEndpoint:         getEnvOrDefault("RAG_ENDPOINT", ""),
		RAGAPIKey:           getEnvOrDefault("RAG_API_KEY", ""),
		RAGMinMessageLength: getEnvAsIntOrDefault("RAG_MIN_MESSAGE_LENGTH", 25),
		SimilarityTopK:      getEnvAsIntOrDefault("RAG_SIMILARITY_TOP_K", 3),

		OpenAIBaseURL:         getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIAPIKey:          getEnvOrDefault("OPENAI_API_KEY", ""),
		ModerationTimeoutSecs: getEnvAsIntOrDefault("MODERATION_TIMEOUT_SECONDS", 10),
		ModerationThreshold:   getEnvAsFloatOrDefault("MODERATION_THRESHOLD", 0.9),

		UsePluginDetector:        getEnvAsBoolOrDefault("USE_PLUGIN_DETECTOR", false),
		DetectorMaxMessageLength: getEnvAsIntOrDefault("DETECTOR_MAX_MESSAGE_LENGTH", 2000),

		WebSearchEndpoint: getEnvOrDefault("WEB_SEARCH_ENDPOINT", ""),
		WebSearchAPIKey:   getEnvOrDefault("WEB_SEARCH_API_KEY", ""),

		ChatRateLimit:       getEnvAsIntOrDefault("RATE_LIMIT_CHAT", 30),
		ChatProRateLimit:    getEnvAsIntOrDefault("RATE_LIMIT_CHAT_PRO", 60),
		DetectorRateLimit:   getEnvAsIntOrDefault("RATE_LIMIT_PLUGIN_DETECTOR", 60),
		RateLimitWindowMins: getEnvAsIntOrDefault("RATE_LIMIT_WINDOW_MINUTES", 180),

		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return strings.EqualFold(val, "true")
}
