package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings + 回答生成）
	OpenAI OpenAIConfig

	// 取り込み・検索のチューニング設定
	Retrieval RetrievalConfig

	// HTTPサーバ設定
	Server ServerConfig

	// ログ設定
	LogLevel string
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	LLMModel           string
}

// RetrievalConfig はチャンク化とハイブリッド検索の設定。
// 融合の重みは既存システムで観測された定数をデフォルトとする。
type RetrievalConfig struct {
	ChunkSize      int     // チャンク最大文字数
	ChunkOverlap   int     // 同一ページ内のオーバーラップ文字数
	CandidatePool  int     // ベクトル検索の候補取得数（融合前）
	SemanticWeight float64 // 意味類似度の重み
	TFIDFWeight    float64 // TF-IDFの重み
	KeywordWeight  float64 // キーワード一致の重み
}

// ServerConfig はHTTPサーバ設定
type ServerConfig struct {
	Port      int
	APITokens string // "token:callerID" をカンマ区切りで列挙
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "docquery"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "docquery"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			LLMModel:           getEnv("OPENAI_LLM_MODEL", "gpt-4o-mini"),
		},
		Retrieval: RetrievalConfig{
			ChunkSize:      getEnvAsInt("CHUNK_SIZE", 1000),
			ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", 200),
			CandidatePool:  getEnvAsInt("SEARCH_CANDIDATE_POOL", 50),
			SemanticWeight: getEnvAsFloat("FUSION_SEMANTIC_WEIGHT", 0.6),
			TFIDFWeight:    getEnvAsFloat("FUSION_TFIDF_WEIGHT", 0.3),
			KeywordWeight:  getEnvAsFloat("FUSION_KEYWORD_WEIGHT", 0.1),
		},
		Server: ServerConfig{
			Port:      getEnvAsInt("HTTP_PORT", 8080),
			APITokens: getEnv("API_TOKENS", ""),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
