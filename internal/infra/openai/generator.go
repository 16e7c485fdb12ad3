package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	// DefaultChatModel はデフォルトで使用するOpenAIモデル
	DefaultChatModel = "gpt-4o-mini"

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second

	// MaxRetries はレート制限エラー時の最大リトライ回数
	MaxRetries = 3

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

	// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// Generator は OpenAI API を使用したテキスト生成クライアント
type Generator struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// GeneratorOption は Generator のオプション設定
type GeneratorOption func(*Generator)

// WithChatModel はモデル名を上書きする
func WithChatModel(model string) GeneratorOption {
	return func(g *Generator) {
		g.model = model
	}
}

// WithTimeout はAPIコールのタイムアウトを上書きする
func WithTimeout(timeout time.Duration) GeneratorOption {
	return func(g *Generator) {
		g.timeout = timeout
	}
}

// NewGenerator は新しい Generator を作成する
func NewGenerator(apiKey string, opts ...GeneratorOption) (*Generator, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	g := &Generator{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   DefaultChatModel,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// ModelName はモデル名を返す
func (g *Generator) ModelName() string {
	return g.model
}

// Generate は OpenAI API を使用してテキストを生成する。
// タイムアウトは試行ごとに適用し、レート制限・サーバエラー・タイムアウトは
// Exponential Backoffでリトライする。
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoffDuration(attempt)):
			}
		}

		answer, err := g.generateOnce(ctx, prompt)
		if err == nil {
			return answer, nil
		}
		lastErr = err
		// 呼び出し元のコンテキストが生きている間だけリトライする
		if isTransientError(err) && ctx.Err() == nil {
			continue
		}
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}

	return "", fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// generateOnce は1回分のAPI呼び出しを試行ごとのタイムアウト付きで実行する
func (g *Generator) generateOnce(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	completion, err := g.client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	return completion.Choices[0].Message.Content, nil
}

// backoffDuration はattempt回目のリトライ前の待機時間を返す
func backoffDuration(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-1))) * BaseBackoff
	if d > MaxBackoff {
		d = MaxBackoff
	}
	return d
}

// isTransientError は一時的な失敗（タイムアウト・レート制限・サーバエラー）
// を判定する。これらはリトライで回復する可能性がある。
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
