// Package llm 文本生成与向量化客户端
package llm

import (
	"context"
	"fmt"
	"time"
)

type Request struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type Config struct {
	Provider       string
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Dimension      int
	Timeout        time.Duration
}

// HTTPError 上游返回非 2xx
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300]
	}
	return fmt.Sprintf("llm http %d: %s", e.StatusCode, body)
}

func (e *HTTPError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// New 按 provider 构造文本生成客户端与向量化客户端
func New(ctx context.Context, cfg Config) (Client, Embedder, error) {
	switch cfg.Provider {
	case "", "openai":
		c := NewOpenAI(cfg)
		return c, c, nil
	case "gemini":
		c, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	default:
		return nil, nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
