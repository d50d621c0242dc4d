package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-1.5-flash"
)

// ErrMissingAPIKey the model was called without credentials
var ErrMissingAPIKey = errors.New("missing GEMINI_API_KEY")

// TextModel generates text for a prompt
type TextModel interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// GeminiOptions Gemini 客户端配置
type GeminiOptions struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GeminiClient Gemini generateContent API 客户端
type GeminiClient struct {
	httpClient *resty.Client
	apiKey     string
	model      string
	logger     *zap.Logger
}

// NewGeminiClient 创建 Gemini 客户端。No retries: a failed call becomes fallback text.
func NewGeminiClient(opts GeminiOptions, logger *zap.Logger) *GeminiClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultGeminiBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &GeminiClient{
		httpClient: client,
		apiKey:     opts.APIKey,
		model:      opts.Model,
		logger:     logger,
	}
}

var _ TextModel = (*GeminiClient)(nil)

// GenerateText 调用 models/{model}:generateContent
func (c *GeminiClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	request := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	}

	var response geminiResponse
	var apiErr geminiError
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", c.apiKey).
		SetPathParam("model", c.model).
		SetBody(request).
		SetResult(&response).
		SetError(&apiErr).
		Post("/v1beta/models/{model}:generateContent")

	if err != nil {
		c.logger.Error("Gemini API call failed", zap.String("model", c.model), zap.Error(err))
		return "", fmt.Errorf("failed to call Gemini API: %w", err)
	}

	if resp.IsError() {
		c.logger.Error("Gemini API returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("status", apiErr.Error.Status),
			zap.String("msg", apiErr.Error.Message),
		)
		if apiErr.Error.Message != "" {
			return "", fmt.Errorf("Gemini API error: %s (status: %d)", apiErr.Error.Message, resp.StatusCode())
		}
		return "", fmt.Errorf("Gemini API error: status %d", resp.StatusCode())
	}

	if len(response.Candidates) == 0 {
		if response.PromptFeedback != nil && response.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("Gemini blocked the prompt: %s", response.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("empty response from Gemini")
	}

	var texts []string
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	if len(texts) == 0 {
		return "", fmt.Errorf("empty text in Gemini response (finish reason: %s)", response.Candidates[0].FinishReason)
	}

	c.logger.Info("Gemini response received",
		zap.String("model", c.model),
		zap.Int("candidates", len(response.Candidates)),
	)
	return strings.Join(texts, "\n"), nil
}
