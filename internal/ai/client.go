package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/secaudit/secaudit-go/internal/config"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// Client Gemini 客户端
type Client struct {
	genai    *genai.Client
	model    string
	timeout  time.Duration
	observer Observer
	logger   *logrus.Logger
}

// NewClient 创建 Gemini 客户端，未配置 API key 时直接失败
func NewClient(ctx context.Context, cfg *config.AIConfig, logger *logrus.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	gc, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"model":   cfg.Model,
		"timeout": cfg.RequestTimeout().String(),
	}).Info("Gemini client initialized")

	return &Client{
		genai:   gc,
		model:   cfg.Model,
		timeout: cfg.RequestTimeout(),
		logger:  logger,
	}, nil
}

// SetObserver 设置请求观察者
func (c *Client) SetObserver(o Observer) {
	c.observer = o
}

// Close 关闭底层连接
func (c *Client) Close() error {
	return c.genai.Close()
}

// Generate 单次生成
func (c *Client) Generate(ctx context.Context, parts ...Part) (string, error) {
	model := c.genai.GenerativeModel(c.model)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := model.GenerateContent(ctx, toGenaiParts(parts)...)
	c.observe("generate", start, err)
	if err != nil {
		return "", fmt.Errorf("generate content failed: %w", err)
	}

	text := responseText(resp)
	c.logger.WithFields(logrus.Fields{
		"model":           c.model,
		"parts":           len(parts),
		"response_length": len(text),
	}).Debug("Generate completed")

	return text, nil
}

// NewSession 创建多轮会话
func (c *Client) NewSession(systemInstruction string) Session {
	model := c.genai.GenerativeModel(c.model)
	if systemInstruction != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemInstruction))
	}
	return &chatSession{client: c, cs: model.StartChat()}
}

func (c *Client) observe(operation string, start time.Time, err error) {
	if c.observer != nil {
		c.observer.ObserveModelRequest(operation, time.Since(start), err)
	}
}

// chatSession genai 会话适配，历史由 SDK 维护
type chatSession struct {
	client *Client
	mu     sync.Mutex
	cs     *genai.ChatSession
}

func (s *chatSession) Send(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.client.timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.cs.SendMessage(ctx, genai.Text(text))
	s.client.observe("chat", start, err)
	if err != nil {
		return "", fmt.Errorf("send message failed: %w", err)
	}

	return responseText(resp), nil
}

// toGenaiParts 转换为 SDK 片段
func toGenaiParts(parts []Part) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.IsInline() {
			out = append(out, genai.Blob{MIMEType: p.MIMEType, Data: p.Data})
			continue
		}
		out = append(out, genai.Text(p.Text))
	}
	return out
}

// responseText 拼接首个候选的全部文本片段
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}
