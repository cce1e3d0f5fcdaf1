package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"kagen/internal/pkg/debuglog"
)

// GoogleConfig Google Generative Language API 配置
type GoogleConfig struct {
	APIKey  string
	Model   string
	BaseURL string // 默认 https://generativelanguage.googleapis.com
	Timeout time.Duration
	Options Options
}

// GoogleProvider Google Generative Language API 客户端
// 非流式走 :generateContent，流式走 :streamGenerateContent?alt=sse
type GoogleProvider struct {
	config     GoogleConfig
	httpClient *http.Client
	dumper     *debuglog.Dumper
}

// NewGoogleProvider 创建 Google 后端
func NewGoogleProvider(config GoogleConfig, dumper *debuglog.Dumper) (*GoogleProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("google model is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if config.Timeout == 0 {
		config.Timeout = 600 * time.Second
	}
	return &GoogleProvider{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		dumper:     dumper,
	}, nil
}

// Name 实现 Provider 接口
func (p *GoogleProvider) Name() string { return "google" }

// 四个安全类别全部设置为 BLOCK_NONE，安全拦截通过响应字段显式处理
var safetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

func (p *GoogleProvider) buildPayload(prompt string) map[string]interface{} {
	generationConfig := map[string]interface{}{}
	if p.config.Options.Temperature > 0 {
		generationConfig["temperature"] = p.config.Options.Temperature
	}
	if p.config.Options.MaxTokens > 0 {
		generationConfig["maxOutputTokens"] = p.config.Options.MaxTokens
	}
	if p.config.Options.TopP > 0 {
		generationConfig["topP"] = p.config.Options.TopP
	}
	if p.config.Options.TopK > 0 {
		generationConfig["topK"] = p.config.Options.TopK
	}

	safetySettings := make([]map[string]interface{}, 0, len(safetyCategories))
	for _, category := range safetyCategories {
		safetySettings = append(safetySettings, map[string]interface{}{
			"category":  category,
			"threshold": "BLOCK_NONE",
		})
	}

	return map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]interface{}{{"text": prompt}}},
		},
		"generationConfig": generationConfig,
		"safetySettings":   safetySettings,
	}
}

// googleResponse 单个响应块（流式与非流式共用结构）
type googleResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// checkTerminal 检查块级终态信号
// blockReason 和 STOP/MAX_TOKENS 以外的 finishReason（尤其 SAFETY）
// 都是硬错误
func (r *googleResponse) checkTerminal() error {
	if r.Error.Message != "" {
		return fmt.Errorf("google API 错误: %s", r.Error.Message)
	}
	if r.PromptFeedback.BlockReason != "" {
		return fmt.Errorf("提示词被拦截: %s", r.PromptFeedback.BlockReason)
	}
	for _, c := range r.Candidates {
		switch c.FinishReason {
		case "", "STOP", "MAX_TOKENS":
		default:
			return fmt.Errorf("生成被终止: finishReason=%s", c.FinishReason)
		}
	}
	return nil
}

func (r *googleResponse) text() string {
	var sb strings.Builder
	for _, c := range r.Candidates {
		for _, part := range c.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// Generate 实现 Provider 接口（非流式）
func (p *GoogleProvider) Generate(ctx context.Context, prompt string) (string, error) {
	payload := p.buildPayload(prompt)
	p.dumper.Dump("google", "generate", payload)

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimSuffix(p.config.BaseURL, "/"), p.config.Model, p.config.APIKey)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("google 请求失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("google 返回错误，状态码: %d, body: %s", resp.StatusCode, summarize(data))
	}

	var result googleResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("解析响应失败: %w", err)
	}
	if err := result.checkTerminal(); err != nil {
		return "", err
	}

	text := result.text()
	if text == "" {
		return "", fmt.Errorf("google 响应中没有文本内容")
	}
	return text, nil
}

// Stream 实现 Provider 接口（SSE 流式）
func (p *GoogleProvider) Stream(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	payload := p.buildPayload(prompt)
	p.dumper.Dump("google", "stream", payload)

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?key=%s&alt=sse",
		strings.TrimSuffix(p.config.BaseURL, "/"), p.config.Model, p.config.APIKey)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("google 流式请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("google 返回错误，状态码: %d, body: %s", resp.StatusCode, summarize(data))
	}

	var sb strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var chunk googleResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			log.Warn().Str("data", data).Msg("无法解析的 SSE 帧，跳过")
			continue
		}
		if err := chunk.checkTerminal(); err != nil {
			return sb.String(), err
		}

		if text := chunk.text(); text != "" {
			sb.WriteString(text)
			if onChunk != nil {
				onChunk(text)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return sb.String(), fmt.Errorf("读取 SSE 流失败: %w", err)
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("google 流式响应中没有文本内容")
	}
	return sb.String(), nil
}

func summarize(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
