package gptsovits

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"kagen/internal/pkg/debuglog"
)

// Config GPT-SoVITS 语音合成配置
type Config struct {
	Endpoint     string
	Timeout      time.Duration
	InitialDelay time.Duration // 下载前等待服务端准备文件
	RetryDelay   time.Duration // 下载重试间隔
	MaxRetries   int           // 下载最大重试次数
}

// Client GPT-SoVITS 客户端
// 合成接口返回 audio_url，音频文件要在固定延迟后再去下载，
// 失败时按固定间隔重试有限次
type Client struct {
	config     Config
	httpClient *http.Client
	dumper     *debuglog.Dumper
}

// NewClient 创建 GPT-SoVITS 客户端
func NewClient(config Config, dumper *debuglog.Dumper) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("GPT-SoVITS endpoint is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.InitialDelay == 0 {
		config.InitialDelay = 2 * time.Second
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 2 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		dumper:     dumper,
	}, nil
}

// SynthesisRequest 单句合成请求
type SynthesisRequest struct {
	Text           string
	TextLanguage   string
	ReferWavPath   string // 本地参考音频路径，Base64 后放进请求体
	PromptText     string
	PromptLanguage string
	HowToCut       string
	TopK           int
	TopP           float64
	Temperature    float64
	RefFreeMode    bool
}

// Synthesize 提交合成请求并返回音频下载地址
func (c *Client) Synthesize(ctx context.Context, req *SynthesisRequest, identifier string) (string, error) {
	payload := map[string]interface{}{
		"text":            req.Text,
		"text_language":   req.TextLanguage,
		"prompt_text":     req.PromptText,
		"prompt_language": req.PromptLanguage,
		"how_to_cut":      req.HowToCut,
		"top_k":           req.TopK,
		"top_p":           req.TopP,
		"temperature":     req.Temperature,
		"ref_free":        req.RefFreeMode,
	}

	if req.ReferWavPath != "" {
		audioData, err := os.ReadFile(req.ReferWavPath)
		if err != nil {
			return "", fmt.Errorf("读取参考音频失败: %w", err)
		}
		payload["refer_wav_b64"] = base64.StdEncoding.EncodeToString(audioData)
		payload["refer_wav_path"] = req.ReferWavPath
	}

	c.dumper.Dump("gptsovits", identifier, payload)

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("GPT-SoVITS 请求失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GPT-SoVITS 返回错误，状态码: %d, body: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result struct {
		AudioURL string `json:"audio_url"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("解析响应失败: %w", err)
	}
	if result.AudioURL == "" {
		msg := result.Message
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return "", fmt.Errorf("响应缺少 audio_url: %s", msg)
	}

	return result.AudioURL, nil
}

// DownloadAudio 下载合成好的音频
// 先等待 InitialDelay 让服务端写完文件，之后最多重试 MaxRetries 次
func (c *Client) DownloadAudio(ctx context.Context, audioURL string) ([]byte, error) {
	select {
	case <-time.After(c.config.InitialDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().Err(lastErr).Int("attempt", attempt).Msg("音频下载失败，重试")
			select {
			case <-time.After(c.config.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		data, err := c.downloadOnce(ctx, audioURL)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("音频下载失败（重试 %d 次）: %w", c.config.MaxRetries, lastErr)
}

func (c *Client) downloadOnce(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("下载状态码: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("下载到空音频文件")
	}
	return data, nil
}
