package sdwebui

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"kagen/internal/pkg/debuglog"
)

// Config Stable Diffusion WebUI 配置
type Config struct {
	BaseURL string // 如 http://127.0.0.1:7860
	Timeout time.Duration
}

// Client SD WebUI 客户端
// 响应中的图片是 Base64 字符串，这里统一解码成字节
type Client struct {
	baseURL    string
	httpClient *http.Client
	dumper     *debuglog.Dumper
}

// NewClient 创建 SD WebUI 客户端
func NewClient(config Config, dumper *debuglog.Dumper) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("SD WebUI base URL is required")
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		dumper:     dumper,
	}, nil
}

// Txt2Img 调用 /sdapi/v1/txt2img
func (c *Client) Txt2Img(ctx context.Context, payload map[string]interface{}, identifier string) ([][]byte, error) {
	return c.generate(ctx, "/sdapi/v1/txt2img", payload, identifier)
}

// Img2Img 调用 /sdapi/v1/img2img
func (c *Client) Img2Img(ctx context.Context, payload map[string]interface{}, identifier string) ([][]byte, error) {
	return c.generate(ctx, "/sdapi/v1/img2img", payload, identifier)
}

func (c *Client) generate(ctx context.Context, endpoint string, payload map[string]interface{}, identifier string) ([][]byte, error) {
	c.dumper.Dump("sd", identifier, payload)

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("SD 请求失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("SD 返回错误，状态码: %d, %s", resp.StatusCode, extractError(data))
	}

	var result struct {
		Images []string `json:"images"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	if len(result.Images) == 0 {
		return nil, fmt.Errorf("SD 响应中没有图片")
	}

	images := make([][]byte, 0, len(result.Images))
	for i, b64 := range result.Images {
		// 部分扩展会返回 data URL 前缀
		if idx := strings.Index(b64, ","); idx != -1 && strings.HasPrefix(b64, "data:") {
			b64 = b64[idx+1:]
		}
		decoded, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("解码第 %d 张图片失败: %w", i+1, err)
		}
		images = append(images, decoded)
	}

	log.Info().Int("count", len(images)).Str("endpoint", endpoint).Msg("SD 图片生成完成")
	return images, nil
}

// extractError 从错误响应体中提取 detail / error 字段
func extractError(body []byte) string {
	var obj struct {
		Detail interface{} `json:"detail"`
		Error  string      `json:"error"`
	}
	if err := json.Unmarshal(body, &obj); err == nil {
		if obj.Error != "" {
			return obj.Error
		}
		if obj.Detail != nil {
			return fmt.Sprintf("%v", obj.Detail)
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
