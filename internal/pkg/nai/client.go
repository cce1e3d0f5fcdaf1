package nai

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"kagen/internal/pkg/debuglog"
)

// Config NovelAI 图片生成配置
type Config struct {
	APIKey  string
	APIURL  string // 默认 https://api.novelai.net
	Timeout time.Duration
}

// Client NovelAI 图片生成客户端
// 响应是一个包含 N 张 PNG 的 Zip 包，按文件名顺序解出
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
	dumper     *debuglog.Dumper
}

// NewClient 创建 NovelAI 客户端
func NewClient(config Config, dumper *debuglog.Dumper) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("NovelAI API key is required")
	}

	apiURL := config.APIURL
	if apiURL == "" {
		apiURL = "https://api.novelai.net"
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 180 * time.Second
	}

	return &Client{
		apiURL:     strings.TrimSuffix(apiURL, "/"),
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		dumper:     dumper,
	}, nil
}

// GenerateImage 调用 /ai/generate-image 并解出响应 Zip 中的全部 PNG
// 预期失败（网络、非 2xx、响应格式）一律通过 error 返回，不向上抛异常
func (c *Client) GenerateImage(ctx context.Context, payload map[string]interface{}, identifier string) ([][]byte, error) {
	c.dumper.Dump("nai", identifier, payload)

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/ai/generate-image", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/zip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("NAI 请求失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NAI 返回错误，状态码: %d, body: %s", resp.StatusCode, summarizeError(data))
	}

	images, err := extractZip(data)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("NAI 响应 Zip 中没有图片")
	}

	log.Info().Int("count", len(images)).Msg("NAI 图片生成完成")
	return images, nil
}

// extractZip 按文件名顺序解出 Zip 中的全部文件
func extractZip(data []byte) ([][]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("解析响应 Zip 失败: %w", err)
	}

	files := make([]*zip.File, len(reader.File))
	copy(files, reader.File)
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	var images [][]byte
	for _, f := range files {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("打开 Zip 条目失败: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("读取 Zip 条目失败: %w", err)
		}
		images = append(images, content)
	}
	return images, nil
}

// summarizeError 尝试从错误响应体中提取 message 字段
func summarizeError(body []byte) string {
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
