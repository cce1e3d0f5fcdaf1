package comfyui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrExecution 工作流执行失败（服务端报告 execution_error / node_errors），
// 属于终态错误，不触发轮询回退也不重试
var ErrExecution = errors.New("comfyui execution error")

// Client ComfyUI API 客户端
// 完成检测优先使用 WebSocket，任何 WS 连接/通信异常都静默回退到
// HTTP 轮询：很多 ComfyUI 部署屏蔽了 WebSocket 但允许 HTTP
type Client struct {
	config      *Config
	apiURL      string
	fallbackURL string
	apiRoot     string
	serverBase  string
	httpClient  *http.Client
	uploadCache *gocache.Cache
}

// NewClient 创建 ComfyUI 客户端
func NewClient(config *Config) *Client {
	config.Defaults()
	apiURL := normalizePromptURL(config.APIURL)
	return &Client{
		config:      config,
		apiURL:      apiURL,
		fallbackURL: getFallbackPromptURL(apiURL),
		apiRoot:     getAPIRoot(apiURL),
		serverBase:  getServerBase(apiURL),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		// 同一参考图在一次运行的多个任务间复用，按本地路径缓存
		// 服务端文件名，避免重复上传
		uploadCache: gocache.New(time.Hour, 10*time.Minute),
	}
}

// Submit 提交工作流，返回 prompt_id
// 响应中的 error / node_errors 是终态失败，不做重试；
// 404/405 时尝试备用 /prompt 端点
func (c *Client) Submit(ctx context.Context, graph Graph, clientID string) (string, error) {
	payload := map[string]interface{}{
		"prompt":    graph,
		"client_id": clientID,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal workflow payload: %w", err)
	}

	promptID, status, err := c.submitRequest(ctx, c.apiURL, payloadBytes)
	if err == nil {
		return promptID, nil
	}
	if status == http.StatusNotFound || status == http.StatusMethodNotAllowed {
		log.Warn().Str("fallback_url", c.fallbackURL).Msg("提交端点返回错误，尝试回退到备用端点")
		promptID, _, err = c.submitRequest(ctx, c.fallbackURL, payloadBytes)
		if err == nil {
			return promptID, nil
		}
	}
	return "", err
}

func (c *Client) submitRequest(ctx context.Context, apiURL string, payload []byte) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("请求错误: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, fmt.Errorf("提交失败，状态码: %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var data struct {
		PromptID   string                 `json:"prompt_id"`
		Error      interface{}            `json:"error"`
		NodeErrors map[string]interface{} `json:"node_errors"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return "", resp.StatusCode, fmt.Errorf("解析提交响应失败: %w", err)
	}

	if data.Error != nil || len(data.NodeErrors) > 0 {
		return "", resp.StatusCode, fmt.Errorf("%w: error=%v node_errors=%v", ErrExecution, data.Error, data.NodeErrors)
	}
	if data.PromptID == "" {
		return "", resp.StatusCode, fmt.Errorf("提交响应缺少 prompt_id")
	}

	return data.PromptID, resp.StatusCode, nil
}

// UploadImage 通过 /upload/image 上传本地参考图或蒙版
// 返回服务端分配的文件名（写入 LoadImage 节点的是它，不是本地路径）
func (c *Client) UploadImage(ctx context.Context, localPath string) (string, error) {
	if cached, ok := c.uploadCache.Get(localPath); ok {
		return cached.(string), nil
	}

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("打开文件失败: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", filepath.Base(localPath))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copy file: %w", err)
	}
	_ = writer.WriteField("overwrite", "true")
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	uploadURL := c.apiRoot + "/upload/image"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("上传请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取上传响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("上传失败，状态码: %d, body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var data struct {
		Name      string `json:"name"`
		Subfolder string `json:"subfolder"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("解析上传响应失败: %w", err)
	}
	if data.Name == "" {
		return "", fmt.Errorf("上传响应缺少文件名")
	}

	serverName := data.Name
	if data.Subfolder != "" {
		serverName = data.Subfolder + "/" + data.Name
	}
	c.uploadCache.Set(localPath, serverName, gocache.DefaultExpiration)

	log.Info().Str("local", localPath).Str("server", serverName).Msg("参考图上传完成")
	return serverName, nil
}

// WaitForCompletion 等待工作流执行完成
// clientID 非空时先走 WebSocket；WS 传输层的任何异常都回退到轮询，
// 服务端报告的 execution_error 则直接终态失败
func (c *Client) WaitForCompletion(ctx context.Context, promptID, clientID string) error {
	if clientID != "" {
		err := c.waitWebSocket(ctx, promptID, clientID)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrExecution) {
			return err
		}
		log.Warn().Err(err).Msg("WebSocket 等待失败，回退到 HTTP 轮询")
	}
	return c.waitPolling(ctx, promptID)
}

// wsFrame ComfyUI WebSocket JSON 帧
type wsFrame struct {
	Type string `json:"type"`
	Data struct {
		Node     *string `json:"node"`
		PromptID string  `json:"prompt_id"`
	} `json:"data"`
}

func (c *Client) waitWebSocket(ctx context.Context, promptID, clientID string) error {
	base, err := url.Parse(c.serverBase)
	if err != nil {
		return fmt.Errorf("parse server base: %w", err)
	}
	scheme := "ws"
	if base.Scheme == "https" {
		scheme = "wss"
	}
	wsURL := fmt.Sprintf("%s://%s/ws?clientId=%s", scheme, base.Host, url.QueryEscape(clientID))

	dialer := websocket.Dialer{HandshakeTimeout: c.config.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.config.MaxWait)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
			return fmt.Errorf("ws set deadline: %w", err)
		}

		msgType, message, err := conn.ReadMessage()
		if err != nil {
			// 读超时也走这里：gorilla 的读错误是粘性的，失败的连接
			// 不能再次 ReadMessage，统一交给调用方回退到轮询
			return fmt.Errorf("ws read: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var frame wsFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case "executing":
			// node == null 且 prompt_id 匹配表示整个工作流执行完毕
			if frame.Data.Node == nil && frame.Data.PromptID == promptID {
				return nil
			}
		case "execution_error":
			if frame.Data.PromptID == "" || frame.Data.PromptID == promptID {
				return fmt.Errorf("%w: %s", ErrExecution, strings.TrimSpace(string(message)))
			}
		}
	}

	return fmt.Errorf("ws 等待超时（%s）", c.config.MaxWait)
}

func (c *Client) waitPolling(ctx context.Context, promptID string) error {
	limiter := rate.NewLimiter(rate.Every(c.config.PollInterval), 1)
	deadline := time.Now().Add(c.config.MaxWait)

	for time.Now().Before(deadline) {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		obj, err := c.fetchHistoryObject(ctx, promptID)
		if err != nil {
			log.Warn().Err(err).Msg("轮询历史接口异常")
			continue
		}
		if obj == nil {
			continue
		}

		status, _ := obj["status"].(map[string]interface{})
		if completed, _ := status["completed"].(bool); completed {
			return nil
		}
		if statusStr, _ := status["status_str"].(string); statusStr == "error" {
			return fmt.Errorf("%w: status_str=error", ErrExecution)
		}
	}

	return fmt.Errorf("轮询等待超时，任务未完成")
}

// FetchHistory 获取 prompt 对应的历史记录对象
func (c *Client) FetchHistory(ctx context.Context, promptID string) (map[string]interface{}, error) {
	obj, err := c.fetchHistoryObject(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("历史记录中没有 prompt %s", promptID)
	}
	return obj, nil
}

func (c *Client) fetchHistoryObject(ctx context.Context, promptID string) (map[string]interface{}, error) {
	historyURL := fmt.Sprintf("%s/history/%s", c.apiRoot, promptID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, historyURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history 状态码: %d", resp.StatusCode)
	}

	var data map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	if obj, ok := data[promptID].(map[string]interface{}); ok {
		return obj, nil
	}
	return nil, nil
}

// ImageRef 历史记录中一张输出图片的定位信息
type ImageRef struct {
	Filename  string
	Subfolder string
	Type      string
}

// OutputImages 从历史记录对象中取出输出图片列表
// 优先检查按标题配置的输出节点；标题没配置或没命中时扫描全部输出节点
func (c *Client) OutputImages(historyObj map[string]interface{}, g Graph) []ImageRef {
	outputs, ok := historyObj["outputs"].(map[string]interface{})
	if !ok {
		return nil
	}

	var nodeIDs []string
	if c.config.TitleOutput != "" {
		if nodeID, _, ok := g.FindByTitle(c.config.TitleOutput); ok {
			nodeIDs = append(nodeIDs, nodeID)
		} else {
			log.Warn().Str("title", c.config.TitleOutput).Msg("未找到配置的输出节点标题，扫描全部输出")
		}
	}
	if len(nodeIDs) == 0 {
		for nodeID := range outputs {
			nodeIDs = append(nodeIDs, nodeID)
		}
	}

	var refs []ImageRef
	for _, nodeID := range nodeIDs {
		node, ok := outputs[nodeID].(map[string]interface{})
		if !ok {
			continue
		}
		images, ok := node["images"].([]interface{})
		if !ok {
			continue
		}
		for _, img := range images {
			imgMap, ok := img.(map[string]interface{})
			if !ok {
				continue
			}
			filename, _ := imgMap["filename"].(string)
			if filename == "" {
				continue
			}
			subfolder, _ := imgMap["subfolder"].(string)
			type_, _ := imgMap["type"].(string)
			if type_ == "" {
				type_ = "output"
			}
			refs = append(refs, ImageRef{Filename: filename, Subfolder: subfolder, Type: type_})
		}
	}
	return refs
}

// DownloadView 从 /view 下载单张输出图片
// 响应 Content-Type 不是 image/* 视为该图片下载失败
func (c *Client) DownloadView(ctx context.Context, ref ImageRef) ([]byte, error) {
	params := url.Values{}
	params.Set("filename", ref.Filename)
	params.Set("type", ref.Type)
	if ref.Subfolder != "" {
		params.Set("subfolder", ref.Subfolder)
	}
	viewURL := fmt.Sprintf("%s/view?%s", c.apiRoot, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, viewURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("下载失败，状态码: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("下载响应不是图片: Content-Type=%s", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

// RunOutput 一次工作流执行的产出
type RunOutput struct {
	Images   [][]byte
	Warnings []string
}

// Run 提交工作流并等待产出：提交 → 完成检测 → 历史 → 下载
// 批次内部分图片下载失败只记录警告；全部失败才返回错误
func (c *Client) Run(ctx context.Context, g Graph, clientID string) (*RunOutput, error) {
	promptID, err := c.Submit(ctx, g, clientID)
	if err != nil {
		return nil, err
	}
	log.Info().Str("prompt_id", promptID).Msg("工作流已提交")

	if err := c.WaitForCompletion(ctx, promptID, clientID); err != nil {
		return nil, err
	}

	historyObj, err := c.FetchHistory(ctx, promptID)
	if err != nil {
		return nil, err
	}

	refs := c.OutputImages(historyObj, g)
	if len(refs) == 0 {
		return nil, fmt.Errorf("历史记录中没有输出图片")
	}

	out := &RunOutput{}
	for _, ref := range refs {
		data, err := c.DownloadView(ctx, ref)
		if err != nil {
			msg := fmt.Sprintf("图片 %s 下载失败: %v", ref.Filename, err)
			out.Warnings = append(out.Warnings, msg)
			log.Warn().Msg(msg)
			continue
		}
		out.Images = append(out.Images, data)
	}
	if len(out.Images) == 0 {
		return nil, fmt.Errorf("所有输出图片下载失败")
	}
	return out, nil
}
