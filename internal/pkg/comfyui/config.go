package comfyui

import (
	"strings"
	"time"
)

// Config ComfyUI 配置
// 节点标题为空表示用户工作流中没有该角色的节点，对应改写直接跳过
type Config struct {
	APIURL         string        // API URL（如 http://127.0.0.1:8188/api/prompt）
	Timeout        time.Duration // 单次 HTTP 请求超时
	ConnectTimeout time.Duration // WebSocket 连接超时
	ReadTimeout    time.Duration // WebSocket 静默上限，超过即回退到轮询
	PollInterval   time.Duration // 轮询间隔
	MaxWait        time.Duration // 任务完成最大等待时间

	TitleCheckpoint string
	TitleVAE        string
	TitlePositive   string
	TitleNegative   string
	TitleClipEncode string
	TitleSampler    string
	TitleLatent     string
	TitleLoRA       string
	TitleLoadImage  string
	TitleLoadMask   string
	TitleSave       string
	TitleOutput     string
}

// Defaults 填充零值字段的默认值
func (c *Config) Defaults() {
	if c.APIURL == "" {
		c.APIURL = "http://127.0.0.1:8188"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 1 * time.Second
	}
	if c.MaxWait == 0 {
		c.MaxWait = 600 * time.Second
	}
}

// normalizePromptURL 规范化工作流提交端点
// 端点兼容策略：
//   - 支持传入以下形式：
//     1) http://host:port → 归一到 http://host:port/api/prompt
//     2) http://host:port/api → 归一到 http://host:port/api/prompt
//     3) http://host:port/api/prompt → 原样使用
//     4) http://host:port/prompt → 原样使用（部分部署只暴露 /prompt）
//     5) 其他包含 /api/... 的路径 → 回到根并使用 /api/prompt
func normalizePromptURL(urlStr string) string {
	base := strings.TrimSpace(urlStr)
	base = strings.TrimSuffix(base, "/")

	if base == "" {
		base = "http://127.0.0.1:8188"
	}

	// 已是标准 /api/prompt
	if strings.HasSuffix(base, "/api/prompt") || strings.Contains(base, "/api/prompt") {
		return base
	}

	// 明确传入了 /prompt（不带 /api）
	if strings.HasSuffix(base, "/prompt") || (strings.Contains(base, "/prompt") && !strings.Contains(base, "/api")) {
		return base
	}

	// 以 /api 结尾，补齐 /prompt
	if strings.HasSuffix(base, "/api") {
		return base + "/prompt"
	}

	// 包含 /api/... 的其他形式，回到根并统一到 /api/prompt
	if strings.Contains(base, "/api") {
		parts := strings.Split(base, "/api")
		return strings.TrimSuffix(parts[0], "/") + "/api/prompt"
	}

	// 纯主机:端口形式，默认 /api/prompt
	return base + "/api/prompt"
}

// getAPIRoot 返回以 /api 结尾的基础 API 前缀，用于 history/view/upload
func getAPIRoot(promptURL string) string {
	base := strings.TrimSuffix(promptURL, "/")
	if strings.Contains(base, "/api/prompt") {
		parts := strings.Split(base, "/api/prompt")
		return strings.TrimSuffix(parts[0], "/") + "/api"
	}
	if strings.Contains(base, "/prompt") {
		parts := strings.Split(base, "/prompt")
		return strings.TrimSuffix(parts[0], "/") + "/api"
	}
	if strings.Contains(base, "/api") {
		parts := strings.Split(base, "/api")
		return strings.TrimSuffix(parts[0], "/") + "/api"
	}
	return base + "/api"
}

// getFallbackPromptURL 获取备用端点 /prompt
func getFallbackPromptURL(promptURL string) string {
	root := strings.TrimSuffix(promptURL, "/")
	if strings.Contains(root, "/api/prompt") {
		parts := strings.Split(root, "/api/prompt")
		return strings.TrimSuffix(parts[0], "/") + "/prompt"
	}
	if strings.Contains(root, "/prompt") {
		parts := strings.Split(root, "/prompt")
		return strings.TrimSuffix(parts[0], "/") + "/prompt"
	}
	if strings.Contains(root, "/api") {
		parts := strings.Split(root, "/api")
		return strings.TrimSuffix(parts[0], "/") + "/prompt"
	}
	return root + "/prompt"
}

// getServerBase 返回不带 /api 的服务器根地址，用于推导 WebSocket 地址
func getServerBase(promptURL string) string {
	root := getAPIRoot(promptURL)
	return strings.TrimSuffix(root, "/api")
}
