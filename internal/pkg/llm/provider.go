package llm

import "context"

// Provider 文本模型后端
// 流水线各阶段只依赖这一个接口，后端（Google / OpenAI 兼容 / Ark）
// 由配置决定
type Provider interface {
	// Name 后端名称，用于日志和调试负载目录
	Name() string

	// Generate 非流式生成
	Generate(ctx context.Context, prompt string) (string, error)

	// Stream 流式生成，每个解码出的文本块回调一次 onChunk，
	// 返回拼接后的完整文本
	Stream(ctx context.Context, prompt string, onChunk func(chunk string)) (string, error)
}

// Options 采样参数，各后端按自身能力取用
type Options struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
	TopK        int
}
