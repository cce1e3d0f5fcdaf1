package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	arkext "github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoProvider 基于 eino ChatModel 的文本后端
// OpenAI 兼容端点和火山方舟都走这条路径
type EinoProvider struct {
	name      string
	chatModel model.ChatModel
}

// NewOpenAIProvider 创建 OpenAI 兼容后端
func NewOpenAIProvider(ctx context.Context, apiKey, modelName, baseURL string, opts Options) (*EinoProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	modelCfg := &openai.ChatModelConfig{
		Model:  modelName,
		APIKey: apiKey,
	}
	if baseURL != "" {
		modelCfg.BaseURL = baseURL
	}
	if opts.Temperature > 0 {
		temp := float32(opts.Temperature)
		modelCfg.Temperature = &temp
	}
	if opts.MaxTokens > 0 {
		modelCfg.MaxTokens = &opts.MaxTokens
	}
	if opts.TopP > 0 {
		topP := float32(opts.TopP)
		modelCfg.TopP = &topP
	}

	chatModel, err := openai.NewChatModel(ctx, modelCfg)
	if err != nil {
		return nil, fmt.Errorf("创建 OpenAI ChatModel 失败: %w", err)
	}
	return &EinoProvider{name: "openai", chatModel: chatModel}, nil
}

// NewArkProvider 创建火山方舟后端
func NewArkProvider(ctx context.Context, apiKey, modelName string, opts Options) (*EinoProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ark API key is required")
	}
	if modelName == "" {
		modelName = "doubao-seed-1-6-flash-250615"
	}

	modelCfg := &arkext.ChatModelConfig{
		Model:  modelName,
		APIKey: apiKey,
	}
	if opts.Temperature > 0 {
		temp := float32(opts.Temperature)
		modelCfg.Temperature = &temp
	}
	if opts.MaxTokens > 0 {
		modelCfg.MaxTokens = &opts.MaxTokens
	}
	if opts.TopP > 0 {
		topP := float32(opts.TopP)
		modelCfg.TopP = &topP
	}

	chatModel, err := arkext.NewChatModel(ctx, modelCfg)
	if err != nil {
		return nil, fmt.Errorf("创建 Ark ChatModel 失败: %w", err)
	}
	return &EinoProvider{name: "ark", chatModel: chatModel}, nil
}

// Name 实现 Provider 接口
func (p *EinoProvider) Name() string { return p.name }

// Generate 实现 Provider 接口（非流式）
func (p *EinoProvider) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := p.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("%s 生成失败: %w", p.name, err)
	}
	if msg.Content == "" {
		return "", fmt.Errorf("%s 响应中没有文本内容", p.name)
	}
	return msg.Content, nil
}

// Stream 实现 Provider 接口（流式）
func (p *EinoProvider) Stream(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	reader, err := p.chatModel.Stream(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("%s 流式生成失败: %w", p.name, err)
	}
	defer reader.Close()

	var sb strings.Builder
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sb.String(), fmt.Errorf("%s 读取流失败: %w", p.name, err)
		}
		if chunk.Content != "" {
			sb.WriteString(chunk.Content)
			if onChunk != nil {
				onChunk(chunk.Content)
			}
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("%s 流式响应中没有文本内容", p.name)
	}
	return sb.String(), nil
}
