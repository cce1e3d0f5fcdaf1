package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"kagen/internal/pkg/llm"
	"kagen/internal/pkg/profile"
)

// Stage 流水线阶段
// 四个阶段顺序执行，每个阶段的输出原样作为下一阶段的输入；
// 阶段失败不自动重试，错误原样上抛由调用方决定是否重跑
type Stage string

const (
	StagePreprocess Stage = "preprocess"
	StageEnhance    Stage = "enhance"
	StageBGM        Stage = "bgm"
	StageKAGConvert Stage = "kagconvert"
)

// Service 文本流水线服务
type Service struct {
	provider llm.Provider
}

// NewService 创建流水线服务
func NewService(provider llm.Provider) *Service {
	return &Service{provider: provider}
}

// Request 单个阶段的输入
// Profiles 只在 enhance 阶段使用：替换名先作用于输入文本，
// 再以替换后的名字作为档案 JSON 的键，保证模型两边看到同一个名字
type Request struct {
	Text     string           `json:"text"`
	Profiles profile.Profiles `json:"profiles,omitempty"`
}

// Run 执行一个阶段（非流式）
func (s *Service) Run(ctx context.Context, stage Stage, req *Request) (string, error) {
	prompt, err := s.buildPrompt(stage, req)
	if err != nil {
		return "", err
	}
	log.Info().Str("stage", string(stage)).Str("provider", s.provider.Name()).Msg("流水线阶段开始")
	return s.provider.Generate(ctx, prompt)
}

// Stream 执行一个阶段（流式），每个文本块通过 onChunk 即时转发
func (s *Service) Stream(ctx context.Context, stage Stage, req *Request, onChunk func(string)) (string, error) {
	prompt, err := s.buildPrompt(stage, req)
	if err != nil {
		return "", err
	}
	log.Info().Str("stage", string(stage)).Str("provider", s.provider.Name()).Msg("流水线阶段开始（流式）")
	return s.provider.Stream(ctx, prompt, onChunk)
}

// buildPrompt 组装阶段提示词
func (s *Service) buildPrompt(stage Stage, req *Request) (string, error) {
	if req.Text == "" {
		return "", fmt.Errorf("输入文本为空")
	}

	switch stage {
	case StagePreprocess:
		return fmt.Sprintf(preprocessPrompt, req.Text), nil
	case StageEnhance:
		resolver := profile.NewNameResolver(req.Profiles)
		text := resolver.ReplaceAll(req.Text)
		profileJSON, err := resolvedProfileJSON(req.Profiles, resolver)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(enhancePrompt, profileJSON, text), nil
	case StageBGM:
		return fmt.Sprintf(bgmPrompt, req.Text), nil
	case StageKAGConvert:
		return fmt.Sprintf(kagConvertPrompt, req.Text), nil
	default:
		return "", fmt.Errorf("未知的流水线阶段: %s", stage)
	}
}

// resolvedProfileJSON 以替换后的名字为键序列化角色档案
// 键和正文替换走同一个 NameResolver，两边永远一致
func resolvedProfileJSON(profiles profile.Profiles, resolver *profile.NameResolver) (string, error) {
	resolved := make(map[string]profile.CharacterProfile, len(profiles))
	for name, p := range profiles {
		resolved[resolver.Resolve(name)] = p
	}
	data, err := json.MarshalIndent(resolved, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化角色档案失败: %w", err)
	}
	return string(data), nil
}
