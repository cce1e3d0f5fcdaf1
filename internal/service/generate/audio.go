package generate

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"kagen/internal/config"
	"kagen/internal/pkg/debuglog"
	"kagen/internal/pkg/fileutil"
	"kagen/internal/pkg/gptsovits"
	"kagen/internal/pkg/kagscript"
	"kagen/internal/pkg/profile"
)

// AudioService 语音生成编排
// 与图片编排对称：串行执行、协作式停止、成功任务提交取消注释
type AudioService struct {
	cfg    *config.Config
	dumper *debuglog.Dumper
}

// NewAudioService 创建语音生成编排服务
func NewAudioService(cfg *config.Config, dumper *debuglog.Dumper) *AudioService {
	return &AudioService{cfg: cfg, dumper: dumper}
}

// AudioRunRequest 一次语音生成运行的输入
// VoiceMap 为空时从配置的 voice_map_path 加载
type AudioRunRequest struct {
	Script   string           `json:"script"`
	Scope    kagscript.Scope  `json:"scope"`
	Specific []string         `json:"specific,omitempty"`
	VoiceMap profile.VoiceMap `json:"voice_map,omitempty"`
}

// Run 执行一次语音生成运行
func (s *AudioService) Run(ctx context.Context, req *AudioRunRequest, stop *StopToken) (*Report, error) {
	if err := s.cfg.ValidateAudioRun(); err != nil {
		return nil, err
	}

	voiceMap := req.VoiceMap
	if len(voiceMap) == 0 && s.cfg.AudioGen.VoiceMapPath != "" {
		var err error
		voiceMap, err = profile.LoadVoiceMap(s.cfg.AudioGen.VoiceMapPath)
		if err != nil {
			return nil, err
		}
	}

	tasks := kagscript.ParseAudioTasks(req.Script)
	selected, err := kagscript.FilterAudioTasks(tasks, req.Scope, req.Specific)
	if err != nil {
		return nil, err
	}

	client, err := gptsovits.NewClient(gptsovits.Config{
		Endpoint:     s.cfg.GPTSoVITS.Endpoint,
		Timeout:      s.cfg.GPTSoVITS.Timeout,
		InitialDelay: s.cfg.GPTSoVITS.InitialDelay,
		RetryDelay:   s.cfg.GPTSoVITS.RetryDelay,
		MaxRetries:   s.cfg.GPTSoVITS.MaxRetries,
	}, s.dumper)
	if err != nil {
		return nil, err
	}

	report := &Report{Status: RunCompleted, Total: len(selected), Script: req.Script}
	successLines := make(map[string]struct{})

	for _, task := range selected {
		if stop.Stopped() {
			report.add(TaskResult{Name: task.Speaker, Target: task.Placeholder, Status: TaskStopped})
			continue
		}

		result := s.runTask(ctx, client, task, voiceMap, stop)
		report.add(result)

		if result.Status == TaskSuccess && task.IsCommented {
			successLines[task.TagLine] = struct{}{}
		}
	}

	if stop.Stopped() {
		report.Status = RunStopped
	}
	report.Script = kagscript.CommitLines(req.Script, successLines)

	log.Info().
		Int("total", report.Total).
		Int("success", report.Success).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Int("stopped", report.Stopped).
		Str("status", string(report.Status)).
		Msg("语音生成运行结束")
	return report, nil
}

// runTask 合成并保存单条语音
func (s *AudioService) runTask(ctx context.Context, client *gptsovits.Client, task kagscript.AudioTask, voiceMap profile.VoiceMap, stop *StopToken) TaskResult {
	result := TaskResult{Name: task.Speaker, Target: task.Placeholder}

	ref, err := voiceMap.ResolveReference(task.Speaker)
	if err != nil {
		result.Status = TaskSkipped
		result.Message = err.Error()
		log.Warn().Err(err).Str("speaker", task.Speaker).Msg("说话人无法解析参考音频，跳过")
		return result
	}

	audioURL, err := client.Synthesize(ctx, &gptsovits.SynthesisRequest{
		Text:           task.Text,
		TextLanguage:   ref.TextLanguage,
		ReferWavPath:   ref.ReferWavPath,
		PromptText:     ref.PromptText,
		PromptLanguage: ref.PromptLanguage,
		HowToCut:       s.cfg.GPTSoVITS.HowToCut,
		TopK:           s.cfg.GPTSoVITS.TopK,
		TopP:           s.cfg.GPTSoVITS.TopP,
		Temperature:    s.cfg.GPTSoVITS.Temperature,
		RefFreeMode:    s.cfg.GPTSoVITS.RefFreeMode,
	}, task.Placeholder)
	if stop.Stopped() {
		result.Status = TaskStopped
		return result
	}
	if err != nil {
		result.Status = TaskFailed
		result.Message = err.Error()
		log.Error().Err(err).Str("speaker", task.Speaker).Msg("语音合成失败")
		return result
	}

	data, err := client.DownloadAudio(ctx, audioURL)
	if stop.Stopped() {
		result.Status = TaskStopped
		return result
	}
	if err != nil {
		result.Status = TaskFailed
		result.Message = err.Error()
		log.Error().Err(err).Str("speaker", task.Speaker).Msg("语音下载失败")
		return result
	}

	name := s.cfg.AudioGen.AudioPrefix + strings.TrimPrefix(task.Placeholder, "PLACEHOLDER_")
	path, err := fileutil.SaveFile(s.cfg.AudioGen.SaveDir, name, data)
	if err != nil {
		result.Status = TaskFailed
		result.Message = err.Error()
		log.Error().Err(err).Str("file", name).Msg("语音保存失败")
		return result
	}

	result.Saved = append(result.Saved, path)
	result.Status = TaskSuccess
	log.Info().Str("speaker", task.Speaker).Str("path", path).Msg("语音任务完成")
	return result
}
