package generate

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"os"

	"github.com/rs/zerolog/log"

	"kagen/internal/config"
	"kagen/internal/pkg/comfyui"
	"kagen/internal/pkg/debuglog"
	"kagen/internal/pkg/fileutil"
	"kagen/internal/pkg/id"
	"kagen/internal/pkg/kagscript"
	"kagen/internal/pkg/nai"
	"kagen/internal/pkg/profile"
	"kagen/internal/pkg/sdwebui"
)

// ImageService 图片生成编排
// 任务严格串行执行：本地图片后端经不起并发打击，串行也让种子和
// 脚本状态的记账保持简单
type ImageService struct {
	cfg    *config.Config
	dumper *debuglog.Dumper
}

// NewImageService 创建图片生成编排服务
func NewImageService(cfg *config.Config, dumper *debuglog.Dumper) *ImageService {
	return &ImageService{cfg: cfg, dumper: dumper}
}

// ImageRunRequest 一次图片生成运行的输入
type ImageRunRequest struct {
	Script   string           `json:"script"`
	Scope    kagscript.Scope  `json:"scope"`
	Specific []string         `json:"specific,omitempty"`
	Profiles profile.Profiles `json:"profiles,omitempty"`
}

// imageRun 单次运行的后端句柄集合
type imageRun struct {
	svc       *ImageService
	naiClient *nai.Client
	sdClient  *sdwebui.Client
	comfy     *comfyui.Client
	comfyCfg  *comfyui.Config
	baseGraph comfyui.Graph
	clientID  string
}

// Run 执行一次图片生成运行
// 返回 error 的只有运行前的准备失败（配置、范围校验、工作流加载），
// 此时保证没有发起任何网络调用也没有改写脚本；单个任务的失败进入报告
func (s *ImageService) Run(ctx context.Context, req *ImageRunRequest, stop *StopToken) (*Report, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := s.cfg.ValidateImageRun(); err != nil {
		return nil, err
	}

	apiKind := kagscript.APIKind(s.cfg.ImageGen.API)
	tasks := kagscript.ParseImageTasks(req.Script, apiKind)
	selected, err := kagscript.FilterImageTasks(tasks, req.Scope, req.Specific)
	if err != nil {
		return nil, err
	}

	run, err := s.prepare()
	if err != nil {
		return nil, err
	}

	report := &Report{Status: RunCompleted, Total: len(selected), Script: req.Script}
	successLines := make(map[string]struct{})

	for _, task := range selected {
		if stop.Stopped() {
			report.add(TaskResult{Name: task.Name, Target: task.Filename, Status: TaskStopped})
			continue
		}

		result := run.runTask(ctx, task, req.Profiles, stop)
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
		Int("stopped", report.Stopped).
		Str("status", string(report.Status)).
		Msg("图片生成运行结束")
	return report, nil
}

// prepare 创建本次运行需要的后端客户端
func (s *ImageService) prepare() (*imageRun, error) {
	run := &imageRun{svc: s, clientID: id.New()}
	var err error

	switch s.cfg.ImageGen.API {
	case "nai":
		run.naiClient, err = nai.NewClient(nai.Config{
			APIKey:  s.cfg.NAI.APIKey,
			APIURL:  s.cfg.NAI.APIURL,
			Timeout: s.cfg.NAI.Timeout,
		}, s.dumper)
		if err != nil {
			return nil, err
		}
	case "sd":
		run.sdClient, err = sdwebui.NewClient(sdwebui.Config{
			BaseURL: s.cfg.SD.BaseURL,
			Timeout: s.cfg.SD.Timeout,
		}, s.dumper)
		if err != nil {
			return nil, err
		}
	case "comfyui":
		run.comfyCfg = comfyConfig(&s.cfg.ComfyUI)
		run.comfy = comfyui.NewClient(run.comfyCfg)
		run.baseGraph, err = comfyui.LoadGraph(s.cfg.ComfyUI.WorkflowJSONPath)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("未知的图片后端: %s", s.cfg.ImageGen.API)
	}
	return run, nil
}

// runTask 执行单个任务：调用后端、保存全部样本
// 任一样本保存失败都把整个任务记为失败
func (r *imageRun) runTask(ctx context.Context, task kagscript.ImageTask, profiles profile.Profiles, stop *StopToken) TaskResult {
	result := TaskResult{Name: task.Name, Target: task.Filename}

	if task.Positive == "" {
		result.Status = TaskSkipped
		result.Message = "正向提示词为空"
		log.Warn().Str("name", task.Name).Msg("任务没有正向提示词，跳过")
		return result
	}

	prof, _ := profiles.Lookup(task.Name)
	seed := r.svc.seedFor()
	img2img, maskPath := r.svc.img2imgFor(prof)

	var images [][]byte
	var warnings []string
	var err error

	switch r.svc.cfg.ImageGen.API {
	case "nai":
		images, warnings, err = r.generateNAI(ctx, task, seed, img2img, prof.ImagePath, maskPath)
	case "sd":
		images, warnings, err = r.generateSD(ctx, task, seed, img2img, prof.ImagePath, maskPath)
	case "comfyui":
		images, warnings, err = r.generateComfy(ctx, task, prof, seed, img2img, maskPath)
	}
	result.Warnings = warnings

	// 远程调用返回后的检查点：调用已经完成，结果直接丢弃
	if stop.Stopped() {
		result.Status = TaskStopped
		return result
	}
	if err != nil {
		result.Status = TaskFailed
		result.Message = err.Error()
		log.Error().Err(err).Str("name", task.Name).Str("file", task.Filename).Msg("图片生成失败")
		return result
	}

	for i, img := range images {
		if stop.Stopped() {
			result.Status = TaskStopped
			return result
		}
		name := fileutil.SampleName(fileutil.EnsureImageExt(fileutil.SanitizeFilename(task.Filename)), i, len(images))
		path, err := fileutil.SaveFile(r.svc.cfg.ImageGen.SaveDir, name, img)
		if err != nil {
			result.Status = TaskFailed
			result.Message = err.Error()
			log.Error().Err(err).Str("file", name).Msg("样本保存失败，整个任务记为失败")
			return result
		}
		result.Saved = append(result.Saved, path)
	}

	result.Status = TaskSuccess
	log.Info().Str("name", task.Name).Int("saved", len(result.Saved)).Msg("任务完成")
	return result
}

// seedFor 按策略决定种子
// 随机模式下每个任务各取一个新种子，而不是整次运行一个
func (s *ImageService) seedFor() int64 {
	if s.cfg.ImageGen.RandomSeed {
		return int64(rand.Int31())
	}
	return s.cfg.ImageGen.Seed
}

// img2imgFor 决定任务是否走图生图以及可用的蒙版路径
// 只有全局开关打开且档案里的参考图真实存在才启用；蒙版不可用时
// 静默退回普通图生图
func (s *ImageService) img2imgFor(prof profile.CharacterProfile) (bool, string) {
	if !s.cfg.ImageGen.EnableImg2Img || prof.ImagePath == "" {
		return false, ""
	}
	if _, err := os.Stat(prof.ImagePath); err != nil {
		return false, ""
	}
	maskPath := ""
	if prof.MaskPath != "" {
		if _, err := os.Stat(prof.MaskPath); err == nil {
			maskPath = prof.MaskPath
		}
	}
	return true, maskPath
}

// generateNAI 构造 NovelAI 请求体并调用
// 蒙版存在时 action 切换为 inpaint
func (r *imageRun) generateNAI(ctx context.Context, task kagscript.ImageTask, seed int64, img2img bool, imagePath, maskPath string) ([][]byte, []string, error) {
	cfg := r.svc.cfg
	n := cfg.ImageGen.NSamples
	if n <= 0 {
		n = 1
	}

	params := map[string]interface{}{
		"width":           cfg.ImageGen.Width,
		"height":          cfg.ImageGen.Height,
		"scale":           cfg.NAI.Scale,
		"sampler":         cfg.NAI.Sampler,
		"steps":           cfg.NAI.Steps,
		"n_samples":       n,
		"ucPreset":        cfg.NAI.UCPreset,
		"seed":            seed,
		"negative_prompt": task.Negative,
		"sm":              cfg.NAI.SMEA,
		"sm_dyn":          cfg.NAI.SMEADyn,
	}

	action := "generate"
	if img2img {
		refData, err := os.ReadFile(imagePath)
		if err != nil {
			return nil, nil, fmt.Errorf("读取参考图失败: %w", err)
		}
		action = "img2img"
		params["image"] = base64.StdEncoding.EncodeToString(refData)
		params["strength"] = cfg.NAI.Strength
		params["noise"] = cfg.NAI.Noise
		params["extra_noise_seed"] = seed

		if maskPath != "" {
			maskData, err := os.ReadFile(maskPath)
			if err == nil {
				action = "inpaint"
				params["mask"] = base64.StdEncoding.EncodeToString(maskData)
			} else {
				log.Warn().Err(err).Str("mask", maskPath).Msg("蒙版读取失败，退回普通图生图")
			}
		}
	}

	payload := map[string]interface{}{
		"input":      task.Positive,
		"model":      cfg.NAI.Model,
		"action":     action,
		"parameters": params,
	}

	images, err := r.naiClient.GenerateImage(ctx, payload, task.Filename)
	if err != nil {
		return nil, nil, err
	}

	var warnings []string
	if len(images) != n {
		msg := fmt.Sprintf("请求 %d 张但解出 %d 张", n, len(images))
		warnings = append(warnings, msg)
		log.Warn().Str("name", task.Name).Msg(msg)
	}
	return images, warnings, nil
}

// generateSD 构造 SD WebUI 请求体并调用
// 高清修复参数只在纯文生图时附加；蒙版存在时附加局部重绘参数
func (r *imageRun) generateSD(ctx context.Context, task kagscript.ImageTask, seed int64, img2img bool, imagePath, maskPath string) ([][]byte, []string, error) {
	cfg := r.svc.cfg
	n := cfg.ImageGen.NSamples
	if n <= 0 {
		n = 1
	}

	payload := map[string]interface{}{
		"prompt":          task.Positive,
		"negative_prompt": task.Negative,
		"seed":            seed,
		"steps":           cfg.SD.Steps,
		"cfg_scale":       cfg.SD.CFGScale,
		"width":           cfg.ImageGen.Width,
		"height":          cfg.ImageGen.Height,
		"sampler_name":    cfg.SD.Sampler,
		"n_iter":          1,
		"batch_size":      n,
		"restore_faces":   cfg.SD.RestoreFaces,
		"tiling":          cfg.SD.Tiling,
	}

	if !img2img {
		if cfg.SD.EnableHR {
			payload["enable_hr"] = true
			payload["hr_scale"] = cfg.SD.HRScale
			payload["hr_upscaler"] = cfg.SD.HRUpscaler
			payload["hr_second_pass_steps"] = cfg.SD.HRSecondPassSteps
			payload["denoising_strength"] = cfg.SD.DenoisingStrength
		}
		images, err := r.sdClient.Txt2Img(ctx, payload, task.Filename)
		return images, nil, err
	}

	refData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("读取参考图失败: %w", err)
	}
	payload["init_images"] = []string{base64.StdEncoding.EncodeToString(refData)}
	payload["denoising_strength"] = cfg.SD.DenoisingStrength

	if maskPath != "" {
		maskData, err := os.ReadFile(maskPath)
		if err == nil {
			payload["mask"] = base64.StdEncoding.EncodeToString(maskData)
			payload["mask_blur"] = cfg.SD.MaskBlur
			payload["inpainting_fill"] = cfg.SD.InpaintingFill
			payload["inpaint_full_res"] = cfg.SD.InpaintFullRes
			payload["inpainting_mask_invert"] = cfg.SD.MaskInvert
		} else {
			log.Warn().Err(err).Str("mask", maskPath).Msg("蒙版读取失败，退回普通图生图")
		}
	}
	images, err := r.sdClient.Img2Img(ctx, payload, task.Filename)
	return images, nil, err
}

// generateComfy 改写工作流拷贝并提交
// 参考图上传失败时任务降级为文生图（denoise 回 1.0，LoadImage 不动），
// 记录警告而不是失败
func (r *imageRun) generateComfy(ctx context.Context, task kagscript.ImageTask, prof profile.CharacterProfile, seed int64, img2img bool, maskPath string) ([][]byte, []string, error) {
	cfg := r.svc.cfg
	var warnings []string

	params := &comfyui.MutationParams{
		Checkpoint:     cfg.ComfyUI.Checkpoint,
		VAE:            cfg.ComfyUI.VAE,
		Positive:       task.Positive,
		Negative:       task.Negative,
		ClipSkip:       cfg.ComfyUI.ClipSkip,
		Seed:           seed,
		Steps:          cfg.ComfyUI.Steps,
		CFGScale:       cfg.ComfyUI.CFGScale,
		SamplerName:    cfg.ComfyUI.Sampler,
		Scheduler:      cfg.ComfyUI.Scheduler,
		Denoise:        1.0,
		Width:          cfg.ImageGen.Width,
		Height:         cfg.ImageGen.Height,
		BatchSize:      cfg.ImageGen.NSamples,
		FilenamePrefix: fileutil.SanitizeFilename(task.Name),
	}
	for _, lora := range prof.LoRAs {
		params.LoRAs = append(params.LoRAs, comfyui.LoRAParam{
			Name:        lora.Name,
			ModelWeight: lora.StrengthModel,
			ClipWeight:  lora.StrengthClip,
		})
	}

	if img2img {
		serverName, err := r.comfy.UploadImage(ctx, prof.ImagePath)
		if err != nil {
			msg := fmt.Sprintf("参考图上传失败，降级为文生图: %v", err)
			warnings = append(warnings, msg)
			log.Warn().Str("name", task.Name).Msg(msg)
		} else {
			params.Img2Img = true
			params.RefImageName = serverName
			params.Denoise = cfg.ComfyUI.Denoise

			if maskPath != "" {
				maskName, err := r.comfy.UploadImage(ctx, maskPath)
				if err != nil {
					msg := fmt.Sprintf("蒙版上传失败，退回普通图生图: %v", err)
					warnings = append(warnings, msg)
					log.Warn().Str("name", task.Name).Msg(msg)
				} else {
					params.MaskName = maskName
				}
			}
		}
	}

	graph, err := r.baseGraph.Clone()
	if err != nil {
		return nil, warnings, err
	}
	modlog := comfyui.ApplyMutations(graph, r.comfyCfg, params)
	for _, entry := range modlog {
		log.Debug().Str("name", task.Name).Str("entry", entry).Msg("工作流改写记录")
	}

	out, err := r.comfy.Run(ctx, graph, r.clientID)
	if err != nil {
		return nil, warnings, err
	}
	warnings = append(warnings, out.Warnings...)
	return out.Images, warnings, nil
}

// comfyConfig 把应用配置映射为 ComfyUI 客户端配置
func comfyConfig(c *config.ComfyUIConfig) *comfyui.Config {
	return &comfyui.Config{
		APIURL:          c.APIURL,
		Timeout:         c.Timeout,
		ConnectTimeout:  c.ConnectTimeout,
		ReadTimeout:     c.ReadTimeout,
		PollInterval:    c.PollInterval,
		MaxWait:         c.MaxWait,
		TitleCheckpoint: c.TitleCheckpoint,
		TitleVAE:        c.TitleVAE,
		TitlePositive:   c.TitlePositive,
		TitleNegative:   c.TitleNegative,
		TitleClipEncode: c.TitleClipEncode,
		TitleSampler:    c.TitleSampler,
		TitleLatent:     c.TitleLatent,
		TitleLoRA:       c.TitleLoRA,
		TitleLoadImage:  c.TitleLoadImage,
		TitleLoadMask:   c.TitleLoadMask,
		TitleSave:       c.TitleSave,
		TitleOutput:     c.TitleOutput,
	}
}
