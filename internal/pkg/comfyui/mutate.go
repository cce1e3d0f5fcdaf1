package comfyui

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
)

// LoRAParam 单个 LoRA 覆盖项
type LoRAParam struct {
	Name        string  `json:"name"`
	ModelWeight float64 `json:"model_weight"`
	ClipWeight  float64 `json:"clip_weight"`
}

// MutationParams 单个生成任务对基础工作流的参数化改写
// 字段为零值（空字符串 / nil 指针）时跳过对应改写，保留工作流原值
type MutationParams struct {
	Checkpoint string
	VAE        string
	Positive   string
	Negative   string
	ClipSkip   int

	Seed        int64
	Steps       int
	CFGScale    float64
	SamplerName string
	Scheduler   string
	Denoise     float64 // 纯文生图强制为 1.0，图生图用配置的强度

	Img2Img   bool
	Width     int
	Height    int
	BatchSize int

	LoRAs []LoRAParam

	RefImageName   string // 上传后服务端返回的文件名，不是本地路径
	MaskName       string
	FilenamePrefix string
}

// ApplyMutations 按固定顺序把任务参数写入工作流图
// 在调用前必须先对基础工作流 Clone()。每一步都是尽力而为：目标标题
// 找不到只记录一条改写日志，不影响其余步骤。返回改写日志（含警告），
// 供运行报告汇总
func ApplyMutations(g Graph, cfg *Config, p *MutationParams) []string {
	var modlog []string
	note := func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		modlog = append(modlog, msg)
		log.Debug().Str("mutation", msg).Msg("工作流改写")
	}
	warn := func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		modlog = append(modlog, "警告: "+msg)
		log.Warn().Msg(msg)
	}

	// 1. Checkpoint
	if p.Checkpoint != "" {
		if _, node, ok := g.FindByTitle(cfg.TitleCheckpoint); ok {
			if SetNodeInput(node, "ckpt_name", p.Checkpoint) {
				note("checkpoint=%s", p.Checkpoint)
			} else {
				warn("Checkpoint 节点缺少 inputs，跳过")
			}
		} else if cfg.TitleCheckpoint != "" {
			warn("未找到 Checkpoint 节点: %s", cfg.TitleCheckpoint)
		}
	}

	// 2. VAE
	if p.VAE != "" {
		if _, node, ok := g.FindByTitle(cfg.TitleVAE); ok {
			if SetNodeInput(node, "vae_name", p.VAE) {
				note("vae=%s", p.VAE)
			} else {
				warn("VAE 节点缺少 inputs，跳过")
			}
		} else if cfg.TitleVAE != "" {
			warn("未找到 VAE 节点: %s", cfg.TitleVAE)
		}
	}

	// 3. 正向/负向提示词
	if _, node, ok := g.FindByTitle(cfg.TitlePositive); ok {
		SetNodeInput(node, "text", p.Positive)
		note("positive prompt 已写入")
	} else if cfg.TitlePositive != "" {
		warn("未找到正向提示节点: %s", cfg.TitlePositive)
	}
	if _, node, ok := g.FindByTitle(cfg.TitleNegative); ok {
		SetNodeInput(node, "text", p.Negative)
		note("negative prompt 已写入")
	} else if cfg.TitleNegative != "" {
		warn("未找到负向提示节点: %s", cfg.TitleNegative)
	}

	// 4. CLIP skip：永远写入负数层
	if p.ClipSkip != 0 {
		if _, node, ok := g.FindByTitle(cfg.TitleClipEncode); ok {
			if SetNodeInput(node, "stop_at_clip_layer", -int(math.Abs(float64(p.ClipSkip)))) {
				note("clip_skip=%d", p.ClipSkip)
			} else {
				warn("CLIP 节点缺少 inputs，跳过")
			}
		} else if cfg.TitleClipEncode != "" {
			warn("未找到 CLIP 编码节点: %s", cfg.TitleClipEncode)
		}
	}

	// 5. 采样器参数
	if _, node, ok := g.FindByTitle(cfg.TitleSampler); ok {
		SetNodeInput(node, "seed", p.Seed)
		if p.Steps > 0 {
			SetNodeInput(node, "steps", p.Steps)
		}
		if p.CFGScale > 0 {
			SetNodeInput(node, "cfg", p.CFGScale)
		}
		if p.SamplerName != "" {
			SetNodeInput(node, "sampler_name", p.SamplerName)
		}
		if p.Scheduler != "" {
			SetNodeInput(node, "scheduler", p.Scheduler)
		}
		SetNodeInput(node, "denoise", p.Denoise)
		note("sampler seed=%d denoise=%.2f", p.Seed, p.Denoise)
	} else if cfg.TitleSampler != "" {
		warn("未找到采样器节点: %s", cfg.TitleSampler)
	}

	// 6. 潜空间尺寸：只在文生图时写入；图生图的潜空间由编码后的参考图决定
	if !p.Img2Img {
		if _, node, ok := g.FindByTitle(cfg.TitleLatent); ok {
			if p.Width > 0 {
				SetNodeInput(node, "width", p.Width)
			}
			if p.Height > 0 {
				SetNodeInput(node, "height", p.Height)
			}
			if p.BatchSize > 0 {
				SetNodeInput(node, "batch_size", p.BatchSize)
			}
			note("latent %dx%d batch=%d", p.Width, p.Height, p.BatchSize)
		} else if cfg.TitleLatent != "" {
			warn("未找到潜空间节点: %s", cfg.TitleLatent)
		}
	}

	// 7. LoRA：只应用第一个条目
	if len(p.LoRAs) > 0 {
		lora := p.LoRAs[0]
		if _, node, ok := g.FindByTitle(cfg.TitleLoRA); ok {
			SetNodeInput(node, "lora_name", lora.Name)
			SetNodeInput(node, "strength_model", lora.ModelWeight)
			SetNodeInput(node, "strength_clip", lora.ClipWeight)
			note("lora=%s model=%.2f clip=%.2f", lora.Name, lora.ModelWeight, lora.ClipWeight)
		} else if cfg.TitleLoRA != "" {
			warn("未找到 LoRA 节点: %s", cfg.TitleLoRA)
		}
	}

	// 8. 参考图节点：写入上传后的服务端文件名
	if p.RefImageName != "" {
		if _, node, ok := g.FindByTitle(cfg.TitleLoadImage); ok {
			SetNodeInput(node, "image", p.RefImageName)
			note("load_image=%s", p.RefImageName)
		} else if cfg.TitleLoadImage != "" {
			warn("未找到 LoadImage 节点: %s", cfg.TitleLoadImage)
		}
	}

	// 9. 蒙版节点：只在单独配置了蒙版标题且找到节点时写入
	if p.MaskName != "" && cfg.TitleLoadMask != "" {
		if _, node, ok := g.FindByTitle(cfg.TitleLoadMask); ok {
			SetNodeInput(node, "image", p.MaskName)
			note("load_mask=%s", p.MaskName)
		} else {
			warn("未找到 LoadMask 节点: %s", cfg.TitleLoadMask)
		}
	}

	// 10. 保存节点文件名前缀
	if p.FilenamePrefix != "" {
		if _, node, ok := g.FindByTitle(cfg.TitleSave); ok {
			SetNodeInput(node, "filename_prefix", p.FilenamePrefix)
			note("filename_prefix=%s", p.FilenamePrefix)
		} else if cfg.TitleSave != "" {
			warn("未找到保存节点: %s", cfg.TitleSave)
		}
	}

	return modlog
}
