package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	LLM       LLMConfig       `mapstructure:"llm"`
	NAI       NAIConfig       `mapstructure:"nai"`
	SD        SDConfig        `mapstructure:"sd"`
	ComfyUI   ComfyUIConfig   `mapstructure:"comfyui"`
	GPTSoVITS GPTSoVITSConfig `mapstructure:"gptsovits"`
	ImageGen  ImageGenConfig  `mapstructure:"imagegen"`
	AudioGen  AudioGenConfig  `mapstructure:"audiogen"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// LLMConfig 文本模型配置
// Provider 决定脚本流水线使用哪个后端: google / openai / ark
type LLMConfig struct {
	Provider    string       `mapstructure:"provider"`
	Temperature float64      `mapstructure:"temperature"`
	MaxTokens   int          `mapstructure:"max_tokens"`
	TopP        float64      `mapstructure:"top_p"`
	TopK        int          `mapstructure:"top_k"`
	Google      GoogleConfig `mapstructure:"google"`
	OpenAI      OpenAIConfig `mapstructure:"openai"`
	Ark         ArkConfig    `mapstructure:"ark"`
}

// GoogleConfig Google Generative Language API 配置
type GoogleConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// OpenAIConfig OpenAI 兼容 Chat Completions 配置
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// ArkConfig 火山方舟配置（可选的第三 LLM 后端）
type ArkConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// NAIConfig NovelAI 图片生成配置
type NAIConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	APIURL   string        `mapstructure:"api_url"`
	Model    string        `mapstructure:"model"`
	Sampler  string        `mapstructure:"sampler"`
	Steps    int           `mapstructure:"steps"`
	Scale    float64       `mapstructure:"scale"`
	Timeout  time.Duration `mapstructure:"timeout"`
	UCPreset int           `mapstructure:"uc_preset"`
	SMEA     bool          `mapstructure:"smea"`
	SMEADyn  bool          `mapstructure:"smea_dyn"`
	Strength float64       `mapstructure:"strength"`
	Noise    float64       `mapstructure:"noise"`
	MaskBlur int           `mapstructure:"mask_blur"`
}

// SDConfig Stable Diffusion WebUI 配置
type SDConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Sampler           string        `mapstructure:"sampler"`
	Steps             int           `mapstructure:"steps"`
	CFGScale          float64       `mapstructure:"cfg_scale"`
	RestoreFaces      bool          `mapstructure:"restore_faces"`
	Tiling            bool          `mapstructure:"tiling"`
	EnableHR          bool          `mapstructure:"enable_hr"`
	HRScale           float64       `mapstructure:"hr_scale"`
	HRUpscaler        string        `mapstructure:"hr_upscaler"`
	HRSecondPassSteps int           `mapstructure:"hr_second_pass_steps"`
	DenoisingStrength float64       `mapstructure:"denoising_strength"`
	MaskBlur          int           `mapstructure:"mask_blur"`
	InpaintingFill    int           `mapstructure:"inpainting_fill"`
	InpaintFullRes    bool          `mapstructure:"inpaint_full_res"`
	MaskInvert        int           `mapstructure:"mask_invert"`
}

// ComfyUIConfig ComfyUI 配置
// 节点标题 (Title*) 是用户在工作流里自定义的 _meta.title，
// 为空表示工作流中没有对应节点，相关改写会被跳过
type ComfyUIConfig struct {
	APIURL           string        `mapstructure:"api_url"`
	WorkflowJSONPath string        `mapstructure:"workflow_json_path"`
	Timeout          time.Duration `mapstructure:"timeout"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	MaxWait          time.Duration `mapstructure:"max_wait"`
	TitleCheckpoint  string        `mapstructure:"title_checkpoint"`
	TitleVAE         string        `mapstructure:"title_vae"`
	TitlePositive    string        `mapstructure:"title_positive"`
	TitleNegative    string        `mapstructure:"title_negative"`
	TitleClipEncode  string        `mapstructure:"title_clip_encode"`
	TitleSampler     string        `mapstructure:"title_sampler"`
	TitleLatent      string        `mapstructure:"title_latent"`
	TitleLoRA        string        `mapstructure:"title_lora"`
	TitleLoadImage   string        `mapstructure:"title_load_image"`
	TitleLoadMask    string        `mapstructure:"title_load_mask"`
	TitleSave        string        `mapstructure:"title_save"`
	TitleOutput      string        `mapstructure:"title_output"`
	Checkpoint       string        `mapstructure:"checkpoint"`
	VAE              string        `mapstructure:"vae"`
	ClipSkip         int           `mapstructure:"clip_skip"`
	Sampler          string        `mapstructure:"sampler"`
	Scheduler        string        `mapstructure:"scheduler"`
	Steps            int           `mapstructure:"steps"`
	CFGScale         float64       `mapstructure:"cfg_scale"`
	Denoise          float64       `mapstructure:"denoise"`
}

// GPTSoVITSConfig GPT-SoVITS 语音合成配置
type GPTSoVITSConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	Timeout       time.Duration `mapstructure:"timeout"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	MaxRetries    int           `mapstructure:"max_retries"`
	HowToCut      string        `mapstructure:"how_to_cut"`
	TopK          int           `mapstructure:"top_k"`
	TopP          float64       `mapstructure:"top_p"`
	Temperature   float64       `mapstructure:"temperature"`
	RefFreeMode   bool          `mapstructure:"ref_free_mode"`
	AudioDLFormat string        `mapstructure:"audio_dl_format"`
}

// ImageGenConfig 图片生成运行共享配置
type ImageGenConfig struct {
	API           string `mapstructure:"api"`            // nai / sd / comfyui
	SaveDir       string `mapstructure:"save_dir"`       // 输出目录
	NSamples      int    `mapstructure:"n_samples"`      // 每个任务的采样数量
	Seed          int64  `mapstructure:"seed"`           // 固定种子
	RandomSeed    bool   `mapstructure:"random_seed"`    // 每个任务使用随机种子
	EnableImg2Img bool   `mapstructure:"enable_img2img"` // 允许参考图生图
	Width         int    `mapstructure:"width"`
	Height        int    `mapstructure:"height"`
}

// AudioGenConfig 语音生成运行共享配置
type AudioGenConfig struct {
	SaveDir      string `mapstructure:"save_dir"`
	VoiceMapPath string `mapstructure:"voice_map_path"`
	AudioPrefix  string `mapstructure:"audio_prefix"`
}

// DebugConfig 调试配置
type DebugConfig struct {
	DumpAPIRequests bool   `mapstructure:"dump_api_requests"`
	DumpDir         string `mapstructure:"dump_dir"`
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	switch c.LLM.Provider {
	case "google", "openai", "ark", "":
	default:
		return fmt.Errorf("invalid llm provider: %s", c.LLM.Provider)
	}

	switch c.ImageGen.API {
	case "nai", "sd", "comfyui":
	default:
		return fmt.Errorf("invalid imagegen api: %s", c.ImageGen.API)
	}

	return nil
}

// ValidateImageRun 图片生成运行前的配置检查（不触发任何网络调用）
func (c *Config) ValidateImageRun() error {
	if c.ImageGen.SaveDir == "" {
		return errors.New("imagegen.save_dir 未配置")
	}
	switch c.ImageGen.API {
	case "nai":
		if c.NAI.APIKey == "" {
			return errors.New("nai.api_key 未配置")
		}
	case "comfyui":
		if c.ComfyUI.WorkflowJSONPath == "" {
			return errors.New("comfyui.workflow_json_path 未配置")
		}
		if _, err := os.Stat(c.ComfyUI.WorkflowJSONPath); err != nil {
			return fmt.Errorf("工作流JSON不存在: %s", c.ComfyUI.WorkflowJSONPath)
		}
	}
	return nil
}

// ValidateAudioRun 语音生成运行前的配置检查
func (c *Config) ValidateAudioRun() error {
	if c.AudioGen.SaveDir == "" {
		return errors.New("audiogen.save_dir 未配置")
	}
	if c.GPTSoVITS.Endpoint == "" {
		return errors.New("gptsovits.endpoint 未配置")
	}
	return nil
}
