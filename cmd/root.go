package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kagen/internal/config"
	"kagen/internal/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "kagen",
	Short: "Kagen - KAG visual-novel script generation service",
	Long: `Kagen converts raw novel text into KAG/KiriKiri2 visual-novel scripts,
driving LLM text stages and NovelAI / SD WebUI / ComfyUI / GPT-SoVITS
generation backends through one HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./configs/config.yaml)")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.kagen")
	}

	// 环境变量设置
	viper.SetEnvPrefix("KAGEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 设置默认值
	setDefaults()

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Fprintln(os.Stderr, "No config file found, using defaults and environment variables")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
			os.Exit(1)
		}
	}

	// 反序列化到结构体
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unmarshal config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	log.Debug().Str("config_file", viper.ConfigFileUsed()).Msg("configuration loaded")
}

func setDefaults() {
	// Server
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "600s")

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.time_format", "RFC3339")

	// LLM
	viper.SetDefault("llm.provider", "google")
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.max_tokens", 8192)
	viper.SetDefault("llm.top_p", 0.95)
	viper.SetDefault("llm.top_k", 40)
	viper.SetDefault("llm.google.model", "gemini-1.5-pro")
	viper.SetDefault("llm.google.base_url", "https://generativelanguage.googleapis.com")
	viper.SetDefault("llm.openai.model", "gpt-4o")
	viper.SetDefault("llm.openai.base_url", "")
	viper.SetDefault("llm.ark.model", "")

	// NovelAI
	viper.SetDefault("nai.api_url", "https://api.novelai.net")
	viper.SetDefault("nai.model", "nai-diffusion-3")
	viper.SetDefault("nai.sampler", "k_euler_ancestral")
	viper.SetDefault("nai.steps", 28)
	viper.SetDefault("nai.scale", 5.0)
	viper.SetDefault("nai.timeout", "180s")
	viper.SetDefault("nai.uc_preset", 0)
	viper.SetDefault("nai.strength", 0.7)
	viper.SetDefault("nai.noise", 0.0)

	// SD WebUI
	viper.SetDefault("sd.base_url", "http://127.0.0.1:7860")
	viper.SetDefault("sd.timeout", "300s")
	viper.SetDefault("sd.sampler", "DPM++ 2M Karras")
	viper.SetDefault("sd.steps", 25)
	viper.SetDefault("sd.cfg_scale", 7.0)
	viper.SetDefault("sd.hr_scale", 2.0)
	viper.SetDefault("sd.hr_upscaler", "Latent")
	viper.SetDefault("sd.denoising_strength", 0.7)
	viper.SetDefault("sd.mask_blur", 4)
	viper.SetDefault("sd.inpainting_fill", 1)
	viper.SetDefault("sd.inpaint_full_res", true)

	// ComfyUI
	viper.SetDefault("comfyui.api_url", "http://127.0.0.1:8188")
	viper.SetDefault("comfyui.timeout", "30s")
	viper.SetDefault("comfyui.connect_timeout", "10s")
	viper.SetDefault("comfyui.read_timeout", "10s")
	viper.SetDefault("comfyui.poll_interval", "1s")
	viper.SetDefault("comfyui.max_wait", "600s")
	viper.SetDefault("comfyui.denoise", 0.7)

	// GPT-SoVITS
	viper.SetDefault("gptsovits.endpoint", "http://127.0.0.1:9880")
	viper.SetDefault("gptsovits.timeout", "120s")
	viper.SetDefault("gptsovits.initial_delay", "2s")
	viper.SetDefault("gptsovits.retry_delay", "2s")
	viper.SetDefault("gptsovits.max_retries", 3)
	viper.SetDefault("gptsovits.how_to_cut", "凑四句一切")
	viper.SetDefault("gptsovits.top_k", 5)
	viper.SetDefault("gptsovits.top_p", 1.0)
	viper.SetDefault("gptsovits.temperature", 1.0)

	// 图片生成运行
	viper.SetDefault("imagegen.api", "comfyui")
	viper.SetDefault("imagegen.save_dir", "output/images")
	viper.SetDefault("imagegen.n_samples", 1)
	viper.SetDefault("imagegen.seed", 42)
	viper.SetDefault("imagegen.random_seed", true)
	viper.SetDefault("imagegen.enable_img2img", false)
	viper.SetDefault("imagegen.width", 1024)
	viper.SetDefault("imagegen.height", 1024)

	// 语音生成运行
	viper.SetDefault("audiogen.save_dir", "output/audios")
	viper.SetDefault("audiogen.voice_map_path", "")
	viper.SetDefault("audiogen.audio_prefix", "")

	// 调试
	viper.SetDefault("debug.dump_api_requests", false)
	viper.SetDefault("debug.dump_dir", "debug_logs/api_requests")
}

// GetConfig returns the global configuration
func GetConfig() *config.Config {
	return cfg
}
