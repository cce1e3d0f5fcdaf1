package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"kagen/internal/config"
	"kagen/internal/handler"
	"kagen/internal/pkg/debuglog"
	"kagen/internal/pkg/llm"
	"kagen/internal/server/middleware"
	"kagen/internal/service/generate"
	"kagen/internal/service/pipeline"
)

// Server HTTP 服务器
type Server struct {
	cfg    *config.Config
	engine *gin.Engine
}

// New 创建服务器实例
func New(cfg *config.Config) (*Server, error) {
	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建 Gin 引擎
	engine := gin.New()

	srv := &Server{
		cfg:    cfg,
		engine: engine,
	}
	srv.setupRoutes()

	return srv, nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 健康检查
	healthHandler := handler.NewHealthHandler()
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	dumper := &debuglog.Dumper{
		Enabled: s.cfg.Debug.DumpAPIRequests,
		Dir:     s.cfg.Debug.DumpDir,
	}

	// API v1
	v1 := s.engine.Group("/api/v1")
	{
		// 流水线接口（可选：未配置文本模型时禁用）
		provider, err := llm.NewProvider(context.Background(), &s.cfg.LLM, dumper)
		if err != nil {
			log.Warn().Err(err).Msg("文本模型未就绪，流水线接口已禁用")
		} else {
			log.Info().Str("provider", provider.Name()).Msg("文本模型已初始化")
			pipelineHdl := handler.NewPipelineHandler(pipeline.NewService(provider))
			v1.POST("/pipeline/preprocess", pipelineHdl.Preprocess)
			v1.POST("/pipeline/enhance", pipelineHdl.Enhance)
			v1.POST("/pipeline/bgm", pipelineHdl.BGM)
			v1.POST("/pipeline/convert", pipelineHdl.Convert)
		}

		// 脚本工具接口
		scriptHdl := handler.NewScriptHandler(s.cfg)
		v1.POST("/script/placeholders", scriptHdl.ReplacePlaceholders)
		v1.POST("/script/tasks/images", scriptHdl.ImageTasks)
		v1.POST("/script/tasks/audios", scriptHdl.AudioTasks)
		v1.POST("/script/export", scriptHdl.Export)

		// 生成运行接口
		generateHdl := handler.NewGenerateHandler(
			generate.NewImageService(s.cfg, dumper),
			generate.NewAudioService(s.cfg, dumper),
		)
		v1.POST("/generate/images", generateHdl.Images)
		v1.POST("/generate/audios", generateHdl.Audios)
		v1.POST("/generate/stop", generateHdl.Stop)
		v1.GET("/generate/status", generateHdl.Status)
	}
}

// Run 启动服务器
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待关闭信号或错误
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
