package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	httppkg "kagen/internal/pkg/http"
	"kagen/internal/service/pipeline"
)

// PipelineHandler 文本流水线处理器
type PipelineHandler struct {
	svc *pipeline.Service
}

// NewPipelineHandler 创建流水线处理器
func NewPipelineHandler(svc *pipeline.Service) *PipelineHandler {
	return &PipelineHandler{svc: svc}
}

// StageResponse 阶段执行结果
type StageResponse struct {
	Stage string `json:"stage"`
	Text  string `json:"text"`
}

// Preprocess 预处理阶段
// @Summary 文本预处理
// @Description 给原始小说文本添加说话人标记和内心独白标记
// @Tags pipeline
// @Accept json
// @Produce json
// @Param request body pipeline.Request true "待处理文本"
// @Param stream query bool false "流式输出（SSE）"
// @Success 200 {object} httppkg.SuccessResponse{data=StageResponse}
// @Failure 400 {object} httppkg.ErrorResponse
// @Failure 500 {object} httppkg.ErrorResponse
// @Router /pipeline/preprocess [post]
func (h *PipelineHandler) Preprocess(c *gin.Context) {
	h.runStage(c, pipeline.StagePreprocess)
}

// Enhance 插图提示词阶段
// @Summary 插入插图提示词注释
// @Tags pipeline
// @Accept json
// @Produce json
// @Param request body pipeline.Request true "带标记文本和角色档案"
// @Param stream query bool false "流式输出（SSE）"
// @Success 200 {object} httppkg.SuccessResponse{data=StageResponse}
// @Failure 400 {object} httppkg.ErrorResponse
// @Failure 500 {object} httppkg.ErrorResponse
// @Router /pipeline/enhance [post]
func (h *PipelineHandler) Enhance(c *gin.Context) {
	h.runStage(c, pipeline.StageEnhance)
}

// BGM BGM 提示阶段
// @Summary 插入 BGM 提示注释
// @Tags pipeline
// @Accept json
// @Produce json
// @Param request body pipeline.Request true "增强后文本"
// @Param stream query bool false "流式输出（SSE）"
// @Success 200 {object} httppkg.SuccessResponse{data=StageResponse}
// @Failure 400 {object} httppkg.ErrorResponse
// @Failure 500 {object} httppkg.ErrorResponse
// @Router /pipeline/bgm [post]
func (h *PipelineHandler) BGM(c *gin.Context) {
	h.runStage(c, pipeline.StageBGM)
}

// Convert KAG 转换阶段
// @Summary 转换为 KAG 脚本
// @Tags pipeline
// @Accept json
// @Produce json
// @Param request body pipeline.Request true "带标记文本"
// @Param stream query bool false "流式输出（SSE）"
// @Success 200 {object} httppkg.SuccessResponse{data=StageResponse}
// @Failure 400 {object} httppkg.ErrorResponse
// @Failure 500 {object} httppkg.ErrorResponse
// @Router /pipeline/convert [post]
func (h *PipelineHandler) Convert(c *gin.Context) {
	h.runStage(c, pipeline.StageKAGConvert)
}

func (h *PipelineHandler) runStage(c *gin.Context, stage pipeline.Stage) {
	var req pipeline.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40001, "无效的请求体", err.Error()))
		return
	}

	if c.Query("stream") == "true" {
		h.streamStage(c, stage, &req)
		return
	}

	text, err := h.svc.Run(c.Request.Context(), stage, &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, httppkg.NewErrorResponse(50001, "阶段执行失败", err.Error()))
		return
	}
	c.JSON(http.StatusOK, httppkg.NewSuccessResponse("ok", StageResponse{Stage: string(stage), Text: text}))
}

// streamStage 以 SSE 转发 LLM 文本块
// 每个块一个 data 帧，结束帧为 done 事件；错误以 error 事件收尾
func (h *PipelineHandler) streamStage(c *gin.Context, stage pipeline.Stage, req *pipeline.Request) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	_, err := h.svc.Stream(c.Request.Context(), stage, req, func(chunk string) {
		c.SSEvent("message", chunk)
		c.Writer.Flush()
	})
	if err != nil {
		c.SSEvent("error", err.Error())
		c.Writer.Flush()
		return
	}
	c.SSEvent("done", string(stage))
	c.Writer.Flush()
}
