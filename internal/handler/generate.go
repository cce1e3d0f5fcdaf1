package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	httppkg "kagen/internal/pkg/http"
	"kagen/internal/service/generate"
)

// GenerateHandler 生成运行处理器
// 图片和语音共用一个单槽闸门：同一时刻最多一个运行在改写脚本
type GenerateHandler struct {
	imageSvc *generate.ImageService
	audioSvc *generate.AudioService
	gate     *generate.Gate
}

// NewGenerateHandler 创建生成运行处理器
func NewGenerateHandler(imageSvc *generate.ImageService, audioSvc *generate.AudioService) *GenerateHandler {
	return &GenerateHandler{
		imageSvc: imageSvc,
		audioSvc: audioSvc,
		gate:     generate.NewGate(),
	}
}

// Images 图片生成运行
// @Summary 执行一次图片生成运行
// @Description 解析脚本中的图片任务并逐个调用配置的后端，返回运行报告和改写后的脚本
// @Tags generate
// @Accept json
// @Produce json
// @Param request body generate.ImageRunRequest true "脚本、范围与角色档案"
// @Success 200 {object} httppkg.SuccessResponse{data=generate.Report}
// @Failure 400 {object} httppkg.ErrorResponse
// @Failure 409 {object} httppkg.ErrorResponse
// @Router /generate/images [post]
func (h *GenerateHandler) Images(c *gin.Context) {
	var req generate.ImageRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40001, "无效的请求体", err.Error()))
		return
	}

	stop, ok := h.gate.TryAcquire("image")
	if !ok {
		c.JSON(http.StatusConflict, httppkg.NewErrorResponse(40901, "已有生成运行在进行中"))
		return
	}
	defer h.gate.Release()

	report, err := h.imageSvc.Run(c.Request.Context(), &req, stop)
	if err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40002, "运行启动失败", err.Error()))
		return
	}
	c.JSON(http.StatusOK, httppkg.NewSuccessResponse("ok", report))
}

// Audios 语音生成运行
// @Summary 执行一次语音生成运行
// @Tags generate
// @Accept json
// @Produce json
// @Param request body generate.AudioRunRequest true "脚本、范围与语音映射"
// @Success 200 {object} httppkg.SuccessResponse{data=generate.Report}
// @Failure 400 {object} httppkg.ErrorResponse
// @Failure 409 {object} httppkg.ErrorResponse
// @Router /generate/audios [post]
func (h *GenerateHandler) Audios(c *gin.Context) {
	var req generate.AudioRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40001, "无效的请求体", err.Error()))
		return
	}

	stop, ok := h.gate.TryAcquire("audio")
	if !ok {
		c.JSON(http.StatusConflict, httppkg.NewErrorResponse(40901, "已有生成运行在进行中"))
		return
	}
	defer h.gate.Release()

	report, err := h.audioSvc.Run(c.Request.Context(), &req, stop)
	if err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40002, "运行启动失败", err.Error()))
		return
	}
	c.JSON(http.StatusOK, httppkg.NewSuccessResponse("ok", report))
}

// Stop 停止当前运行
// @Summary 置位当前运行的停止令牌
// @Description 协作式停止：正在进行的远程调用允许完成，其结果被丢弃
// @Tags generate
// @Produce json
// @Success 200 {object} httppkg.SuccessResponse
// @Failure 404 {object} httppkg.ErrorResponse
// @Router /generate/stop [post]
func (h *GenerateHandler) Stop(c *gin.Context) {
	if !h.gate.Stop() {
		c.JSON(http.StatusNotFound, httppkg.NewErrorResponse(40401, "当前没有运行中的任务"))
		return
	}
	c.JSON(http.StatusOK, httppkg.NewSuccessResponse("停止信号已发送", nil))
}

// Status 查询运行状态
// @Summary 查询当前是否有生成运行
// @Tags generate
// @Produce json
// @Success 200 {object} httppkg.SuccessResponse
// @Router /generate/status [get]
func (h *GenerateHandler) Status(c *gin.Context) {
	kind, running := h.gate.Running()
	status := "idle"
	if running {
		status = "running"
	}
	c.JSON(http.StatusOK, httppkg.NewSuccessResponse("ok", gin.H{
		"status": status,
		"kind":   kind,
	}))
}
