package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kagen/internal/config"
	httppkg "kagen/internal/pkg/http"
	"kagen/internal/pkg/kagscript"
)

// ScriptHandler 脚本工具处理器
// 纯文本变换和任务预览，不触发任何生成
type ScriptHandler struct {
	cfg *config.Config
}

// NewScriptHandler 创建脚本工具处理器
func NewScriptHandler(cfg *config.Config) *ScriptHandler {
	return &ScriptHandler{cfg: cfg}
}

// PlaceholderRequest 占位标记替换请求
type PlaceholderRequest struct {
	Script string `json:"script" binding:"required"`
	Prefix string `json:"prefix"`
}

// ScriptResponse 改写后的脚本
type ScriptResponse struct {
	Script string `json:"script"`
}

// ReplacePlaceholders 占位标记替换
// @Summary 把 LLM 输出的占位标记改写为注释生成标签
// @Tags script
// @Accept json
// @Produce json
// @Param request body PlaceholderRequest true "脚本与文件名前缀"
// @Success 200 {object} httppkg.SuccessResponse{data=ScriptResponse}
// @Failure 400 {object} httppkg.ErrorResponse
// @Router /script/placeholders [post]
func (h *ScriptHandler) ReplacePlaceholders(c *gin.Context) {
	var req PlaceholderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40001, "无效的请求体", err.Error()))
		return
	}
	script := kagscript.ReplacePlaceholders(req.Script, req.Prefix)
	c.JSON(http.StatusOK, httppkg.NewSuccessResponse("ok", ScriptResponse{Script: script}))
}

// TaskQueryRequest 任务解析请求
type TaskQueryRequest struct {
	Script   string          `json:"script" binding:"required"`
	Scope    kagscript.Scope `json:"scope"`
	Specific []string        `json:"specific"`
}

// ImageTasks 解析图片任务（试运行）
// @Summary 解析并筛选脚本中的图片生成任务
// @Tags script
// @Accept json
// @Produce json
// @Param request body TaskQueryRequest true "脚本与筛选范围"
// @Success 200 {object} httppkg.SuccessResponse{data=[]kagscript.ImageTask}
// @Failure 400 {object} httppkg.ErrorResponse
// @Router /script/tasks/images [post]
func (h *ScriptHandler) ImageTasks(c *gin.Context) {
	var req TaskQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40001, "无效的请求体", err.Error()))
		return
	}
	tasks := kagscript.ParseImageTasks(req.Script, kagscript.APIKind(h.cfg.ImageGen.API))
	selected, err := kagscript.FilterImageTasks(tasks, req.Scope, req.Specific)
	if err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40002, "任务筛选失败", err.Error()))
		return
	}
	c.JSON(http.StatusOK, httppkg.NewSuccessResponse("ok", selected))
}

// AudioTasks 解析语音任务（试运行）
// @Summary 解析并筛选脚本中的语音生成任务
// @Tags script
// @Accept json
// @Produce json
// @Param request body TaskQueryRequest true "脚本与筛选范围"
// @Success 200 {object} httppkg.SuccessResponse{data=[]kagscript.AudioTask}
// @Failure 400 {object} httppkg.ErrorResponse
// @Router /script/tasks/audios [post]
func (h *ScriptHandler) AudioTasks(c *gin.Context) {
	var req TaskQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40001, "无效的请求体", err.Error()))
		return
	}
	tasks := kagscript.ParseAudioTasks(req.Script)
	selected, err := kagscript.FilterAudioTasks(tasks, req.Scope, req.Specific)
	if err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40002, "任务筛选失败", err.Error()))
		return
	}
	c.JSON(http.StatusOK, httppkg.NewSuccessResponse("ok", selected))
}

// ExportRequest 脚本导出请求
type ExportRequest struct {
	Script string `json:"script" binding:"required"`
	Path   string `json:"path" binding:"required"`
}

// Export 导出 .ks 脚本文件
// @Summary 以 UTF-16LE（带 BOM）写出 .ks 脚本
// @Tags script
// @Accept json
// @Produce json
// @Param request body ExportRequest true "脚本与输出路径"
// @Success 200 {object} httppkg.SuccessResponse
// @Failure 400 {object} httppkg.ErrorResponse
// @Failure 500 {object} httppkg.ErrorResponse
// @Router /script/export [post]
func (h *ScriptHandler) Export(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httppkg.NewErrorResponse(40001, "无效的请求体", err.Error()))
		return
	}
	if err := kagscript.WriteKS(req.Path, req.Script); err != nil {
		c.JSON(http.StatusInternalServerError, httppkg.NewErrorResponse(50001, "脚本写出失败", err.Error()))
		return
	}
	c.JSON(http.StatusOK, httppkg.NewSuccessResponse("ok", gin.H{"path": req.Path}))
}
