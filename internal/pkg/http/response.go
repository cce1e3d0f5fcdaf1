package http

// ErrorResponse 统一的错误响应体，全部接口共用
type ErrorResponse struct {
	Code    int    `json:"code"`             // 业务错误码，非 0 表示错误
	Message string `json:"message"`          // 错误消息
	Detail  string `json:"detail,omitempty"` // 详情，通常是底层 error 文本
}

// SuccessResponse 统一的成功响应体，data 放各接口自己的结果
type SuccessResponse struct {
	Code    int         `json:"code"`           // 0 表示成功
	Message string      `json:"message"`        // 响应消息
	Data    interface{} `json:"data,omitempty"` // 响应数据
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(message string, data interface{}) *SuccessResponse {
	return &SuccessResponse{
		Code:    0,
		Message: message,
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string, detail ...string) *ErrorResponse {
	resp := &ErrorResponse{
		Code:    code,
		Message: message,
	}
	if len(detail) > 0 && detail[0] != "" {
		resp.Detail = detail[0]
	}
	return resp
}
