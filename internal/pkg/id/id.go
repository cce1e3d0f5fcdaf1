package id

import (
	"github.com/google/uuid"
)

// New 生成一个新的 UUID 字符串
// 请求ID和 ComfyUI 的 client_id 都从这里取
func New() string {
	return uuid.New().String()
}

// IsValid 检查字符串是否为合法的 UUID
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
