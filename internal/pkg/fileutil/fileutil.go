package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// 文件系统不允许出现在文件名里的字符
var illegalChars = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_",
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// SanitizeFilename 替换文件名中的非法字符
func SanitizeFilename(name string) string {
	return strings.TrimSpace(illegalChars.Replace(name))
}

// EnsureImageExt 强制文件名带图片扩展名，已有合法扩展名时保留
func EnsureImageExt(name string) string {
	if imageExts[strings.ToLower(filepath.Ext(name))] {
		return name
	}
	return name + ".png"
}

// SampleName 多采样时给文件名追加 _<n> 序号，单采样保持原名
func SampleName(name string, index, total int) string {
	if total <= 1 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), index+1, ext)
}

// SafeSavePath 返回不覆盖已有文件的保存路径
// 目标已存在时追加时间戳后缀，绝不覆盖
func SafeSavePath(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	stamped := fmt.Sprintf("%s_%s%s", stem, time.Now().Format("20060102_150405"), ext)
	return filepath.Join(dir, stamped)
}

// SaveFile 把数据写入目录下的文件，自动建目录并规避覆盖
// 返回实际写入的路径
func SaveFile(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}
	path := SafeSavePath(dir, SanitizeFilename(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("写入文件失败: %w", err)
	}
	return path, nil
}
