package kagscript

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/text/encoding/unicode"
)

// KiriKiri2 引擎要求 .ks 脚本使用带 BOM 的 UTF-16LE 编码，
// 写出的字节必须与该格式逐位一致

// WriteKS 将脚本文本写入 .ks 文件（UTF-16LE + BOM）
func WriteKS(path, script string) error {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	data, err := enc.Bytes([]byte(script))
	if err != nil {
		return fmt.Errorf("encode UTF-16LE: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write ks file: %w", err)
	}
	return nil
}

// ReadKS 读取 .ks 文件并解码为 UTF-8 文本
// 没有 BOM 时按 UTF-16LE 处理
func ReadKS(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read ks file: %w", err)
	}

	dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	out, err := dec.Bytes(data)
	if err != nil {
		dec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		out, err = dec.Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode UTF-16LE: %w", err)
		}
	}
	return string(out), nil
}
