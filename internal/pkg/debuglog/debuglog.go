package debuglog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Dumper 把发往外部后端的请求负载落盘，便于排查
// 写出前对敏感字段（API Key、原始 Base64 媒体）做脱敏
type Dumper struct {
	Enabled bool
	Dir     string // 默认 debug_logs/api_requests
}

// 需要整体替换为占位符的键（小写匹配）
var redactedKeys = map[string]bool{
	"api_key":         true,
	"apikey":          true,
	"authorization":   true,
	"key":             true,
	"token":           true,
	"refer_wav_b64":   true,
	"audio_b64":       true,
	"image":           true,
	"mask":            true,
	"init_images":     true,
	"reference_audio": true,
}

// Dump 写出一份脱敏后的请求负载
// backend 决定子目录，identifier 拼入文件名；失败只记录警告，不影响请求
func (d *Dumper) Dump(backend, identifier string, payload interface{}) {
	if d == nil || !d.Enabled {
		return
	}

	dir := d.Dir
	if dir == "" {
		dir = filepath.Join("debug_logs", "api_requests")
	}
	dir = filepath.Join(dir, backend)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn().Err(err).Msg("创建调试日志目录失败")
		return
	}

	redacted := redact(payload)
	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("序列化调试负载失败")
		return
	}

	name := fmt.Sprintf("%s_%s.json", time.Now().Format("20060102_150405"), sanitizeIdentifier(identifier))
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		log.Warn().Err(err).Msg("写入调试日志失败")
	}
}

// redact 递归替换敏感字段
func redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			if redactedKeys[strings.ToLower(k)] {
				out[k] = "<redacted>"
				continue
			}
			out[k] = redact(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = redact(item)
		}
		return out
	default:
		return v
	}
}

func sanitizeIdentifier(s string) string {
	if s == "" {
		return "request"
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_", " ", "_")
	return replacer.Replace(s)
}
