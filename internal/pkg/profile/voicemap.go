package profile

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

// VoiceEntry 单个说话人的参考音频配置
// Mode 为 map 时直接使用 ReferWavPath 指定的参考片段，
// 为 random 时每次从 ReferWavPath 目录随机挑选一个音频文件
type VoiceEntry struct {
	Mode           string `json:"mode"` // map / random
	ReferWavPath   string `json:"refer_wav_path"`
	PromptText     string `json:"prompt_text"`
	PromptLanguage string `json:"prompt_language"`
	TextLanguage   string `json:"text_language"`
}

// VoiceMap 说话人 → 参考音频配置
type VoiceMap map[string]VoiceEntry

// LoadVoiceMap 从 JSON 文件读取语音映射
func LoadVoiceMap(path string) (VoiceMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取语音映射失败: %w", err)
	}
	var vm VoiceMap
	if err := json.Unmarshal(data, &vm); err != nil {
		return nil, fmt.Errorf("解析语音映射失败: %w", err)
	}
	return vm, nil
}

var audioExts = map[string]bool{".wav": true, ".mp3": true, ".flac": true, ".ogg": true}

// ResolveReference 解析说话人的参考音频
// random 模式从目录里随机选一个音频文件，目录为空是错误
func (vm VoiceMap) ResolveReference(speaker string) (VoiceEntry, error) {
	entry, ok := vm[speaker]
	if !ok {
		return VoiceEntry{}, fmt.Errorf("语音映射中没有说话人: %s", speaker)
	}

	switch entry.Mode {
	case "map", "":
		if entry.ReferWavPath == "" {
			return VoiceEntry{}, fmt.Errorf("说话人 %s 缺少参考音频路径", speaker)
		}
		return entry, nil
	case "random":
		files, err := os.ReadDir(entry.ReferWavPath)
		if err != nil {
			return VoiceEntry{}, fmt.Errorf("读取参考音频目录失败: %w", err)
		}
		var candidates []string
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			if audioExts[strings.ToLower(filepath.Ext(f.Name()))] {
				candidates = append(candidates, filepath.Join(entry.ReferWavPath, f.Name()))
			}
		}
		if len(candidates) == 0 {
			return VoiceEntry{}, fmt.Errorf("参考音频目录为空: %s", entry.ReferWavPath)
		}
		picked := entry
		picked.ReferWavPath = candidates[rand.Intn(len(candidates))]
		if picked.PromptText == "" {
			// 约定：参考音频的文件名（去扩展名）就是它的文本内容
			base := filepath.Base(picked.ReferWavPath)
			picked.PromptText = strings.TrimSuffix(base, filepath.Ext(base))
		}
		return picked, nil
	default:
		return VoiceEntry{}, fmt.Errorf("未知的语音映射模式: %s", entry.Mode)
	}
}
