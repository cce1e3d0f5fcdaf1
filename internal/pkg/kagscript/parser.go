package kagscript

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// KAG 脚本中的生成任务以 1-2 行注释 + 1 行标签的形式存在，
// 标签行带前导分号表示"尚未生成"，去掉分号表示"已生成"。
// 这个前缀是任务完成状态唯一的持久化存储。
var (
	// ; NAI Prompt for 爱丽丝: Positive=[...] Negative=[...]
	// ; IMG Prompt for 爱丽丝: Positive=[...] Negative=[...]
	imagePromptRe = regexp.MustCompile(`^;\s*(NAI|IMG) Prompt for\s+(.+?):\s*Positive=\[(.*?)\]\s*Negative=\[(.*?)\]\s*$`)

	// 旧版格式的第二行注释，解析时跳过但不打断注释块
	legacyPromptRe = regexp.MustCompile(`^;\s*SD Prompt for\s+.+$`)

	// [image storage="alice_1.png" layer=0 page=fore] / 可带前导分号
	imageTagRe = regexp.MustCompile(`^(;?)\s*\[image\s+storage="([^"]+)"[^\]]*\]\s*$`)

	// @playse storage="PLACEHOLDER_..." ... name="爱丽丝" / 可带前导分号
	audioTagRe = regexp.MustCompile(`^(;?)\s*@playse\s+storage="(PLACEHOLDER_[^"]*)".*?name="([^"]+)".*$`)

	// 台词行：「对话」或（独白），行尾允许跟 [p] 之类的 KAG 标签
	dialogueRe  = regexp.MustCompile(`^「(.*)」(?:\[[^\]]*\])*\s*$`)
	monologueRe = regexp.MustCompile(`^（(.*)）(?:\[[^\]]*\])*\s*$`)
)

// APIKind 图片后端类型，决定双格式注释并存时取哪一种提示词
type APIKind string

const (
	APINAI     APIKind = "nai"
	APISD      APIKind = "sd"
	APIComfyUI APIKind = "comfyui"
)

// ImageTask 从脚本解析出的单个图片生成任务
// 每次解析都重新构建，不做独立持久化
type ImageTask struct {
	Name        string `json:"name"`
	Positive    string `json:"positive"`
	Negative    string `json:"negative"`
	Filename    string `json:"filename"`
	TagLine     string `json:"tag_line"` // 标签行原文，逐字节保留，提交成功时用于回写
	IsCommented bool   `json:"is_commented"`
}

// AudioTask 从脚本解析出的单个语音生成任务
type AudioTask struct {
	Speaker     string `json:"speaker"`
	Text        string `json:"text"`
	Placeholder string `json:"placeholder"`
	TagLine     string `json:"tag_line"`
	IsCommented bool   `json:"is_commented"`
}

// promptComment 暂存在标签行之前出现的提示词注释
type promptComment struct {
	name     string
	positive string
	negative string
}

// ParseImageTasks 扫描脚本文本，提取图片生成任务
// 注释块与标签行按位置匹配：提示词注释行（可多种格式并存）紧邻其后的
// [image storage=...] 行构成一个任务。格式残缺的块记录警告后跳过，
// 解析永远不会因为输入格式错误而失败。
func ParseImageTasks(script string, api APIKind) []ImageTask {
	var tasks []ImageTask

	// 按格式暂存待配对的注释（NAI / IMG 两种格式可以同时存在）
	pending := map[string]promptComment{}

	for _, rawLine := range strings.Split(script, "\n") {
		line := strings.TrimSuffix(rawLine, "\r")

		if m := imagePromptRe.FindStringSubmatch(line); m != nil {
			pending[m[1]] = promptComment{name: strings.TrimSpace(m[2]), positive: m[3], negative: m[4]}
			continue
		}
		if legacyPromptRe.MatchString(line) {
			continue
		}

		if m := imageTagRe.FindStringSubmatch(line); m != nil {
			if len(pending) == 0 {
				// 没有任何提示词注释的孤立图片标签不构成任务
				pending = map[string]promptComment{}
				continue
			}

			comment, ok := selectPrompt(pending, api)
			if !ok {
				log.Warn().Str("line", line).Msg("图片标签缺少可用的提示词注释，跳过")
				pending = map[string]promptComment{}
				continue
			}

			filename := m[2]
			if filename == "" {
				log.Warn().Str("line", line).Msg("图片标签缺少 storage 文件名，跳过")
				pending = map[string]promptComment{}
				continue
			}

			tasks = append(tasks, ImageTask{
				Name:        comment.name,
				Positive:    comment.positive,
				Negative:    comment.negative,
				Filename:    filename,
				TagLine:     rawLine,
				IsCommented: m[1] == ";",
			})
			pending = map[string]promptComment{}
			continue
		}

		// 其他非空行打断注释块的位置关系
		if strings.TrimSpace(line) != "" {
			pending = map[string]promptComment{}
		}
	}

	return tasks
}

// selectPrompt 按后端类型选择提示词格式：NAI 后端取 NAI 注释，
// SD/ComfyUI 后端取 IMG 注释；目标格式缺失时退回另一种
func selectPrompt(pending map[string]promptComment, api APIKind) (promptComment, bool) {
	order := []string{"IMG", "NAI"}
	if api == APINAI {
		order = []string{"NAI", "IMG"}
	}
	for _, kind := range order {
		if c, ok := pending[kind]; ok {
			return c, true
		}
	}
	return promptComment{}, false
}

// ParseAudioTasks 扫描脚本文本，提取语音生成任务
// @playse 占位标签之后的第一个非空行如果是「对话」或（独白），
// 括号内文本即为要合成的台词
func ParseAudioTasks(script string) []AudioTask {
	var tasks []AudioTask

	lines := strings.Split(script, "\n")
	for i, rawLine := range lines {
		line := strings.TrimSuffix(rawLine, "\r")

		m := audioTagRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		text, ok := nextSpokenLine(lines, i+1)
		if !ok {
			log.Warn().Str("placeholder", m[2]).Msg("语音占位标签之后没有台词行，跳过")
			continue
		}

		tasks = append(tasks, AudioTask{
			Speaker:     m[3],
			Text:        text,
			Placeholder: m[2],
			TagLine:     rawLine,
			IsCommented: m[1] == ";",
		})
	}

	return tasks
}

// nextSpokenLine 返回 start 之后第一个非空行的台词内容
func nextSpokenLine(lines []string, start int) (string, bool) {
	for i := start; i < len(lines); i++ {
		line := strings.TrimSuffix(lines[i], "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if m := dialogueRe.FindStringSubmatch(line); m != nil {
			return m[1], true
		}
		if m := monologueRe.FindStringSubmatch(line); m != nil {
			return m[1], true
		}
		return "", false
	}
	return "", false
}

// Scope 任务选择范围
// 语义沿用脚本的生成状态：uncommented 选择尚未生成（标签行仍带分号）的
// 任务，commented 选择已生成的任务
type Scope string

const (
	ScopeAll         Scope = "all"
	ScopeUncommented Scope = "uncommented"
	ScopeCommented   Scope = "commented"
	ScopeSpecific    Scope = "specific"
)

// FilterImageTasks 按范围筛选图片任务
// specific 范围要求每个指定文件名都在脚本中存在，否则返回列出缺失项的
// 错误且不产生任何副作用
func FilterImageTasks(tasks []ImageTask, scope Scope, specific []string) ([]ImageTask, error) {
	switch scope {
	case ScopeAll, "":
		return tasks, nil
	case ScopeUncommented:
		var out []ImageTask
		for _, t := range tasks {
			if t.IsCommented {
				out = append(out, t)
			}
		}
		return out, nil
	case ScopeCommented:
		var out []ImageTask
		for _, t := range tasks {
			if !t.IsCommented {
				out = append(out, t)
			}
		}
		return out, nil
	case ScopeSpecific:
		byName := map[string]ImageTask{}
		for _, t := range tasks {
			byName[t.Filename] = t
		}
		var out []ImageTask
		var missing []string
		for _, name := range specific {
			if t, ok := byName[name]; ok {
				out = append(out, t)
			} else {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("指定的文件名在脚本中不存在: %s", strings.Join(missing, ", "))
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("specific 范围没有匹配到任何任务")
		}
		return out, nil
	default:
		return nil, fmt.Errorf("未知的任务范围: %s", scope)
	}
}

// FilterAudioTasks 按范围筛选语音任务，specific 按占位名匹配
func FilterAudioTasks(tasks []AudioTask, scope Scope, specific []string) ([]AudioTask, error) {
	switch scope {
	case ScopeAll, "":
		return tasks, nil
	case ScopeUncommented:
		var out []AudioTask
		for _, t := range tasks {
			if t.IsCommented {
				out = append(out, t)
			}
		}
		return out, nil
	case ScopeCommented:
		var out []AudioTask
		for _, t := range tasks {
			if !t.IsCommented {
				out = append(out, t)
			}
		}
		return out, nil
	case ScopeSpecific:
		byName := map[string]AudioTask{}
		for _, t := range tasks {
			byName[t.Placeholder] = t
		}
		var out []AudioTask
		var missing []string
		for _, name := range specific {
			if t, ok := byName[name]; ok {
				out = append(out, t)
			} else {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("指定的占位名在脚本中不存在: %s", strings.Join(missing, ", "))
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("specific 范围没有匹配到任何任务")
		}
		return out, nil
	default:
		return nil, fmt.Errorf("未知的任务范围: %s", scope)
	}
}
