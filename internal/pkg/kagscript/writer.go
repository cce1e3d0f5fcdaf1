package kagscript

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// CommitLines 将本次运行中确认成功的任务标签行取消注释
// successLines 是运行期间收集的"待取消注释"标签行集合，必须与脚本中的
// 行逐字节一致才会被改写；其余所有行原样通过。改写只会去掉前导分号，
// 永远不会重新注释或删除任何内容
func CommitLines(script string, successLines map[string]struct{}) string {
	if len(successLines) == 0 {
		return script
	}

	lines := strings.Split(script, "\n")
	for i, line := range lines {
		if _, ok := successLines[line]; !ok {
			continue
		}
		if strings.HasPrefix(line, ";") {
			lines[i] = line[1:]
		}
	}
	return strings.Join(lines, "\n")
}

var (
	// LLM KAG 转换阶段输出的临时占位标记
	imagePlaceholderRe = regexp.MustCompile(`\[INSERT_IMAGE_HERE:([^\]\r\n]+)\]`)
	audioPlaceholderRe = regexp.MustCompile(`\[INSERT_AUDIO_HERE:([^\]\r\n]+)\]`)
)

// ReplacePlaceholders 把 LLM 输出的占位标记改写成带具体文件名的注释标签
// 这是"LLM 刚生成了结构"和"脚本拥有具体生成任务"之间的桥梁：
//   [INSERT_IMAGE_HERE:爱丽丝] → ;[image storage="<prefix>爱丽丝_1.png" layer=0 page=fore]
//   [INSERT_AUDIO_HERE:爱丽丝] → ;@playse storage="PLACEHOLDER_爱丽丝_1.wav" buf=0 name="爱丽丝"
// 序号按角色独立递增
func ReplacePlaceholders(script, prefix string) string {
	imageSeq := map[string]int{}
	script = imagePlaceholderRe.ReplaceAllStringFunc(script, func(match string) string {
		name := strings.TrimSpace(imagePlaceholderRe.FindStringSubmatch(match)[1])
		if name == "" {
			log.Warn().Str("placeholder", match).Msg("图片占位标记缺少角色名，保留原样")
			return match
		}
		imageSeq[name]++
		return fmt.Sprintf(`;[image storage="%s%s_%d.png" layer=0 page=fore]`, prefix, name, imageSeq[name])
	})

	audioSeq := map[string]int{}
	script = audioPlaceholderRe.ReplaceAllStringFunc(script, func(match string) string {
		name := strings.TrimSpace(audioPlaceholderRe.FindStringSubmatch(match)[1])
		if name == "" {
			log.Warn().Str("placeholder", match).Msg("语音占位标记缺少角色名，保留原样")
			return match
		}
		audioSeq[name]++
		return fmt.Sprintf(`;@playse storage="PLACEHOLDER_%s_%d.wav" buf=0 name="%s"`, name, audioSeq[name], name)
	})

	return script
}
