package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LoRAEntry 角色档案里的单个 LoRA 配置
type LoRAEntry struct {
	Name          string  `json:"name"`
	StrengthModel float64 `json:"strength_model"`
	StrengthClip  float64 `json:"strength_clip"`
}

// CharacterProfile 单个角色的生成档案
// 键是角色在脚本中的显示名，ReplacementName 用于提示词阶段的名称替换
type CharacterProfile struct {
	DisplayName     string      `json:"display_name"`
	ReplacementName string      `json:"replacement_name"`
	NAIPositive     string      `json:"nai_positive"`
	NAINegative     string      `json:"nai_negative"`
	SDPositive      string      `json:"sd_positive"`
	SDNegative      string      `json:"sd_negative"`
	ImagePath       string      `json:"image_path"`
	MaskPath        string      `json:"mask_path"`
	LoRAs           []LoRAEntry `json:"loras"`
}

// Profiles 角色档案集合，键为显示名
type Profiles map[string]CharacterProfile

// LoadProfiles 从 JSON 文件读取角色档案
func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取角色档案失败: %w", err)
	}
	var profiles Profiles
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("解析角色档案失败: %w", err)
	}
	for name, p := range profiles {
		if p.DisplayName == "" {
			p.DisplayName = name
			profiles[name] = p
		}
	}
	return profiles, nil
}

// Lookup 按名称查找档案，先精确匹配再做替换名匹配
func (ps Profiles) Lookup(name string) (CharacterProfile, bool) {
	if p, ok := ps[name]; ok {
		return p, true
	}
	for _, p := range ps {
		if p.ReplacementName != "" && p.ReplacementName == name {
			return p, true
		}
	}
	return CharacterProfile{}, false
}

// NameResolver 统一的名称替换
// 档案键和正文替换走同一条路径，保证两边看到的名字一致
type NameResolver struct {
	mapping map[string]string // 显示名 → 替换名
}

// NewNameResolver 从档案集合构建解析器
func NewNameResolver(profiles Profiles) *NameResolver {
	mapping := make(map[string]string)
	for name, p := range profiles {
		if p.ReplacementName != "" && p.ReplacementName != name {
			mapping[name] = p.ReplacementName
		}
	}
	return &NameResolver{mapping: mapping}
}

// Resolve 返回名称的替换形式，没有配置替换时原样返回
func (r *NameResolver) Resolve(name string) string {
	if r == nil {
		return name
	}
	if replaced, ok := r.mapping[name]; ok {
		return replaced
	}
	return name
}

// ReplaceAll 把文本中出现的所有显示名替换为替换名
func (r *NameResolver) ReplaceAll(text string) string {
	if r == nil || len(r.mapping) == 0 {
		return text
	}
	pairs := make([]string, 0, len(r.mapping)*2)
	for from, to := range r.mapping {
		pairs = append(pairs, from, to)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
