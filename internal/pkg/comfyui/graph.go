package comfyui

import (
	"encoding/json"
	"fmt"
	"os"
)

// Graph API 导出格式的 ComfyUI 工作流图：节点ID → 节点
// 节点布局完全由用户决定，定位只能依赖 _meta.title（用户自定义约定，
// 不保证唯一，取第一个匹配）
type Graph map[string]interface{}

// LoadGraph 加载工作流 JSON 模板
func LoadGraph(path string) (Graph, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("工作流JSON不存在: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow JSON: %w", err)
	}

	var graph Graph
	if err := json.Unmarshal(data, &graph); err != nil {
		return nil, fmt.Errorf("unmarshal workflow JSON: %w", err)
	}

	return graph, nil
}

// Clone 深拷贝工作流图（JSON 往返）
// 每个任务在提交前改写自己的拷贝，已入队的任务之间不共享可变状态
func (g Graph) Clone() (Graph, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow: %w", err)
	}
	var out Graph
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal workflow: %w", err)
	}
	return out, nil
}

// FindByTitle 按 _meta.title 线性扫描查找节点
// 图为空、结构异常或没有匹配时返回 ok=false，永远不会 panic；
// 调用方对缺失节点记录日志并跳过对应改写即可
func (g Graph) FindByTitle(title string) (string, map[string]interface{}, bool) {
	if title == "" {
		return "", nil, false
	}
	for nodeID, nodeVal := range g {
		node, ok := nodeVal.(map[string]interface{})
		if !ok {
			continue
		}
		meta, _ := node["_meta"].(map[string]interface{})
		nodeTitle, _ := meta["title"].(string)
		if nodeTitle == title {
			return nodeID, node, true
		}
	}
	return "", nil, false
}

// SetNodeInput 设置节点输入
// value 为 nil 时删除 key：ComfyUI 没有 null 的概念，键缺失表示使用
// 节点自带的默认值，键存在表示覆盖。节点没有 inputs 字典时返回 false
// 而不是 panic，调用方记录警告后继续
func SetNodeInput(node map[string]interface{}, key string, value interface{}) bool {
	if node == nil {
		return false
	}
	inputs, ok := node["inputs"].(map[string]interface{})
	if !ok {
		return false
	}
	if value == nil {
		delete(inputs, key)
		return true
	}
	inputs[key] = value
	return true
}
