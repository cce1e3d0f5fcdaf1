package comfyui

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func sampleGraph() Graph {
	return Graph{
		"3": map[string]interface{}{
			"class_type": "KSampler",
			"_meta":      map[string]interface{}{"title": "采样器"},
			"inputs":     map[string]interface{}{"seed": float64(1), "steps": float64(20)},
		},
		"4": map[string]interface{}{
			"class_type": "CheckpointLoaderSimple",
			"_meta":      map[string]interface{}{"title": "主模型"},
			"inputs":     map[string]interface{}{"ckpt_name": "base.safetensors"},
		},
		"7": map[string]interface{}{
			"class_type": "Note",
		},
	}
}

func TestFindByTitle(t *testing.T) {
	Convey("按标题查找节点", t, func() {
		g := sampleGraph()

		Convey("命中时返回节点ID和节点", func() {
			id, node, ok := g.FindByTitle("采样器")
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, "3")
			So(node["class_type"], ShouldEqual, "KSampler")
		})

		Convey("空图不会 panic", func() {
			_, _, ok := Graph{}.FindByTitle("X")
			So(ok, ShouldBeFalse)
		})

		Convey("没有 _meta 的节点被安全跳过", func() {
			_, _, ok := g.FindByTitle("X")
			So(ok, ShouldBeFalse)
		})

		Convey("空标题永远不命中", func() {
			_, _, ok := g.FindByTitle("")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestSetNodeInput(t *testing.T) {
	Convey("节点输入写入", t, func() {
		g := sampleGraph()
		_, node, _ := g.FindByTitle("采样器")

		Convey("非 nil 值覆盖写入", func() {
			So(SetNodeInput(node, "seed", 42), ShouldBeTrue)
			inputs := node["inputs"].(map[string]interface{})
			So(inputs["seed"], ShouldEqual, 42)
		})

		Convey("nil 删除键，表示使用节点自带默认值", func() {
			So(SetNodeInput(node, "seed", nil), ShouldBeTrue)
			inputs := node["inputs"].(map[string]interface{})
			_, exists := inputs["seed"]
			So(exists, ShouldBeFalse)
			// 其余键不受影响
			So(inputs["steps"], ShouldEqual, float64(20))
		})

		Convey("删除不存在的键同样成功", func() {
			So(SetNodeInput(node, "no_such_key", nil), ShouldBeTrue)
		})

		Convey("缺少 inputs 的节点返回 false 而不是 panic", func() {
			So(SetNodeInput(map[string]interface{}{"class_type": "Note"}, "seed", 1), ShouldBeFalse)
		})

		Convey("nil 节点返回 false", func() {
			So(SetNodeInput(nil, "seed", 1), ShouldBeFalse)
		})
	})
}

func TestClone(t *testing.T) {
	Convey("工作流深拷贝", t, func() {
		g := sampleGraph()
		clone, err := g.Clone()
		So(err, ShouldBeNil)

		Convey("拷贝后的改写不影响原图", func() {
			_, node, _ := clone.FindByTitle("主模型")
			SetNodeInput(node, "ckpt_name", "other.safetensors")

			_, orig, _ := g.FindByTitle("主模型")
			So(orig["inputs"].(map[string]interface{})["ckpt_name"], ShouldEqual, "base.safetensors")
		})
	})
}
