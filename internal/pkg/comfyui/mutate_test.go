package comfyui

import (
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func workflowFixture() Graph {
	node := func(title string, inputs map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"_meta":  map[string]interface{}{"title": title},
			"inputs": inputs,
		}
	}
	return Graph{
		"1": node("主模型", map[string]interface{}{"ckpt_name": "base"}),
		"2": node("正向提示", map[string]interface{}{"text": ""}),
		"3": node("负向提示", map[string]interface{}{"text": ""}),
		"4": node("采样器", map[string]interface{}{"seed": float64(0), "denoise": float64(1)}),
		"5": node("潜空间", map[string]interface{}{"width": float64(512), "height": float64(512), "batch_size": float64(1)}),
		"6": node("保存", map[string]interface{}{"filename_prefix": "out"}),
	}
}

func mutateConfig() *Config {
	return &Config{
		TitleCheckpoint: "主模型",
		TitlePositive:   "正向提示",
		TitleNegative:   "负向提示",
		TitleSampler:    "采样器",
		TitleLatent:     "潜空间",
		TitleSave:       "保存",
		TitleLoadImage:  "参考图",
	}
}

func inputOf(g Graph, title, key string) interface{} {
	_, node, _ := g.FindByTitle(title)
	return node["inputs"].(map[string]interface{})[key]
}

func TestApplyMutations(t *testing.T) {
	Convey("工作流参数改写", t, func() {
		cfg := mutateConfig()

		Convey("文生图写入提示词、种子与潜空间尺寸", func() {
			g := workflowFixture()
			ApplyMutations(g, cfg, &MutationParams{
				Positive:  "1girl",
				Negative:  "lowres",
				Seed:      99,
				Denoise:   1.0,
				Width:     1024,
				Height:    768,
				BatchSize: 2,
			})
			So(inputOf(g, "正向提示", "text"), ShouldEqual, "1girl")
			So(inputOf(g, "负向提示", "text"), ShouldEqual, "lowres")
			So(inputOf(g, "采样器", "seed"), ShouldEqual, int64(99))
			So(inputOf(g, "采样器", "denoise"), ShouldEqual, 1.0)
			So(inputOf(g, "潜空间", "width"), ShouldEqual, 1024)
			So(inputOf(g, "潜空间", "batch_size"), ShouldEqual, 2)
		})

		Convey("图生图跳过潜空间改写", func() {
			g := workflowFixture()
			ApplyMutations(g, cfg, &MutationParams{
				Img2Img: true,
				Denoise: 0.6,
				Width:   1024,
				Height:  768,
			})
			So(inputOf(g, "潜空间", "width"), ShouldEqual, float64(512))
			So(inputOf(g, "采样器", "denoise"), ShouldEqual, 0.6)
		})

		Convey("缺失的节点标题产生警告但不中断其余步骤", func() {
			g := workflowFixture()
			modlog := ApplyMutations(g, cfg, &MutationParams{
				Positive:     "1girl",
				RefImageName: "uploaded.png", // 工作流里没有"参考图"节点
				Denoise:      1.0,
			})
			warned := false
			for _, entry := range modlog {
				if strings.HasPrefix(entry, "警告: ") {
					warned = true
				}
			}
			So(warned, ShouldBeTrue)
			So(inputOf(g, "正向提示", "text"), ShouldEqual, "1girl")
		})

		Convey("CLIP skip 永远写入负数层", func() {
			g := workflowFixture()
			g["8"] = map[string]interface{}{
				"_meta":  map[string]interface{}{"title": "CLIP编码"},
				"inputs": map[string]interface{}{"stop_at_clip_layer": float64(-1)},
			}
			clipCfg := mutateConfig()
			clipCfg.TitleClipEncode = "CLIP编码"
			ApplyMutations(g, clipCfg, &MutationParams{ClipSkip: 2, Denoise: 1.0})
			So(inputOf(g, "CLIP编码", "stop_at_clip_layer"), ShouldEqual, -2)
		})

		Convey("蒙版只在单独配置了标题时写入", func() {
			g := workflowFixture()
			ApplyMutations(g, cfg, &MutationParams{MaskName: "mask.png", Denoise: 1.0})
			// cfg.TitleLoadMask 为空，不应有蒙版相关改写
			_, _, found := g.FindByTitle("蒙版")
			So(found, ShouldBeFalse)
		})
	})
}
