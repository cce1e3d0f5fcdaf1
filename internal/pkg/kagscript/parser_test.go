package kagscript

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

const sampleScript = `*start
; NAI Prompt for 爱丽丝: Positive=[1girl, smiling] Negative=[lowres]
; IMG Prompt for 爱丽丝: Positive=[1girl, smile, masterpiece] Negative=[bad hands]
;[image storage="alice_1.png" layer=0 page=fore]
[爱丽丝]
;@playse storage="PLACEHOLDER_爱丽丝_1.wav" buf=0 name="爱丽丝"
「你好，旅行者。」[p]

; IMG Prompt for 鲍勃: Positive=[1boy, standing] Negative=[]
[image storage="bob_1.png" layer=0 page=fore]
[鲍勃]
@playse storage="PLACEHOLDER_鲍勃_1.wav" buf=0 name="鲍勃"
（今天天气不错。）[p]
`

func TestParseImageTasks(t *testing.T) {
	Convey("解析图片任务", t, func() {
		Convey("双格式注释按后端选择提示词", func() {
			naiTasks := ParseImageTasks(sampleScript, APINAI)
			So(naiTasks, ShouldHaveLength, 2)
			So(naiTasks[0].Name, ShouldEqual, "爱丽丝")
			So(naiTasks[0].Positive, ShouldEqual, "1girl, smiling")
			So(naiTasks[0].Negative, ShouldEqual, "lowres")

			sdTasks := ParseImageTasks(sampleScript, APISD)
			So(sdTasks[0].Positive, ShouldEqual, "1girl, smile, masterpiece")
		})

		Convey("目标格式缺失时退回另一种", func() {
			tasks := ParseImageTasks(sampleScript, APINAI)
			// 鲍勃只有 IMG 注释，NAI 后端也要能拿到
			So(tasks[1].Name, ShouldEqual, "鲍勃")
			So(tasks[1].Positive, ShouldEqual, "1boy, standing")
		})

		Convey("注释状态来自标签行的前导分号", func() {
			tasks := ParseImageTasks(sampleScript, APISD)
			So(tasks[0].IsCommented, ShouldBeTrue)
			So(tasks[1].IsCommented, ShouldBeFalse)
		})

		Convey("标签行原文逐字节保留", func() {
			tasks := ParseImageTasks(sampleScript, APISD)
			So(tasks[0].TagLine, ShouldEqual, `;[image storage="alice_1.png" layer=0 page=fore]`)
		})

		Convey("解析是幂等的", func() {
			first := ParseImageTasks(sampleScript, APISD)
			second := ParseImageTasks(sampleScript, APISD)
			So(second, ShouldResemble, first)
		})

		Convey("孤立的图片标签不构成任务", func() {
			tasks := ParseImageTasks(`[image storage="orphan.png" layer=0]`, APISD)
			So(tasks, ShouldBeEmpty)
		})

		Convey("其他非空行打断注释与标签的配对", func() {
			script := "; IMG Prompt for A: Positive=[x] Negative=[]\n无关行\n;[image storage=\"a.png\"]\n"
			tasks := ParseImageTasks(script, APISD)
			So(tasks, ShouldBeEmpty)
		})

		Convey("格式残缺不会让解析失败", func() {
			tasks := ParseImageTasks("; IMG Prompt for : 坏格式\n;[image storage=\"x.png\"]", APISD)
			So(tasks, ShouldBeEmpty)
		})
	})
}

func TestParseAudioTasks(t *testing.T) {
	Convey("解析语音任务", t, func() {
		tasks := ParseAudioTasks(sampleScript)

		Convey("占位标签后的台词行是合成文本", func() {
			So(tasks, ShouldHaveLength, 2)
			So(tasks[0].Speaker, ShouldEqual, "爱丽丝")
			So(tasks[0].Text, ShouldEqual, "你好，旅行者。")
			So(tasks[0].Placeholder, ShouldEqual, "PLACEHOLDER_爱丽丝_1.wav")
			So(tasks[0].IsCommented, ShouldBeTrue)
		})

		Convey("独白的（）形式同样被识别", func() {
			So(tasks[1].Speaker, ShouldEqual, "鲍勃")
			So(tasks[1].Text, ShouldEqual, "今天天气不错。")
			So(tasks[1].IsCommented, ShouldBeFalse)
		})

		Convey("占位标签后没有台词行时跳过", func() {
			orphan := ParseAudioTasks(`;@playse storage="PLACEHOLDER_x.wav" buf=0 name="某人"` + "\n[image storage=\"y.png\"]\n")
			So(orphan, ShouldBeEmpty)
		})
	})
}

func TestFilterTasks(t *testing.T) {
	Convey("任务范围筛选", t, func() {
		tasks := ParseImageTasks(sampleScript, APISD)

		Convey("uncommented 选择尚未生成的任务", func() {
			out, err := FilterImageTasks(tasks, ScopeUncommented, nil)
			So(err, ShouldBeNil)
			So(out, ShouldHaveLength, 1)
			So(out[0].IsCommented, ShouldBeTrue)
		})

		Convey("commented 选择已生成的任务", func() {
			out, err := FilterImageTasks(tasks, ScopeCommented, nil)
			So(err, ShouldBeNil)
			So(out, ShouldHaveLength, 1)
			So(out[0].IsCommented, ShouldBeFalse)
		})

		Convey("all 返回全部", func() {
			out, err := FilterImageTasks(tasks, ScopeAll, nil)
			So(err, ShouldBeNil)
			So(out, ShouldHaveLength, 2)
		})

		Convey("specific 精确匹配文件名", func() {
			out, err := FilterImageTasks(tasks, ScopeSpecific, []string{"alice_1.png"})
			So(err, ShouldBeNil)
			So(out, ShouldHaveLength, 1)
			So(out[0].Filename, ShouldEqual, "alice_1.png")
		})

		Convey("specific 缺失的文件名返回列出缺失项的错误", func() {
			out, err := FilterImageTasks(tasks, ScopeSpecific, []string{"alice_1.png", "missing.png"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "missing.png")
			So(out, ShouldBeNil)
		})

		Convey("未知范围是错误", func() {
			_, err := FilterImageTasks(tasks, Scope("bogus"), nil)
			So(err, ShouldNotBeNil)
		})
	})
}
