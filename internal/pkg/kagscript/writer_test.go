package kagscript

import (
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCommitLines(t *testing.T) {
	Convey("提交成功任务的取消注释", t, func() {
		script := strings.Join([]string{
			`; IMG Prompt for A: Positive=[x] Negative=[]`,
			`;[image storage="a.png" layer=0 page=fore]`,
			`;[image storage="b.png" layer=0 page=fore]`,
			`[image storage="c.png" layer=0 page=fore]`,
		}, "\n")

		Convey("只有成功集合里逐字节一致的行被取消注释", func() {
			out := CommitLines(script, map[string]struct{}{
				`;[image storage="a.png" layer=0 page=fore]`: {},
			})
			lines := strings.Split(out, "\n")
			So(lines[1], ShouldEqual, `[image storage="a.png" layer=0 page=fore]`)
			So(lines[2], ShouldEqual, `;[image storage="b.png" layer=0 page=fore]`)
		})

		Convey("其他所有行逐字节不变", func() {
			out := CommitLines(script, map[string]struct{}{
				`;[image storage="a.png" layer=0 page=fore]`: {},
			})
			lines := strings.Split(out, "\n")
			So(lines[0], ShouldEqual, `; IMG Prompt for A: Positive=[x] Negative=[]`)
			So(lines[3], ShouldEqual, `[image storage="c.png" layer=0 page=fore]`)
		})

		Convey("提交只会去掉分号，永远不会加回去", func() {
			out := CommitLines(script, map[string]struct{}{
				`[image storage="c.png" layer=0 page=fore]`: {},
			})
			So(out, ShouldEqual, script)
		})

		Convey("空成功集合原样返回", func() {
			So(CommitLines(script, nil), ShouldEqual, script)
		})

		Convey("相似但不完全一致的行不受影响", func() {
			out := CommitLines(script, map[string]struct{}{
				`;[image storage="a.png" layer=0  page=fore]`: {}, // 多一个空格
			})
			So(out, ShouldEqual, script)
		})
	})
}

func TestReplacePlaceholders(t *testing.T) {
	Convey("占位标记替换", t, func() {
		Convey("图片占位改写为注释图片标签并按角色计数", func() {
			script := "[INSERT_IMAGE_HERE:爱丽丝]\n台词\n[INSERT_IMAGE_HERE:爱丽丝]\n[INSERT_IMAGE_HERE:鲍勃]"
			out := ReplacePlaceholders(script, "ev_")
			So(out, ShouldContainSubstring, `;[image storage="ev_爱丽丝_1.png" layer=0 page=fore]`)
			So(out, ShouldContainSubstring, `;[image storage="ev_爱丽丝_2.png" layer=0 page=fore]`)
			So(out, ShouldContainSubstring, `;[image storage="ev_鲍勃_1.png" layer=0 page=fore]`)
		})

		Convey("语音占位改写为注释 playse 标签", func() {
			out := ReplacePlaceholders("[INSERT_AUDIO_HERE:爱丽丝]", "")
			So(out, ShouldEqual, `;@playse storage="PLACEHOLDER_爱丽丝_1.wav" buf=0 name="爱丽丝"`)
		})

		Convey("替换结果能被解析器重新识别", func() {
			script := "; IMG Prompt for 爱丽丝: Positive=[1girl] Negative=[]\n[INSERT_IMAGE_HERE:爱丽丝]"
			out := ReplacePlaceholders(script, "")
			tasks := ParseImageTasks(out, APISD)
			So(tasks, ShouldHaveLength, 1)
			So(tasks[0].Filename, ShouldEqual, "爱丽丝_1.png")
			So(tasks[0].IsCommented, ShouldBeTrue)
		})

		Convey("没有占位标记时原样返回", func() {
			So(ReplacePlaceholders("普通文本", "p_"), ShouldEqual, "普通文本")
		})
	})
}
