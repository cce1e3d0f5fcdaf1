package pipeline

import (
	"context"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"kagen/internal/pkg/profile"
)

// fakeProvider 记录收到的提示词并返回固定文本
type fakeProvider struct {
	lastPrompt string
	reply      string
	err        error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(_ context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	return f.reply, f.err
}

func (f *fakeProvider) Stream(_ context.Context, prompt string, onChunk func(string)) (string, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	for _, r := range f.reply {
		if onChunk != nil {
			onChunk(string(r))
		}
	}
	return f.reply, nil
}

func TestPipelineStages(t *testing.T) {
	Convey("流水线阶段", t, func() {
		fake := &fakeProvider{reply: "输出"}
		svc := NewService(fake)

		Convey("预处理阶段把原文嵌入提示词", func() {
			out, err := svc.Run(context.Background(), StagePreprocess, &Request{Text: "一段小说"})
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "输出")
			So(fake.lastPrompt, ShouldContainSubstring, "一段小说")
		})

		Convey("enhance 阶段先做名称替换再提示", func() {
			profiles := profile.Profiles{
				"爱丽丝": {DisplayName: "爱丽丝", ReplacementName: "アリス"},
			}
			_, err := svc.Run(context.Background(), StageEnhance, &Request{
				Text:     "爱丽丝走进房间。",
				Profiles: profiles,
			})
			So(err, ShouldBeNil)
			// 正文里的显示名已经替换
			So(fake.lastPrompt, ShouldContainSubstring, "アリス走进房间。")
			So(fake.lastPrompt, ShouldNotContainSubstring, "爱丽丝走进房间。")
			// 档案 JSON 的键与正文使用同一个替换名
			So(fake.lastPrompt, ShouldContainSubstring, `"アリス"`)
		})

		Convey("空输入是错误", func() {
			_, err := svc.Run(context.Background(), StageBGM, &Request{})
			So(err, ShouldNotBeNil)
		})

		Convey("未知阶段是错误", func() {
			_, err := svc.Run(context.Background(), Stage("bogus"), &Request{Text: "x"})
			So(err, ShouldNotBeNil)
		})

		Convey("流式模式逐块转发", func() {
			var sb strings.Builder
			out, err := svc.Stream(context.Background(), StageKAGConvert, &Request{Text: "文本"}, func(chunk string) {
				sb.WriteString(chunk)
			})
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "输出")
			So(sb.String(), ShouldEqual, "输出")
		})
	})
}
