package comfyui

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestEndpointNormalization(t *testing.T) {
	Convey("提交端点归一化", t, func() {
		Convey("纯主机端口补齐 /api/prompt", func() {
			So(normalizePromptURL("http://127.0.0.1:8188"), ShouldEqual, "http://127.0.0.1:8188/api/prompt")
		})
		Convey("以 /api 结尾补齐 /prompt", func() {
			So(normalizePromptURL("http://127.0.0.1:8188/api"), ShouldEqual, "http://127.0.0.1:8188/api/prompt")
		})
		Convey("已是 /api/prompt 原样使用", func() {
			So(normalizePromptURL("http://h:1/api/prompt"), ShouldEqual, "http://h:1/api/prompt")
		})
		Convey("只暴露 /prompt 的部署原样使用", func() {
			So(normalizePromptURL("http://h:1/prompt"), ShouldEqual, "http://h:1/prompt")
		})
		Convey("空地址回到默认", func() {
			So(normalizePromptURL(""), ShouldEqual, "http://127.0.0.1:8188/api/prompt")
		})
	})

	Convey("派生地址", t, func() {
		prompt := normalizePromptURL("http://127.0.0.1:8188")
		Convey("API 根用于 history/view/upload", func() {
			So(getAPIRoot(prompt), ShouldEqual, "http://127.0.0.1:8188/api")
		})
		Convey("备用端点是裸 /prompt", func() {
			So(getFallbackPromptURL(prompt), ShouldEqual, "http://127.0.0.1:8188/prompt")
		})
		Convey("服务器根不带 /api，用于推导 WebSocket", func() {
			So(getServerBase(prompt), ShouldEqual, "http://127.0.0.1:8188")
		})
	})
}
