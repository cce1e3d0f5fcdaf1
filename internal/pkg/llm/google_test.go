package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func googleServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *GoogleProvider) {
	t.Helper()
	server := httptest.NewServer(handler)
	provider, err := NewGoogleProvider(GoogleConfig{
		APIKey:  "test-key",
		Model:   "gemini-test",
		BaseURL: server.URL,
	}, nil)
	So(err, ShouldBeNil)
	return server, provider
}

func TestGoogleGenerate(t *testing.T) {
	Convey("Google 非流式生成", t, func() {
		Convey("拼接全部候选文本", func(c C) {
			server, provider := googleServer(t, func(w http.ResponseWriter, r *http.Request) {
				c.So(r.URL.Path, ShouldEqual, "/v1beta/models/gemini-test:generateContent")
				c.So(r.URL.Query().Get("key"), ShouldEqual, "test-key")

				var body map[string]interface{}
				_ = json.NewDecoder(r.Body).Decode(&body)
				c.So(body["safetySettings"], ShouldHaveLength, 4)

				_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"你好"},{"text":"世界"}]},"finishReason":"STOP"}]}`))
			})
			defer server.Close()

			text, err := provider.Generate(context.Background(), "打个招呼")
			So(err, ShouldBeNil)
			So(text, ShouldEqual, "你好世界")
		})

		Convey("提示词被拦截是硬错误", func() {
			server, provider := googleServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
			})
			defer server.Close()

			_, err := provider.Generate(context.Background(), "x")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "SAFETY")
		})

		Convey("SAFETY 终止原因是硬错误，MAX_TOKENS 不是", func() {
			server, provider := googleServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"部分"}]},"finishReason":"MAX_TOKENS"}]}`))
			})
			defer server.Close()

			text, err := provider.Generate(context.Background(), "x")
			So(err, ShouldBeNil)
			So(text, ShouldEqual, "部分")

			server2, provider2 := googleServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"candidates":[{"finishReason":"SAFETY"}]}`))
			})
			defer server2.Close()

			_, err = provider2.Generate(context.Background(), "x")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestGoogleStream(t *testing.T) {
	Convey("Google SSE 流式生成", t, func() {
		Convey("逐块转发并返回完整文本", func(c C) {
			server, provider := googleServer(t, func(w http.ResponseWriter, r *http.Request) {
				c.So(r.URL.Path, ShouldEqual, "/v1beta/models/gemini-test:streamGenerateContent")
				c.So(r.URL.Query().Get("alt"), ShouldEqual, "sse")
				c.So(r.Header.Get("Accept"), ShouldEqual, "text/event-stream")

				w.Header().Set("Content-Type", "text/event-stream")
				frames := []string{
					`data: {"candidates":[{"content":{"parts":[{"text":"第一"}]}}]}`,
					``,
					`data: {"candidates":[{"content":{"parts":[{"text":"第二"}]},"finishReason":"STOP"}]}`,
				}
				_, _ = w.Write([]byte(strings.Join(frames, "\n") + "\n"))
			})
			defer server.Close()

			var chunks []string
			text, err := provider.Stream(context.Background(), "x", func(chunk string) {
				chunks = append(chunks, chunk)
			})
			So(err, ShouldBeNil)
			So(text, ShouldEqual, "第一第二")
			So(chunks, ShouldResemble, []string{"第一", "第二"})
		})

		Convey("流中途的安全终止返回已收到的文本和错误", func() {
			server, provider := googleServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"开头\"}]}}]}\n"))
				_, _ = w.Write([]byte("data: {\"candidates\":[{\"finishReason\":\"SAFETY\"}]}\n"))
			})
			defer server.Close()

			text, err := provider.Stream(context.Background(), "x", nil)
			So(err, ShouldNotBeNil)
			So(text, ShouldEqual, "开头")
		})
	})
}

func TestGoogleConfigValidation(t *testing.T) {
	Convey("Google 配置校验", t, func() {
		_, err := NewGoogleProvider(GoogleConfig{Model: "m"}, nil)
		So(err, ShouldNotBeNil)

		_, err = NewGoogleProvider(GoogleConfig{APIKey: "k"}, nil)
		So(err, ShouldNotBeNil)
	})
}
