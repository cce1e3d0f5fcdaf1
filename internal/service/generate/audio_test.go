package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"kagen/internal/config"
	"kagen/internal/pkg/kagscript"
	"kagen/internal/pkg/profile"
)

const audioScript = `;@playse storage="PLACEHOLDER_爱丽丝_1.wav" buf=0 name="爱丽丝"
「你好。」[p]
;@playse storage="PLACEHOLDER_无名氏_1.wav" buf=0 name="无名氏"
「……」[p]
`

func audioConfig(t *testing.T, endpoint string) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080, Mode: "test"},
		ImageGen: config.ImageGenConfig{API: "sd"},
		AudioGen: config.AudioGenConfig{SaveDir: t.TempDir()},
		GPTSoVITS: config.GPTSoVITSConfig{
			Endpoint:     endpoint,
			InitialDelay: time.Millisecond,
			RetryDelay:   time.Millisecond,
			MaxRetries:   1,
		},
	}
}

func TestAudioRun(t *testing.T) {
	Convey("语音生成运行", t, func() {
		refDir := t.TempDir()
		refWav := filepath.Join(refDir, "你好呀.wav")
		So(os.WriteFile(refWav, []byte("ref-audio"), 0o644), ShouldBeNil)

		var server *httptest.Server
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/audio/out.wav" {
				_, _ = w.Write([]byte("wav-bytes"))
				return
			}
			var payload map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			// 参考音频以 Base64 随请求体提交
			if payload["refer_wav_b64"] == nil || payload["refer_wav_b64"] == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"audio_url": server.URL + "/audio/out.wav",
			})
		}))
		defer server.Close()

		cfg := audioConfig(t, server.URL)
		voiceMap := profile.VoiceMap{
			"爱丽丝": {Mode: "map", ReferWavPath: refWav, PromptText: "你好呀", PromptLanguage: "zh", TextLanguage: "zh"},
		}

		Convey("映射到的说话人合成成功并取消注释，未映射的跳过", func() {
			svc := NewAudioService(cfg, nil)
			report, err := svc.Run(context.Background(), &AudioRunRequest{
				Script:   audioScript,
				Scope:    kagscript.ScopeAll,
				VoiceMap: voiceMap,
			}, &StopToken{})

			So(err, ShouldBeNil)
			So(report.Success, ShouldEqual, 1)
			So(report.Skipped, ShouldEqual, 1)
			// 成功任务的标签行在文档首行，只剥掉前导分号
			So(report.Script, ShouldStartWith, `@playse storage="PLACEHOLDER_爱丽丝_1.wav"`)
			So(report.Script, ShouldNotContainSubstring, `;@playse storage="PLACEHOLDER_爱丽丝_1.wav"`)
			So(report.Script, ShouldContainSubstring, `;@playse storage="PLACEHOLDER_无名氏_1.wav"`)

			data, readErr := os.ReadFile(filepath.Join(cfg.AudioGen.SaveDir, "爱丽丝_1.wav"))
			So(readErr, ShouldBeNil)
			So(string(data), ShouldEqual, "wav-bytes")
		})

		Convey("specific 缺失占位名时返回错误", func() {
			svc := NewAudioService(cfg, nil)
			_, err := svc.Run(context.Background(), &AudioRunRequest{
				Script:   audioScript,
				Scope:    kagscript.ScopeSpecific,
				Specific: []string{"PLACEHOLDER_不存在.wav"},
				VoiceMap: voiceMap,
			}, &StopToken{})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "PLACEHOLDER_不存在.wav")
		})
	})
}

func TestGate(t *testing.T) {
	Convey("单槽运行闸门", t, func() {
		gate := NewGate()

		Convey("空闲时可占用，占用后再次占用失败", func() {
			token, ok := gate.TryAcquire("image")
			So(ok, ShouldBeTrue)
			So(token, ShouldNotBeNil)

			_, busy := gate.TryAcquire("audio")
			So(busy, ShouldBeFalse)

			kind, running := gate.Running()
			So(running, ShouldBeTrue)
			So(kind, ShouldEqual, "image")

			gate.Release()
			_, ok = gate.TryAcquire("audio")
			So(ok, ShouldBeTrue)
			gate.Release()
		})

		Convey("Stop 置位当前运行的令牌", func() {
			So(gate.Stop(), ShouldBeFalse)

			token, _ := gate.TryAcquire("image")
			So(gate.Stop(), ShouldBeTrue)
			So(token.Stopped(), ShouldBeTrue)
			gate.Release()
		})

		Convey("nil 令牌的 Stopped 安全返回 false", func() {
			var token *StopToken
			So(token.Stopped(), ShouldBeFalse)
		})
	})
}
