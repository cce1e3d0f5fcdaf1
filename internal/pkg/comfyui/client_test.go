package comfyui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSubmitFallback(t *testing.T) {
	Convey("提交端点 404 时回退到备用 /prompt", t, func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/prompt", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"prompt_id": "p1"})
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		client := NewClient(&Config{APIURL: server.URL})
		promptID, err := client.Submit(context.Background(), Graph{}, "client-1")

		So(err, ShouldBeNil)
		So(promptID, ShouldEqual, "p1")
	})

	Convey("响应携带 node_errors 时是终态失败，不回退", t, func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/prompt", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"prompt_id":   "p1",
				"node_errors": map[string]interface{}{"4": "bad input"},
			})
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		client := NewClient(&Config{APIURL: server.URL})
		_, err := client.Submit(context.Background(), Graph{}, "client-1")

		So(err, ShouldNotBeNil)
		So(err, ShouldWrap, ErrExecution)
	})
}

func TestWaitFallsBackOnSilentWebSocket(t *testing.T) {
	Convey("WebSocket 长时间静默时回退到轮询完成等待", t, func() {
		upgrader := websocket.Upgrader{}
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			// 连接成功但什么都不发，模拟服务端忙于长任务
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			time.Sleep(500 * time.Millisecond)
		})
		mux.HandleFunc("/api/history/", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"p1": map[string]interface{}{
					"status": map[string]interface{}{"completed": true},
				},
			})
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		client := NewClient(&Config{
			APIURL:       server.URL,
			ReadTimeout:  30 * time.Millisecond,
			PollInterval: 10 * time.Millisecond,
			MaxWait:      2 * time.Second,
		})

		err := client.WaitForCompletion(context.Background(), "p1", "client-1")
		So(err, ShouldBeNil)
	})
}
