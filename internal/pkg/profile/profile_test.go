package profile

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNameResolver(t *testing.T) {
	Convey("名称替换", t, func() {
		profiles := Profiles{
			"爱丽丝": {DisplayName: "爱丽丝", ReplacementName: "アリス"},
			"鲍勃":  {DisplayName: "鲍勃"},
		}
		resolver := NewNameResolver(profiles)

		Convey("配置了替换名的名字被替换", func() {
			So(resolver.Resolve("爱丽丝"), ShouldEqual, "アリス")
		})

		Convey("没有替换名的名字原样返回", func() {
			So(resolver.Resolve("鲍勃"), ShouldEqual, "鲍勃")
			So(resolver.Resolve("路人"), ShouldEqual, "路人")
		})

		Convey("正文替换与键替换走同一条路径", func() {
			text := "爱丽丝对鲍勃说，爱丽丝累了。"
			So(resolver.ReplaceAll(text), ShouldEqual, "アリス对鲍勃说，アリス累了。")
		})

		Convey("nil 解析器是安全的", func() {
			var r *NameResolver
			So(r.Resolve("爱丽丝"), ShouldEqual, "爱丽丝")
			So(r.ReplaceAll("文本"), ShouldEqual, "文本")
		})
	})
}

func TestLookup(t *testing.T) {
	Convey("档案查找", t, func() {
		profiles := Profiles{
			"爱丽丝": {DisplayName: "爱丽丝", ReplacementName: "アリス", ImagePath: "/img/alice.png"},
		}

		Convey("按显示名精确命中", func() {
			p, ok := profiles.Lookup("爱丽丝")
			So(ok, ShouldBeTrue)
			So(p.ImagePath, ShouldEqual, "/img/alice.png")
		})

		Convey("按替换名也能命中", func() {
			_, ok := profiles.Lookup("アリス")
			So(ok, ShouldBeTrue)
		})

		Convey("未知名字返回 ok=false", func() {
			_, ok := profiles.Lookup("无名氏")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestVoiceMap(t *testing.T) {
	Convey("语音映射解析", t, func() {
		dir := t.TempDir()

		Convey("map 模式直接使用配置的参考音频", func() {
			vm := VoiceMap{"爱丽丝": {Mode: "map", ReferWavPath: "/ref/alice.wav", PromptText: "你好"}}
			entry, err := vm.ResolveReference("爱丽丝")
			So(err, ShouldBeNil)
			So(entry.ReferWavPath, ShouldEqual, "/ref/alice.wav")
		})

		Convey("random 模式从目录随机挑选音频文件", func() {
			So(os.WriteFile(filepath.Join(dir, "早上好.wav"), []byte("a"), 0o644), ShouldBeNil)
			So(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("b"), 0o644), ShouldBeNil)

			vm := VoiceMap{"爱丽丝": {Mode: "random", ReferWavPath: dir}}
			entry, err := vm.ResolveReference("爱丽丝")
			So(err, ShouldBeNil)
			So(entry.ReferWavPath, ShouldEqual, filepath.Join(dir, "早上好.wav"))
			// 约定：文件名就是参考文本
			So(entry.PromptText, ShouldEqual, "早上好")
		})

		Convey("random 模式目录为空是错误", func() {
			empty := t.TempDir()
			vm := VoiceMap{"爱丽丝": {Mode: "random", ReferWavPath: empty}}
			_, err := vm.ResolveReference("爱丽丝")
			So(err, ShouldNotBeNil)
		})

		Convey("未映射的说话人是错误", func() {
			vm := VoiceMap{}
			_, err := vm.ResolveReference("无名氏")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestLoadProfiles(t *testing.T) {
	Convey("档案文件加载", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "profiles.json")
		So(os.WriteFile(path, []byte(`{
			"爱丽丝": {"replacement_name": "アリス", "loras": [{"name": "alice_v2", "strength_model": 0.8, "strength_clip": 0.7}]}
		}`), 0o644), ShouldBeNil)

		profiles, err := LoadProfiles(path)
		So(err, ShouldBeNil)

		Convey("缺省的 display_name 回填为键名", func() {
			So(profiles["爱丽丝"].DisplayName, ShouldEqual, "爱丽丝")
		})

		Convey("LoRA 条目完整读入", func() {
			So(profiles["爱丽丝"].LoRAs, ShouldHaveLength, 1)
			So(profiles["爱丽丝"].LoRAs[0].Name, ShouldEqual, "alice_v2")
		})

		Convey("损坏的 JSON 返回错误", func() {
			bad := filepath.Join(dir, "bad.json")
			So(os.WriteFile(bad, []byte("{"), 0o644), ShouldBeNil)
			_, err := LoadProfiles(bad)
			So(err, ShouldNotBeNil)
		})
	})
}
