package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestFilenameHelpers(t *testing.T) {
	Convey("文件名处理", t, func() {
		Convey("非法字符被替换", func() {
			So(SanitizeFilename(`a/b\c:d*e?f"g<h>i|j`), ShouldEqual, "a_b_c_d_e_f_g_h_i_j")
		})

		Convey("缺失扩展名补 .png，已有合法扩展名保留", func() {
			So(EnsureImageExt("alice_1"), ShouldEqual, "alice_1.png")
			So(EnsureImageExt("alice_1.webp"), ShouldEqual, "alice_1.webp")
			So(EnsureImageExt("alice_1.JPG"), ShouldEqual, "alice_1.JPG")
		})

		Convey("多采样追加序号，单采样保持原名", func() {
			So(SampleName("a.png", 0, 1), ShouldEqual, "a.png")
			So(SampleName("a.png", 0, 3), ShouldEqual, "a_1.png")
			So(SampleName("a.png", 2, 3), ShouldEqual, "a_3.png")
		})
	})
}

func TestSaveCollision(t *testing.T) {
	Convey("保存冲突规避", t, func() {
		dir := t.TempDir()

		Convey("目标不存在时直接使用原名", func() {
			path, err := SaveFile(dir, "out.png", []byte{1})
			So(err, ShouldBeNil)
			So(path, ShouldEqual, filepath.Join(dir, "out.png"))
		})

		Convey("目标存在时追加时间戳，原文件字节不被覆盖", func() {
			original := []byte("original")
			_, err := SaveFile(dir, "out.png", original)
			So(err, ShouldBeNil)

			second, err := SaveFile(dir, "out.png", []byte("second"))
			So(err, ShouldBeNil)
			So(second, ShouldNotEqual, filepath.Join(dir, "out.png"))
			So(strings.HasSuffix(second, ".png"), ShouldBeTrue)

			data, err := os.ReadFile(filepath.Join(dir, "out.png"))
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "original")
		})

		Convey("输出目录不存在时自动创建", func() {
			path, err := SaveFile(filepath.Join(dir, "sub", "deep"), "x.png", []byte{1})
			So(err, ShouldBeNil)
			_, statErr := os.Stat(path)
			So(statErr, ShouldBeNil)
		})
	})
}
