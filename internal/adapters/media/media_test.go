package media_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/surfwatch/internal/adapters/media"
	"github.com/okian/surfwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDiskStore(t *testing.T) {
	Convey("Given a disk store", t, func() {
		dir := t.TempDir()
		clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
		store := media.NewDiskStore(dir, media.WithClock(clock), media.WithMaxSize(16))
		ctx := context.Background()

		Convey("When an image is saved", func() {
			m, err := store.Save(ctx, media.Upload{OriginalName: "Rip.JPEG", MimeType: "image/jpeg", Body: strings.NewReader("jpegbytes")})

			Convey("Then a generated name and URL are returned", func() {
				So(err, ShouldBeNil)
				So(m.Kind, ShouldEqual, model.MediaImage)
				So(m.Filename, ShouldStartWith, "hazard_1700000000000000000_")
				So(m.Filename, ShouldEndWith, ".jpg")
				So(m.Path, ShouldEqual, media.URLPrefix+m.Filename)
				So(m.OriginalName, ShouldEqual, "Rip.JPEG")
				So(m.Size, ShouldEqual, 9)

				_, statErr := os.Stat(filepath.Join(dir, "hazards", m.Filename))
				So(statErr, ShouldBeNil)
			})

			Convey("Then it can be read back and deleted", func() {
				rc, err := store.Open(m.Filename)
				So(err, ShouldBeNil)
				b, _ := io.ReadAll(rc)
				_ = rc.Close()
				So(string(b), ShouldEqual, "jpegbytes")

				So(store.Delete(m.Filename), ShouldBeNil)
				So(store.Delete(m.Filename), ShouldBeNil)
				_, err = store.Open(m.Filename)
				So(err, ShouldNotBeNil)
			})

			Convey("Then it is served over HTTP", func() {
				rec := httptest.NewRecorder()
				store.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, media.URLPrefix+m.Filename, nil))
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldEqual, "jpegbytes")
				So(rec.Header().Get("Content-Type"), ShouldEqual, "image/jpeg")
			})
		})

		Convey("When two files are saved at the same instant", func() {
			a, err := store.Save(ctx, media.Upload{OriginalName: "a.png", MimeType: "image/png", Body: strings.NewReader("a")})
			So(err, ShouldBeNil)
			b, err := store.Save(ctx, media.Upload{OriginalName: "a.png", MimeType: "image/png", Body: strings.NewReader("b")})
			So(err, ShouldBeNil)

			Convey("Then their names differ", func() {
				So(a.Filename, ShouldNotEqual, b.Filename)
			})
		})

		Convey("When the original name has no usable extension", func() {
			m, err := store.Save(ctx, media.Upload{OriginalName: "../../clip", MimeType: "video/quicktime", Body: strings.NewReader("mov")})

			Convey("Then the extension follows the MIME type and the path is stripped", func() {
				So(err, ShouldBeNil)
				So(m.Kind, ShouldEqual, model.MediaVideo)
				So(m.Filename, ShouldEndWith, ".mov")
				So(m.OriginalName, ShouldEqual, "clip")
			})
		})

		Convey("When a file exceeds the size limit", func() {
			_, err := store.Save(ctx, media.Upload{OriginalName: "big.mp4", MimeType: "video/mp4", Body: bytes.NewReader(make([]byte, 17))})

			Convey("Then it is refused and nothing is left behind", func() {
				So(errors.Is(err, media.ErrTooLarge), ShouldBeTrue)
				entries, _ := os.ReadDir(filepath.Join(dir, "hazards"))
				So(entries, ShouldBeEmpty)
			})
		})

		Convey("When the MIME type is not media", func() {
			_, err := store.Save(ctx, media.Upload{OriginalName: "x.pdf", MimeType: "application/pdf", Body: strings.NewReader("%PDF")})
			So(err, ShouldNotBeNil)
		})

		Convey("When a traversal name is requested", func() {
			_, err := store.Open("../secret")
			So(errors.Is(err, media.ErrInvalidName), ShouldBeTrue)

			rec := httptest.NewRecorder()
			store.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, media.URLPrefix+"passwd", nil))
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}
