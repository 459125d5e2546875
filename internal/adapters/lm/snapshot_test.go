package lm_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/textguard/internal/adapters/lm"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSnapshotFiles(t *testing.T) {
	Convey("Given a snapshot directory", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "model.yaml")

		Convey("When the snapshot file does not exist", func() {
			_, err := lm.LoadSnapshot(path)

			Convey("Then loading fails with ErrSnapshotNotFound", func() {
				So(errors.Is(err, lm.ErrSnapshotNotFound), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, path)
			})
		})

		Convey("When a snapshot is saved with only the required fields", func() {
			err := lm.SaveSnapshot(path, lm.Snapshot{ModelName: "gpt2", Endpoint: "http://127.0.0.1:8081"})
			So(err, ShouldBeNil)

			Convey("Then loading it fills the defaults and a creation time", func() {
				snap, err := lm.LoadSnapshot(path)
				So(err, ShouldBeNil)
				So(snap.ModelName, ShouldEqual, "gpt2")
				So(snap.Encoding, ShouldEqual, lm.DefaultEncoding)
				So(snap.TimeoutMS, ShouldEqual, lm.DefaultTimeoutMS)
				So(snap.Timeout(), ShouldEqual, time.Minute)
				So(snap.MaxRetries, ShouldEqual, 0)
				_, perr := time.Parse(time.RFC3339, snap.CreatedAt)
				So(perr, ShouldBeNil)
			})
		})

		Convey("When a hand-written snapshot sets every field", func() {
			content := "model_name: gpt2-medium\nencoding: r50k_base\nendpoint: https://tgi.internal:8443/\nmax_retries: 2\ntimeout_ms: 1500\ncreated_at: \"2026-01-02T03:04:05Z\"\n"
			So(os.WriteFile(path, []byte(content), 0o600), ShouldBeNil)

			Convey("Then every field is read", func() {
				snap, err := lm.LoadSnapshot(path)
				So(err, ShouldBeNil)
				So(snap.ModelName, ShouldEqual, "gpt2-medium")
				So(snap.Endpoint, ShouldEqual, "https://tgi.internal:8443/")
				So(snap.MaxRetries, ShouldEqual, 2)
				So(snap.Timeout(), ShouldEqual, 1500*time.Millisecond)
				So(snap.CreatedAt, ShouldEqual, "2026-01-02T03:04:05Z")
			})
		})

		Convey("When the snapshot is not valid YAML", func() {
			So(os.WriteFile(path, []byte("model_name: [unterminated"), 0o600), ShouldBeNil)
			_, err := lm.LoadSnapshot(path)

			Convey("Then loading fails with ErrSnapshotInvalid", func() {
				So(errors.Is(err, lm.ErrSnapshotInvalid), ShouldBeTrue)
			})
		})
	})
}

func TestSnapshotValidate(t *testing.T) {
	Convey("Given snapshots with bad fields", t, func() {
		cases := map[string]lm.Snapshot{
			"missing model":    {Endpoint: "http://localhost:8081"},
			"missing endpoint": {ModelName: "gpt2"},
			"relative url":     {ModelName: "gpt2", Endpoint: "localhost:8081"},
			"bad scheme":       {ModelName: "gpt2", Endpoint: "ftp://localhost"},
			"negative retries": {ModelName: "gpt2", Endpoint: "http://localhost", MaxRetries: -1},
		}
		for name, snap := range cases {
			snap := snap
			Convey("Then "+name+" is rejected", func() {
				err := snap.Validate()
				So(errors.Is(err, lm.ErrSnapshotInvalid), ShouldBeTrue)
			})
		}

		Convey("And SaveSnapshot refuses to write an invalid snapshot", func() {
			path := filepath.Join(t.TempDir(), "model.yaml")
			err := lm.SaveSnapshot(path, lm.Snapshot{})
			So(errors.Is(err, lm.ErrSnapshotInvalid), ShouldBeTrue)
			_, statErr := os.Stat(path)
			So(os.IsNotExist(statErr), ShouldBeTrue)
		})
	})
}
