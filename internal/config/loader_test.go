package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/surfwatch/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"SURFWATCH_CONFIG",
	"SURFWATCH_ADDR",
	"SURFWATCH_STORE_DRIVER",
	"SURFWATCH_WORKER_COUNT",
	"SURFWATCH_QUEUE_SIZE",
	"SURFWATCH_MEDIA_REQUIRED",
	"SURFWATCH_ALLOWED_MIME_TYPES",
	"SURFWATCH_SCORING_BASE_URL",
	"SURFWATCH_MAX_FILES",
	"SURFWATCH_TRUSTED_PROXIES",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "surfwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("SURFWATCH_ADDR", ":8080")
			_ = os.Setenv("SURFWATCH_WORKER_COUNT", "8")
			_ = os.Setenv("SURFWATCH_MEDIA_REQUIRED", "true")
			_ = os.Setenv("SURFWATCH_SCORING_BASE_URL", "http://ml:5000")
			_ = os.Setenv("SURFWATCH_ALLOWED_MIME_TYPES", "image/jpeg,image/png")
			_ = os.Setenv("SURFWATCH_TRUSTED_PROXIES", "10.0.0.0/8,127.0.0.1")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 8)
				convey.So(cfg.MediaRequired, convey.ShouldBeTrue)
				convey.So(cfg.ScoringBaseURL, convey.ShouldEqual, "http://ml:5000")
				convey.So(cfg.AllowedMIMETypes, convey.ShouldResemble, []string{"image/jpeg", "image/png"})
				convey.So(cfg.TrustedProxies, convey.ShouldResemble, []string{"10.0.0.0/8", "127.0.0.1"})
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			path := createTempConfigFile(t, `
addr: ":9090"
store_driver: sqlite
sqlite_path: /tmp/spots.db
max_files: 3
allowed_mime_types:
  - image/jpeg
  - video/mp4
`)
			_ = os.Setenv("SURFWATCH_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverSQLite)
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/tmp/spots.db")
				convey.So(cfg.MaxFiles, convey.ShouldEqual, 3)
				convey.So(cfg.AllowedMIMETypes, convey.ShouldResemble, []string{"image/jpeg", "video/mp4"})
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			})

			convey.Convey("And environment variables override file values", func() {
				_ = os.Setenv("SURFWATCH_ADDR", ":7070")
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverSQLite)
			})
		})

		convey.Convey("When loading an explicit file path", func() {
			path := createTempConfigFile(t, "store_driver: mongo\nmongo_db: surf-test\n")

			cfg, err := config.LoadFile(ctx, path)

			convey.Convey("Then the file is applied without the env var", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMongo)
				convey.So(cfg.MongoDB, convey.ShouldEqual, "surf-test")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			_ = os.Setenv("SURFWATCH_CONFIG", createTempConfigFile(t, `invalid: yaml: content: [`))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("SURFWATCH_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an unknown store driver", func() {
			_ = os.Setenv("SURFWATCH_STORE_DRIVER", "redis")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "store_driver")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("SURFWATCH_QUEUE_SIZE", "not_a_number")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When max_files exceeds the per-report cap", func() {
			_ = os.Setenv("SURFWATCH_MAX_FILES", "6")

			_, err := config.Load(ctx)

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}
