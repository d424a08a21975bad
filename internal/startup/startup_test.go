package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

// clearEnv unsets every variable LoadConfig reads so the host environment
// does not leak into tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "IPFS_GATEWAY", "IPFS_ROUTER_ID", "IPFS_ROUTER_ADDRS", "IPFS_LOCAL_GATEWAY",
		"IPFS_PINNING_API", "IPFS_PINNING_NAME", "HLS_FILENAME", "HLS_DIRECTORY", "JS_FILENAME",
		"SEGMENT_MIN_BYTES", "SEGMENT_MAX_BYTES", "SEGMENT_MIN_SEC", "SEGMENT_MAX_SEC",
		"PUBLISH_INTERVAL", "RUNTIME_BINARY", "IMAGE_NAME", "IMAGE_DIGEST", "SOCKET_DIR",
		"SOCKET_MOUNT_PATH", "DATA_DIR", "PORT", "METRICS_ENABLED", "LOG_HEALTH_CHECKS",
	} {
		t.Setenv(key, "")
	}
}

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
}

func TestDefaults(t *testing.T) {
	c := Default()

	if c.SegmentMinBytes != 64*1024 || c.SegmentMaxBytes != 1024*1024 {
		t.Errorf("segment bytes = %d-%d", c.SegmentMinBytes, c.SegmentMaxBytes)
	}
	if c.SegmentMinSec != 2.0 || c.SegmentMaxSec != 5.0 {
		t.Errorf("segment seconds = %v-%v", c.SegmentMinSec, c.SegmentMaxSec)
	}
	if c.PublishInterval != time.Minute {
		t.Errorf("PublishInterval = %v", c.PublishInterval)
	}
	if c.HLSFilename != "index.m3u8" || c.HLSDirectory != "video" || c.JSFilename != "bundle.js" {
		t.Errorf("HLS naming = %q %q %q", c.HLSFilename, c.HLSDirectory, c.JSFilename)
	}
	if len(c.IPFSRouterAddrs) != 3 {
		t.Errorf("IPFSRouterAddrs = %v", c.IPFSRouterAddrs)
	}
	if c.RuntimeBinary != "podman" || c.SocketMountPath != "/out" {
		t.Errorf("sandbox defaults = %q %q", c.RuntimeBinary, c.SocketMountPath)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}

	if b := c.SandboxBounds(); b.MinSegmentTime != 2 || b.MaxSegmentTime != 5 {
		t.Errorf("SandboxBounds() = %+v", b)
	}
	if b := c.SegmentBounds(); b.MinBytes != 64*1024 || b.MaxBytes != 1024*1024 {
		t.Errorf("SegmentBounds() = %+v", b)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"min bytes above max", func(c *Config) { c.SegmentMinBytes = c.SegmentMaxBytes + 1 }},
		{"zero max bytes", func(c *Config) { c.SegmentMaxBytes = 0 }},
		{"min seconds above max", func(c *Config) { c.SegmentMinSec = 6 }},
		{"zero min seconds", func(c *Config) { c.SegmentMinSec = 0 }},
		{"negative publish interval", func(c *Config) { c.PublishInterval = -time.Second }},
		{"nested hls directory", func(c *Config) { c.HLSDirectory = "a/b" }},
		{"dot-dot hls directory", func(c *Config) { c.HLSDirectory = ".." }},
		{"empty playlist name", func(c *Config) { c.HLSFilename = "" }},
		{"relative mount path", func(c *Config) { c.SocketMountPath = "out" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(c)
			if err := c.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	clearEnv(t)
	dataDir := filepath.Join(t.TempDir(), "data")
	t.Setenv("DATA_DIR", dataDir)
	t.Setenv("PORT", "9999")
	t.Setenv("SEGMENT_MAX_SEC", "6.5")
	t.Setenv("PUBLISH_INTERVAL", "15s")
	t.Setenv("IPFS_ROUTER_ADDRS", "/ip4/127.0.0.1/tcp/4001, /ip4/127.0.0.1/udp/4001/quic")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("IMAGE_NAME", "docker.io/library/ffmpeg")

	c, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if c.DataDir != dataDir || c.Port != "9999" || c.MetricsEnabled {
		t.Errorf("service config = %q %q %v", c.DataDir, c.Port, c.MetricsEnabled)
	}
	if c.SegmentMaxSec != 6.5 || c.PublishInterval != 15*time.Second {
		t.Errorf("segment config = %v %v", c.SegmentMaxSec, c.PublishInterval)
	}
	want := []string{"/ip4/127.0.0.1/tcp/4001", "/ip4/127.0.0.1/udp/4001/quic"}
	if !reflect.DeepEqual(c.IPFSRouterAddrs, want) {
		t.Errorf("IPFSRouterAddrs = %v", c.IPFSRouterAddrs)
	}
	if c.ImageName != "docker.io/library/ffmpeg" {
		t.Errorf("ImageName = %q", c.ImageName)
	}
	if c.DatabasePath != filepath.Join(dataDir, "streambox.db") {
		t.Errorf("DatabasePath = %q", c.DatabasePath)
	}
	if info, err := os.Stat(c.VideoDir); err != nil || !info.IsDir() {
		t.Errorf("video directory not created: %v", err)
	}
}

func TestLoadConfigFileOverlay(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "streambox.yaml")
	content := `
data_dir: ` + filepath.Join(dir, "data") + `
hls_directory: stream
segment_min_bytes: 1024
publish_interval: 30s
port: "7000"
ipfs_router_addrs:
  - /dns4/router.example/tcp/4001
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7001")

	c, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if c.ConfigFile != path {
		t.Errorf("ConfigFile = %q", c.ConfigFile)
	}
	if c.SegmentMinBytes != 1024 || c.PublishInterval != 30*time.Second {
		t.Errorf("file values not applied: %d %v", c.SegmentMinBytes, c.PublishInterval)
	}
	if c.SegmentMaxBytes != 1024*1024 {
		t.Errorf("unset key changed default: %d", c.SegmentMaxBytes)
	}
	if c.Port != "7001" {
		t.Errorf("Port = %q, environment should win over the file", c.Port)
	}
	if len(c.IPFSRouterAddrs) != 1 {
		t.Errorf("IPFSRouterAddrs = %v", c.IPFSRouterAddrs)
	}
	if filepath.Base(c.VideoDir) != "stream" {
		t.Errorf("VideoDir = %q", c.VideoDir)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
		if _, err := LoadConfig(); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("segment_min_bytes: [1, 2"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("CONFIG_FILE", path)
		if _, err := LoadConfig(); err == nil {
			t.Error("expected error for malformed config file")
		}
	})

	t.Run("invalid bounds", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DATA_DIR", t.TempDir())
		t.Setenv("SEGMENT_MIN_SEC", "9")
		if _, err := LoadConfig(); err == nil {
			t.Error("expected error for inverted segment bounds")
		}
	})

	t.Run("data dir is a file", func(t *testing.T) {
		clearEnv(t)
		file := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(file, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("DATA_DIR", file)
		if _, err := LoadConfig(); err == nil {
			t.Error("expected error when DATA_DIR is a file")
		}
	})
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty")
	t.Setenv("TEST_FLOAT", "2.5")
	t.Setenv("TEST_BOOL", "yes")
	t.Setenv("TEST_DURATION", "1m30s")
	t.Setenv("TEST_EMPTY", "")

	if got := getEnvInt64("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt64 = %d", got)
	}
	if got := getEnvInt64("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt64(bad) = %d, want default", got)
	}
	if got := getEnvFloat("TEST_FLOAT", 1); got != 2.5 {
		t.Errorf("getEnvFloat = %v", got)
	}
	if got := getEnvBool("TEST_BOOL", true); got != true {
		t.Errorf("getEnvBool(invalid) = %v, want default", got)
	}
	if got := getEnvDuration("TEST_DURATION", 0); got != 90*time.Second {
		t.Errorf("getEnvDuration = %v", got)
	}
	if got := getEnv("TEST_EMPTY", "default"); got != "default" {
		t.Errorf("getEnv(empty) = %q", got)
	}
	if got := getEnvList("TEST_EMPTY", []string{"a"}); len(got) != 1 {
		t.Errorf("getEnvList(empty) = %v", got)
	}
}

func TestGetRoutes(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/health", func(_ http.ResponseWriter, _ *http.Request) {}).Methods(http.MethodGet).Name("health")
	router.HandleFunc("/api/jobs/{id}/segments", func(_ http.ResponseWriter, _ *http.Request) {}).Methods(http.MethodGet)

	routes, err := GetRoutes(router)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("GetRoutes() = %v", routes)
	}
	if routes[0].Name != "health" || routes[0].Method != http.MethodGet {
		t.Errorf("routes[0] = %+v", routes[0])
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := map[string]string{
		"/health":                 "health",
		"/api/jobs/{id}/segments": "api/jobs",
		"/video/{job}/{file}":     "video",
		"/":                       "",
	}
	for path, want := range tests {
		if got := getRouteGroup(path); got != want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", path, got, want)
		}
	}
}
