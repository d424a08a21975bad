package startup

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"

	"streambox/internal/container"
	"streambox/internal/logging"
	"streambox/internal/playlist"
	"streambox/internal/sandbox"
	"streambox/internal/segment"
	"streambox/internal/socketpool"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration. Field names double as keys
// of the optional YAML file named by CONFIG_FILE.
type Config struct {
	// IPFS publishing collaborators
	IPFSGateway      string   `yaml:"ipfs_gateway"`
	IPFSRouterID     string   `yaml:"ipfs_router_id"`
	IPFSRouterAddrs  []string `yaml:"ipfs_router_addrs"`
	IPFSLocalGateway string   `yaml:"ipfs_local_gateway"`
	IPFSPinningAPI   string   `yaml:"ipfs_pinning_api"`
	IPFSPinningName  string   `yaml:"ipfs_pinning_name"`

	// HLS output
	HLSFilename  string `yaml:"hls_filename"`
	HLSDirectory string `yaml:"hls_directory"`
	JSFilename   string `yaml:"js_filename"`

	// Segment bounds
	SegmentMinBytes int64         `yaml:"segment_min_bytes"`
	SegmentMaxBytes int64         `yaml:"segment_max_bytes"`
	SegmentMinSec   float64       `yaml:"segment_min_sec"`
	SegmentMaxSec   float64       `yaml:"segment_max_sec"`
	PublishInterval time.Duration `yaml:"publish_interval"`

	// Sandbox
	RuntimeBinary   string `yaml:"runtime_binary"`
	ImageName       string `yaml:"image_name"`
	ImageDigest     string `yaml:"image_digest"`
	SocketDir       string `yaml:"socket_dir"`
	SocketMountPath string `yaml:"socket_mount_path"`

	// Service
	DataDir         string `yaml:"data_dir"`
	Port            string `yaml:"port"`
	MetricsEnabled  bool   `yaml:"metrics_enabled"`
	LogHealthChecks bool   `yaml:"log_health_checks"`

	// Derived paths
	ConfigFile   string `yaml:"-"`
	DatabasePath string `yaml:"-"`
	VideoDir     string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		IPFSGateway:  "cf-ipfs.com",
		IPFSRouterID: "QmPjtoXdQobBpWa2yS4rfmHVDoCbom2r2SMDTUa1Nk7kJ5",
		IPFSRouterAddrs: []string{
			"/dns4/ipfs.diode.zone/tcp/443/wss",
			"/dns4/ipfs.diode.zone/tcp/4001",
			"/dns4/ipfs.diode.zone/udp/4001/quic",
		},
		IPFSLocalGateway: "99.149.215.66:8080",
		IPFSPinningAPI:   "http://99.149.215.66:5000/api/v1",
		IPFSPinningName:  "Experimental video stream from rectangle-device",

		HLSFilename:  playlist.DefaultFilename,
		HLSDirectory: "video",
		JSFilename:   "bundle.js",

		SegmentMinBytes: 64 * 1024,
		SegmentMaxBytes: 1024 * 1024,
		SegmentMinSec:   2.0,
		SegmentMaxSec:   5.0,
		PublishInterval: 60 * time.Second,

		RuntimeBinary:   container.DefaultBinary,
		SocketMountPath: socketpool.DefaultMountPath,

		DataDir:         "/var/lib/streambox",
		Port:            "8080",
		MetricsEnabled:  true,
		LogHealthChecks: false,
	}
}

// SegmentBounds returns the expected segment byte sizes.
func (c *Config) SegmentBounds() segment.Bounds {
	return segment.Bounds{MinBytes: c.SegmentMinBytes, MaxBytes: c.SegmentMaxBytes}
}

// SandboxBounds returns the accepted segment durations.
func (c *Config) SandboxBounds() sandbox.Bounds {
	return sandbox.Bounds{MinSegmentTime: c.SegmentMinSec, MaxSegmentTime: c.SegmentMaxSec}
}

// Validate checks internal consistency of the configuration.
func (c *Config) Validate() error {
	switch {
	case c.SegmentMinBytes < 0 || c.SegmentMaxBytes <= 0:
		return fmt.Errorf("segment byte bounds must be positive (min %d, max %d)", c.SegmentMinBytes, c.SegmentMaxBytes)
	case c.SegmentMinBytes > c.SegmentMaxBytes:
		return fmt.Errorf("segment_min_bytes %d exceeds segment_max_bytes %d", c.SegmentMinBytes, c.SegmentMaxBytes)
	case math.IsNaN(c.SegmentMinSec) || math.IsNaN(c.SegmentMaxSec) || c.SegmentMinSec <= 0:
		return fmt.Errorf("segment time bounds must be positive numbers")
	case c.SegmentMinSec > c.SegmentMaxSec:
		return fmt.Errorf("segment_min_sec %v exceeds segment_max_sec %v", c.SegmentMinSec, c.SegmentMaxSec)
	case c.PublishInterval < 0:
		return fmt.Errorf("publish_interval must not be negative")
	case c.HLSDirectory == "" || strings.ContainsAny(c.HLSDirectory, `/\`) || c.HLSDirectory == "." || c.HLSDirectory == "..":
		return fmt.Errorf("hls_directory %q must be a single path element", c.HLSDirectory)
	case c.HLSFilename == "" || strings.ContainsAny(c.HLSFilename, `/\`):
		return fmt.Errorf("hls_filename %q must be a plain file name", c.HLSFilename)
	case !strings.HasPrefix(c.SocketMountPath, "/"):
		return fmt.Errorf("socket_mount_path %q must be absolute", c.SocketMountPath)
	}
	return nil
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by CONFIG_FILE and environment variables, in increasing priority.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	config := Default()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := loadFile(config, path); err != nil {
			return nil, err
		}
		config.ConfigFile = path
		logging.Info("  CONFIG_FILE:         %s", path)
	}

	applyEnv(config)

	logging.Info("  DATA_DIR:            %s", config.DataDir)
	logging.Info("  PORT:                %s", config.Port)
	logging.Info("  METRICS_ENABLED:     %v", config.MetricsEnabled)
	logging.Info("  RUNTIME_BINARY:      %s", config.RuntimeBinary)
	logging.Info("  IMAGE_NAME:          %s", config.ImageName)
	logging.Info("  IMAGE_DIGEST:        %s", config.ImageDigest)
	logging.Info("  SOCKET_DIR:          %s", orDefault(config.SocketDir, os.TempDir()))
	logging.Info("  SOCKET_MOUNT_PATH:   %s", config.SocketMountPath)
	logging.Info("  SEGMENT_BYTES:       %d-%d", config.SegmentMinBytes, config.SegmentMaxBytes)
	logging.Info("  SEGMENT_SECONDS:     %v-%v", config.SegmentMinSec, config.SegmentMaxSec)
	logging.Info("  PUBLISH_INTERVAL:    %s", config.PublishInterval)
	logging.Info("  IPFS_GATEWAY:        %s", config.IPFSGateway)
	logging.Info("  IPFS_PINNING_API:    %s", config.IPFSPinningAPI)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", config.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	dataDir, err := filepath.Abs(config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	config.DataDir = dataDir
	config.DatabasePath = filepath.Join(dataDir, "streambox.db")
	config.VideoDir = filepath.Join(dataDir, config.HLSDirectory)
	logging.Info("  Data directory (absolute): %s", dataDir)

	if err := ensureDirectory(dataDir, "data"); err != nil {
		return nil, fmt.Errorf("data directory error: %w", err)
	}
	logging.Debug("  Testing data directory write access...")
	if err := testWriteAccess(dataDir); err != nil {
		return nil, fmt.Errorf("data directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Data directory is writable")

	if err := ensureDirectory(config.VideoDir, "video"); err != nil {
		return nil, fmt.Errorf("video directory error: %w", err)
	}
	logging.Info("  [OK] Video directory: %s", config.VideoDir)

	if config.SocketDir != "" {
		socketDir, err := filepath.Abs(config.SocketDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve socket directory path: %w", err)
		}
		config.SocketDir = socketDir
		if err := ensureDirectory(socketDir, "socket"); err != nil {
			return nil, fmt.Errorf("socket directory error: %w", err)
		}
	}

	return config, nil
}

func loadFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.IPFSGateway = getEnv("IPFS_GATEWAY", c.IPFSGateway)
	c.IPFSRouterID = getEnv("IPFS_ROUTER_ID", c.IPFSRouterID)
	c.IPFSRouterAddrs = getEnvList("IPFS_ROUTER_ADDRS", c.IPFSRouterAddrs)
	c.IPFSLocalGateway = getEnv("IPFS_LOCAL_GATEWAY", c.IPFSLocalGateway)
	c.IPFSPinningAPI = getEnv("IPFS_PINNING_API", c.IPFSPinningAPI)
	c.IPFSPinningName = getEnv("IPFS_PINNING_NAME", c.IPFSPinningName)

	c.HLSFilename = getEnv("HLS_FILENAME", c.HLSFilename)
	c.HLSDirectory = getEnv("HLS_DIRECTORY", c.HLSDirectory)
	c.JSFilename = getEnv("JS_FILENAME", c.JSFilename)

	c.SegmentMinBytes = getEnvInt64("SEGMENT_MIN_BYTES", c.SegmentMinBytes)
	c.SegmentMaxBytes = getEnvInt64("SEGMENT_MAX_BYTES", c.SegmentMaxBytes)
	c.SegmentMinSec = getEnvFloat("SEGMENT_MIN_SEC", c.SegmentMinSec)
	c.SegmentMaxSec = getEnvFloat("SEGMENT_MAX_SEC", c.SegmentMaxSec)
	c.PublishInterval = getEnvDuration("PUBLISH_INTERVAL", c.PublishInterval)

	c.RuntimeBinary = getEnv("RUNTIME_BINARY", c.RuntimeBinary)
	c.ImageName = getEnv("IMAGE_NAME", c.ImageName)
	c.ImageDigest = getEnv("IMAGE_DIGEST", c.ImageDigest)
	c.SocketDir = getEnv("SOCKET_DIR", c.SocketDir)
	c.SocketMountPath = getEnv("SOCKET_MOUNT_PATH", c.SocketMountPath)

	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.Port = getEnv("PORT", c.Port)
	c.MetricsEnabled = getEnvBool("METRICS_ENABLED", c.MetricsEnabled)
	c.LogHealthChecks = getEnvBool("LOG_HEALTH_CHECKS", c.LogHealthChecks)
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogImageReady logs the outcome of the image check/pull phase
func LogImageReady(reference string, duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SANDBOX IMAGE")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Image:  %s", reference)
	logging.Info("  [OK] Image available after %v", duration)
}

// LogSandboxStarted logs a spawned sandbox
func LogSandboxStarted(jobID string, pid int, invocation string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SANDBOX STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Job:    %s", jobID)
	logging.Info("  PID:    %d", pid)
	logging.Debug("  Invocation: %s", invocation)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified (e.g., static file server)
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Playlist:      http://0.0.0.0:%s/video/<job>/%s", config.Port, playlist.DefaultFilename)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.Port)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(reason string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (%s)", reason)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
     _                            _
 ___| |_ _ __ ___  __ _ _ __ ___ | |__   _____  __
/ __| __| '__/ _ \/ _' | '_ ' _ \| '_ \ / _ \ \/ /
\__ \ |_| | |  __/ (_| | | | | | | |_) | (_) >  <
|___/\__|_|  \___|\__,_|_| |_| |_|_.__/ \___/_/\_\

------------------------------------------------------------`
	fmt.Fprintln(os.Stderr, banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logging.Warn("Invalid number for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("Invalid %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var list []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
