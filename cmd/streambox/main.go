package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"streambox/internal/container"
	"streambox/internal/database"
	"streambox/internal/handlers"
	"streambox/internal/image"
	"streambox/internal/logging"
	"streambox/internal/memory"
	"streambox/internal/metrics"
	"streambox/internal/middleware"
	"streambox/internal/retry"
	"streambox/internal/sandbox"
	"streambox/internal/segment"
	"streambox/internal/socketpool"
	"streambox/internal/startup"
)

const (
	defaultSegmentTime = 4.0
	// drainDelay lets the last segment connection be accepted after the
	// sandbox exits.
	drainDelay      = 2 * time.Second
	shutdownTimeout = 30 * time.Second
	statsInterval   = 30 * time.Second
)

// options are the command-line settings of one run.
type options struct {
	configFile      string
	segmentTime     float64
	allowNetworking bool
	imageName       string
	imageDigest     string
	args            []string
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	os.Exit(run(opts))
}

func parseFlags(argv []string) (*options, error) {
	opts := &options{}

	flagSet := pflag.NewFlagSet("streambox", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	flagSet.Float64Var(&opts.segmentTime, "segment-time", defaultSegmentTime, "target segment duration in seconds")
	flagSet.BoolVar(&opts.allowNetworking, "allow-networking", false, "give the sandbox outbound network access")
	flagSet.StringVar(&opts.imageName, "image-name", "", "transcoder image name (overrides IMAGE_NAME)")
	flagSet.StringVar(&opts.imageDigest, "image-digest", "", "transcoder image digest (overrides IMAGE_DIGEST)")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: streambox [flags] -- <transcoder input args>\n\n")
		fmt.Fprintf(os.Stderr, "Example:\n  streambox --allow-networking -- -i https://example.com/input.mp4\n\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(argv); err != nil {
		return nil, err
	}
	opts.args = flagSet.Args()
	if len(opts.args) == 0 {
		flagSet.Usage()
		return nil, errors.New("no transcoder arguments given")
	}
	return opts, nil
}

func run(opts *options) int {
	startTime := time.Now()
	memory.ConfigureFromEnv()

	if opts.configFile != "" {
		// LoadConfig is the only reader of the environment
		if err := os.Setenv("CONFIG_FILE", opts.configFile); err != nil {
			logging.Error("Failed to set CONFIG_FILE: %v", err)
			return 1
		}
	}

	config, err := startup.LoadConfig()
	if err != nil {
		logging.Error("Configuration error: %v", err)
		return 1
	}

	if opts.imageName != "" {
		config.ImageName = opts.imageName
	}
	if opts.imageDigest != "" {
		config.ImageDigest = opts.imageDigest
	}
	img, err := image.Parse(config.ImageName, config.ImageDigest)
	if err != nil {
		logging.Error("Invalid transcoder image: %v", err)
		return 1
	}

	job := sandbox.TranscodeConfig{
		Image:           img,
		Args:            opts.args,
		AllowNetworking: opts.allowNetworking,
		SegmentTime:     opts.segmentTime,
	}
	if err := job.Validate(config.SandboxBounds()); err != nil {
		logging.Error("%v", err)
		return 1
	}

	retry.SetObserver(metrics.NewRetryObserver())
	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		logging.Error("Failed to initialize database: %v", err)
		return 1
	}
	defer db.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	collector := metrics.NewCollector(db, statsInterval)
	collector.Start()
	defer collector.Stop()

	tracker := &jobTracker{status: handlers.JobStatus{State: "starting", Started: startTime}}

	srv := newServer(config, db, tracker)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Server error: %v", err)
			stop()
		}
	}()
	defer shutdownServer(srv)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	supervisor := sandbox.New(container.NewPodman(config.RuntimeBinary), config.SandboxBounds())

	tracker.setState("pulling")
	pullStart := time.Now()
	retryConfig := retry.DefaultConfig()
	retryConfig.Retryable = container.IsRetryable
	err = retry.Do(ctx, "ensure_image", retryConfig, func(ctx context.Context) error {
		return supervisor.EnsureImage(ctx, img)
	})
	if err != nil {
		tracker.fail(err)
		logging.Error("Transcoder image unavailable: %v", err)
		return 1
	}
	startup.LogImageReady(img.Reference(), time.Since(pullStart))

	return transcode(ctx, config, db, supervisor, job, tracker)
}

// transcode runs one sandboxed job to completion and records the outcome.
func transcode(ctx context.Context, config *startup.Config, db *database.Database,
	supervisor *sandbox.Supervisor, job sandbox.TranscodeConfig, tracker *jobTracker) int {
	record, err := db.CreateJob(ctx, database.JobSpec{
		Image:           job.Image.Reference(),
		Args:            job.Args,
		SegmentTime:     job.SegmentTime,
		AllowNetworking: job.AllowNetworking,
	})
	if err != nil {
		logging.Error("Failed to record job: %v", err)
		return 1
	}
	tracker.setJob(record.ID)
	job.Name = "streambox-" + record.ID

	// The pool outlives the sandbox; it is closed only after the drain.
	pool, err := socketpool.New(config.SocketDir, config.SocketMountPath, 1)
	if err != nil {
		finishJob(db, record.ID, database.JobResult{State: database.JobFailed, ExitCode: -1})
		logging.Error("Failed to create socket pool: %v", err)
		return 1
	}
	defer pool.Close()

	sink, err := segment.NewDirectorySink(record.ID, segment.DirectoryConfig{
		Dir:              config.VideoDir,
		PlaylistFilename: config.HLSFilename,
		PublishInterval:  config.PublishInterval,
		Ledger:           db,
		Publisher: segment.URLPublisher{
			BaseURL:          fmt.Sprintf("http://localhost:%s/video", config.Port),
			PlaylistFilename: config.HLSFilename,
		},
	})
	if err != nil {
		finishJob(db, record.ID, database.JobResult{State: database.JobFailed, ExitCode: -1})
		logging.Error("Failed to prepare video directory: %v", err)
		return 1
	}
	receiver := segment.NewReceiver(record.ID, config.SegmentBounds(), job.SegmentTime, sink)
	tracker.setReceiver(receiver)

	// Segment storage must not be cut short by a shutdown signal
	storeCtx := context.WithoutCancel(ctx)
	acceptCtx, cancelAccept := context.WithCancel(storeCtx)
	defer cancelAccept()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := pool.Accept(acceptCtx, receiver.Handler(storeCtx)); err != nil {
			logging.Error("Socket pool stopped: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		sink.Run(acceptCtx)
	}()

	handle, err := supervisor.Start(ctx, job, pool)
	if err != nil {
		cancelAccept()
		wg.Wait()
		tracker.fail(err)
		finishJob(db, record.ID, database.JobResult{State: database.JobFailed, ExitCode: -1})
		return 1
	}
	defer handle.Close()

	tracker.setState(sandbox.Running.String())
	startup.LogSandboxStarted(record.ID, handle.Pid(), handle.Invocation())

	select {
	case <-handle.Done():
	case <-ctx.Done():
		startup.LogShutdownInitiated("signal received")
		startup.LogShutdownStep("Stopping sandbox")
		if err := handle.Kill(); err != nil {
			logging.Warn("Failed to signal sandbox: %v", err)
		}
	}

	status, waitErr := handle.Wait()
	if waitErr != nil {
		logging.Error("Failed to wait for sandbox: %v", waitErr)
	}
	logging.Info("Sandbox %s: %s", handle.State(), status)

	startup.LogShutdownStep("Draining segments")
	time.Sleep(drainDelay)
	cancelAccept()
	wg.Wait()
	startup.LogShutdownStepComplete(fmt.Sprintf("%d segments received", receiver.Received()))

	location, err := sink.Finish(storeCtx)
	if err != nil {
		logging.Warn("Final publish failed: %v", err)
	}

	finishJob(db, record.ID, database.JobResult{
		State:    handle.State().String(),
		ExitCode: status.Code,
		Signal:   status.Signal,
		Location: location,
	})
	tracker.setState(handle.State().String())
	startup.LogShutdownComplete()

	if handle.State() == sandbox.Exited && status.Success() {
		return 0
	}
	return 1
}

func finishJob(db *database.Database, id string, result database.JobResult) {
	if err := db.FinishJob(context.Background(), id, result); err != nil {
		logging.Error("Failed to record job outcome: %v", err)
	}
}

func newServer(config *startup.Config, db *database.Database, tracker *jobTracker) *http.Server {
	h := handlers.New(db, tracker, handlers.Config{
		VideoDir:         config.VideoDir,
		PlaylistFilename: config.HLSFilename,
		MetricsEnabled:   config.MetricsEnabled,
	})

	router := h.Router()
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(router)
	handler = middleware.Compression(middleware.DefaultCompressionConfig())(handler)

	return &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
		return
	}
	startup.LogShutdownStepComplete("HTTP server stopped")
}

// jobTracker is the live status shown by the health endpoints.
type jobTracker struct {
	mu       sync.Mutex
	status   handlers.JobStatus
	receiver *segment.Receiver
}

func (t *jobTracker) JobStatus() handlers.JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.status
	if t.receiver != nil {
		s.Segments = t.receiver.Received()
	}
	return s
}

func (t *jobTracker) setState(state string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.State = state
	t.status.Ready = state == sandbox.Running.String()
}

func (t *jobTracker) setJob(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.JobID = id
}

func (t *jobTracker) setReceiver(r *segment.Receiver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receiver = r
}

func (t *jobTracker) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.State = database.JobFailed
	t.status.Ready = false
	t.status.Error = err.Error()
}
