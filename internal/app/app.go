// Package app wires configuration, storage, the AI backend, the session
// manager and the job queue together and runs one producer on top of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/ai/providers"
	"github.com/dmitrijs2005/audiodesc/internal/artifacts"
	"github.com/dmitrijs2005/audiodesc/internal/assistant"
	"github.com/dmitrijs2005/audiodesc/internal/config"
	"github.com/dmitrijs2005/audiodesc/internal/console"
	"github.com/dmitrijs2005/audiodesc/internal/cryptox"
	"github.com/dmitrijs2005/audiodesc/internal/filex"
	"github.com/dmitrijs2005/audiodesc/internal/httpapi"
	"github.com/dmitrijs2005/audiodesc/internal/logging"
	"github.com/dmitrijs2005/audiodesc/internal/queue"
	"github.com/dmitrijs2005/audiodesc/internal/retry"
	"github.com/dmitrijs2005/audiodesc/internal/session"
	"github.com/dmitrijs2005/audiodesc/internal/spool"
	"github.com/dmitrijs2005/audiodesc/internal/storage"
)

// ShutdownTimeout bounds how long the running job may take after a stop
// signal before it is abandoned.
const ShutdownTimeout = 30 * time.Second

// Seams for tests.
var (
	openStorage = storage.Open
	newBackend  = providers.New
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	queue    *queue.Queue
	sessions *session.Manager
	closers  []func() error
}

// NewApp builds every component from c. Close releases what it opened.
func NewApp(ctx context.Context, c *config.Config, logOut io.Writer) (*App, error) {
	logger, err := logging.New(c.LogFormat, c.LogLevel, logOut)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	app := &App{config: c, logger: logger}

	driver := strings.ToLower(c.StorageDriver)
	if driver == storage.DriverSQLite || driver == storage.DriverBolt {
		if err := filex.EnsureParentDir(c.StorageDSN); err != nil {
			return nil, fmt.Errorf("storage init error: %w", err)
		}
	}
	repo, closeRepo, err := openStorage(ctx, driver, c.StorageDSN)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}
	app.closers = append(app.closers, closeRepo)

	key, err := cryptox.ParseKey(c.EncryptionKey)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	sealer, err := cryptox.NewAESGCM(key)
	cryptox.Wipe(key)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("sealer init error: %w", err)
	}

	store, err := newArtifactStore(ctx, c)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("artifact store init error: %w", err)
	}

	backend, err := newBackend(providers.Config{
		Provider:  c.AIProvider,
		Model:     c.AIModel,
		APIKey:    c.AIAPIKey,
		BaseURL:   c.AIBaseURL,
		Language:  c.Language,
		MaxTokens: c.AIMaxTokens,
	}, store)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("ai backend init error: %w", err)
	}

	app.sessions = session.NewManager(repo, sealer, c.HistoryLimit)

	policy := retry.Policy{
		MaxAttempts:  c.RetryMaxAttempts,
		InitialDelay: c.RetryInitialDelay,
		MaxDelay:     c.RetryMaxDelay,
	}
	processor := assistant.New(backend, app.sessions, policy, c.MaxChunkLen, logger)

	drain, err := queue.ParseDrainPolicy(c.DrainPolicy)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.queue = queue.New(processor,
		queue.WithCapacity(c.QueueCapacity),
		queue.WithDrainPolicy(drain),
		queue.WithSpool(spool.New(repo, sealer, logger)),
		queue.WithLogger(logger),
		queue.WithResultHook(app.onResult),
	)

	return app, nil
}

func newArtifactStore(ctx context.Context, c *config.Config) (artifacts.Store, error) {
	switch strings.ToLower(c.ArtifactStore) {
	case config.ArtifactsS3:
		s, err := artifacts.NewS3Store(ctx, artifacts.S3Config{
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			Endpoint:  c.S3Endpoint,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			URLExpiry: c.ArtifactURLTTL,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.ArtifactsAzure:
		s, err := artifacts.NewAzureStore(artifacts.AzureConfig{
			Account:    c.AzureAccount,
			Key:        c.AzureKey,
			Container:  c.AzureContainer,
			ServiceURL: c.AzureServiceURL,
			URLExpiry:  c.ArtifactURLTTL,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.ArtifactsMemory, "":
		return artifacts.NewMemoryStore(c.ArtifactTTL), nil
	default:
		return nil, fmt.Errorf("unknown artifact store %q", c.ArtifactStore)
	}
}

// onResult sees every finished job, including restored ones nobody waits
// for.
func (app *App) onResult(res queue.Result) {
	if res.Err == nil {
		return
	}
	app.logger.Debug(context.Background(), "job result",
		"job_id", res.JobID, "error_kind", assistant.ErrorKind(res.Err))
}

// Close releases storage handles. It is safe to call more than once.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i]())
	}
	app.closers = nil
	return errors.Join(errs...)
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			app.logger.Info(ctx, "Stop signal received")
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// run restores spooled jobs, starts the worker, runs producer until it
// returns or a signal arrives, and then drains the queue.
func (app *App) run(ctx context.Context, producer func(ctx context.Context) error) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(ctx, cancelFunc)

	if n, err := app.queue.Restore(ctx); err != nil {
		app.logger.Error(ctx, "restore spooled jobs failed", "restored", n, "error", err.Error())
	}

	// the worker outlives ctx so the running job can finish during drain
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.queue.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			app.logger.Error(ctx, "queue worker stopped", "error", err.Error())
		}
	}()

	err := producer(ctx)
	cancelFunc()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancelShutdown()
	if serr := app.queue.Shutdown(shutdownCtx); serr != nil {
		app.logger.Error(shutdownCtx, "queue shutdown", "error", serr.Error())
		err = errors.Join(err, serr)
	}
	stopWorker()
	wg.Wait()

	app.logger.Info(shutdownCtx, "Stopped", "stats", fmt.Sprintf("%+v", app.queue.Stats()))
	return err
}

// RunServer serves the HTTP/WebSocket API until a stop signal or ctx.
func (app *App) RunServer(ctx context.Context) error {
	app.logger.Info(ctx, "Starting server...", "provider", app.config.AIProvider, "storage", app.config.StorageDriver)

	srv := httpapi.NewServer(httpapi.Options{
		Address:        app.config.HTTPAddress,
		JWTSecret:      []byte(app.config.JWTSecret),
		MaxUploadBytes: app.config.MaxUploadBytes,
	}, app.queue, app.sessions, app.logger)

	return app.run(ctx, srv.Run)
}

// RunConsole runs the REPL on in/out until exit, EOF or a stop signal.
func (app *App) RunConsole(ctx context.Context, in io.Reader, out io.Writer) error {
	c := console.New(app.queue, app.sessions, app.config.ConsoleUser, app.config.MaxUploadBytes, out, app.logger)

	return app.run(ctx, func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() { done <- c.Run(ctx, in) }()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			// a blocked terminal read cannot be interrupted
			return nil
		}
	})
}
