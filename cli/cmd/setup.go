package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/okdomo/catapult/archive"
	"github.com/okdomo/catapult/cache"
	"github.com/okdomo/catapult/cli/config"
	"github.com/okdomo/catapult/log"
	"github.com/okdomo/catapult/lrr"
	"github.com/okdomo/catapult/metrics"
	"github.com/okdomo/catapult/notify"
	notifyredis "github.com/okdomo/catapult/notify/redis"
	notifywebhook "github.com/okdomo/catapult/notify/webhook"
	"github.com/okdomo/catapult/report"
	"github.com/okdomo/catapult/types"
	"github.com/okdomo/catapult/uploader"
)

// loadConfig merges the YAML config file with command flags.
// Flags always win.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if path := configPath(c); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v := c.String("host"); v != "" {
		cfg.Host = v
	}
	if v := c.String("api-key"); v != "" {
		cfg.APIKey = v
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("max-retries") {
		cfg.MaxRetries = c.Int("max-retries")
	}
	if v := c.String("cache"); v != "" {
		cfg.CachePath = v
	}
	if c.Bool("no-cache") {
		cfg.CachePath = ""
	}
	if c.Bool("remove-duplicates") {
		cfg.RemoveDuplicates = true
	}
	if c.Bool("check-integrity") {
		cfg.CheckIntegrity = true
	}
	if v := c.String("report"); v != "" {
		cfg.ReportPath = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfigFile reads the config file without server validation, for
// commands that only touch local state.
func loadConfigFile(c *cli.Context) (*config.Config, error) {
	if path := configPath(c); path != "" {
		return config.Load(path)
	}
	return &config.Config{}, nil
}

// configPath resolves the config file location: the --config flag, else
// ~/.catapult/catapult.yaml when that file exists.
func configPath(c *cli.Context) string {
	if path := c.String("config"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".catapult", "catapult.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// batchRuntime bundles the collaborators a batch command wires together.
type batchRuntime struct {
	cfg       *config.Config
	client    *lrr.Client
	store     *cache.Store
	logger    *log.Logger
	collector *metrics.Collector
	reporter  *report.Writer
	notifier  notify.Notifier
}

// newBatchRuntime builds the full upload stack from merged config.
func newBatchRuntime(c *cli.Context) (*batchRuntime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	rt := &batchRuntime{
		cfg:       cfg,
		client:    lrr.New(cfg.Host, cfg.APIKey),
		logger:    log.NewLogger("", cfg.Host),
		collector: metrics.NewCollector("", cfg.Host),
	}

	if cfg.CachePath != "" {
		rt.store, err = cache.Open(cfg.CachePath)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.store.OnBusyRetry = rt.collector.IncCacheBusyRetry
	}
	if cfg.ReportPath != "" {
		rt.reporter, err = report.Create(cfg.ReportPath)
		if err != nil {
			rt.Close()
			return nil, err
		}
	}
	if cfg.Notify.Type != "" {
		rt.notifier, err = newNotifier(cfg)
		if err != nil {
			rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

func (rt *batchRuntime) Close() {
	if rt.store != nil {
		_ = rt.store.Close()
	}
	if rt.reporter != nil {
		_ = rt.reporter.Close()
	}
	if rt.notifier != nil {
		_ = rt.notifier.Close()
	}
	_ = rt.logger.Sync()
}

// uploadConfig translates merged CLI config into pipeline tuning.
func (rt *batchRuntime) uploadConfig() uploader.Config {
	return uploader.Config{
		Workers:          rt.cfg.Workers,
		MaxRetries:       rt.cfg.MaxRetries,
		UseCache:         rt.store != nil,
		RemoveDuplicates: rt.cfg.RemoveDuplicates,
	}.Normalize()
}

// coordinator assembles a batch coordinator with an optional progress hook.
func (rt *batchRuntime) coordinator(progress func(uploader.ProgressEvent)) *uploader.Coordinator {
	cfg := rt.uploadConfig()

	popts := []uploader.PipelineOption{
		uploader.WithLogger(rt.logger),
		uploader.WithCollector(rt.collector),
	}
	if rt.cfg.CheckIntegrity {
		popts = append(popts, uploader.WithIntegrityChecker(zipIntegrity{}))
	}
	pipeline := uploader.NewPipeline(rt.client, rt.store, cfg, popts...)

	copts := []uploader.CoordinatorOption{
		uploader.WithBatchLogger(rt.logger),
		uploader.WithBatchCollector(rt.collector),
	}
	if rt.reporter != nil {
		copts = append(copts, uploader.WithReporter(rt.reporter))
	}
	if progress != nil {
		copts = append(copts, uploader.WithProgress(progress))
	}
	return uploader.NewCoordinator(pipeline, cfg, copts...)
}

// publishResult notifies downstream systems that the batch finished.
// Best-effort: failures are logged, never returned.
func (rt *batchRuntime) publishResult(result *types.BatchResult) {
	if rt.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	event := notify.NewBatchCompletedEvent(result, rt.cfg.Host)
	if err := rt.notifier.Publish(ctx, event); err != nil {
		rt.logger.Error("batch notification failed", zap.Error(err))
	}
}

func newNotifier(cfg *config.Config) (notify.Notifier, error) {
	retries := -1
	if cfg.Notify.Retries != nil {
		retries = *cfg.Notify.Retries
	}

	switch cfg.Notify.Type {
	case "webhook":
		wcfg := notifywebhook.Config{
			URL:     cfg.Notify.URL,
			Headers: cfg.Notify.Headers,
			Timeout: cfg.Notify.Timeout.Duration,
		}
		if retries >= 0 {
			wcfg.Retries = retries
		} else {
			wcfg.Retries = notifywebhook.DefaultRetries
		}
		return notifywebhook.New(wcfg)
	case "redis":
		rcfg := notifyredis.Config{
			URL:     cfg.Notify.URL,
			Channel: cfg.Notify.Channel,
			Timeout: cfg.Notify.Timeout.Duration,
		}
		if retries >= 0 {
			rcfg.Retries = retries
		} else {
			rcfg.Retries = notifyredis.DefaultRetries
		}
		return notifyredis.New(rcfg)
	default:
		return nil, fmt.Errorf("unknown notifier type %q", cfg.Notify.Type)
	}
}

// zipIntegrity classifies zip-family archives by decoding image members.
type zipIntegrity struct{}

func (zipIntegrity) Check(path string) (string, error) {
	corrupted, err := archive.ContainsCorruptedImage(path)
	if err != nil {
		return "", err
	}
	if corrupted {
		return uploader.IntegrityCorrupted, nil
	}
	return uploader.IntegrityClean, nil
}
