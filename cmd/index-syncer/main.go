package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/withObsrvr/obsrvr-index-syncer/internal/checkpoint"
	"github.com/withObsrvr/obsrvr-index-syncer/internal/config"
	"github.com/withObsrvr/obsrvr-index-syncer/internal/document"
	"github.com/withObsrvr/obsrvr-index-syncer/internal/history"
	"github.com/withObsrvr/obsrvr-index-syncer/internal/index"
	"github.com/withObsrvr/obsrvr-index-syncer/internal/jobs"
	"github.com/withObsrvr/obsrvr-index-syncer/internal/logging"
	"github.com/withObsrvr/obsrvr-index-syncer/internal/metrics"
	"github.com/withObsrvr/obsrvr-index-syncer/internal/notify"
	"github.com/withObsrvr/obsrvr-index-syncer/internal/source"
	"github.com/withObsrvr/obsrvr-index-syncer/internal/syncer"
	"github.com/withObsrvr/obsrvr-index-syncer/internal/watcher"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	var (
		configPath = flag.String("config", "", "path to the YAML config file (or SYNCER_CONFIG)")
		mode       = flag.String("mode", "sync", "sync | watch | provision | drop")
		jobName    = flag.String("job", "", "restrict sync to one job by name")
		indexName  = flag.String("index", "", "target index for provision/drop")
		seedPath   = flag.String("seed", "", "NDJSON file of seed documents for provision")
	)
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	logging.Setup(logging.Config{Format: cfg.Logging.Format, Level: cfg.Logging.Level})
	log := logging.Component("main")
	log.Info("index syncer starting", "version", Version, "mode", *mode)

	if cfg.Metrics.Enabled {
		metrics.Init("")
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	store, err := index.NewStore(index.Config{
		Addresses:    cfg.Store.Addresses,
		Username:     cfg.Store.Username,
		Password:     cfg.Store.Password,
		ScanPageSize: cfg.Store.ScanPageSize,
		Compress:     cfg.Store.Compress,
	})
	if err != nil {
		log.Error("failed to create index store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	switch *mode {
	case "provision":
		err = provision(ctx, store, *indexName, *seedPath)
	case "drop":
		err = drop(ctx, store, *indexName)
	case "sync", "watch":
		err = runSync(ctx, cfg, store, *mode, *jobName)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}

	if err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown complete")
			return
		}
		log.Error("run failed", "error", err)
		os.Exit(1)
	}
	log.Info("index syncer stopped cleanly")
}

// runner holds the wired dependencies of the sync and watch modes.
type runner struct {
	cfg     config.Config
	store   index.Store
	reg     *jobs.Registry
	cpMgr   checkpoint.Manager
	hist    history.Recorder
	emitter notify.Emitter
	log     *slog.Logger
}

func runSync(ctx context.Context, cfg config.Config, store index.Store, mode, jobName string) error {
	reg, err := jobs.Load(cfg.Jobs.Registry)
	if err != nil {
		return fmt.Errorf("load job registry: %w", err)
	}

	cpMgr, err := checkpoint.NewManager(checkpoint.Config{
		Enabled: cfg.Checkpoint.Enabled,
		Dir:     cfg.Checkpoint.Dir,
	})
	if err != nil {
		return fmt.Errorf("create checkpoint manager: %w", err)
	}

	hist, err := history.NewRecorder(ctx, history.Config{PostgresDSN: cfg.History.PostgresDSN})
	if err != nil {
		return fmt.Errorf("create history recorder: %w", err)
	}
	defer hist.Close()

	emitter := notify.NewEmitter(notify.Config{
		Enabled:   cfg.Notify.Enabled,
		Endpoint:  cfg.Notify.Endpoint,
		BackupDir: cfg.Notify.BackupDir,
		Version:   Version,
	})
	defer emitter.Close()

	r := &runner{
		cfg:     cfg,
		store:   store,
		reg:     reg,
		cpMgr:   cpMgr,
		hist:    hist,
		emitter: emitter,
		log:     logging.Component("runner"),
	}

	if mode == "watch" {
		w := watcher.New(cfg.Watch.Interval.Std(), func(ctx context.Context) error {
			return r.runAll(ctx, jobName)
		})
		return w.Run(ctx)
	}
	return r.runAll(ctx, jobName)
}

// runAll syncs every enabled job, or just the named one. Job failures are
// collected so one broken source does not block the rest of the pass.
func (r *runner) runAll(ctx context.Context, jobName string) error {
	var list []jobs.Job
	if jobName != "" {
		job, err := r.reg.Get(jobName)
		if err != nil {
			return err
		}
		list = []jobs.Job{job}
	} else {
		list = r.reg.Enabled()
	}

	var failed []error
	for _, job := range list {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.runJob(ctx, job); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Error("job failed", "job", job.Name, "error", err)
			failed = append(failed, fmt.Errorf("job %s: %w", job.Name, err))
		}
	}
	return errors.Join(failed...)
}

func (r *runner) runJob(ctx context.Context, job jobs.Job) error {
	correlationID := logging.GenerateCorrelationID()
	log := logging.JobLogger(correlationID, job.Name, job.Index)
	start := time.Now()

	if prev, err := r.cpMgr.Load(ctx, job.Index); err == nil {
		log.Info("previous run",
			"run_id", prev.LastRunID,
			"updated", prev.DocsUpdated,
			"at", prev.UpdatedAt.Format(time.RFC3339),
		)
	} else if !errors.Is(err, checkpoint.ErrNoCheckpoint) {
		log.Warn("checkpoint load failed", "error", err)
	}

	src, err := source.New(job.Source)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	defer src.Close()

	s := syncer.New(r.store, syncer.Config{
		Index:         job.Index,
		ChunkSize:     r.cfg.Sync.ChunkSize,
		QueueSize:     r.cfg.Sync.QueueSize,
		RetryAttempts: r.cfg.Sync.RetryAttempts,
		RetryBackoff:  r.cfg.Sync.RetryBackoff.Std(),
	})

	res, err := s.Sync(ctx, src)
	if err != nil {
		return err
	}

	if err := r.cpMgr.Save(ctx, &checkpoint.Checkpoint{
		SyncerID:         correlationID,
		Index:            job.Index,
		LastRunID:        res.RunID,
		DocsUpdated:      res.DocsUpdated,
		DocsSkipped:      res.DocsSkipped,
		DocsDeleted:      res.DocsDeleted,
		Attachments:      res.Attachments,
		AttachmentErrors: res.AttachmentErrors,
		UpdatedAt:        time.Now().UTC(),
	}); err != nil {
		log.Warn("checkpoint save failed", "error", err)
	}

	if err := r.hist.RecordRun(ctx, history.RunRecord{
		RunID:            res.RunID,
		Job:              job.Name,
		Index:            job.Index,
		ExistingDocs:     res.ExistingDocs,
		DocsUpdated:      res.DocsUpdated,
		DocsSkipped:      res.DocsSkipped,
		DocsDeleted:      res.DocsDeleted,
		Attachments:      res.Attachments,
		AttachmentErrors: res.AttachmentErrors,
		BulkCalls:        res.BulkCalls,
		IndexedOps:       res.IndexedOps,
		ItemFailures:     res.ItemFailures,
		Duration:         res.Duration,
		StartedAt:        start.UTC(),
	}); err != nil {
		log.Warn("history record failed", "error", err)
	}

	if err := r.emitter.EmitRun(ctx, notify.RunInfo{
		RunID:            res.RunID,
		Job:              job.Name,
		Index:            job.Index,
		DocsUpdated:      res.DocsUpdated,
		DocsSkipped:      res.DocsSkipped,
		DocsDeleted:      res.DocsDeleted,
		Attachments:      res.Attachments,
		AttachmentErrors: res.AttachmentErrors,
		DurationMillis:   res.Duration.Milliseconds(),
	}); err != nil {
		log.Warn("run event emission failed", "error", err)
	}

	return nil
}

// provision creates the index if absent, optionally seeding it from an
// NDJSON file.
func provision(ctx context.Context, store index.Store, indexName, seedPath string) error {
	if indexName == "" {
		return errors.New("provision requires -index")
	}

	var seed []document.Fields
	if seedPath != "" {
		var err error
		seed, err = readSeedFile(seedPath)
		if err != nil {
			return err
		}
	}

	if err := store.EnsureIndex(ctx, indexName, seed); err != nil {
		return fmt.Errorf("provision %s: %w", indexName, err)
	}
	logging.Component("main").Info("index provisioned", "index", indexName, "seed_docs", len(seed))
	return nil
}

func drop(ctx context.Context, store index.Store, indexName string) error {
	if indexName == "" {
		return errors.New("drop requires -index")
	}
	if err := store.DeleteIndex(ctx, indexName); err != nil {
		return fmt.Errorf("drop %s: %w", indexName, err)
	}
	logging.Component("main").Info("index dropped", "index", indexName)
	return nil
}

func readSeedFile(path string) ([]document.Fields, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer file.Close()

	var seed []document.Fields
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var fields document.Fields
		if err := json.Unmarshal(line, &fields); err != nil {
			return nil, fmt.Errorf("parse seed line %d: %w", len(seed)+1, err)
		}
		seed = append(seed, fields)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return seed, nil
}
