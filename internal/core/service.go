package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"

	"github.com/JonMunkholm/sheetimport/internal/logging"
	"github.com/JonMunkholm/sheetimport/internal/source"
)

// ExtraSkipDuplicates is the extras key that turns duplicate-value
// rejections into skipped rows. It defaults to Importer.SkipDuplicates.
const ExtraSkipDuplicates = "skip_duplicates"

const (
	// DefaultRunTimeout bounds a single import run.
	DefaultRunTimeout = 10 * time.Minute

	// DefaultResultCacheSize is how many finished runs are kept in memory.
	DefaultResultCacheSize = 256

	// DefaultCancelGrace is how long Shutdown waits for cancelled runs to
	// write their partial summary.
	DefaultCancelGrace = 5 * time.Second

	historyTimeout = 10 * time.Second
)

// Sink persists the accepted rows of one run. The driver brackets rows with
// batch calls; Insert errors wrapped with Reject fail only that row.
type Sink interface {
	Batcher
	Insert(ctx context.Context, values map[string]string) error
	Close(ctx context.Context) error
}

// SinkFactory opens a sink for each run.
type SinkFactory interface {
	NewSink(ctx context.Context, imp Importer, runID string) (Sink, error)
}

// HistoryStore persists finished runs.
type HistoryStore interface {
	SaveRun(ctx context.Context, rec *RunRecord) error
	LoadRun(ctx context.Context, id string) (*RunRecord, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunRecord describes a run and, once finished, its summary.
type RunRecord struct {
	ID         string         `json:"id"`
	Importer   string         `json:"importer"`
	FileName   string         `json:"file_name"`
	Format     source.Format  `json:"format"`
	Size       int64          `json:"size"`
	ClientIP   string         `json:"client_ip,omitempty"`
	Status     Status         `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Summary    *ImportSummary `json:"summary,omitempty"`
}

// ReportFormat is the failed-rows format matching the run's input.
func (r *RunRecord) ReportFormat() ReportFormat {
	return ReportFormatFor(r.Format)
}

func (r *RunRecord) progress() RunProgress {
	p := RunProgress{
		RunID:      r.ID,
		Importer:   r.Importer,
		FileName:   r.FileName,
		Status:     r.Status,
		BytesRead:  r.Size,
		BytesTotal: r.Size,
	}
	switch r.Status {
	case StatusFailed, StatusAborted:
		p.Phase = PhaseFailed
	case StatusCancelled:
		p.Phase = PhaseCancelled
	default:
		p.Phase = PhaseComplete
	}
	if s := r.Summary; s != nil {
		p.Processed, p.Succeeded, p.Failed, p.Skipped = s.Processed, s.Succeeded, s.Failed, s.Skipped
		p.Error = s.Fatal
	}
	return p
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	SpoolDir      string        // Where uploads are spooled; os.TempDir() if empty
	RunTimeout    time.Duration // Upper bound for one run
	MaxConcurrent int           // Parallel runs
	MaxWait       time.Duration // How long a new run waits for a slot
	CacheSize     int           // Finished runs kept in memory
	CancelGrace   time.Duration // Shutdown wait for runs it had to cancel

	// Defaults fills zero-valued options of every run.
	Defaults ImportOptions

	// Signatures translates persistence errors; nil uses DefaultSignatures.
	Signatures *SignatureTable
}

// Service hosts import runs in the background.
type Service struct {
	cfg      ServiceConfig
	sinks    SinkFactory
	history  HistoryStore
	limiter  *Limiter
	finished *lru.Cache

	mu   sync.RWMutex
	runs map[string]*activeRun
	wg   sync.WaitGroup
}

type activeRun struct {
	record RunRecord
	cancel context.CancelFunc
	hub    *progressHub
	done   chan struct{}
	result *RunRecord
}

// NewService creates a Service. history may be nil, in which case finished
// runs are only kept in memory.
func NewService(cfg ServiceConfig, sinks SinkFactory, history HistoryStore) (*Service, error) {
	if sinks == nil {
		return nil, errors.New("sink factory is required")
	}
	if cfg.SpoolDir == "" {
		cfg.SpoolDir = os.TempDir()
	}
	if err := os.MkdirAll(cfg.SpoolDir, 0o750); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultResultCacheSize
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = DefaultCancelGrace
	}
	if cfg.Signatures == nil {
		cfg.Signatures = DefaultSignatures()
	}

	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}

	return &Service{
		cfg:      cfg,
		sinks:    sinks,
		history:  history,
		limiter:  NewLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		finished: cache,
		runs:     make(map[string]*activeRun),
	}, nil
}

// Importers lists the registered importers.
func (s *Service) Importers() []Importer {
	return All()
}

// LimiterStatus reports run slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// runOptions fills zero-valued options from the service defaults.
func (s *Service) runOptions(opts ImportOptions) ImportOptions {
	d := s.cfg.Defaults
	if opts.ChunkSize == 0 {
		opts.ChunkSize = d.ChunkSize
	}
	if opts.Streaming == StreamingUnset {
		opts.Streaming = d.Streaming
	}
	if opts.StreamingThreshold == 0 {
		opts.StreamingThreshold = d.StreamingThreshold
	}
	if opts.IOTimeout == 0 {
		opts.IOTimeout = d.IOTimeout
	}
	if opts.MaxRows == 0 {
		opts.MaxRows = d.MaxRows
	}
	return opts.WithDefaults()
}

// StartImport spools r under name and imports it in the background.
// It returns the run ID once the run holds a slot.
//
// Returns ErrTooManyImports if no slot frees up within the wait timeout.
func (s *Service) StartImport(ctx context.Context, importerKey, name string, r io.Reader, opts ImportOptions) (string, error) {
	imp, ok := Get(importerKey)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownImporter, importerKey)
	}
	opts = s.runOptions(opts)
	if err := opts.Validate(); err != nil {
		return "", err
	}

	fh, err := source.Spool(name, r, s.cfg.SpoolDir)
	if err != nil {
		return "", err
	}
	id, err := s.start(ctx, imp, fh, opts)
	if err != nil {
		fh.Remove()
		return "", err
	}
	return id, nil
}

// StartImportFile imports the file at path in the background. The file is
// left in place.
func (s *Service) StartImportFile(ctx context.Context, importerKey, path string, opts ImportOptions) (string, error) {
	imp, ok := Get(importerKey)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownImporter, importerKey)
	}
	opts = s.runOptions(opts)
	if err := opts.Validate(); err != nil {
		return "", err
	}

	fh, err := source.Open(path)
	if err != nil {
		return "", err
	}
	return s.start(ctx, imp, fh, opts)
}

func (s *Service) start(ctx context.Context, imp Importer, fh *source.FileHandle, opts ImportOptions) (string, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithTimeout(logging.WithRunID(context.Background(), id), s.cfg.RunTimeout)

	run := &activeRun{
		record: RunRecord{
			ID:        id,
			Importer:  imp.Key,
			FileName:  fh.Name,
			Format:    fh.Format,
			Size:      fh.Size,
			ClientIP:  ClientIPFromContext(ctx),
			Status:    StatusRunning,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	run.hub = newProgressHub(RunProgress{
		RunID:      id,
		Importer:   imp.Key,
		FileName:   fh.Name,
		Phase:      PhaseQueued,
		Status:     StatusRunning,
		BytesTotal: fh.Size,
	})

	s.mu.Lock()
	s.runs[id] = run
	s.mu.Unlock()

	log := logging.WithFields(logging.WithRunID(ctx, id), "importer", imp.Key, "file", fh.Name)
	log.Info("import started", "format", fh.Format, "size", fh.Size)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.limiter.Release()
		defer cancel()
		defer fh.Remove()
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in import", "panic", r)
				summary, _ := failedSummary(fmt.Errorf("internal error: %v", r))
				s.finish(run, summary, log)
			}
		}()
		summary := s.execute(runCtx, run, imp, fh, opts, log)
		s.finish(run, summary, log)
	}()

	return id, nil
}

func (s *Service) execute(ctx context.Context, run *activeRun, imp Importer, fh *source.FileHandle, opts ImportOptions, log *slog.Logger) *ImportSummary {
	run.hub.update(true, func(p *RunProgress) { p.Phase = PhaseReading })

	sink, err := s.sinks.NewSink(ctx, imp, run.record.ID)
	if err != nil {
		summary, _ := failedSummary(fmt.Errorf("open sink: %w", err))
		return summary
	}
	defer func() {
		if err := sink.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("close sink", "error", err)
		}
	}()

	skip := opts.Extras.Bool(ExtraSkipDuplicates, imp.SkipDuplicates)
	summary, err := Import(ctx, fh, imp.Schema, opts, recordFunc(imp, sink),
		WithBatcher(sink),
		WithSignatures(s.cfg.Signatures),
		WithSkipDuplicates(skip),
		WithLogger(log),
		WithProgress(func(rp RowProgress) {
			run.hub.update(false, func(p *RunProgress) {
				p.Phase = PhaseImporting
				p.Processed, p.Succeeded, p.Failed, p.Skipped = rp.Processed, rp.Succeeded, rp.Failed, rp.Skipped
				if rp.BytesRead >= 0 {
					p.BytesRead = rp.BytesRead
				}
			})
		}),
	)
	if err != nil && summary.Status() == StatusFailed {
		log.Warn("import failed before processing", "error", err)
	}
	return summary
}

// recordFunc validates each record against the importer schema and hands
// accepted values to the sink.
func recordFunc(imp Importer, sink Sink) RecordFunc {
	return func(ctx context.Context, rec Record) (RowOutcome, error) {
		values, err := PrepareRecord(imp.Schema, rec.Fields)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return Failed(verr.Field, KindValidationFailed, verr.Message), nil
			}
			return RowOutcome{}, err
		}

		if err := sink.Insert(ctx, values); err != nil {
			var rejected *RejectedError
			if errors.As(err, &rejected) {
				return PersistenceFailed(rejected.Err), nil
			}
			return RowOutcome{}, err
		}
		return Success(), nil
	}
}

// finish publishes the result, moves the run to the finished cache and
// saves it to history.
func (s *Service) finish(run *activeRun, summary *ImportSummary, log *slog.Logger) {
	if run.result != nil {
		return
	}

	rec := run.record
	rec.Summary = summary
	rec.Status = summary.Status()
	rec.FinishedAt = time.Now().UTC()
	run.result = &rec

	log.Info("import finished",
		"status", rec.Status,
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"duration_ms", rec.FinishedAt.Sub(rec.StartedAt).Milliseconds(),
	)

	if s.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		if err := s.history.SaveRun(ctx, &rec); err != nil {
			log.Error("save run history", "error", err)
		}
		cancel()
	}

	s.mu.Lock()
	s.finished.Add(rec.ID, &rec)
	delete(s.runs, rec.ID)
	s.mu.Unlock()

	run.hub.close(rec.progress())
	close(run.done)
}

func (s *Service) active(id string) (*activeRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok
}

// lookupFinished checks the cache, then history.
func (s *Service) lookupFinished(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	v, ok := s.finished.Get(id)
	s.mu.RUnlock()
	if ok {
		return v.(*RunRecord), nil
	}

	if s.history != nil {
		rec, err := s.history.LoadRun(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			s.finished.Add(id, rec)
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
}

// Progress returns the current progress of a run without blocking.
func (s *Service) Progress(ctx context.Context, id string) (RunProgress, error) {
	if run, ok := s.active(id); ok {
		return run.hub.snapshot(), nil
	}
	rec, err := s.lookupFinished(ctx, id)
	if err != nil {
		return RunProgress{}, err
	}
	return rec.progress(), nil
}

// Subscribe returns a channel of progress updates. The first value is the
// current progress; the channel is closed after the final update. Call the
// returned function to stop listening early.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan RunProgress, func(), error) {
	if run, ok := s.active(id); ok {
		ch, unsubscribe := run.hub.subscribe()
		return ch, unsubscribe, nil
	}

	rec, err := s.lookupFinished(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan RunProgress, 1)
	ch <- rec.progress()
	close(ch)
	return ch, func() {}, nil
}

// Cancel stops a running import. Cancelling a finished run is a no-op.
func (s *Service) Cancel(ctx context.Context, id string) error {
	if run, ok := s.active(id); ok {
		run.cancel()
		return nil
	}
	_, err := s.lookupFinished(ctx, id)
	return err
}

// Result blocks until the run finishes or ctx is done.
func (s *Service) Result(ctx context.Context, id string) (*RunRecord, error) {
	if run, ok := s.active(id); ok {
		select {
		case <-run.done:
			return run.result, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.lookupFinished(ctx, id)
}

// Lookup returns a finished run, or ErrRunInProgress while it is running.
func (s *Service) Lookup(ctx context.Context, id string) (*RunRecord, error) {
	if _, ok := s.active(id); ok {
		return nil, ErrRunInProgress
	}
	return s.lookupFinished(ctx, id)
}

// FailedRowsReport is a downloadable file of the rows a run rejected.
type FailedRowsReport struct {
	FileName string
	Format   ReportFormat
	summary  *ImportSummary
}

// WriteTo writes the report to w.
func (r *FailedRowsReport) WriteTo(w io.Writer) error {
	return WriteFailedRows(w, r.summary, r.Format)
}

// FailedRows returns the failed-rows report of a finished run.
func (s *Service) FailedRows(ctx context.Context, id string) (*FailedRowsReport, error) {
	rec, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Summary == nil {
		return nil, fmt.Errorf("%w: %s has no summary", ErrRunNotFound, id)
	}
	format := rec.ReportFormat()
	return &FailedRowsReport{
		FileName: ReportFileName(rec.FileName, format),
		Format:   format,
		summary:  rec.Summary,
	}, nil
}

// ListSheets spools r and lists its sheets. Flat files return no sheets.
func (s *Service) ListSheets(ctx context.Context, name string, r io.Reader, timeout time.Duration) (source.Format, []source.SheetDescriptor, error) {
	fh, err := source.Spool(name, r, s.cfg.SpoolDir)
	if err != nil {
		return "", nil, err
	}
	defer fh.Remove()

	if timeout == 0 {
		timeout = s.cfg.Defaults.IOTimeout
	}
	sheets, err := source.ListSheets(ctx, fh, timeout)
	if err != nil {
		return fh.Format, nil, err
	}
	return fh.Format, sheets, nil
}

// PurgeHistory deletes history older than cutoff.
func (s *Service) PurgeHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.history == nil {
		return 0, nil
	}
	return s.history.PurgeBefore(ctx, cutoff)
}

// Shutdown waits for running imports to release their slots. When ctx
// expires first, the remaining runs are cancelled and given CancelGrace to
// finish with a partial summary; ctx's error is returned in that case.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.limiter.WaitForDrain(ctx)
	if err == nil {
		s.wg.Wait()
		return nil
	}

	s.mu.RLock()
	for _, run := range s.runs {
		run.cancel()
	}
	s.mu.RUnlock()

	grace, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CancelGrace)
	defer cancel()
	if s.limiter.WaitForDrain(grace) == nil {
		s.wg.Wait()
	} else {
		slog.Warn("imports still running after shutdown", "active", s.limiter.ActiveCount())
	}
	return err
}
