// Package downloader runs download batches: one sequential pass over an
// owner's drained queue, with every item's progress broadcast as it goes.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vrsandeep/tunedl/internal/events"
	"github.com/vrsandeep/tunedl/internal/fetcher"
	"github.com/vrsandeep/tunedl/internal/models"
	"github.com/vrsandeep/tunedl/internal/progress"
)

// Drainer hands over an owner's queued items for processing.
type Drainer interface {
	DrainForProcessing(ownerID string) ([]models.WorkItem, error)
}

// RunLogger persists the outcome of finished batches.
type RunLogger interface {
	InsertBatchRun(run *models.BatchRunLog) (int64, error)
}

// BatchRun is the token for one owner's in-flight batch.
type BatchRun struct {
	OwnerID   string
	StartedAt time.Time
	Items     []models.WorkItem
}

// Options tune a Processor. The zero value means no cap on concurrent batches.
type Options struct {
	MaxConcurrent int
}

type Processor struct {
	queue   Drainer
	tracker *progress.Tracker
	fetch   fetcher.Fetcher
	pub     events.Publisher
	runLog  RunLogger
	log     *zap.Logger

	mu   sync.Mutex
	runs map[string]*BatchRun
	sem  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewProcessor(q Drainer, tr *progress.Tracker, f fetcher.Fetcher, pub events.Publisher, runLog RunLogger, log *zap.Logger, opts Options) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Processor{
		queue:   q,
		tracker: tr,
		fetch:   f,
		pub:     pub,
		runLog:  runLog,
		log:     log,
		runs:    make(map[string]*BatchRun),
		ctx:     ctx,
		cancel:  cancel,
	}
	if opts.MaxConcurrent > 0 {
		p.sem = make(chan struct{}, opts.MaxConcurrent)
	}
	return p
}

// Running reports whether owner has a batch in flight.
func (p *Processor) Running(ownerID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.runs[ownerID]
	return ok
}

// ActiveRuns returns the owners with a batch in flight.
func (p *Processor) ActiveRuns() []BatchRun {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]BatchRun, 0, len(p.runs))
	for _, r := range p.runs {
		out = append(out, *r)
	}
	return out
}

func (p *Processor) release(ownerID string) {
	p.mu.Lock()
	delete(p.runs, ownerID)
	p.mu.Unlock()
}

// StartBatch drains owner's queue and processes it in the background. It
// returns how many items were taken. An empty queue is not an error: nothing
// starts and queued is 0.
func (p *Processor) StartBatch(ctx context.Context, ownerID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	if _, ok := p.runs[ownerID]; ok {
		p.mu.Unlock()
		return 0, ErrAlreadyRunning
	}
	if p.ctx.Err() != nil {
		p.mu.Unlock()
		return 0, &BatchFatalError{OwnerID: ownerID, Err: errors.New("processor is stopped")}
	}
	// Reserve the slot before draining so a concurrent call sees it.
	run := &BatchRun{OwnerID: ownerID, StartedAt: time.Now()}
	p.runs[ownerID] = run
	p.wg.Add(1)
	p.mu.Unlock()

	items, err := p.queue.DrainForProcessing(ownerID)
	if err != nil {
		p.release(ownerID)
		p.wg.Done()
		fatal := &BatchFatalError{OwnerID: ownerID, Err: err}
		p.log.Error("could not start batch", zap.String("owner", ownerID), zap.Error(err))
		p.pub.Publish(events.OwnerTopic(ownerID), events.DownloadError{UserID: ownerID, Error: fatal.Error()})
		p.logRun(&models.BatchRunLog{OwnerID: ownerID, StartedAt: run.StartedAt, FinishedAt: time.Now(), Error: fatal.Error()})
		return 0, fatal
	}
	if len(items) == 0 {
		p.release(ownerID)
		p.wg.Done()
		return 0, nil
	}

	for _, it := range items {
		if _, err := p.tracker.Begin(ownerID, it.URL); err != nil {
			p.log.Warn("could not begin tracking", zap.String("owner", ownerID), zap.String("url", it.URL), zap.Error(err))
		}
	}

	p.mu.Lock()
	run.Items = items
	p.mu.Unlock()

	go p.run(run)

	p.log.Info("batch started", zap.String("owner", ownerID), zap.Int("items", len(items)))
	return len(items), nil
}

func (p *Processor) run(run *BatchRun) {
	ownerID := run.OwnerID
	result := models.BatchResult{Total: len(run.Items), Items: make([]models.ItemResult, 0, len(run.Items))}

	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			fatal := &BatchFatalError{OwnerID: ownerID, Err: fmt.Errorf("panic: %v", r)}
			p.log.Error("batch panicked", zap.String("owner", ownerID), zap.Any("panic", r))
			// Items the panic left behind must not stay live forever.
			for _, it := range run.Items {
				p.tracker.Fail(ownerID, it.URL, "batch aborted")
			}
			p.release(ownerID)
			p.pub.Publish(events.OwnerTopic(ownerID), events.DownloadError{UserID: ownerID, Error: fatal.Error()})
			p.logRun(&models.BatchRunLog{
				OwnerID: ownerID, StartedAt: run.StartedAt, FinishedAt: time.Now(),
				Total: result.Total, Success: result.Success, Failed: result.Failed,
				Error: fatal.Error(),
			})
		}
	}()

	if p.sem != nil {
		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
		case <-p.ctx.Done():
		}
	}

	for _, item := range run.Items {
		ir := p.processItem(item)
		result.Items = append(result.Items, ir)
		if ir.Status == models.StatusCompleted {
			result.Success++
		} else {
			result.Failed++
		}
	}

	p.release(ownerID)
	p.pub.Publish(events.OwnerTopic(ownerID), events.DownloadComplete{UserID: ownerID, Result: result})
	if result.Success > 0 {
		p.pub.Publish(events.OwnerTopic(ownerID), events.SongsUpdated{UserID: ownerID})
		p.pub.Publish(events.TopicDashboard, events.DashboardUpdated{})
	}
	p.logRun(&models.BatchRunLog{
		OwnerID: ownerID, StartedAt: run.StartedAt, FinishedAt: time.Now(),
		Total: result.Total, Success: result.Success, Failed: result.Failed,
	})

	p.log.Info("batch finished",
		zap.String("owner", ownerID),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed))
}

// processItem drives one item through the tracker. Failures are recorded on
// the item and reported in the returned result.
func (p *Processor) processItem(item models.WorkItem) models.ItemResult {
	ownerID, url := item.OwnerID, item.URL
	fail := func(err error) models.ItemResult {
		ferr := &ItemFetchError{URL: url, Err: err}
		p.log.Warn("item failed", zap.String("owner", ownerID), zap.Error(ferr))
		if _, terr := p.tracker.Fail(ownerID, url, err.Error()); terr != nil {
			p.log.Warn("could not record failure", zap.String("url", url), zap.Error(terr))
		}
		return models.ItemResult{URL: url, Status: models.StatusError, Error: err.Error()}
	}

	if err := p.ctx.Err(); err != nil {
		return fail(err)
	}
	if _, err := p.tracker.StartDownload(ownerID, url); err != nil {
		return fail(err)
	}

	onProgress := func(downloaded, total int64) {
		pct := 0.0
		if total > 0 {
			pct = float64(downloaded) / float64(total) * 100
		}
		// Callbacks racing a terminal transition are dropped by the tracker.
		p.tracker.UpdateProgress(ownerID, url, pct, downloaded, total)
	}

	res, err := p.fetch.Fetch(p.ctx, item, onProgress)
	if err != nil {
		return fail(err)
	}
	if res == nil {
		res = &fetcher.Result{}
	}

	meta := progress.Metadata{Title: res.Title, Artist: res.Artist, ExternalID: res.ExternalID}
	if _, err := p.tracker.StartProcessing(ownerID, url, meta); err != nil {
		return fail(err)
	}

	if fin, ok := p.fetch.(fetcher.Finalizer); ok {
		if err := fin.Finalize(p.ctx, item, res); err != nil {
			return fail(fmt.Errorf("finalize: %w", err))
		}
	}

	if _, err := p.tracker.Complete(ownerID, url); err != nil {
		return fail(err)
	}
	return models.ItemResult{URL: url, Status: models.StatusCompleted, Title: res.Title}
}

func (p *Processor) logRun(run *models.BatchRunLog) {
	if p.runLog == nil {
		return
	}
	if _, err := p.runLog.InsertBatchRun(run); err != nil {
		p.log.Warn("could not record batch run", zap.String("owner", run.OwnerID), zap.Error(err))
		return
	}
	p.pub.Publish(events.TopicLogs, events.LogsUpdated{})
}

// Stop cancels in-flight fetches and waits for running batches to wind down.
// Items interrupted this way end in the error state.
func (p *Processor) Stop() {
	p.mu.Lock()
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
}
