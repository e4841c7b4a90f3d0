package jobs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vrsandeep/tunedl/internal/config"
	"github.com/vrsandeep/tunedl/internal/progress"
	"github.com/vrsandeep/tunedl/internal/store"
)

// JobContext is an interface that provides the necessary dependencies for a job to run.
// The core.App struct implements this interface.
type JobContext interface {
	Config() *config.Config
	Logger() *zap.Logger
	Store() *store.Store
	Tracker() *progress.Tracker
	JobManager() *JobManager
}

// ErrShutdown is returned by RunJob once Shutdown has been called.
var ErrShutdown = errors.New("job manager is shut down")

// jobTask returns a short summary for the job's status message.
type jobTask func(ctx JobContext) (string, error)

type JobStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"` // "idle", "running", "completed", "failed"
	Message   string    `json:"message"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

type JobManager struct {
	mu      sync.Mutex
	jobs    map[string]jobTask
	status  map[string]*JobStatus
	running map[string]bool
	active  int
	idle    *sync.Cond // signalled on jm.mu when active drops to 0
	closed  bool
	log     *zap.Logger
}

func NewManager(log *zap.Logger) *JobManager {
	jm := &JobManager{
		jobs:    make(map[string]jobTask),
		status:  make(map[string]*JobStatus),
		running: make(map[string]bool),
		log:     log,
	}
	jm.idle = sync.NewCond(&jm.mu)
	return jm
}

func (jm *JobManager) Register(id, name string, task jobTask) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.jobs[id] = task
	jm.status[id] = &JobStatus{ID: id, Name: name, Status: "idle"}
}

// RunJob starts the job in the background. A job that is still running
// cannot be started again; different jobs may overlap.
func (jm *JobManager) RunJob(id string, ctx JobContext) error {
	jm.mu.Lock()
	if jm.closed {
		jm.mu.Unlock()
		return ErrShutdown
	}
	task, ok := jm.jobs[id]
	if !ok {
		jm.mu.Unlock()
		return fmt.Errorf("job '%s' not found", id)
	}
	if jm.running[id] {
		jm.mu.Unlock()
		return fmt.Errorf("job '%s' is already running", id)
	}

	jm.running[id] = true
	status := jm.status[id]
	status.Status = "running"
	status.StartTime = time.Now()
	status.EndTime = time.Time{}
	status.Message = "Job started..."
	jm.active++
	jm.mu.Unlock()

	jm.log.Debug("starting job", zap.String("job", id))
	go func() {
		var (
			msg string
			err error
		)
		defer func() {
			r := recover()

			jm.mu.Lock()
			status.EndTime = time.Now()
			switch {
			case r != nil:
				jm.log.Error("job panicked", zap.String("job", id), zap.Any("panic", r))
				status.Status = "failed"
				status.Message = fmt.Sprintf("Job panicked: %v", r)
			case err != nil:
				jm.log.Warn("job failed", zap.String("job", id), zap.Error(err))
				status.Status = "failed"
				status.Message = err.Error()
			default:
				status.Status = "completed"
				status.Message = msg
			}
			jm.running[id] = false
			jm.active--
			if jm.active == 0 {
				jm.idle.Broadcast()
			}
			jm.mu.Unlock()
		}()

		msg, err = task(ctx)
	}()
	return nil
}

// GetStatus returns a copy of every job's status ordered by id.
func (jm *JobManager) GetStatus() []JobStatus {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	statuses := make([]JobStatus, 0, len(jm.status))
	for _, s := range jm.status {
		statuses = append(statuses, *s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

// Wait blocks until no job is running. Jobs may start again afterwards.
func (jm *JobManager) Wait() {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	for jm.active > 0 {
		jm.idle.Wait()
	}
}

// Shutdown stops new runs and waits for running jobs to finish.
func (jm *JobManager) Shutdown() {
	jm.mu.Lock()
	jm.closed = true
	jm.mu.Unlock()
	jm.Wait()
}
