package printer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/thereceipt/receipt-interpreter/pkg/printcmd"
)

// JobStatus is the lifecycle state of a print job
type JobStatus string

// Job statuses
const (
	StatusQueued    JobStatus = "queued"
	StatusPrinting  JobStatus = "printing"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// PrintJob is one receipt addressed to one printer
type PrintJob struct {
	ID        string             `json:"id"`
	PrinterID string             `json:"printer_id"`
	Commands  []printcmd.Command `json:"-"`
	Retries   int                `json:"retries"`
	Status    JobStatus          `json:"status"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Encoder turns a command sequence into bytes for one printer
type Encoder func(p *Printer, cmds []printcmd.Command) ([]byte, error)

// QueueOption configures a PrintQueue
type QueueOption func(*PrintQueue)

// WithMaxRetries sets how many attempts a job gets before it fails
func WithMaxRetries(n int) QueueOption {
	return func(q *PrintQueue) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

// WithRetryDelay sets the pause between attempts
func WithRetryDelay(d time.Duration) QueueOption {
	return func(q *PrintQueue) { q.retryDelay = d }
}

// WithEncoder replaces the native ESC/POS encoder
func WithEncoder(enc Encoder) QueueOption {
	return func(q *PrintQueue) { q.encode = enc }
}

// WithQueueLogger sets the queue logger
func WithQueueLogger(l zerolog.Logger) QueueOption {
	return func(q *PrintQueue) { q.logger = l }
}

// PrintQueue manages print jobs with retry logic. Each printer gets its own
// worker, so jobs for one device run strictly one after another while
// different devices print in parallel.
type PrintQueue struct {
	jobs    []*PrintJob
	workers map[string]chan struct{}
	mu      sync.Mutex

	pool       *ConnectionPool
	manager    *Manager
	encode     Encoder
	maxRetries int
	retryDelay time.Duration
	logger     zerolog.Logger
	onUpdate   func(PrintJob)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPrintQueue creates a new print queue
func NewPrintQueue(pool *ConnectionPool, manager *Manager, opts ...QueueOption) *PrintQueue {
	ctx, cancel := context.WithCancel(context.Background())

	q := &PrintQueue{
		workers:    make(map[string]chan struct{}),
		pool:       pool,
		manager:    manager,
		encode:     NativeEncoder,
		maxRetries: 3,
		retryDelay: time.Second,
		logger:     zerolog.Nop(),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// OnJobUpdate registers a callback receiving a copy of a job after every
// status change
func (q *PrintQueue) OnJobUpdate(fn func(PrintJob)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onUpdate = fn
}

// Enqueue validates cmds and adds a job for printerID
func (q *PrintQueue) Enqueue(printerID string, cmds []printcmd.Command) (string, error) {
	if len(cmds) == 0 {
		return "", errors.New("no commands to print")
	}
	for i, c := range cmds {
		if err := printcmd.Check(c); err != nil {
			return "", errors.Wrapf(err, "command[%d]", i)
		}
	}

	now := time.Now()
	job := &PrintJob{
		ID:        uuid.New().String(),
		PrinterID: printerID,
		Commands:  cmds,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	q.mu.Lock()
	if q.ctx.Err() != nil {
		q.mu.Unlock()
		return "", errors.New("print queue stopped")
	}
	q.jobs = append(q.jobs, job)
	wake := q.workerLocked(printerID)
	snapshot := *job
	listener := q.onUpdate
	q.mu.Unlock()

	if listener != nil {
		listener(snapshot)
	}

	select {
	case wake <- struct{}{}:
	default:
	}

	q.logger.Debug().Str("job", job.ID).Str("printer", printerID).Int("commands", len(cmds)).Msg("job queued")
	return job.ID, nil
}

// workerLocked returns the wake channel of the printer's worker, starting
// the worker on first use
func (q *PrintQueue) workerLocked(printerID string) chan struct{} {
	wake, ok := q.workers[printerID]
	if ok {
		return wake
	}

	wake = make(chan struct{}, 1)
	q.workers[printerID] = wake
	q.wg.Add(1)
	go q.worker(printerID, wake)
	return wake
}

func (q *PrintQueue) worker(printerID string, wake chan struct{}) {
	defer q.wg.Done()

	for {
		job := q.next(printerID)
		if job == nil {
			select {
			case <-q.ctx.Done():
				return
			case <-wake:
				continue
			}
		}
		q.run(job)
	}
}

// next claims the oldest queued job for printerID
func (q *PrintQueue) next(printerID string) *PrintJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx.Err() != nil {
		return nil
	}
	for _, j := range q.jobs {
		if j.PrinterID == printerID && j.Status == StatusQueued {
			j.Status = StatusPrinting
			j.UpdatedAt = time.Now()
			return j
		}
	}
	return nil
}

func (q *PrintQueue) run(job *PrintJob) {
	q.notify(job)

	for {
		err := q.printJob(job)
		if err == nil {
			q.update(job, StatusCompleted, nil)
			q.logger.Info().Str("job", job.ID).Str("printer", job.PrinterID).Msg("print job completed")
			return
		}

		// a failed write may leave the device mid-receipt, reconnect next time
		_ = q.pool.Disconnect(job.PrinterID)

		q.mu.Lock()
		job.Retries++
		retries := job.Retries
		q.mu.Unlock()

		if retries >= q.maxRetries {
			q.update(job, StatusFailed, err)
			q.logger.Error().Err(err).Str("job", job.ID).Int("retries", retries).Msg("print job failed")
			return
		}

		q.logger.Warn().Err(err).Str("job", job.ID).Int("retry", retries).Int("max", q.maxRetries).Msg("print job failed, retrying")
		select {
		case <-q.ctx.Done():
			q.update(job, StatusFailed, errors.Wrap(q.ctx.Err(), "queue stopped"))
			return
		case <-time.After(q.retryDelay):
		}
	}
}

func (q *PrintQueue) printJob(job *PrintJob) error {
	printer := q.manager.GetPrinter(job.PrinterID)
	if printer == nil {
		return errors.Errorf("printer not found: %s", job.PrinterID)
	}
	if !q.pool.IsConnected(job.PrinterID) {
		if err := q.pool.Connect(q.ctx, printer); err != nil {
			return errors.Wrap(err, "failed to connect to printer")
		}
	}

	data, err := q.encode(printer, job.Commands)
	if err != nil {
		return errors.Wrap(err, "failed to encode receipt")
	}
	return q.pool.Send(job.PrinterID, data)
}

func (q *PrintQueue) update(job *PrintJob, status JobStatus, err error) {
	q.mu.Lock()
	job.Status = status
	job.UpdatedAt = time.Now()
	if err != nil {
		job.Error = err.Error()
	}
	q.mu.Unlock()
	q.notify(job)
}

func (q *PrintQueue) notify(job *PrintJob) {
	q.mu.Lock()
	snapshot := *job
	listener := q.onUpdate
	q.mu.Unlock()

	if listener != nil {
		listener(snapshot)
	}
}

// GetJob returns a copy of a job by ID
func (q *PrintQueue) GetJob(jobID string) *PrintJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.jobs {
		if job.ID == jobID {
			jobCopy := *job
			return &jobCopy
		}
	}
	return nil
}

// GetAllJobs returns copies of all jobs in submission order
func (q *PrintQueue) GetAllJobs() []*PrintJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := make([]*PrintJob, len(q.jobs))
	for i, job := range q.jobs {
		jobCopy := *job
		jobs[i] = &jobCopy
	}
	return jobs
}

// ClearCompleted removes completed jobs from the queue
func (q *PrintQueue) ClearCompleted() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	filtered := q.jobs[:0]
	removed := 0
	for _, job := range q.jobs {
		if job.Status == StatusCompleted {
			removed++
			continue
		}
		filtered = append(filtered, job)
	}
	for i := len(filtered); i < len(q.jobs); i++ {
		q.jobs[i] = nil
	}
	q.jobs = filtered
	return removed
}

// Stop stops every worker and waits for them to exit. A job being printed
// finishes its current attempt first.
func (q *PrintQueue) Stop() {
	// no worker may start once Wait begins
	q.mu.Lock()
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
}
