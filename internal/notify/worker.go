package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/dealership-platform/pkg/logging"
)

const (
	defaultWorkerCount   = 1
	defaultWaitSeconds   = 10
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

type jobSender interface {
	Send(ctx context.Context, kind TemplateKind, data AppointmentEmailData) error
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many jobs to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// Worker drains notification jobs and sends each one once. Failed jobs are
// logged and deleted.
type Worker struct {
	queue  Queue
	sender jobSender
	logger *logging.Logger
	cfg    workerConfig
	wg     sync.WaitGroup
}

// NewWorker creates a worker delivering jobs from queue through dispatcher.
func NewWorker(queue Queue, dispatcher *Dispatcher, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if dispatcher == nil {
		panic("notify: dispatcher cannot be nil")
	}
	return newWorker(queue, dispatcher, logger, opts...)
}

func newWorker(queue Queue, sender jobSender, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("notify: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{queue: queue, sender: sender, logger: logger, cfg: cfg}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("notification worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("notification worker stopping", "worker_id", workerID)
			return
		default:
		}

		processed, err := w.ProcessOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive notification jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		if processed > 0 {
			w.logger.Debug("notification jobs processed", "count", processed, "worker_id", workerID)
		}
	}
}

// ProcessOnce receives one batch and handles every job in it.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
	if err != nil {
		return 0, err
	}
	for _, msg := range messages {
		w.handleMessage(ctx, msg)
	}
	return len(messages), nil
}

func (w *Worker) handleMessage(ctx context.Context, msg QueueMessage) {
	defer w.deleteMessage(context.Background(), msg.ReceiptHandle)

	var job Job
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		w.logger.Error("failed to decode notification job", "error", err, "msg_id", msg.ID)
		return
	}
	if !job.Template.Valid() {
		w.logger.Error("dropping notification job with unknown template", "job_id", job.ID, "template", string(job.Template))
		return
	}
	if err := w.sender.Send(ctx, job.Template, job.Data); err != nil {
		w.logger.Error("notification job failed",
			"error", err,
			"job_id", job.ID,
			"template", string(job.Template),
			"appointment_id", job.Data.AppointmentID,
			"queued_for", time.Since(job.EnqueuedAt).String(),
		)
		return
	}
	w.logger.Info("notification job delivered", "job_id", job.ID, "template", string(job.Template))
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete notification job", "error", err)
	}
}
