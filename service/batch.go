package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yaoapp/kun/log"

	"github.com/yaoapp/duan/errs"
)

// Batch event statuses. Every document moves queued -> processing ->
// done or failed; one finished event closes the job.
const (
	BatchQueued     = "queued"
	BatchProcessing = "processing"
	BatchDone       = "done"
	BatchFailed     = "failed"
	BatchFinished   = "finished"
)

// BatchEvent reports the state of one document inside a batch job. The
// terminal event carries the finished status and the zero document id.
type BatchEvent struct {
	DocumentID uuid.UUID `json:"document_id"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}

// BatchJob embeds documents into a collection and removes others from
// it. Progress is optional; events are dropped rather than block, so
// listeners should buffer three events per document plus the terminal
// one.
type BatchJob struct {
	CollectionID uuid.UUID         `json:"collection_id"`
	Add          []uuid.UUID       `json:"add"`
	Remove       []uuid.UUID       `json:"remove"`
	Progress     chan<- BatchEvent `json:"-"`
}

// Executor runs batch jobs in the background. Jobs against the same
// collection run in submission order; distinct collections run
// concurrently up to the worker limit.
type Executor struct {
	vectors *VectorService
	timeout time.Duration
	jobque  chan *BatchJob
	workers chan struct{}
	queues  map[uuid.UUID][]*BatchJob
	running map[uuid.UUID]bool
	done    chan uuid.UUID
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewExecutor sizes the job queue and the worker pool. Each job gets
// timeout to complete before its context expires.
func NewExecutor(vectors *VectorService, queue, workers int, timeout time.Duration) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		vectors: vectors,
		timeout: timeout,
		jobque:  make(chan *BatchJob, queue),
		workers: make(chan struct{}, workers),
		queues:  map[uuid.UUID][]*BatchJob{},
		running: map[uuid.UUID]bool{},
		done:    make(chan uuid.UUID, workers),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the dispatcher.
func (e *Executor) Start() {
	go e.dispatch()
}

// Stop cancels running jobs and stops the dispatcher.
func (e *Executor) Stop() {
	e.cancel()
}

// Submit queues a job without blocking. A saturated queue rejects the
// job so callers can retry later.
func (e *Executor) Submit(job *BatchJob) error {
	if len(job.Add) == 0 && len(job.Remove) == 0 {
		return errs.New(errs.Validation, "batch job carries no documents")
	}
	select {
	case e.jobque <- job:
	default:
		return errs.New(errs.Batch, "batch queue is full")
	}
	for _, id := range job.Add {
		e.notify(job.Progress, BatchEvent{DocumentID: id, Status: BatchQueued})
	}
	for _, id := range job.Remove {
		e.notify(job.Progress, BatchEvent{DocumentID: id, Status: BatchQueued})
	}
	log.Trace("[BATCH] collection %s queued %d to add, %d to remove", job.CollectionID, len(job.Add), len(job.Remove))
	return nil
}

// dispatch routes jobs to workers, holding back jobs whose collection
// already has one running.
func (e *Executor) dispatch() {
	log.Trace("[BATCH] dispatcher started")
	for {
		select {
		case job := <-e.jobque:
			if e.running[job.CollectionID] {
				e.queues[job.CollectionID] = append(e.queues[job.CollectionID], job)
				continue
			}
			e.launch(job)
		case id := <-e.done:
			queue := e.queues[id]
			if len(queue) == 0 {
				delete(e.running, id)
				delete(e.queues, id)
				continue
			}
			e.queues[id] = queue[1:]
			e.launch(queue[0])
		case <-e.ctx.Done():
			log.Trace("[BATCH] dispatcher stopped")
			return
		}
	}
}

func (e *Executor) launch(job *BatchJob) {
	e.running[job.CollectionID] = true
	go func() {
		select {
		case e.workers <- struct{}{}:
		case <-e.ctx.Done():
			return
		}
		defer func() { <-e.workers }()

		e.run(job)

		select {
		case e.done <- job.CollectionID:
		case <-e.ctx.Done():
		}
	}()
}

func (e *Executor) run(job *BatchJob) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("[BATCH] collection %s: %v", job.CollectionID, r)
		}
		e.notify(job.Progress, BatchEvent{Status: BatchFinished})
	}()

	ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
	defer cancel()

	for _, id := range job.Add {
		e.notify(job.Progress, BatchEvent{DocumentID: id, Status: BatchProcessing})
		if _, err := e.vectors.Embed(ctx, id, job.CollectionID); err != nil {
			log.Error("[BATCH] embed %s into %s: %s", id, job.CollectionID, err)
			e.notify(job.Progress, BatchEvent{DocumentID: id, Status: BatchFailed, Error: err.Error()})
			continue
		}
		e.notify(job.Progress, BatchEvent{DocumentID: id, Status: BatchDone})
	}

	for _, id := range job.Remove {
		e.notify(job.Progress, BatchEvent{DocumentID: id, Status: BatchProcessing})
		if err := e.vectors.DeleteEmbeddings(ctx, id, job.CollectionID); err != nil {
			log.Error("[BATCH] remove %s from %s: %s", id, job.CollectionID, err)
			e.notify(job.Progress, BatchEvent{DocumentID: id, Status: BatchFailed, Error: err.Error()})
			continue
		}
		e.notify(job.Progress, BatchEvent{DocumentID: id, Status: BatchDone})
	}
}

// notify drops events when nobody listens or the listener lags.
func (e *Executor) notify(ch chan<- BatchEvent, event BatchEvent) {
	if ch == nil {
		return
	}
	select {
	case ch <- event:
	default:
	}
}
