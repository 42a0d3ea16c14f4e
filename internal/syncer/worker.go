package syncer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectDocumentSync carries single-document sync tasks. Delivery is
// at-least-once from the caller's perspective; processing the same
// document id twice is safe because indexing is a purge-then-insert.
const SubjectDocumentSync = "ragsync.document.sync"

// queueGroup spreads tasks across worker instances.
const queueGroup = "ragsync-workers"

type syncTask struct {
	DocumentID string `json:"document_id"`
}

// Queue enqueues background single-document syncs. Enqueueing is what
// event handlers call so a CMS save is never blocked on indexing.
type Queue struct {
	nc *nats.Conn
}

// NewQueue creates a Queue on an existing NATS connection.
func NewQueue(nc *nats.Conn) *Queue {
	return &Queue{nc: nc}
}

// Enqueue schedules a background sync of the given document.
func (q *Queue) Enqueue(documentID string) error {
	data, err := json.Marshal(syncTask{DocumentID: documentID})
	if err != nil {
		return err
	}
	return q.nc.Publish(SubjectDocumentSync, data)
}

// Worker consumes document-sync tasks and runs them through the
// orchestrator.
type Worker struct {
	nc      *nats.Conn
	syncer  *Syncer
	logger  *slog.Logger
	timeout time.Duration
	sub     *nats.Subscription
}

// NewWorker creates a Worker. Each task gets its own timeout, defaulting
// to the orchestrator's per-document timeout.
func NewWorker(nc *nats.Conn, s *Syncer, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		nc:      nc,
		syncer:  s,
		logger:  logger,
		timeout: s.docTimeout,
	}
}

// Start subscribes to the sync subject in a queue group. Malformed
// messages are dropped; task failures are logged, not retried here —
// the next full sync pass repairs any missed document.
func (w *Worker) Start() error {
	sub, err := w.nc.QueueSubscribe(SubjectDocumentSync, queueGroup, func(msg *nats.Msg) {
		var task syncTask
		if err := json.Unmarshal(msg.Data, &task); err != nil || task.DocumentID == "" {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		indexed, err := w.syncer.SyncDocument(ctx, task.DocumentID)
		if err != nil {
			w.logger.Warn("background sync failed", "document", task.DocumentID, "error", err)
			return
		}
		w.logger.Debug("background sync done", "document", task.DocumentID, "indexed", indexed)
	})
	if err != nil {
		return err
	}
	w.sub = sub
	return nil
}

// Stop drains the subscription.
func (w *Worker) Stop() error {
	if w.sub == nil {
		return nil
	}
	return w.sub.Drain()
}
