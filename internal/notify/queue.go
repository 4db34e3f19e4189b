// Package notify holds the broadcast queue. Jobs are executed in
// submission order by a single consumer goroutine; each job fans out to
// the active group chats.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"raidbot/internal/chat"
)

// TargetSource supplies broadcast targets and accepts evictions when a
// target turns out to be unreachable.
type TargetSource interface {
	Targets() []int64
	Evict(chatID int64)
}

type sentMessage struct {
	chatID    int64
	messageID int64
}

// Queue is the broadcast queue plus its consumer state. Construct with
// NewQueue; at most one consumer may run at a time.
type Queue struct {
	transport chat.Transport
	targets   TargetSource
	log       *zap.Logger

	pace    time.Duration
	timeout time.Duration

	// Branding resolves a per-group media reference attached to
	// broadcasts that carry none of their own. May be nil.
	Branding func(chatID int64) string

	mu      sync.Mutex
	jobs    []Job
	last    map[JobKind][]sentMessage
	running bool

	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

func NewQueue(transport chat.Transport, targets TargetSource, log *zap.Logger, pace time.Duration) *Queue {
	if pace <= 0 {
		pace = 500 * time.Millisecond
	}
	return &Queue{
		transport: transport,
		targets:   targets,
		log:       log,
		pace:      pace,
		timeout:   10 * time.Second,
		last:      make(map[JobKind][]sentMessage),
		signal:    make(chan struct{}, 1),
	}
}

// Enqueue appends a job and wakes the consumer. Safe for concurrent use.
func (q *Queue) Enqueue(job Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Len reports the number of jobs waiting for execution.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Start launches the consumer goroutine. A second call while the
// consumer is live returns an error; a stopped queue may be started
// again.
func (q *Queue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return fmt.Errorf("notify: consumer already running")
	}
	q.running = true
	q.stop = make(chan struct{})
	q.done = make(chan struct{})
	go q.run(q.stop, q.done)
	return nil
}

// Stop signals the consumer and waits for it to drain its current job.
// Stopping a queue that is not running is a no-op.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	stop, done := q.stop, q.done
	q.mu.Unlock()
	close(stop)
	<-done
}

func (q *Queue) run(stop, done chan struct{}) {
	defer close(done)
	for {
		job, ok := q.next()
		if !ok {
			select {
			case <-q.signal:
				continue
			case <-stop:
				return
			}
		}
		q.execute(job)
		select {
		case <-stop:
			return
		case <-time.After(q.pace):
		}
	}
}

func (q *Queue) next() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, true
}

func (q *Queue) execute(job Job) {
	q.deletePrevious(job.Kind)

	targets := job.Targets
	if targets == nil {
		targets = q.targets.Targets()
	}

	var sent []sentMessage
	for _, chatID := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		msgID, err := q.send(ctx, chatID, job)
		cancel()
		if err != nil {
			q.log.Warn("broadcast send failed, evicting target",
				zap.Int64("chat_id", chatID),
				zap.String("kind", string(job.Kind)),
				zap.Error(err))
			q.targets.Evict(chatID)
			continue
		}
		sent = append(sent, sentMessage{chatID: chatID, messageID: msgID})
		if job.Pin {
			ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
			if err := q.transport.PinMessage(ctx, chatID, msgID); err != nil {
				q.log.Warn("pin failed", zap.Int64("chat_id", chatID), zap.Error(err))
			}
			cancel()
		}
	}

	q.mu.Lock()
	q.last[job.Kind] = sent
	q.mu.Unlock()
}

func (q *Queue) send(ctx context.Context, chatID int64, job Job) (int64, error) {
	media := job.MediaRef
	if media == "" && q.Branding != nil {
		media = q.Branding(chatID)
	}
	if media != "" {
		return q.transport.SendMedia(ctx, chatID, media, job.Text, nil)
	}
	return q.transport.SendText(ctx, chatID, job.Text, nil)
}

// deletePrevious removes the prior round of messages for a kind so only
// the latest broadcast of each kind stays visible. Best effort.
func (q *Queue) deletePrevious(kind JobKind) {
	q.mu.Lock()
	prev := q.last[kind]
	delete(q.last, kind)
	q.mu.Unlock()
	for _, m := range prev {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.transport.DeleteMessage(ctx, m.chatID, m.messageID); err != nil {
			q.log.Debug("delete of previous broadcast failed",
				zap.Int64("chat_id", m.chatID),
				zap.Int64("message_id", m.messageID),
				zap.Error(err))
		}
		cancel()
	}
}
