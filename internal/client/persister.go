package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/localchat/ragchat/internal/store"
)

const persistTimeout = 30 * time.Second

var ErrPersisterClosed = errors.New("persister is closed")

// Appender stores one message.
type Appender interface {
	AppendMessage(ctx context.Context, sessionID int64, role, content string) (*store.Message, error)
}

// PersistenceError is a failed append. Status is the text to show the user.
type PersistenceError struct {
	SessionID int64
	Role      string
	Status    string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("saving %s message to session %d: %v", e.Role, e.SessionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type appendJob struct {
	role, content, status string
}

type sessionQueue struct {
	jobs    []appendJob
	running bool
}

// Persister appends messages in the background. Appends to one session run
// one at a time in the order they were enqueued; different sessions proceed
// independently. Failures go to onError and never to the enqueuer.
type Persister struct {
	api     Appender
	onError func(*PersistenceError)

	mu      sync.Mutex
	idle    *sync.Cond
	queues  map[int64]*sessionQueue
	pending int
	closed  bool
}

func NewPersister(api Appender, onError func(*PersistenceError)) *Persister {
	p := &Persister{
		api:     api,
		onError: onError,
		queues:  make(map[int64]*sessionQueue),
	}
	p.idle = sync.NewCond(&p.mu)
	return p
}

// Enqueue schedules an append. status is reported with the error if it fails.
func (p *Persister) Enqueue(sessionID int64, role, content, status string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPersisterClosed
	}

	q, ok := p.queues[sessionID]
	if !ok {
		q = &sessionQueue{}
		p.queues[sessionID] = q
	}
	q.jobs = append(q.jobs, appendJob{role: role, content: content, status: status})
	p.pending++
	if !q.running {
		q.running = true
		go p.drain(sessionID, q)
	}
	return nil
}

func (p *Persister) drain(sessionID int64, q *sessionQueue) {
	for {
		p.mu.Lock()
		if len(q.jobs) == 0 {
			q.running = false
			delete(p.queues, sessionID)
			p.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		p.mu.Unlock()

		p.run(sessionID, job)

		p.mu.Lock()
		p.pending--
		if p.pending == 0 {
			p.idle.Broadcast()
		}
		p.mu.Unlock()
	}
}

func (p *Persister) run(sessionID int64, job appendJob) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if _, err := p.api.AppendMessage(ctx, sessionID, job.role, job.content); err != nil && p.onError != nil {
		p.onError(&PersistenceError{SessionID: sessionID, Role: job.role, Status: job.status, Err: err})
	}
}

// Flush waits until every enqueued append has finished.
func (p *Persister) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.pending > 0 {
		p.idle.Wait()
	}
}

// Close rejects new appends and waits for queued ones.
func (p *Persister) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.Flush()
}
