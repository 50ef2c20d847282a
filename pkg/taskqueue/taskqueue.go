// Package taskqueue publishes background tasks for asynchronous workers.
// This core only enqueues; consumption happens elsewhere.
package taskqueue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
)

// SubjectDiscovery is the subject discovery tasks are published on.
const SubjectDiscovery = "leadcheck.tasks.discovery"

// Publisher enqueues named tasks.
type Publisher interface {
	// EnqueueDiscovery requests a fresh discovery run for a business.
	EnqueueDiscovery(ctx context.Context, businessID, reason string) error
	Close()
}

// DiscoveryTask is the wire payload for a discovery task.
type DiscoveryTask struct {
	BusinessID string    `json:"business_id"`
	Reason     string    `json:"reason,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type natsPublisher struct {
	conn *nats.Conn
}

// NewNATS connects to a NATS server and returns a Publisher.
func NewNATS(url string) (Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, eris.Wrap(err, "taskqueue: connect nats")
	}
	return &natsPublisher{conn: conn}, nil
}

// NewWithConn wraps an existing connection. Used by tests.
func NewWithConn(conn *nats.Conn) Publisher {
	return &natsPublisher{conn: conn}
}

func (p *natsPublisher) EnqueueDiscovery(ctx context.Context, businessID, reason string) error {
	if businessID == "" {
		return eris.New("taskqueue: business id is required")
	}

	payload, err := json.Marshal(DiscoveryTask{
		BusinessID: businessID,
		Reason:     reason,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return eris.Wrap(err, "taskqueue: marshal discovery task")
	}

	if err := p.conn.Publish(SubjectDiscovery, payload); err != nil {
		return eris.Wrapf(err, "taskqueue: publish discovery task for %s", businessID)
	}

	// Publish is async; flush with the caller's deadline so enqueue failures
	// surface here rather than being dropped on close.
	if deadline, ok := ctx.Deadline(); ok {
		return eris.Wrap(p.conn.FlushTimeout(time.Until(deadline)), "taskqueue: flush")
	}
	return eris.Wrap(p.conn.FlushTimeout(5*time.Second), "taskqueue: flush")
}

func (p *natsPublisher) Close() {
	p.conn.Close()
}
