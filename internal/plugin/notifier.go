package plugin

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/ayusman/mudra/internal/session"
)

// DefaultQueueSize is the number of events a Notifier buffers.
const DefaultQueueSize = 32

// Runner executes a plugin for one request.
type Runner interface {
	Execute(ctx context.Context, plugin *Plugin, req *Request) (*Response, error)
}

// Notifier is a session observer that forwards events to subscribed
// plugins. OnEvent never blocks: events are queued and dropped when the
// queue is full. Run executes plugins one event at a time.
type Notifier struct {
	manager *Manager
	runner  Runner
	queue   chan session.Event
	dropped atomic.Int64
}

// NewNotifier creates a Notifier. A non-positive queueSize uses
// DefaultQueueSize.
func NewNotifier(manager *Manager, runner Runner, queueSize int) *Notifier {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Notifier{
		manager: manager,
		runner:  runner,
		queue:   make(chan session.Event, queueSize),
	}
}

// OnEvent implements session.Observer.
func (n *Notifier) OnEvent(e session.Event) {
	select {
	case n.queue <- e:
	default:
		n.dropped.Add(1)
		log.Printf("Plugin queue full, dropping %s event", e.Type)
	}
}

// Dropped returns the number of events dropped because the queue was full.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Run delivers queued events until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-n.queue:
			n.dispatch(ctx, e)
		}
	}
}

func (n *Notifier) dispatch(ctx context.Context, e session.Event) {
	for _, p := range n.manager.Subscribers(e.Type) {
		resp, err := n.runner.Execute(ctx, p, &Request{Event: e, Config: p.Manifest.Config})
		if err != nil {
			log.Printf("Error running plugin %s for %s: %v", p.Manifest.Name, e.Type, err)
			continue
		}
		if !resp.Success {
			log.Printf("Plugin %s reported failure for %s: %s", p.Manifest.Name, e.Type, resp.Error)
		}
	}
}
