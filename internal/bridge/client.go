package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrClosed is returned when sending on a closed client.
	ErrClosed = errors.New("bridge: client closed")
	// ErrQueueFull is returned when the outbound queue has no room.
	ErrQueueFull = errors.New("bridge: outbound queue full")
)

// ClientConfig holds the client's queue and timing settings.
type ClientConfig struct {
	QueueSize   int
	DialTimeout time.Duration
	JoinTimeout time.Duration
}

// DefaultClientConfig returns the default client settings.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		QueueSize:   8,
		DialTimeout: 3 * time.Second,
		JoinTimeout: time.Second,
	}
}

// Client is a connection to a remote classifier. A writer and a reader
// goroutine own the socket; the session talks to them only through bounded
// queues. Connection loss is reported once on the stop queue and is never
// retried.
type Client struct {
	conn        net.Conn
	joinTimeout time.Duration

	outbound  chan []byte
	responses chan Response
	stops     chan string

	ctx       context.Context
	cancel    context.CancelFunc
	group     *errgroup.Group
	closeOnce sync.Once
	stopOnce  sync.Once
}

// Dial connects to a classifier at addr.
func Dial(ctx context.Context, addr string, cfg ClientConfig) (*Client, error) {
	d := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial classifier %s: %w", addr, err)
	}
	return NewClient(conn, cfg), nil
}

// NewClient starts the writer and reader loops over conn.
func NewClient(conn net.Conn, cfg ClientConfig) *Client {
	def := DefaultClientConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = def.JoinTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	c := &Client{
		conn:        conn,
		joinTimeout: cfg.JoinTimeout,
		outbound:    make(chan []byte, cfg.QueueSize),
		responses:   make(chan Response, cfg.QueueSize),
		stops:       make(chan string, 1),
		ctx:         gctx,
		cancel:      cancel,
		group:       group,
	}

	group.Go(func() error { return c.writeLoop(gctx) })
	group.Go(func() error { return c.readLoop(gctx) })

	return c
}

// Err returns ErrClosed once the client has been closed or its connection
// has failed, and nil while it can still carry requests.
func (c *Client) Err() error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	return nil
}

// Submit queues a window for classification without blocking.
func (c *Client) Submit(req Request) error {
	return c.enqueue(req)
}

// SendStop queues a stop command without blocking.
func (c *Client) SendStop() error {
	return c.enqueue(Command{Command: CommandStop})
}

func (c *Client) enqueue(v any) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}

	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	line = append(line, '\n')

	select {
	case c.outbound <- line:
		return nil
	default:
		return ErrQueueFull
	}
}

// Poll returns the next classifier response, if one has arrived.
func (c *Client) Poll() (Response, bool) {
	select {
	case r := <-c.responses:
		return r, true
	default:
		return Response{}, false
	}
}

// PollStop returns the reason of a pending stop request, if any.
func (c *Client) PollStop() (string, bool) {
	select {
	case reason := <-c.stops:
		return reason, true
	default:
		return "", false
	}
}

// Close cancels both loops, aborts in-flight I/O, waits up to the join
// timeout for them to exit, and closes the socket.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.SetDeadline(time.Now())

		done := make(chan error, 1)
		go func() { done <- c.group.Wait() }()

		select {
		case err = <-done:
			if errors.Is(err, io.EOF) {
				err = nil
			}
		case <-time.After(c.joinTimeout):
			log.Printf("bridge: loops did not exit within %s", c.joinTimeout)
		}

		if cerr := c.conn.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

func (c *Client) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-c.outbound:
			if _, err := c.conn.Write(line); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.requestStop(fmt.Sprintf("send failed: %v", err))
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			log.Printf("bridge: skipping malformed response: %v", err)
			continue
		}

		select {
		case c.responses <- resp:
		default:
			log.Printf("bridge: response queue full, dropping response for %q", resp.TargetLabel)
		}
	}

	if ctx.Err() != nil {
		return nil
	}

	err := scanner.Err()
	if err == nil || errors.Is(err, io.EOF) {
		c.requestStop("classifier closed the connection")
		return io.EOF
	}
	c.requestStop(fmt.Sprintf("receive failed: %v", err))
	return fmt.Errorf("read: %w", err)
}

// requestStop reports the first terminal transport failure.
func (c *Client) requestStop(reason string) {
	c.stopOnce.Do(func() {
		c.stops <- reason
	})
}
