// Package controlplane implements C7: the worker's single persistent
// duplex connection to the dispatcher, taking it through
// DISCONNECTED -> AUTHENTICATED -> CONNECTED and back on any failure,
// with a backoff before each reconnect attempt.
package controlplane

import (
	"context"
	"encoding/ascii85"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/imxieyi/carp-judge-worker/internal/archive"
	"github.com/imxieyi/carp-judge-worker/internal/logging"
	"github.com/imxieyi/carp-judge-worker/internal/scheduler"
)

const (
	writeWait      = 10 * time.Second
	readWait       = 90 * time.Second
	maxMessageSize = 16 * 1024 * 1024 // large enough for a base85 archive payload
)

// Config configures one worker's control-plane client.
type Config struct {
	LoginURL          string
	WebsocketURL      string
	Username          string
	Password          string
	UID               string
	MaxTasks          int
	HeartbeatInterval time.Duration
	ReconnectBackoff  time.Duration

	// SelfTestArchiveDir, when non-empty, makes the client inject
	// synthetic CASE_DATA envelopes from the *.zip files in this
	// directory instead of waiting on the real dispatcher.
	SelfTestArchiveDir string
}

// ReconnectRecorder receives one event per reconnect attempt.
type ReconnectRecorder interface {
	Reconnected()
}

// Client drives the DISCONNECTED/AUTHENTICATED/CONNECTED state machine
// against a dispatcher, feeding jobs into and draining results out of
// a scheduler.Scheduler.
type Client struct {
	cfg   Config
	sched *scheduler.Scheduler

	backoffLimiter *rate.Limiter
	metrics        ReconnectRecorder

	// caseStarts carries CASE_START envelopes from the scheduler's
	// onCaseStart hook, which fires on a slot goroutine with no
	// knowledge of the current connection's sendQueue, across to
	// whichever runOnce happens to be connected when they arrive.
	caseStarts chan Envelope
}

// New builds a Client wired to sched, which must already be running
// its slot pool (Scheduler.Run) under the same lifetime context.
// metrics may be nil.
func New(cfg Config, sched *scheduler.Scheduler, metrics ReconnectRecorder) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 60 * time.Second
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 5 * time.Second
	}
	return &Client{
		cfg:            cfg,
		sched:          sched,
		backoffLimiter: rate.NewLimiter(rate.Every(cfg.ReconnectBackoff), 1),
		metrics:        metrics,
		caseStarts:     make(chan Envelope, 32),
	}
}

// NotifyCaseStart queues a CASE_START envelope for cid. It is meant to
// be passed as scheduler.Config.OnCaseStart, so it never blocks: the
// envelope waits in a 32-deep buffer until a connection's
// forwardCaseStarts picks it up, and when that buffer is full it is
// dropped and logged rather than stalling a judge slot.
func (c *Client) NotifyCaseStart(cid int64) {
	select {
	case c.caseStarts <- Envelope{Type: TypeCaseStart, CID: cid}:
	default:
		logging.S().Warnw("controlplane: dropped CASE_START, no connection or queue full", "cid", cid)
	}
}

// Run loops: authenticate, connect, run the connected-state task
// group until any task ends, then wait out the backoff and retry.
// It returns only when ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.backoffLimiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		// Jitter on top of the limiter's pacing, so a fleet of workers
		// reconnecting after a shared dispatcher blip doesn't all land
		// in the same instant.
		jitter := time.Duration(rand.Intn(250)) * time.Millisecond
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return ctx.Err()
		}

		if c.metrics != nil {
			c.metrics.Reconnected()
		}
		if err := c.runOnce(ctx); err != nil {
			logging.S().Warnw("controlplane: connection ended", "error", err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// runOnce takes the client from DISCONNECTED through AUTHENTICATED to
// CONNECTED, runs the per-connection task group, and returns once any
// task in the group ends (disconnect, of any cause).
func (c *Client) runOnce(ctx context.Context) error {
	token, err := login(ctx, c.cfg.LoginURL, c.cfg.Username, c.cfg.Password)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if exp, err := tokenExpiry(token); err == nil && !exp.After(time.Now()) {
		return fmt.Errorf("authenticate: login issued an already-expired token")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.WebsocketURL, header)
	if err != nil {
		return fmt.Errorf("connect websocket: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	receiveQueue := make(chan Envelope, 32)
	sendQueue := make(chan Envelope, 32)

	var wg sync.WaitGroup
	firstErr := make(chan error, 5)

	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn(connCtx)
			select {
			case firstErr <- fmt.Errorf("%s: %w", name, err):
			default:
			}
			cancel()
		}()
	}

	spawn("receiver", func(ctx context.Context) error { return c.receiver(ctx, conn, receiveQueue) })
	spawn("dispatcher", func(ctx context.Context) error { return c.dispatcher(ctx, conn, sendQueue) })
	spawn("handler", func(ctx context.Context) error { return c.handler(ctx, receiveQueue, sendQueue) })
	spawn("heartbeat", func(ctx context.Context) error { return c.heartbeat(ctx, sendQueue) })
	spawn("results", func(ctx context.Context) error { return c.publishResults(ctx, sendQueue) })
	spawn("casestarts", func(ctx context.Context) error { return c.forwardCaseStarts(ctx, sendQueue) })

	sendQueue <- Envelope{Type: TypeWorkerInfo, UID: c.cfg.UID, MaxTasks: c.cfg.MaxTasks}

	if c.cfg.SelfTestArchiveDir != "" {
		go runSelfTest(connCtx, c.cfg.SelfTestArchiveDir, receiveQueue)
	}

	wg.Wait()
	close(firstErr)
	return <-firstErr
}

// receiver reads frames off the socket and decodes them onto
// receiveQueue. Its exit (on any read error) is the signal the whole
// connection has gone bad.
func (c *Client) receiver(ctx context.Context, conn *websocket.Conn, out chan<- Envelope) error {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logging.S().Warnw("controlplane: malformed message", "error", err)
			continue
		}
		select {
		case out <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// dispatcher drains sendQueue onto the socket.
func (c *Client) dispatcher(ctx context.Context, conn *websocket.Conn, in <-chan Envelope) error {
	for {
		select {
		case env := <-in:
			data, err := json.Marshal(env)
			if err != nil {
				logging.S().Warnw("controlplane: marshal failed", "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handler routes inbound envelopes: CASE_DATA becomes a scheduler job
// (decoding its base85 archive payload first), WORKER_TICK is echoed
// back as a heartbeat reply. CASE_START is not sent here: it is only
// published once the scheduler actually starts the Case's container,
// via the onCaseStart hook feeding forwardCaseStarts.
func (c *Client) handler(ctx context.Context, in <-chan Envelope, out chan<- Envelope) error {
	for {
		select {
		case env := <-in:
			switch env.Type {
			case TypeCaseData:
				if err := c.acceptCase(ctx, env); err != nil {
					logging.S().Warnw("controlplane: case rejected before dispatch", "cid", env.CID, "error", err)
				}
			case TypeWorkerTick:
				select {
				case out <- Envelope{Type: TypeWorkerTick}:
				case <-ctx.Done():
					return ctx.Err()
				}
			default:
				logging.S().Debugw("controlplane: ignoring message type", "type", env.Type)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) acceptCase(ctx context.Context, env Envelope) error {
	raw, err := decodeBase85(env.ArchiveB85)
	if err != nil {
		return fmt.Errorf("decode archive: %w", err)
	}
	job := scheduler.Job{
		CID:       env.CID,
		CType:     archive.CaseType(env.CType),
		Archive:   raw,
		Network:   env.Network,
		SeedCount: env.SeedCount,
		Model:     env.Model,
	}
	return c.sched.Submit(ctx, job)
}

// forwardCaseStarts relays CASE_START envelopes queued by
// NotifyCaseStart onto this connection's sendQueue. It is the only
// reader of c.caseStarts, so envelopes queued while no connection was
// up are delivered as soon as the next one comes up.
func (c *Client) forwardCaseStarts(ctx context.Context, out chan<- Envelope) error {
	for {
		select {
		case env := <-c.caseStarts:
			select {
			case out <- env:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// heartbeat emits a WORKER_TICK on a fixed period, independent of job
// traffic (spec.md §5).
func (c *Client) heartbeat(ctx context.Context, out chan<- Envelope) error {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			select {
			case out <- Envelope{Type: TypeWorkerTick, Timestamp: time.Now().Unix()}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// publishResults drains the scheduler's result queue onto the wire as
// CASE_RESULT envelopes.
func (c *Client) publishResults(ctx context.Context, out chan<- Envelope) error {
	for {
		select {
		case result := <-c.sched.Results():
			env := Envelope{
				Type:           TypeCaseResult,
				CID:            result.CID,
				TimedOut:       result.TimedOut,
				Stdout:         string(result.Stdout),
				StdoutOverflow: result.StdoutOverflow,
				Stderr:         string(result.Stderr),
				StderrOverflow: result.StderrOverflow,
				ExitCode:       result.ExitCode,
				Accepted:       result.Verdict.Accepted,
				Reason:         result.Verdict.Reason,
				Score:          result.Verdict.Score,
				Timestamp:      time.Now().Unix(),
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func decodeBase85(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("empty archive payload")
	}
	src := strings.TrimSpace(s)
	dst := make([]byte, len(src))
	ndst, _, err := ascii85.Decode(dst, []byte(src), true)
	if err != nil {
		return nil, err
	}
	return dst[:ndst], nil
}
