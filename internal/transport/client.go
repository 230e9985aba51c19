// Package transport speaks the dispatch backend's line-delimited JSON
// protocol: a long-lived subscription stream for push events plus
// short-lived command round-trips. All failure is mapped onto the
// ChannelUnavailable / CommandTimeout / CommandRejected taxonomy before
// anything deeper in the pipeline can see it.
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ridewire/dispatchsync/internal/engine"
	"github.com/ridewire/dispatchsync/internal/logging"
	"github.com/ridewire/dispatchsync/internal/models"
)

// EventSink receives decoded stream traffic and connectivity
// transitions. Implemented by the event router.
type EventSink interface {
	HandleEnvelope(ctx context.Context, eventName string, payload []byte)
	SetOnline(ctx context.Context, online bool)
}

// Config contains connection settings for the backend channel.
type Config struct {
	// Address is the backend endpoint, "tcp://host:port" or
	// "unix:///path".
	Address string

	// DialTimeout bounds connection establishment. Default: 2s.
	DialTimeout time.Duration

	// ReconnectInterval is the pause between reconnect attempts.
	// Default: 2s.
	ReconnectInterval time.Duration

	// CommandTimeout bounds a command round-trip when the caller's
	// context has no earlier deadline. Default: 10s.
	CommandTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DialTimeout:       2 * time.Second,
		ReconnectInterval: 2 * time.Second,
		CommandTimeout:    10 * time.Second,
	}
}

// Client is the push channel subscriber and command RPC client.
type Client struct {
	logger  zerolog.Logger
	config  Config
	network string
	addr    string
	sink    EventSink

	mu       sync.Mutex
	lastSeen int64
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewClient creates a Client for the given backend address. The sink
// may be nil at construction and wired with SetSink before Start; the
// command methods never need one.
func NewClient(config Config, sink EventSink) (*Client, error) {
	defaults := DefaultConfig()
	if config.DialTimeout <= 0 {
		config.DialTimeout = defaults.DialTimeout
	}
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = defaults.ReconnectInterval
	}
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = defaults.CommandTimeout
	}

	network, addr, err := splitAddress(config.Address)
	if err != nil {
		return nil, err
	}

	return &Client{
		logger:  logging.Component("channel-client"),
		config:  config,
		network: network,
		addr:    addr,
		sink:    sink,
	}, nil
}

func splitAddress(address string) (network, addr string, err error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "", "", errors.New("backend address required")
	}
	switch {
	case strings.HasPrefix(trimmed, "unix://"):
		return "unix", strings.TrimPrefix(trimmed, "unix://"), nil
	case strings.HasPrefix(trimmed, "tcp://"):
		return "tcp", strings.TrimPrefix(trimmed, "tcp://"), nil
	default:
		return "tcp", trimmed, nil
	}
}

// SetSink wires the event sink. Must be called before Start.
func (c *Client) SetSink(sink EventSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = sink
}

// Start launches the subscription loop. It reconnects with a fixed
// backoff until the context is canceled or Stop is called.
func (c *Client) Start(ctx context.Context) error {
	if c.sink == nil {
		return errors.New("event sink required before starting subscription")
	}
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return errors.New("channel client already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runSubscription(ctx)
	return nil
}

// Stop halts the subscription loop and waits for it to exit.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

func (c *Client) runSubscription(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := net.DialTimeout(c.network, c.addr, c.config.DialTimeout)
		if err != nil {
			c.logger.Warn().Err(err).Str("addr", c.addr).Msg("channel dial failed")
			c.sink.SetOnline(ctx, false)
			if !sleepUntil(ctx, c.config.ReconnectInterval) {
				return
			}
			continue
		}

		err = c.consumeStream(ctx, conn)
		_ = conn.Close()

		if err != nil && ctx.Err() == nil {
			c.logger.Warn().Err(err).Str("addr", c.addr).Msg("channel disconnected")
		}
		c.sink.SetOnline(ctx, false)

		if !sleepUntil(ctx, c.config.ReconnectInterval) {
			return
		}
	}
}

func (c *Client) consumeStream(ctx context.Context, conn net.Conn) error {
	reader := bufio.NewReader(conn)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	req := request{
		Cmd:   "subscribe",
		ReqID: fmt.Sprintf("sub-%s", uuid.NewString()),
		Since: c.lastSeenID(),
	}
	if err := writeJSONLine(conn, req); err != nil {
		return err
	}

	line, err := readLine(reader)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	var ack response
	if err := json.Unmarshal(line, &ack); err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("subscribe rejected: %s", formatWireError(ack.Error))
	}

	c.logger.Info().Str("addr", c.addr).Msg("channel subscribed")
	c.sink.SetOnline(ctx, true)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// The watchdog closes the connection on cancellation, which
		// surfaces here as a read error; report the shutdown, not the
		// closed socket.
		line, err := readLine(reader)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			// One bad line must not kill the stream.
			c.logger.Warn().Err(err).Msg("undecodable stream line dropped")
			continue
		}
		if env.Error != nil {
			return fmt.Errorf("stream error: %s", formatWireError(env.Error))
		}
		if env.Event == "" {
			continue
		}

		c.trackLastSeen(env)
		c.sink.HandleEnvelope(ctx, env.Event, env.Payload)
	}
}

// trackLastSeen records the highest message id observed so a reconnect
// resumes after it instead of replaying the backlog.
func (c *Client) trackLastSeen(env envelope) {
	if env.Event != "message.received" {
		return
	}
	var peek struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(env.Payload, &peek); err != nil || peek.ID == 0 {
		return
	}
	c.mu.Lock()
	if peek.ID > c.lastSeen {
		c.lastSeen = peek.ID
	}
	c.mu.Unlock()
}

func (c *Client) lastSeenID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// roundTrip dials, sends one request, and reads its response. Every
// command uses a fresh short-lived connection so a stuck command can
// never wedge the subscription stream.
func (c *Client) roundTrip(ctx context.Context, req request) (json.RawMessage, error) {
	conn, err := net.DialTimeout(c.network, c.addr, c.config.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.CommandTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
	}

	if req.ReqID == "" {
		req.ReqID = uuid.NewString()
	}
	if err := writeJSONLine(conn, req); err != nil {
		return nil, wrapNetErr(err)
	}

	line, err := readLine(bufio.NewReader(conn))
	if err != nil {
		return nil, wrapNetErr(err)
	}
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("%w: undecodable response: %v", ErrCommandRejected, err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("%w: %s", ErrCommandRejected, formatWireError(resp.Error))
	}
	return resp.Result, nil
}

func wrapNetErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrCommandTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
}

// SendMessage implements engine.Commander.
func (c *Client) SendMessage(ctx context.Context, threadID models.ThreadID, body string, rideID int64) (models.MessageAck, error) {
	result, err := c.roundTrip(ctx, request{
		Cmd:      "send_message",
		ThreadID: threadID,
		Body:     body,
		RideID:   rideID,
	})
	if err != nil {
		return models.MessageAck{}, err
	}
	var ack models.MessageAck
	if err := json.Unmarshal(result, &ack); err != nil {
		return models.MessageAck{}, fmt.Errorf("%w: malformed send ack: %v", ErrCommandRejected, err)
	}
	if ack.ID == 0 {
		return models.MessageAck{}, fmt.Errorf("%w: send ack missing id", ErrCommandRejected)
	}
	return ack, nil
}

// MarkAsRead implements engine.Commander.
func (c *Client) MarkAsRead(ctx context.Context, ids []int64) error {
	_, err := c.roundTrip(ctx, request{
		Cmd:        "mark_as_read",
		MessageIDs: ids,
		MarkedBy:   models.MarkerDispatcher,
	})
	return err
}

// GetUnreadSnapshot implements router.Snapshotter.
func (c *Client) GetUnreadSnapshot(ctx context.Context) ([]models.SnapshotEntry, error) {
	result, err := c.roundTrip(ctx, request{Cmd: "unread_snapshot"})
	if err != nil {
		return nil, err
	}
	var snapshot struct {
		Messages []models.SnapshotEntry `json:"messages"`
	}
	if err := json.Unmarshal(result, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: malformed snapshot: %v", ErrCommandRejected, err)
	}
	return snapshot.Messages, nil
}

// GetThreadHistory implements engine.Historian.
func (c *Client) GetThreadHistory(ctx context.Context, threadID models.ThreadID, scope engine.HistoryScope) ([]models.Message, error) {
	result, err := c.roundTrip(ctx, request{
		Cmd:      "thread_history",
		ThreadID: threadID,
		Scope:    string(scope),
	})
	if err != nil {
		return nil, err
	}
	var history struct {
		Messages []models.Message `json:"messages"`
	}
	if err := json.Unmarshal(result, &history); err != nil {
		return nil, fmt.Errorf("%w: malformed history: %v", ErrCommandRejected, err)
	}
	return history.Messages, nil
}

func sleepUntil(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
