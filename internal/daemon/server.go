// Package daemon exposes the synchronization state to local UI surfaces
// over a line-delimited JSON socket. Surfaces issue commands (send,
// read, focus, history) and hold a subscribe stream open to hear about
// changes; the daemon is the only process talking to the backend.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridewire/dispatchsync/internal/engine"
	"github.com/ridewire/dispatchsync/internal/events"
	"github.com/ridewire/dispatchsync/internal/logging"
	"github.com/ridewire/dispatchsync/internal/models"
	"github.com/ridewire/dispatchsync/internal/router"
	"github.com/ridewire/dispatchsync/internal/store"
)

const maxRequestBytes = 1 << 20

// EventJournal reads and maintains the persisted event journal.
// Implemented by db.EventRepository.
type EventJournal interface {
	ListRecent(ctx context.Context, limit int) ([]*models.Event, error)
	ListByThread(ctx context.Context, threadID models.ThreadID, limit int) ([]*models.Event, error)
	DeleteOlderThan(ctx context.Context, before time.Time, limit int) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// Server serves UI surfaces over a local socket.
type Server struct {
	logger    zerolog.Logger
	engine    *engine.Engine
	router    *router.Router
	publisher events.Publisher
	journal   EventJournal

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	connSeq  atomic.Uint64
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithEventJournal exposes the persisted event journal over the events
// and prune commands. Without it both report journal_unavailable.
func WithEventJournal(journal EventJournal) ServerOption {
	return func(s *Server) { s.journal = journal }
}

// NewServer creates a surface server over the engine and router.
func NewServer(eng *engine.Engine, rt *router.Router, publisher events.Publisher, opts ...ServerOption) *Server {
	s := &Server{
		logger:    logging.Component("surface-server"),
		engine:    eng,
		router:    rt,
		publisher: publisher,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins listening on the given address ("unix:///path" or
// "tcp://host:port") and serving connections until Stop.
func (s *Server) Start(ctx context.Context, address string) error {
	network, addr := parseListenAddress(address)
	if addr == "" {
		return errors.New("listen address required")
	}

	if network == "unix" {
		// A stale socket from an unclean shutdown blocks the bind.
		if _, err := os.Stat(addr); err == nil {
			_ = os.Remove(addr)
		}
	}

	listener, err := net.Listen(network, addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.mu.Lock()
	if s.listener != nil {
		s.mu.Unlock()
		_ = listener.Close()
		return errors.New("surface server already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.listener = listener
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info().Str("addr", address).Msg("surface server listening")

	s.wg.Add(1)
	go s.acceptLoop(ctx, listener)
	return nil
}

// Addr returns the bound listener address, or nil if not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and waits for in-flight connections.
func (s *Server) Stop() {
	s.mu.Lock()
	listener := s.listener
	cancel := s.cancel
	s.listener = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if listener != nil {
		_ = listener.Close()
	}
	s.wg.Wait()
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				if !errors.Is(err, net.ErrClosed) {
					s.logger.Warn().Err(err).Msg("accept failed")
				}
			}
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connID := s.connSeq.Add(1)
	logger := s.logger.With().Uint64("conn", connID).Logger()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)

	var writeMu sync.Mutex
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req surfaceRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.reply(&writeMu, conn, surfaceResponse{
				OK:    false,
				Error: &surfaceErr{Code: "bad_request", Message: "undecodable request line"},
			})
			continue
		}

		if req.Cmd == "subscribe" {
			// Subscribe takes over the connection: the ack is the last
			// response, everything after is pushed envelopes.
			s.reply(&writeMu, conn, surfaceResponse{OK: true, ReqID: req.ReqID})
			s.streamEvents(ctx, conn, &writeMu, connID, req)
			return
		}

		resp := s.dispatch(ctx, logger, req)
		resp.ReqID = req.ReqID
		s.reply(&writeMu, conn, resp)
	}
}

func (s *Server) reply(writeMu *sync.Mutex, conn net.Conn, resp surfaceResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal response")
		return
	}
	data = append(data, '\n')
	writeMu.Lock()
	_, _ = conn.Write(data)
	writeMu.Unlock()
}

func (s *Server) dispatch(ctx context.Context, logger zerolog.Logger, req surfaceRequest) surfaceResponse {
	switch req.Cmd {
	case "status":
		return s.handleStatus()
	case "counts":
		return s.handleCounts()
	case "threads":
		return s.handleThreads()
	case "history":
		return s.handleHistory(req)
	case "send":
		return s.handleSend(ctx, req)
	case "retry":
		return s.handleRetry(ctx, req)
	case "discard":
		return s.handleDiscard(ctx, req)
	case "read":
		return s.handleRead(ctx, req)
	case "focus":
		return s.handleFocus(ctx, req, true)
	case "unfocus":
		return s.handleFocus(ctx, req, false)
	case "seed":
		return s.handleSeed(ctx, req)
	case "events":
		return s.handleEvents(ctx, req)
	case "prune":
		return s.handlePrune(ctx, req)
	default:
		logger.Debug().Str("cmd", req.Cmd).Msg("unknown surface command")
		return errorResponse("unknown_command", fmt.Sprintf("unknown command %q", req.Cmd))
	}
}

func (s *Server) handleStatus() surfaceResponse {
	unread := s.engine.Unread()
	return resultResponse(statusResult{
		Online:           s.router.Online(),
		Threads:          len(s.engine.Store().ThreadIDs()),
		GlobalUnread:     unread.GlobalUnreadCount(),
		PendingMarkReads: s.engine.PendingMarkReadCount(),
	})
}

func (s *Server) handleCounts() surfaceResponse {
	unread := s.engine.Unread()
	return resultResponse(countsResult{
		Global:    unread.GlobalUnreadCount(),
		PerThread: unread.PerThreadCounts(),
	})
}

func (s *Server) handleThreads() surfaceResponse {
	msgs := s.engine.Store()
	unread := s.engine.Unread()
	surfaces := s.engine.Surfaces()

	summaries := make([]threadSummary, 0)
	for _, threadID := range msgs.ThreadIDs() {
		summaries = append(summaries, threadSummary{
			ThreadID: threadID,
			Unread:   unread.Recompute(threadID),
			Messages: len(msgs.Get(threadID)),
			Focused:  surfaces.Suppressed(threadID),
		})
	}
	return resultResponse(summaries)
}

func (s *Server) handleHistory(req surfaceRequest) surfaceResponse {
	if req.ThreadID == "" {
		return errorResponse("missing_thread", "thread_id is required")
	}
	messages := s.engine.Store().Get(req.ThreadID)
	if req.Limit > 0 && len(messages) > req.Limit {
		messages = messages[len(messages)-req.Limit:]
	}
	return resultResponse(historyResult{ThreadID: req.ThreadID, Messages: messages})
}

func (s *Server) handleSend(ctx context.Context, req surfaceRequest) surfaceResponse {
	msg, err := s.engine.Send(ctx, req.ThreadID, req.Body, req.RideID)
	if err != nil {
		// The optimistic message is still in the thread as failed; hand
		// it back so the surface can offer retry or discard.
		resp := errorResponse("send_failed", err.Error())
		if data, merr := json.Marshal(msg); merr == nil {
			resp.Result = data
		}
		return resp
	}
	return resultResponse(msg)
}

func (s *Server) handleRetry(ctx context.Context, req surfaceRequest) surfaceResponse {
	if req.ClientTempID == "" {
		return errorResponse("missing_temp_id", "client_temp_id is required")
	}
	msg, err := s.engine.RetrySend(ctx, req.ThreadID, req.ClientTempID)
	if err != nil {
		return errorResponse("retry_failed", err.Error())
	}
	return resultResponse(msg)
}

func (s *Server) handleDiscard(ctx context.Context, req surfaceRequest) surfaceResponse {
	if req.ClientTempID == "" {
		return errorResponse("missing_temp_id", "client_temp_id is required")
	}
	if !s.engine.DiscardFailed(ctx, req.ThreadID, req.ClientTempID) {
		return errorResponse("not_discardable", "message not found or not in failed state")
	}
	return surfaceResponse{OK: true}
}

func (s *Server) handleRead(ctx context.Context, req surfaceRequest) surfaceResponse {
	if req.ThreadID == "" {
		return errorResponse("missing_thread", "thread_id is required")
	}
	marked := s.engine.MarkThreadRead(ctx, req.ThreadID)
	return resultResponse(markReadResult{ThreadID: req.ThreadID, Marked: marked})
}

func (s *Server) handleFocus(ctx context.Context, req surfaceRequest, focus bool) surfaceResponse {
	if req.ThreadID == "" {
		return errorResponse("missing_thread", "thread_id is required")
	}
	kind, err := parseSurfaceKind(req.Surface)
	if err != nil {
		return errorResponse("bad_surface", err.Error())
	}
	if focus {
		s.engine.Focus(ctx, req.ThreadID, kind)
	} else {
		s.engine.Unfocus(ctx, req.ThreadID, kind)
	}
	return surfaceResponse{OK: true}
}

func (s *Server) handleSeed(ctx context.Context, req surfaceRequest) surfaceResponse {
	if req.ThreadID == "" {
		return errorResponse("missing_thread", "thread_id is required")
	}
	scope := engine.HistoryScope(req.Scope)
	if scope == "" {
		scope = engine.HistoryScopeToday
	}
	if err := s.engine.SeedThread(ctx, req.ThreadID, scope); err != nil {
		return errorResponse("seed_failed", err.Error())
	}
	return resultResponse(historyResult{
		ThreadID: req.ThreadID,
		Messages: s.engine.Store().Get(req.ThreadID),
	})
}

func (s *Server) handleEvents(ctx context.Context, req surfaceRequest) surfaceResponse {
	if s.journal == nil {
		return errorResponse("journal_unavailable", "event journal is not enabled")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		list []*models.Event
		err  error
	)
	if req.ThreadID != "" {
		list, err = s.journal.ListByThread(ctx, req.ThreadID, limit)
	} else {
		list, err = s.journal.ListRecent(ctx, limit)
	}
	if err != nil {
		return errorResponse("journal_failed", err.Error())
	}
	if list == nil {
		list = []*models.Event{}
	}
	return resultResponse(eventsResult{Events: list})
}

func (s *Server) handlePrune(ctx context.Context, req surfaceRequest) surfaceResponse {
	if s.journal == nil {
		return errorResponse("journal_unavailable", "event journal is not enabled")
	}
	age, err := time.ParseDuration(req.OlderThan)
	if err != nil || age < 0 {
		return errorResponse("bad_age", "older_than must be a non-negative duration")
	}

	deleted, err := s.journal.DeleteOlderThan(ctx, time.Now().Add(-age), req.Limit)
	if err != nil {
		return errorResponse("journal_failed", err.Error())
	}
	remaining, err := s.journal.Count(ctx)
	if err != nil {
		return errorResponse("journal_failed", err.Error())
	}
	s.logger.Info().Int64("deleted", deleted).Str("older_than", req.OlderThan).Msg("pruned event journal")
	return resultResponse(pruneResult{Deleted: deleted, Remaining: remaining})
}

// streamEvents forwards matching published events to the connection
// until it closes or the server stops.
func (s *Server) streamEvents(ctx context.Context, conn net.Conn, writeMu *sync.Mutex, connID uint64, req surfaceRequest) {
	types := make([]models.EventType, 0, len(req.EventTypes))
	for _, t := range req.EventTypes {
		types = append(types, models.EventType(t))
	}
	filter := events.Filter{EventTypes: types, ThreadID: req.ThreadID}

	subID := fmt.Sprintf("surface-conn-%d", connID)
	failed := make(chan struct{})
	var failOnce sync.Once

	handler := func(event *models.Event) {
		data, err := json.Marshal(surfaceEnvelope{Event: event})
		if err != nil {
			return
		}
		data = append(data, '\n')
		writeMu.Lock()
		_, werr := conn.Write(data)
		writeMu.Unlock()
		if werr != nil {
			failOnce.Do(func() { close(failed) })
		}
	}

	if err := s.publisher.Subscribe(subID, filter, handler); err != nil {
		s.logger.Warn().Err(err).Str("sub", subID).Msg("subscribe failed")
		return
	}
	defer func() { _ = s.publisher.Unsubscribe(subID) }()

	// The read side only unblocks when the peer goes away; any bytes the
	// surface sends on a subscribed connection are ignored.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		discard := bufio.NewReader(conn)
		buf := make([]byte, 1024)
		for {
			if _, err := discard.Read(buf); err != nil {
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
	case <-failed:
	case <-readerDone:
	}
}

func parseSurfaceKind(value string) (store.SurfaceKind, error) {
	switch store.SurfaceKind(value) {
	case store.SurfaceNotificationPanel, store.SurfaceChatModal, store.SurfaceListBadge:
		return store.SurfaceKind(value), nil
	case "":
		return "", errors.New("surface is required")
	default:
		return "", fmt.Errorf("unknown surface %q", value)
	}
}

func errorResponse(code, message string) surfaceResponse {
	return surfaceResponse{OK: false, Error: &surfaceErr{Code: code, Message: message}}
}

func resultResponse(result any) surfaceResponse {
	data, err := json.Marshal(result)
	if err != nil {
		return errorResponse("internal", "failed to encode result")
	}
	return surfaceResponse{OK: true, Result: data}
}
