package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"tutor-ai/internal/domain"
)

// RPCHandler handles a single RPC method call.
type RPCHandler func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error)

// EventSource is the event bus as seen by the gateway.
type EventSource interface {
	domain.EventBus
	SubscribeRun(runID string, handler domain.EventHandler) func()
}

type connKey struct{}

// connIDFromContext returns the id of the connection whose RPC call
// produced ctx.
func connIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(connKey{}).(uint64)
	return id, ok
}

// clientConn tracks a single WebSocket connection.
type clientConn struct {
	id        uint64
	info      *ClientInfo
	ws        *websocket.Conn
	sendCh    chan Frame // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once

	subsMu sync.Mutex
	subs   map[string]func() // runID -> unsubscribe

	// Fragments are coalesced per run and agent: only the newest pending
	// cumulative text is written.
	fragMu    sync.Mutex
	frags     map[fragmentKey]pendingFragment
	fragOrder []fragmentKey
	fragSent  map[fragmentKey]int // highest seq written
	fragReady chan struct{}
}

type fragmentKey struct {
	runID string
	agent domain.AgentKind
}

type pendingFragment struct {
	seq   int
	frame Frame
}

func newClientConn(id uint64, info *ClientInfo, ws *websocket.Conn) *clientConn {
	return &clientConn{
		id:        id,
		info:      info,
		ws:        ws,
		sendCh:    make(chan Frame, 64),
		done:      make(chan struct{}),
		subs:      make(map[string]func()),
		frags:     make(map[fragmentKey]pendingFragment),
		fragSent:  make(map[fragmentKey]int),
		fragReady: make(chan struct{}, 1),
	}
}

// queueFragment stores frame as the pending fragment of its agent unless a
// newer one is already pending or written.
func (cc *clientConn) queueFragment(runID string, p domain.AgentFragmentPayload, frame Frame) {
	key := fragmentKey{runID: runID, agent: p.Agent}
	cc.fragMu.Lock()
	if p.Seq <= cc.fragSent[key] {
		cc.fragMu.Unlock()
		return
	}
	cur, pending := cc.frags[key]
	switch {
	case !pending:
		cc.fragOrder = append(cc.fragOrder, key)
		cc.frags[key] = pendingFragment{seq: p.Seq, frame: frame}
	case p.Seq > cur.seq:
		cc.frags[key] = pendingFragment{seq: p.Seq, frame: frame}
	}
	cc.fragMu.Unlock()

	select {
	case cc.fragReady <- struct{}{}:
	default:
	}
}

// takeFragments returns the pending fragments in arrival order and marks
// them written.
func (cc *clientConn) takeFragments() []Frame {
	cc.fragMu.Lock()
	defer cc.fragMu.Unlock()
	out := make([]Frame, 0, len(cc.fragOrder))
	for _, key := range cc.fragOrder {
		f := cc.frags[key]
		out = append(out, f.frame)
		cc.fragSent[key] = f.seq
		delete(cc.frags, key)
	}
	cc.fragOrder = cc.fragOrder[:0]
	return out
}

// forgetRun drops the fragment bookkeeping of a finished run.
func (cc *clientConn) forgetRun(runID string) {
	cc.fragMu.Lock()
	for key := range cc.fragSent {
		if key.runID == runID {
			delete(cc.fragSent, key)
		}
	}
	cc.fragMu.Unlock()
}

func (cc *clientConn) close() {
	cc.closeOnce.Do(func() { close(cc.done) })
	cc.subsMu.Lock()
	for id, unsub := range cc.subs {
		unsub()
		delete(cc.subs, id)
	}
	cc.subsMu.Unlock()
}

// Server is the WebSocket gateway that exposes RPC methods and forwards
// run events to the client that started or subscribed to the run.
type Server struct {
	bus        EventSource
	clients    sync.Map // connID (uint64) -> *clientConn
	auth       Authenticator
	handlersMu sync.RWMutex
	handlers   map[string]RPCHandler
	logger     *slog.Logger
	addr       string
	nextID     atomic.Uint64
	httpRoutes []httpRoute
	middleware []func(http.Handler) http.Handler

	mu        sync.Mutex
	httpSrv   *http.Server
	boundAddr string
	unsubAll  func()
	ready     chan struct{}
}

type httpRoute struct {
	pattern string
	handler http.HandlerFunc
}

// NewServer creates a gateway server.
func NewServer(bus EventSource, auth Authenticator, addr string, logger *slog.Logger) *Server {
	return &Server{
		bus:      bus,
		auth:     auth,
		handlers: make(map[string]RPCHandler),
		logger:   logger,
		addr:     addr,
		ready:    make(chan struct{}),
	}
}

// RegisterHandler adds an RPC handler for the given method name.
// Safe to call concurrently with active connections.
func (s *Server) RegisterHandler(method string, handler RPCHandler) {
	s.handlersMu.Lock()
	s.handlers[method] = handler
	s.handlersMu.Unlock()
}

// RegisterHTTPRoute adds an HTTP handler to the gateway's mux.
// Must be called before Start().
func (s *Server) RegisterHTTPRoute(pattern string, handler http.HandlerFunc) {
	s.httpRoutes = append(s.httpRoutes, httpRoute{pattern: pattern, handler: handler})
}

// Use wraps the whole mux, WebSocket upgrade included, in mw. The first
// registered middleware is the outermost. Must be called before Start().
func (s *Server) Use(mw ...func(http.Handler) http.Handler) {
	s.middleware = append(s.middleware, mw...)
}

// Start begins accepting WebSocket connections. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	for _, route := range s.httpRoutes {
		mux.HandleFunc(route.pattern, route.handler)
	}
	var handler http.Handler = mux
	for i := len(s.middleware) - 1; i >= 0; i-- {
		handler = s.middleware[i](handler)
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	// Events published under an RPC call go back to the calling connection.
	unsub := s.bus.SubscribeAll(func(ctx context.Context, event domain.Event) {
		connID, ok := connIDFromContext(ctx)
		if !ok {
			return
		}
		if v, ok := s.clients.Load(connID); ok {
			s.sendEvent(v.(*clientConn), event)
		}
	})

	s.mu.Lock()
	s.httpSrv = srv
	s.boundAddr = listener.Addr().String()
	s.unsubAll = unsub
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("gateway started", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the gateway server. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	unsub := s.unsubAll
	s.unsubAll = nil
	srv := s.httpSrv
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}

	s.clients.Range(func(key, value any) bool {
		cc := value.(*clientConn)
		cc.close()
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
	return nil
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// BoundAddr returns the actual address the server bound to. Empty until Ready.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	n := 0
	s.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	clientInfo, err := s.auth.Authenticate(requestToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	// Audio clips travel inside enrich responses.
	ws.SetReadLimit(16 << 20)

	connID := s.nextID.Add(1)
	cc := newClientConn(connID, clientInfo, ws)
	s.clients.Store(connID, cc)

	s.logger.Info("gateway client connected", "conn_id", connID, "client", clientInfo.Name)

	go s.writeLoop(cc)

	ctx := context.WithValue(r.Context(), connKey{}, connID)
	s.readLoop(ctx, cc)

	cc.close()
	s.clients.Delete(connID)
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", connID)
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		var frame Frame
		err := wsjson.Read(ctx, cc.ws, &frame)
		if err != nil {
			return // connection closed or error
		}

		if frame.Type != FrameTypeRequest {
			continue
		}

		go s.dispatchRPC(ctx, cc, frame)
	}
}

// writeLoop writes queued frames. Pending fragments are flushed before
// each queued frame so a response or completion never overtakes the text
// it refers to. A failed write closes the connection, which releases every
// sender blocked on it.
func (s *Server) writeLoop(cc *clientConn) {
	write := func(frame Frame) bool {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := wsjson.Write(ctx, cc.ws, frame); err != nil {
			s.logger.Debug("gateway write failed", "conn_id", cc.id, "error", err)
			cc.close()
			cc.ws.Close(websocket.StatusInternalError, "write failed")
			return false
		}
		return true
	}
	flush := func() bool {
		for _, frame := range cc.takeFragments() {
			if !write(frame) {
				return false
			}
		}
		return true
	}

	for {
		select {
		case <-cc.done:
			return
		case <-cc.fragReady:
			if !flush() {
				return
			}
		case frame := <-cc.sendCh:
			if !flush() || !write(frame) {
				return
			}
			if frame.completedRun != "" {
				cc.forgetRun(frame.completedRun)
			}
		}
	}
}

func (s *Server) dispatchRPC(ctx context.Context, cc *clientConn, req Frame) {
	s.handlersMu.RLock()
	handler, ok := s.handlers[req.Method]
	s.handlersMu.RUnlock()
	if !ok {
		s.sendResponse(cc, req.ID, nil, domain.NewDomainError("gateway.dispatch", domain.ErrRPCMethodNotFound, req.Method))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("rpc handler panicked", "method", req.Method, "conn_id", cc.id, "panic", r)
			s.sendResponse(cc, req.ID, nil, domain.NewDomainError("gateway.dispatch", domain.ErrProviderError, "internal error"))
		}
	}()

	result, err := handler(ctx, cc.info, req.Payload)
	if err != nil {
		s.logger.Debug("rpc failed", "method", req.Method, "conn_id", cc.id, "error", err)
	}
	s.sendResponse(cc, req.ID, result, err)
}

func (s *Server) sendResponse(cc *clientConn, id uint64, result json.RawMessage, err error) {
	resp := Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		Payload: result,
	}
	if err != nil {
		resp.Error = err.Error()
		resp.Code = string(domain.ErrorCodeOf(err))
	}
	select {
	case cc.sendCh <- resp:
	case <-cc.done:
	}
}

// sendEvent queues event for cc. Fragments are coalesced and never block;
// every other event waits for queue space until the connection closes.
func (s *Server) sendEvent(cc *clientConn, event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	frame := Frame{Type: FrameTypeEvent, Payload: payload}

	switch event.Type {
	case domain.EventAgentFragment:
		var p domain.AgentFragmentPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return
		}
		cc.queueFragment(event.RunID, p, frame)
		return
	case domain.EventRunCompleted:
		frame.completedRun = event.RunID
	}

	select {
	case cc.sendCh <- frame:
	case <-cc.done:
	}
}

// subscribeRun forwards every event of runID to the calling connection.
// Events the connection already receives as the run's originator are
// skipped. Subscribing twice to the same run is a no-op.
func (s *Server) subscribeRun(ctx context.Context, runID string) error {
	connID, ok := connIDFromContext(ctx)
	if !ok {
		return domain.NewDomainError("gateway.subscribe", domain.ErrInvalidInput, "no connection")
	}
	v, ok := s.clients.Load(connID)
	if !ok {
		return domain.NewDomainError("gateway.subscribe", domain.ErrNotFound, "connection closed")
	}
	cc := v.(*clientConn)

	cc.subsMu.Lock()
	defer cc.subsMu.Unlock()
	if _, exists := cc.subs[runID]; exists {
		return nil
	}
	cc.subs[runID] = s.bus.SubscribeRun(runID, func(ctx context.Context, event domain.Event) {
		if origin, ok := connIDFromContext(ctx); ok && origin == connID {
			return
		}
		s.sendEvent(cc, event)
	})
	return nil
}

// unsubscribeRun reports whether a subscription existed.
func (s *Server) unsubscribeRun(ctx context.Context, runID string) bool {
	connID, ok := connIDFromContext(ctx)
	if !ok {
		return false
	}
	v, ok := s.clients.Load(connID)
	if !ok {
		return false
	}
	cc := v.(*clientConn)

	cc.subsMu.Lock()
	defer cc.subsMu.Unlock()
	unsub, ok := cc.subs[runID]
	if ok {
		unsub()
		delete(cc.subs, runID)
	}
	return ok
}

// requestToken reads the token from the query string or a Bearer header.
func requestToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	token := r.Header.Get("Authorization")
	if len(token) > 7 && token[:7] == "Bearer " {
		return token[7:]
	}
	return ""
}
