package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	errx "github.com/bert-suite/server/internal/core/error"
	"github.com/bert-suite/server/internal/suite/model"
	"github.com/bert-suite/server/internal/suite/shell"
	logx "github.com/bert-suite/server/pkg/logger"
)

const (
	sendBuffer   = 128
	writeTimeout = 5 * time.Second
)

// Handler serves one RPC method for a connection.
type Handler func(ctx context.Context, c *Conn, payload json.RawMessage) (any, error)

// Conn is one browser connection and its shell session.
type Conn struct {
	id        uint64
	ws        *websocket.Conn
	session   *shell.Session
	limiter   *rate.Limiter
	sendCh    chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Conn) Session() *shell.Session {
	return c.session
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// enqueue never blocks. Events are full snapshots, so a dropped frame is
// recovered by the next one or by suite.state.
func (c *Conn) enqueue(f Frame) {
	select {
	case <-c.done:
	case c.sendCh <- f:
	default:
		logx.Warn().Uint64("conn_id", c.id).Str("type", string(f.Type)).Str("method", f.Method).Msg("gateway: dropped frame for slow client")
	}
}

// Server is the WebSocket gateway driving one shell session per connection.
type Server struct {
	cfg      model.GatewayConfig
	deps     shell.Deps
	handlers map[string]Handler
	limited  map[string]bool

	httpSrv *http.Server
	clients sync.Map // conn id -> *Conn
	nextID  atomic.Uint64
}

func NewServer(cfg model.GatewayConfig, deps shell.Deps) *Server {
	s := &Server{
		cfg:      cfg,
		deps:     deps,
		handlers: make(map[string]Handler),
		limited:  make(map[string]bool),
	}
	s.registerHandlers()
	s.httpSrv = &http.Server{Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	return s
}

// Handle registers h for method. Limited methods consume a token from the
// connection's rate limiter. Must be called before serving.
func (s *Server) Handle(method string, limited bool, h Handler) {
	s.handlers[method] = h
	s.limited[method] = limited
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logx.Info().Str("addr", ln.Addr().String()).Msg("gateway started")

	go func() {
		<-ctx.Done()
		if err := s.Stop(context.Background()); err != nil {
			logx.Warn().Err(err).Msg("gateway shutdown")
		}
	}()

	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop closes every connection and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.clients.Range(func(key, value any) bool {
		c := value.(*Conn)
		c.close()
		c.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.AllowedOrigins})
	if err != nil {
		logx.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	if s.cfg.ReadLimit > 0 {
		ws.SetReadLimit(s.cfg.ReadLimit)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &Conn{
		id:      s.nextID.Add(1),
		ws:      ws,
		limiter: rate.NewLimiter(rate.Limit(float64(s.cfg.RatePerMin)/60.0), s.cfg.Burst),
		sendCh:  make(chan Frame, sendBuffer),
		done:    make(chan struct{}),
	}
	c.session = shell.NewSession(ctx, s.deps, func(e model.Event) { s.pushEvent(c, e) })
	s.clients.Store(c.id, c)
	logx.Info().Uint64("conn_id", c.id).Str("session_id", c.session.ID()).Msg("gateway client connected")

	go s.writeLoop(c)
	s.readLoop(ctx, c)

	c.close()
	c.session.Close()
	s.clients.Delete(c.id)
	ws.Close(websocket.StatusNormalClosure, "")
	logx.Info().Uint64("conn_id", c.id).Str("session_id", c.session.ID()).Msg("gateway client disconnected")
}

func (s *Server) readLoop(ctx context.Context, c *Conn) {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		var frame Frame
		if err := wsjson.Read(ctx, c.ws, &frame); err != nil {
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		go s.dispatch(ctx, c, frame)
	}
}

func (s *Server) writeLoop(c *Conn) {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := wsjson.Write(ctx, c.ws, frame)
			cancel()
			if err != nil {
				logx.Debug().Err(err).Uint64("conn_id", c.id).Msg("gateway write failed")
				c.close()
				return
			}
		}
	}
}

func (s *Server) dispatch(ctx context.Context, c *Conn, req Frame) {
	h, ok := s.handlers[req.Method]
	if !ok {
		s.respond(c, req, nil, errx.NotFound(errx.ErrUnknownMethod, fmt.Sprintf("Unknown method %q.", req.Method)))
		return
	}
	if s.limited[req.Method] && !c.limiter.Allow() {
		s.respond(c, req, nil, errx.New(errx.ErrRateLimited, http.StatusTooManyRequests, "Too many requests. Please slow down."))
		return
	}
	result, err := h(ctx, c, req.Payload)
	s.respond(c, req, result, err)
}

func (s *Server) respond(c *Conn, req Frame, result any, err error) {
	resp := Frame{Type: FrameTypeResponse, ID: req.ID, Method: req.Method}
	if err != nil {
		status := errx.StatusOf(err)
		if status >= http.StatusInternalServerError {
			logx.Warn().Err(err).Str("method", req.Method).Str("session_id", c.session.ID()).Msg("rpc failed")
		}
		resp.Error = &FrameError{Status: status, Message: errx.MessageOf(err)}
		c.enqueue(resp)
		return
	}
	if result != nil {
		payload, mErr := json.Marshal(result)
		if mErr != nil {
			resp.Error = &FrameError{Status: http.StatusInternalServerError, Message: errx.SystemErrorMessage}
			c.enqueue(resp)
			return
		}
		resp.Payload = payload
	}
	c.enqueue(resp)
}

func (s *Server) pushEvent(c *Conn, e model.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		logx.Warn().Err(err).Str("kind", string(e.Kind)).Msg("gateway: event marshal failed")
		return
	}
	c.enqueue(Frame{Type: FrameTypeEvent, Method: string(e.Kind), Payload: payload})
}
