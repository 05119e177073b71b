package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/moffa90/go-otsota/ota"
	"github.com/moffa90/go-otsota/ots"
	"github.com/moffa90/go-otsota/protocol"
)

var (
	ErrNotInitialized     = errors.New("object transfer service not initialized")
	ErrAlreadyInitialized = errors.New("object transfer service already initialized")
	ErrServerClosed       = errors.New("object transfer server closed")
)

// Server is an object transfer service reachable over a websocket. Each
// binary message is one protocol frame; every command gets exactly one
// response.
//
// A single peer is served at a time, matching one BLE connection. Further
// connection attempts are refused with 503 until the active peer leaves.
type Server struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	handler  ots.Handler
	features ots.Features
	objects  map[ots.ObjectID]ots.AddParam
	nextID   ots.ObjectID
	conn     *websocket.Conn
	cancel   context.CancelFunc
	closed   bool
}

var _ ots.Server = (*Server)(nil)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger used by the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBufferSizes sets the websocket read and write buffer sizes.
func WithBufferSizes(read, write int) ServerOption {
	return func(s *Server) {
		s.upgrader.ReadBufferSize = read
		s.upgrader.WriteBufferSize = write
	}
}

// NewServer creates a Server. Init must be called before it accepts peers.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		logger:  slog.New(slog.DiscardHandler),
		objects: make(map[ots.ObjectID]ots.AddParam),
		nextID:  ots.FirstObjectID,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  protocol.DefaultChunkSize * 4,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			s.logger.Debug("websocket CheckOrigin called", "origin", r.Header.Get("Origin"), "host", r.Host)
			return true
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init enables features and routes object events to h.
func (s *Server) Init(features ots.Features, h ots.Handler) error {
	if h == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.handler != nil {
		return ErrAlreadyInitialized
	}

	s.handler = h
	s.features = features
	s.logger.Info("object transfer service initialized",
		"oacp_create", features.SupportsOACP(ots.OACPCreate),
		"oacp_write", features.SupportsOACP(ots.OACPWrite),
		"oacp_read", features.SupportsOACP(ots.OACPRead),
		"olcp_goto", features.SupportsOLCP(ots.OLCPGoTo),
	)
	return nil
}

// AddObject registers an object and returns its ID.
func (s *Server) AddObject(param ots.AddParam) (ots.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handler == nil {
		return 0, ErrNotInitialized
	}

	id := s.allocateID(param)
	s.logger.Info("object added", "object_id", id.String(), "size", param.Size)
	return id, nil
}

// ServeHTTP upgrades the request to a websocket and serves the peer until it
// disconnects or the server is closed.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		http.Error(w, "Server closed", http.StatusServiceUnavailable)
		return
	case s.handler == nil:
		s.mu.Unlock()
		http.Error(w, "Service not initialized", http.StatusServiceUnavailable)
		return
	case s.conn != nil:
		s.mu.Unlock()
		s.logger.Warn("transfer channel busy, rejecting connection", "remote_addr", r.RemoteAddr)
		http.Error(w, "Transfer channel busy", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("failed to upgrade websocket connection", "error", err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.conn = conn
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("peer connected", "remote_addr", conn.RemoteAddr().String())
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel()
		conn.Close()
		s.logger.Info("peer disconnected", "remote_addr", conn.RemoteAddr().String())
	}()

	s.serve(ctx, conn)
}

// Close disconnects the active peer and refuses new ones.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Server) serve(ctx context.Context, conn *websocket.Conn) {
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				s.logger.Error("error reading frame", "error", err)
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			s.logger.Debug("ignoring non-binary message", "type", messageType)
			continue
		}

		resp := s.dispatch(ctx, message)
		if err := conn.WriteMessage(websocket.BinaryMessage, resp); err != nil {
			s.logger.Error("error writing response", "error", err)
			return
		}
	}
}

// dispatch decodes one command frame, hands it to the handler and encodes
// the response frame.
func (s *Server) dispatch(ctx context.Context, frame []byte) []byte {
	opcode, data, err := protocol.ParseCommand(frame)
	if err != nil {
		s.logger.Debug("invalid frame", "error", err)
		return errorFrame(protocol.ResultInvalidParameter, err)
	}

	s.mu.Lock()
	h := s.handler
	features := s.features
	s.mu.Unlock()

	switch {
	case opcode == protocol.OpCreate && features.SupportsOACP(ots.OACPCreate):
		return s.handleCreate(ctx, h, data)
	case opcode == protocol.OpWrite && features.SupportsOACP(ots.OACPWrite):
		return s.handleWrite(ctx, h, data)
	default:
		return errorFrame(protocol.ResultOpcodeNotSupported, fmt.Errorf("opcode 0x%02X not supported", opcode))
	}
}

func (s *Server) handleCreate(ctx context.Context, h ots.Handler, data []byte) []byte {
	req, err := protocol.ParseCreateCmd(data)
	if err != nil {
		return errorFrame(protocol.ResultInvalidParameter, err)
	}
	if req.Type != ots.TypeUnspecified {
		return errorFrame(protocol.ResultUnsupportedType, fmt.Errorf("object type 0x%04X not supported", uint16(req.Type)))
	}

	s.mu.Lock()
	id := s.nextID
	s.mu.Unlock()

	desc, err := h.ObjectCreated(ctx, id, req.Size)
	if err != nil {
		s.logger.Info("object create refused", "object_id", id.String(), "size", req.Size, "error", err)
		return errorFrame(resultFor(err), err)
	}

	s.mu.Lock()
	s.allocateID(ots.AddParam{Size: req.Size, Type: req.Type})
	s.mu.Unlock()

	frame, err := protocol.BuildCreateResponse(desc)
	if err != nil {
		return errorFrame(protocol.ResultOperationFailed, err)
	}
	return frame
}

func (s *Server) handleWrite(ctx context.Context, h ots.Handler, data []byte) []byte {
	req, err := protocol.ParseWriteCmd(data)
	if err != nil {
		return errorFrame(protocol.ResultInvalidParameter, err)
	}

	s.mu.Lock()
	_, known := s.objects[req.ObjectID]
	s.mu.Unlock()
	if !known {
		return errorFrame(protocol.ResultInvalidObject, fmt.Errorf("object %s does not exist", req.ObjectID))
	}

	n, err := h.ObjectWrite(ctx, req.ObjectID, req.Offset, req.Data, req.Remaining)
	if err != nil {
		return errorFrame(resultFor(err), err)
	}

	frame, err := protocol.BuildWriteResponse(uint32(n))
	if err != nil {
		return errorFrame(protocol.ResultOperationFailed, err)
	}
	return frame
}

// allocateID must be called with s.mu held.
func (s *Server) allocateID(param ots.AddParam) ots.ObjectID {
	id := s.nextID
	s.objects[id] = param
	s.nextID++
	return id
}

// resultFor maps a handler error to the result code reported to the peer.
func resultFor(err error) byte {
	var (
		stateErr   *ota.SessionStateError
		expiredErr *ota.SessionExpiredError
		offsetErr  *ota.OffsetMismatchError
	)

	switch {
	case ota.IsResourceUnavailable(err):
		return protocol.ResultInsufficientResources
	case errors.As(err, &stateErr), errors.As(err, &expiredErr):
		return protocol.ResultProcedureNotPermitted
	case errors.As(err, &offsetErr):
		return protocol.ResultInvalidParameter
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return protocol.ResultChannelUnavailable
	default:
		return protocol.ResultOperationFailed
	}
}

func errorFrame(result byte, err error) []byte {
	frame, buildErr := protocol.BuildErrorResponse(result, err.Error())
	if buildErr != nil {
		// only reachable with ResultSuccess
		frame, _ = protocol.BuildErrorResponse(protocol.ResultOperationFailed, err.Error())
	}
	return frame
}
