package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/moffa90/go-otsota/ots"
	"github.com/moffa90/go-otsota/protocol"
)

// ErrChannelBusy is returned by Dial when the server is already serving
// another peer.
var ErrChannelBusy = errors.New("transfer channel busy")

// UploadProgress is called after every chunk the server accepted.
type UploadProgress func(sent, total int)

// Client uploads objects to a Server.
//
// A Client is not safe for concurrent use; commands are strictly
// request/response.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	chunkSize int
	timeout   time.Duration
	limiter   *rate.Limiter
	progress  UploadProgress
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger used by the client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithChunkSize sets the payload size of each Write command.
// Default is protocol.DefaultChunkSize.
func WithChunkSize(size int) ClientOption {
	return func(c *Client) {
		if size > 0 && size <= protocol.MaxChunkSize {
			c.chunkSize = size
		}
	}
}

// WithResponseTimeout sets how long to wait for each response.
// Default is 10 seconds.
func WithResponseTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRateLimit paces Write commands to chunksPerSecond, allowing bursts of
// burst chunks. Zero disables pacing.
//
// Example:
//
//	client, err := transport.Dial(ctx, url, transport.WithRateLimit(50, 4))
func WithRateLimit(chunksPerSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if chunksPerSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(chunksPerSecond), burst)
	}
}

// WithUploadProgress sets a callback invoked as Upload advances.
func WithUploadProgress(progress UploadProgress) ClientOption {
	return func(c *Client) {
		c.progress = progress
	}
}

// Dial connects to the server at url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		logger:    slog.New(slog.DiscardHandler),
		chunkSize: protocol.DefaultChunkSize,
		timeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			c.logger.Error("websocket dial error with response", "url", url, "status", resp.Status, "error", err)
			if resp.StatusCode == http.StatusServiceUnavailable {
				return nil, fmt.Errorf("dial %s: %w", url, ErrChannelBusy)
			}
			return nil, fmt.Errorf("dial %s (status: %s): %w", url, resp.Status, err)
		}
		c.logger.Error("websocket dial error", "url", url, "error", err)
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c.conn = conn
	c.logger.Info("connected", "url", url)
	return c, nil
}

// Create asks the server to create an object of size bytes and returns the
// descriptor it reported.
func (c *Client) Create(ctx context.Context, size uint32) (*ots.ObjectDescriptor, error) {
	frame, err := protocol.BuildCreateCmd(size, ots.TypeUnspecified)
	if err != nil {
		return nil, err
	}

	data, err := c.roundTrip(ctx, "create", frame)
	if err != nil {
		return nil, err
	}

	desc, err := protocol.ParseCreateResponse(data)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	c.logger.Debug("object created", "object_id", desc.ID.String(), "allocated", desc.Size.Allocated)
	return desc, nil
}

// Write sends one chunk of object id and returns the number of bytes the
// server accepted.
func (c *Client) Write(ctx context.Context, id ots.ObjectID, offset, remaining uint32, chunk []byte) (uint32, error) {
	frame, err := protocol.BuildWriteCmd(id, offset, remaining, chunk)
	if err != nil {
		return 0, err
	}

	data, err := c.roundTrip(ctx, "write", frame)
	if err != nil {
		return 0, err
	}

	accepted, err := protocol.ParseWriteResponse(data)
	if err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}
	return accepted, nil
}

// Upload creates an object for image and writes it in chunks. The last chunk
// carries remaining = 0, after which the server finalizes the transfer.
func (c *Client) Upload(ctx context.Context, image []byte) (*ots.ObjectDescriptor, error) {
	if uint64(len(image)) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("image of %d bytes exceeds the 32-bit object size", len(image))
	}
	total := len(image)

	desc, err := c.Create(ctx, uint32(total))
	if err != nil {
		return nil, err
	}

	c.logger.Info("uploading", "object_id", desc.ID.String(), "bytes", total, "chunk_size", c.chunkSize)

	offset := 0
	for {
		end := offset + c.chunkSize
		if end > total {
			end = total
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return desc, fmt.Errorf("upload paused at offset %d: %w", offset, err)
			}
		}

		chunk := image[offset:end]
		accepted, err := c.Write(ctx, desc.ID, uint32(offset), uint32(total-end), chunk)
		if err != nil {
			return desc, fmt.Errorf("upload at offset %d: %w", offset, err)
		}
		if int(accepted) != len(chunk) {
			return desc, fmt.Errorf("upload at offset %d: server accepted %d of %d bytes", offset, accepted, len(chunk))
		}

		offset = end
		desc.Size.Current = uint32(offset)
		if c.progress != nil {
			c.progress(offset, total)
		}
		if offset >= total {
			break
		}
	}

	c.logger.Info("upload complete", "object_id", desc.ID.String(), "bytes", total)
	return desc, nil
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	if err != nil {
		c.logger.Debug("error sending close message", "error", err)
	}
	return c.conn.Close()
}

func (c *Client) roundTrip(ctx context.Context, op string, frame []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, fmt.Errorf("%s: send: %w", op, err)
	}

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("%s: receive: %w", op, err)
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		result, data, err := protocol.ParseResponse(message)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if result != protocol.ResultSuccess {
			return nil, &protocol.ProtocolError{Operation: op, StatusCode: result, Message: string(data)}
		}
		return data, nil
	}
}
