package transport

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-otsota/flash"
	"github.com/moffa90/go-otsota/ota"
	"github.com/moffa90/go-otsota/ots"
	"github.com/moffa90/go-otsota/protocol"
)

var testStaging = flash.Partition{Label: "slot1_partition", Offset: 0x10000, Size: 0x10000}

type fakeTrigger struct {
	mu       sync.Mutex
	requests int
	reboots  int
}

func (t *fakeTrigger) RequestUpgrade() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests++
	return nil
}

func (t *fakeTrigger) RebootAfter(time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reboots++
}

type testRig struct {
	dev     *flash.MemDevice
	trigger *fakeTrigger
	machine *ota.Machine
	server  *Server
	url     string
}

func newRig(t *testing.T, opts ...ota.Option) *testRig {
	t.Helper()

	dev := flash.NewMemDevice(0x20000, 4096)
	trigger := &fakeTrigger{}
	machine := ota.New(dev, testStaging, trigger, opts...)
	srv := NewServer()

	id, err := machine.Register(srv)
	require.NoError(t, err)
	require.Equal(t, ots.FirstObjectID, id)

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})

	return &testRig{
		dev:     dev,
		trigger: trigger,
		machine: machine,
		server:  srv,
		url:     "ws" + strings.TrimPrefix(ts.URL, "http"),
	}
}

func (r *testRig) dial(t *testing.T, opts ...ClientOption) *Client {
	t.Helper()
	c, err := Dial(context.Background(), r.url, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func image(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*31 + 7)
	}
	return out
}

func TestUpload(t *testing.T) {
	rig := newRig(t)

	var updates [][2]int
	client := rig.dial(t,
		WithChunkSize(500),
		WithUploadProgress(func(sent, total int) {
			updates = append(updates, [2]int{sent, total})
		}),
	)

	img := image(2345)
	desc, err := client.Upload(context.Background(), img)
	require.NoError(t, err)

	// the registered firmware object took the first ID
	assert.Equal(t, ots.FirstObjectID+1, desc.ID)
	assert.Equal(t, "firmware.bin", desc.Name)
	assert.Equal(t, uint32(2345), desc.Size.Allocated)
	assert.Equal(t, uint32(2345), desc.Size.Current)
	assert.True(t, desc.Properties.Has(ots.PropWrite))

	require.Len(t, updates, 5)
	assert.Equal(t, [2]int{500, 2345}, updates[0])
	assert.Equal(t, [2]int{2345, 2345}, updates[4])

	st := rig.machine.Status()
	assert.Equal(t, ota.StateSuccess, st.State)
	assert.True(t, st.UpgradeRequested)

	staged := rig.dev.Bytes()[testStaging.Offset : testStaging.Offset+int64(len(img))]
	assert.Equal(t, img, staged)
	assert.Equal(t, 1, rig.trigger.requests)
	assert.Equal(t, 1, rig.trigger.reboots)
}

func TestUploadWithRateLimit(t *testing.T) {
	rig := newRig(t)
	client := rig.dial(t, WithChunkSize(100), WithRateLimit(200, 1))

	start := time.Now()
	_, err := client.Upload(context.Background(), image(1000))
	require.NoError(t, err)

	// 10 chunks at 200/s with a burst of 1 take at least 9 intervals
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, ota.StateSuccess, rig.machine.Status().State)
}

func TestUploadCanceled(t *testing.T) {
	rig := newRig(t)
	client := rig.dial(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Upload(ctx, image(100))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ota.StateIdle, rig.machine.Status().State)
}

func TestCreateRefusedAfterCompletion(t *testing.T) {
	rig := newRig(t)
	client := rig.dial(t)
	ctx := context.Background()

	_, err := client.Upload(ctx, image(64))
	require.NoError(t, err)

	_, err = client.Create(ctx, 64)
	require.Error(t, err)

	var pe *protocol.ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "create", pe.Operation)
	assert.Equal(t, byte(protocol.ResultInsufficientResources), pe.StatusCode)
	assert.Contains(t, pe.Message, "reboot pending")
}

func TestWriteErrors(t *testing.T) {
	tests := []struct {
		name   string
		opts   []ota.Option
		setup  func(t *testing.T, rig *testRig, c *Client) ots.ObjectID
		offset uint32
		want   byte
	}{
		{
			name: "unknown object",
			setup: func(t *testing.T, rig *testRig, c *Client) ots.ObjectID {
				return ots.ObjectID(0x999)
			},
			want: protocol.ResultInvalidObject,
		},
		{
			name: "no active transfer",
			setup: func(t *testing.T, rig *testRig, c *Client) ots.ObjectID {
				return ots.FirstObjectID
			},
			want: protocol.ResultProcedureNotPermitted,
		},
		{
			name: "flash not ready",
			setup: func(t *testing.T, rig *testRig, c *Client) ots.ObjectID {
				desc, err := c.Create(context.Background(), 100)
				require.NoError(t, err)
				rig.dev.SetReady(false)
				return desc.ID
			},
			want: protocol.ResultOperationFailed,
		},
		{
			name: "offset gap with strict offsets",
			opts: []ota.Option{ota.WithStrictOffsets(true)},
			setup: func(t *testing.T, rig *testRig, c *Client) ots.ObjectID {
				desc, err := c.Create(context.Background(), 100)
				require.NoError(t, err)
				_, err = c.Write(context.Background(), desc.ID, 0, 90, make([]byte, 10))
				require.NoError(t, err)
				return desc.ID
			},
			offset: 50,
			want:   protocol.ResultInvalidParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newRig(t, tt.opts...)
			client := rig.dial(t)

			id := tt.setup(t, rig, client)
			_, err := client.Write(context.Background(), id, tt.offset, 0, make([]byte, 10))
			require.Error(t, err)

			var pe *protocol.ProtocolError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.want, pe.StatusCode, pe.Error())
		})
	}
}

func TestSecondPeerRefused(t *testing.T) {
	rig := newRig(t)
	first, err := Dial(context.Background(), rig.url)
	require.NoError(t, err)

	_, err = Dial(context.Background(), rig.url)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChannelBusy)

	require.NoError(t, first.Close())

	// the slot frees once the server notices the close
	require.Eventually(t, func() bool {
		c, err := Dial(context.Background(), rig.url)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)
}

func TestInvalidFrame(t *testing.T) {
	rig := newRig(t)

	conn, _, err := websocket.DefaultDialer.Dial(rig.url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02, 0x03}))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	result, data, err := protocol.ParseResponse(msg)
	require.NoError(t, err)
	assert.Equal(t, byte(protocol.ResultInvalidParameter), result)
	assert.Contains(t, string(data), "frame too short")

	frame, err := protocol.BuildFrame(0x42, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)

	result, _, err = protocol.ParseResponse(msg)
	require.NoError(t, err)
	assert.Equal(t, byte(protocol.ResultOpcodeNotSupported), result)
}

func TestCreateUnsupportedType(t *testing.T) {
	rig := newRig(t)

	conn, _, err := websocket.DefaultDialer.Dial(rig.url, nil)
	require.NoError(t, err)
	defer conn.Close()

	frame, err := protocol.BuildCreateCmd(100, ots.ObjectType(0x1234))
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	result, _, err := protocol.ParseResponse(msg)
	require.NoError(t, err)
	assert.Equal(t, byte(protocol.ResultUnsupportedType), result)
	assert.Equal(t, ota.StateIdle, rig.machine.Status().State)
}

func TestServerInit(t *testing.T) {
	srv := NewServer()

	_, err := srv.AddObject(ots.AddParam{Size: 100})
	assert.ErrorIs(t, err, ErrNotInitialized)

	assert.Error(t, srv.Init(ots.Features{}, nil))

	h := ota.New(flash.NewMemDevice(0x20000, 0), testStaging, &fakeTrigger{})
	require.NoError(t, srv.Init(h.Features(), h))
	assert.ErrorIs(t, srv.Init(h.Features(), h), ErrAlreadyInitialized)

	id, err := srv.AddObject(ots.AddParam{Size: 100})
	require.NoError(t, err)
	assert.Equal(t, ots.FirstObjectID, id)

	id, err = srv.AddObject(ots.AddParam{Size: 100})
	require.NoError(t, err)
	assert.Equal(t, ots.FirstObjectID+1, id)
}

func TestServerRefusesWhenUninitializedOrClosed(t *testing.T) {
	srv := NewServer()
	ts := httptest.NewServer(srv)
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	_, err := Dial(context.Background(), url)
	assert.ErrorIs(t, err, ErrChannelBusy)

	require.NoError(t, srv.Close())
	h := ota.New(flash.NewMemDevice(0x20000, 0), testStaging, &fakeTrigger{})
	assert.ErrorIs(t, srv.Init(h.Features(), h), ErrServerClosed)
}

func TestResultFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want byte
	}{
		{"resource unavailable", &ota.ResourceUnavailableError{Reason: "x"}, protocol.ResultInsufficientResources},
		{"session state", &ota.SessionStateError{State: ota.StateIdle}, protocol.ResultProcedureNotPermitted},
		{"session expired", &ota.SessionExpiredError{}, protocol.ResultProcedureNotPermitted},
		{"offset mismatch", &ota.OffsetMismatchError{}, protocol.ResultInvalidParameter},
		{"stream write", &ota.StreamWriteError{Err: errors.New("x")}, protocol.ResultOperationFailed},
		{"not ready", &ota.DestinationNotReadyError{Err: flash.ErrNotReady}, protocol.ResultOperationFailed},
		{"canceled", context.Canceled, protocol.ResultChannelUnavailable},
		{"other", errors.New("x"), protocol.ResultOperationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resultFor(tt.err))
		})
	}
}
