package controller

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scara/host/serial"
	"scara/motion"
)

func TestSendAngles(t *testing.T) {
	port := serial.NewMockPort()
	link := New(port)

	err := link.SendAngles(context.Background(), motion.JointAngles{Theta1: 60.947, Theta2: -32.2})
	require.NoError(t, err)
	assert.Equal(t, []string{"60.95,-32.20\n"}, port.Lines())
}

func TestSendFailureKeepsLinkUsable(t *testing.T) {
	port := serial.NewMockPort()
	link := New(port)
	ctx := context.Background()

	port.FailNext(errors.New("device unplugged"))
	err := link.Send(ctx, []byte("1.00,2.00\n"))

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "write", terr.Op)
	assert.ErrorContains(t, err, "device unplugged")
	assert.True(t, link.IsConnected())

	require.NoError(t, link.Send(ctx, []byte("3.00,4.00\n")))
	assert.Equal(t, []string{"3.00,4.00\n"}, port.Lines())
}

func TestShortWriteIsTransportError(t *testing.T) {
	port := serial.NewMockPort()
	port.ShortWrite = true
	link := New(port)

	err := link.Send(context.Background(), []byte("1.00,2.00\n"))
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

func TestSendAfterClose(t *testing.T) {
	port := serial.NewMockPort()
	link := New(port)

	require.NoError(t, link.Close())
	require.NoError(t, link.Close())
	assert.True(t, port.IsClosed())
	assert.False(t, link.IsConnected())

	err := link.Send(context.Background(), []byte("1.00,2.00\n"))
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSendHonoursCancelledContext(t *testing.T) {
	port := serial.NewMockPort()
	link := New(port)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := link.Send(ctx, []byte("1.00,2.00\n"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, port.Lines())
}

func TestSendCancelledWhileWaitingForLink(t *testing.T) {
	port := serial.NewMockPort()
	port.WriteDelay = 100 * time.Millisecond
	link := New(port)

	first := make(chan error, 1)
	go func() { first <- link.Send(context.Background(), []byte("1.00,1.00\n")) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	second := make(chan error, 1)
	go func() { second <- link.Send(ctx, []byte("2.00,2.00\n")) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	require.NoError(t, <-first)
	assert.ErrorIs(t, <-second, context.Canceled)
	assert.Equal(t, []string{"1.00,1.00\n"}, port.Lines())
}

func TestConcurrentSendsAreSerialized(t *testing.T) {
	port := serial.NewMockPort()
	port.WriteDelay = 2 * time.Millisecond
	link := New(port)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, link.Send(context.Background(), []byte("1.00,2.00\n")))
		}()
	}
	wg.Wait()

	assert.Len(t, port.Lines(), 8)
	assert.False(t, port.Overlapped())
}

func TestSettleWaitsForDelay(t *testing.T) {
	mock := clock.NewMock()
	link := New(serial.NewMockPort(), WithClock(mock), WithSettle(2*time.Second))

	done := make(chan error, 1)
	go func() { done <- link.Settle(context.Background()) }()

	mock.Add(1999 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("Settle returned before the delay elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case err := <-done:
			require.NoError(t, err)
			return
		case <-deadline:
			t.Fatal("Settle never returned")
		default:
			mock.Add(100 * time.Millisecond)
		}
	}
}

func TestSettleCancelled(t *testing.T) {
	link := New(serial.NewMockPort(), WithClock(clock.NewMock()), WithSettle(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := link.Settle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenSimulatedController(t *testing.T) {
	cfg := serial.DefaultConfig("sim0")
	cfg.Driver = serial.DriverSim

	link, err := Open(context.Background(), cfg, WithSettle(0))
	require.NoError(t, err)
	defer link.Close()

	assert.Equal(t, "sim0", link.Device())
	require.NoError(t, link.SendAngles(context.Background(), motion.JointAngles{Theta1: 1, Theta2: 2}))
}

func TestOpenFailure(t *testing.T) {
	cfg := serial.DefaultConfig("/dev/null")
	cfg.Driver = "nope"

	_, err := Open(context.Background(), cfg)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "open", terr.Op)
	assert.Equal(t, "/dev/null", terr.Device)
}
