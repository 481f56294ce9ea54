package host

import (
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionChecker_SignalMarksConnected(t *testing.T) {
	c := NewConnectionChecker(10*time.Millisecond, 5*time.Millisecond, nil)
	assert.False(t, c.IsConnected())
	c.SignalConnectionExist()
	assert.True(t, c.IsConnected())
}

func TestConnectionChecker_FiresCallbackOnTimeout(t *testing.T) {
	var fired int32
	c := NewConnectionChecker(5*time.Millisecond, 5*time.Millisecond, func() {
		atomic.StoreInt32(&fired, 1)
	})
	c.SignalConnectionExist()
	c.Start()
	defer c.Stop()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&fired) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("disconnect callback never fired")
}

func TestConnectionChecker_RepeatedSignalsSuppressCallback(t *testing.T) {
	var fired int32
	c := NewConnectionChecker(20*time.Millisecond, 5*time.Millisecond, func() {
		atomic.StoreInt32(&fired, 1)
	})
	c.SignalConnectionExist()
	c.Start()
	defer c.Stop()

	stop := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(stop) {
		c.SignalConnectionExist()
		time.Sleep(5 * time.Millisecond)
	}
	assert.EqualValues(t, 0, atomic.LoadInt32(&fired))
}

func TestCheckerClient_SignalAndIsConnectedRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	checker := NewConnectionChecker(time.Second, time.Second, nil)
	go ServeChecker(ln, checker, slog.Default())

	client, err := DialChecker(ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Signal())

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if checker.IsConnected() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.True(t, checker.IsConnected())

	connected, err := client.IsConnected()
	require.NoError(t, err)
	assert.True(t, connected)
}
