package network

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/boat-telnet/internal/config"
	"github.com/wfunc/boat-telnet/internal/errors"
)

func TestAcceptorHandsOffConnections(t *testing.T) {
	var mu sync.Mutex
	var got []net.Conn

	a := NewAcceptor("127.0.0.1:0", func(c net.Conn) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))

	for i := 0; i < 3; i++ {
		c, err := net.Dial("tcp", a.Addr().String())
		require.NoError(t, err)
		defer c.Close()
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(3), a.Accepted())

	cancel()
	a.Wait()
	_, err := net.DialTimeout("tcp", a.Addr().String(), 200*time.Millisecond)
	assert.Error(t, err)

	mu.Lock()
	for _, c := range got {
		c.Close()
	}
	mu.Unlock()
}

func TestAcceptorListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	a := NewAcceptor(ln.Addr().String(), func(net.Conn) {}, nil)
	err = a.Start(context.Background())
	assert.True(t, errors.Is(err, errors.ErrListen))
	assert.NoError(t, a.Close())
}

func TestUDPOpener(t *testing.T) {
	rx, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer rx.Close()

	open := NewUDPOpener(&config.UDPConfig{
		LocalAddr:     "127.0.0.1:0",
		BroadcastAddr: "127.0.0.1",
		Port:          rx.LocalAddr().(*net.UDPAddr).Port,
	})
	pc, dst, err := open()
	require.NoError(t, err)
	defer pc.Close()

	_, err = pc.WriteTo([]byte("$GPHDT,1.0,T*1C\r\n"), dst)
	require.NoError(t, err)

	rx.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, _, err := rx.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "$GPHDT,1.0,T*1C\r\n", string(buf[:n]))
}

func TestUDPOpenerBadTarget(t *testing.T) {
	open := NewUDPOpener(&config.UDPConfig{BroadcastAddr: "not a host", Port: 10110})
	_, _, err := open()
	assert.True(t, errors.Is(err, errors.ErrUDPOpen))
}
