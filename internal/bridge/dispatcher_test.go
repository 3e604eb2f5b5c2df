package bridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *RingBuffer, *Registry, *Status) {
	t.Helper()
	r, status, _ := newTestRegistry(4)
	ring := NewRingBuffer(128)
	return NewDispatcher(ring, r, status, zap.NewNop()), ring, r, status
}

func TestDispatchSameOrderToAllSinks(t *testing.T) {
	d, ring, r, status := newTestDispatcher(t)
	a, b := newFakeTCP("a"), newFakeTCP("b")
	require.NoError(t, r.AddTCPSink(a))
	require.NoError(t, r.AddTCPSink(b))

	ring.Write([]byte("$GPGGA,1"))
	assert.Equal(t, 8, d.Dispatch())
	ring.Write([]byte("$GPGGA,2"))
	d.Dispatch()

	assert.Equal(t, "$GPGGA,1$GPGGA,2", a.Joined())
	assert.Equal(t, a.got, b.got)
	assert.Equal(t, uint64(32), status.Snapshot().BytesOutTCP)
	assert.Equal(t, 0, ring.Len())
}

func TestDispatchEmptyRingWritesNothing(t *testing.T) {
	d, _, r, _ := newTestDispatcher(t)
	a := newFakeTCP("a")
	require.NoError(t, r.AddTCPSink(a))

	assert.Equal(t, 0, d.Dispatch())
	assert.Empty(t, a.got)
}

func TestDispatchFullBufferDropsOnlyThatSink(t *testing.T) {
	d, ring, r, status := newTestDispatcher(t)
	slow, fast := newFakeTCP("slow"), newFakeTCP("fast")
	require.NoError(t, r.AddTCPSink(slow))
	require.NoError(t, r.AddTCPSink(fast))

	ring.Write([]byte("AB"))
	d.Dispatch()

	slow.err = ErrSendBufferFull
	ring.Write([]byte("CD"))
	d.Dispatch()

	slow.err = nil
	ring.Write([]byte("EF"))
	d.Dispatch()

	assert.Equal(t, "ABCDEF", fast.Joined())
	assert.Equal(t, "ABEF", slow.Joined(), "丢弃不会打乱剩余字节的顺序")
	assert.Equal(t, uint64(1), status.Snapshot().TCPDrops)
	assert.Empty(t, d.TakeRemovals())
	assert.Equal(t, 2, r.TCPCount())
}

func TestDispatchClosedSinkRequestsRemoval(t *testing.T) {
	d, ring, r, _ := newTestDispatcher(t)
	dead := newFakeTCP("dead")
	dead.err = ErrSinkClosed
	require.NoError(t, r.AddTCPSink(dead))

	ring.Write([]byte("x"))
	d.Dispatch()

	assert.Equal(t, 1, r.TCPCount(), "本轮不修改注册表")
	removals := d.TakeRemovals()
	require.Len(t, removals, 1)
	assert.Equal(t, "dead", removals[0].ID())
	assert.Empty(t, d.TakeRemovals())
}

func TestDispatchUDPFailureNeverRemoves(t *testing.T) {
	d, ring, r, status := newTestDispatcher(t)
	require.NoError(t, r.SetUDPEnabled(true))
	udp := r.udp.(*fakeSink)
	udp.err = errors.New("no route to host")

	ring.Write([]byte("x"))
	d.Dispatch()

	assert.Empty(t, d.TakeRemovals())
	assert.True(t, r.UDPEnabled())
	snap := status.Snapshot()
	assert.Equal(t, uint64(1), snap.UDPErrors)
	assert.Equal(t, "udp_send", snap.LastError)

	udp.err = nil
	ring.Write([]byte("yz"))
	d.Dispatch()
	assert.Equal(t, "yz", udp.Joined())
	assert.Equal(t, uint64(2), status.Snapshot().BytesOutUDP)
}
