package bridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const sentence = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A\r\n"

func TestReaderIngest(t *testing.T) {
	src := &fakeSource{}
	ring := NewRingBuffer(256)
	status := NewStatus()
	r := NewReader(src, ring, status, 16, zap.NewNop())

	assert.Equal(t, 0, r.Ingest(), "无数据时不是错误")

	src.Feed(sentence)
	n := r.Ingest()

	assert.Equal(t, len(sentence), n)
	assert.Equal(t, sentence, string(ring.Drain(nil)))
	assert.Equal(t, uint64(len(sentence)), status.Snapshot().BytesIn)
	assert.Equal(t, "none", status.Snapshot().LastError)
}

func TestReaderBoundedPerTick(t *testing.T) {
	src := &fakeSource{}
	ring := NewRingBuffer(8)
	r := NewReader(src, ring, NewStatus(), 4, zap.NewNop())

	src.Feed("0123456789")
	assert.Equal(t, 8, r.Ingest())
	assert.Equal(t, "01234567", string(ring.Drain(nil)))
	assert.Equal(t, 2, r.Ingest())
	assert.Equal(t, "89", string(ring.Drain(nil)))
}

func TestReaderOverflowCounted(t *testing.T) {
	src := &fakeSource{}
	ring := NewRingBuffer(8)
	status := NewStatus()
	r := NewReader(src, ring, status, 8, zap.NewNop())

	var last uint64
	for i := 0; i < 5; i++ {
		src.Feed("abcdefgh")
		assert.Equal(t, 8, r.Ingest())
		ovf := status.Snapshot().Overflow
		if i > 0 {
			assert.Greater(t, ovf, last)
		}
		last = ovf
	}
	assert.Equal(t, "abcdefgh", string(ring.Drain(nil)))
	assert.Equal(t, uint64(32), last)
}

func TestReaderSourceDropsCounted(t *testing.T) {
	src := &fakeSource{dropped: 7}
	status := NewStatus()
	r := NewReader(src, NewRingBuffer(8), status, 8, zap.NewNop())

	r.Ingest()
	assert.Equal(t, uint64(7), status.Snapshot().Overflow)
	r.Ingest()
	assert.Equal(t, uint64(7), status.Snapshot().Overflow)
}

func TestReaderFaultDoesNotHalt(t *testing.T) {
	src := &fakeSource{}
	ring := NewRingBuffer(64)
	status := NewStatus()
	r := NewReader(src, ring, status, 16, zap.NewNop())

	src.Fail(errors.New("frame error"))
	assert.Equal(t, 0, r.Ingest())
	assert.Equal(t, "serial_read", status.Snapshot().LastError)

	src.Feed("$GP")
	assert.Equal(t, 3, r.Ingest())
	assert.Equal(t, "$GP", string(ring.Drain(nil)))
}
