package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBufferFIFO(t *testing.T) {
	r := NewRingBuffer(16)

	assert.Equal(t, 0, r.Write([]byte("abc")))
	assert.Equal(t, 0, r.Write([]byte("def")))
	assert.Equal(t, 6, r.Len())
	assert.Equal(t, 10, r.Free())

	assert.Equal(t, "abcdef", string(r.Drain(nil)))
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Drain(nil))
}

func TestRingBufferWrapAround(t *testing.T) {
	r := NewRingBuffer(5)
	r.Write([]byte("abc"))
	r.Drain(nil)

	assert.Equal(t, 0, r.Write([]byte("defgh")))
	assert.Equal(t, "defgh", string(r.Drain(nil)))
}

func TestRingBufferOverflow(t *testing.T) {
	tests := []struct {
		name    string
		cap     int
		writes  []string
		dropped int
		want    string
	}{
		{"刚好写满", 4, []string{"ab", "cd"}, 0, "abcd"},
		{"丢弃最旧字节", 4, []string{"abc", "def"}, 2, "cdef"},
		{"单次超过容量", 4, []string{"ab", "123456"}, 4, "3456"},
		{"回绕后溢出", 5, []string{"abcd", "efg"}, 2, "cdefg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRingBuffer(tt.cap)
			dropped := 0
			for _, w := range tt.writes {
				dropped += r.Write([]byte(w))
			}
			assert.Equal(t, tt.dropped, dropped)
			assert.Equal(t, tt.want, string(r.Drain(nil)))
		})
	}
}

func TestRingBufferOverflowNeverBlocks(t *testing.T) {
	r := NewRingBuffer(8)
	total := 0
	for i := 0; i < 100; i++ {
		d := r.Write([]byte("xyz"))
		if i >= 3 {
			assert.Greater(t, d, 0)
		}
		total += d
	}
	assert.Equal(t, 8, r.Len())
	assert.Equal(t, 300-8, total)
}

func TestRingBufferDrainReusesDst(t *testing.T) {
	r := NewRingBuffer(8)
	buf := make([]byte, 0, 8)

	r.Write([]byte("1234"))
	out := r.Drain(buf)
	assert.Equal(t, "1234", string(out))
	assert.Equal(t, &buf[:1][0], &out[0])

	r.Write([]byte("56"))
	r.Reset()
	assert.Equal(t, 0, r.Len())
}

func TestRingBufferPartialRead(t *testing.T) {
	r := NewRingBuffer(6)
	r.Write([]byte("abcd"))
	p := make([]byte, 3)

	assert.Equal(t, 3, r.Read(p))
	assert.Equal(t, "abc", string(p))

	r.Write([]byte("efgh"))
	assert.Equal(t, 3, r.Read(p))
	assert.Equal(t, "def", string(p))
	assert.Equal(t, 2, r.Read(p))
	assert.Equal(t, "gh", string(p[:2]))
	assert.Equal(t, 0, r.Read(p))
}
