package hardware

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/boat-telnet/internal/errors"
	"go.uber.org/zap"
)

// pipePort 用io.Pipe模拟的串口，测试端通过 w 写入“串口数据”
type pipePort struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func newPipePort() *pipePort {
	r, w := io.Pipe()
	return &pipePort{r: r, w: w}
}

func (p *pipePort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *pipePort) Flush() error                { return nil }
func (p *pipePort) Close() error                { return p.r.Close() }

// portQueue 依次返回预先准备的串口
type portQueue struct {
	mu    sync.Mutex
	ports []*pipePort
	fails int
	calls int
}

func (q *portQueue) open() (SerialPort, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.fails > 0 {
		q.fails--
		return nil, errors.New("no such file or directory")
	}
	if len(q.ports) == 0 {
		return nil, errors.New("no more ports")
	}
	p := q.ports[0]
	q.ports = q.ports[1:]
	return p, nil
}

func (q *portQueue) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

func readAll(t *testing.T, s *PortSource, want int) string {
	t.Helper()
	var got []byte
	buf := make([]byte, 64)
	require.Eventually(t, func() bool {
		n, err := s.TryRead(buf)
		if err != nil {
			return false
		}
		got = append(got, buf[:n]...)
		return len(got) >= want
	}, 2*time.Second, 5*time.Millisecond)
	return string(got)
}

func TestPortSourceReadsWithoutBlocking(t *testing.T) {
	port := newPipePort()
	q := &portQueue{ports: []*pipePort{port}}
	s := NewPortSource(q.open, PortSourceOptions{Name: "/dev/test", FIFOSize: 64}, zap.NewNop())

	n, err := s.TryRead(make([]byte, 8))
	assert.Equal(t, 0, n, "未启动时也不阻塞")
	assert.NoError(t, err)

	s.Start()
	defer s.Stop()

	go port.w.Write([]byte("$GPGSV,1\r\n"))
	assert.Equal(t, "$GPGSV,1\r\n", readAll(t, s, 10))
	assert.True(t, s.Connected())
	assert.Equal(t, "/dev/test", s.Name())
}

func TestPortSourceFIFOOverflow(t *testing.T) {
	port := newPipePort()
	q := &portQueue{ports: []*pipePort{port}}
	s := NewPortSource(q.open, PortSourceOptions{FIFOSize: 4}, zap.NewNop())
	s.Start()
	defer s.Stop()

	_, err := port.w.Write([]byte("abcdefgh"))
	require.NoError(t, err)

	dropped := 0
	require.Eventually(t, func() bool {
		dropped += s.TakeDropped()
		return dropped == 4
	}, 2*time.Second, 5*time.Millisecond)

	buf := make([]byte, 8)
	n, err := s.TryRead(buf)
	require.NoError(t, err)
	assert.Equal(t, "efgh", string(buf[:n]))
}

func TestPortSourceFaultReportedOnceThenReconnects(t *testing.T) {
	first, second := newPipePort(), newPipePort()
	q := &portQueue{ports: []*pipePort{first, second}}
	s := NewPortSource(q.open, PortSourceOptions{
		Name:                 "/dev/test",
		ReconnectInterval:    10 * time.Millisecond,
		MaxReconnectInterval: 20 * time.Millisecond,
	}, zap.NewNop())
	s.Start()
	defer s.Stop()

	require.Eventually(t, s.Connected, time.Second, 5*time.Millisecond)
	first.w.CloseWithError(errors.New("input/output error"))

	var fault error
	buf := make([]byte, 8)
	require.Eventually(t, func() bool {
		_, fault = s.TryRead(buf)
		return fault != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, apperrors.Is(fault, apperrors.ErrSerialPortRead))

	_, err := s.TryRead(buf)
	assert.NoError(t, err, "故障只上报一次")

	require.Eventually(t, func() bool { return s.Reconnects() == 1 && s.Connected() }, 2*time.Second, 5*time.Millisecond)

	go second.w.Write([]byte("ok"))
	assert.Equal(t, "ok", readAll(t, s, 2))
}

func TestPortSourceRetriesOpen(t *testing.T) {
	port := newPipePort()
	q := &portQueue{ports: []*pipePort{port}, fails: 2}
	s := NewPortSource(q.open, PortSourceOptions{
		ReconnectInterval:    5 * time.Millisecond,
		MaxReconnectInterval: 10 * time.Millisecond,
	}, zap.NewNop())
	s.Start()
	defer s.Stop()

	require.Eventually(t, s.Connected, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, q.Calls())

	// 打开失败的故障码会被保留
	_, err := s.TryRead(make([]byte, 1))
	if err != nil {
		assert.True(t, apperrors.Is(err, apperrors.ErrSerialPortOpen))
	}
}

func TestPortSourceStop(t *testing.T) {
	port := newPipePort()
	q := &portQueue{ports: []*pipePort{port}}
	s := NewPortSource(q.open, PortSourceOptions{}, zap.NewNop())
	s.Start()
	require.Eventually(t, s.Connected, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked")
	}
	assert.False(t, s.Connected())
	s.Stop()

	// 未启动时 Stop 直接返回
	NewPortSource(q.open, PortSourceOptions{}, nil).Stop()
}
