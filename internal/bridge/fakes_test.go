package bridge

import (
	"sync"
)

// fakeSource 可注入数据和故障的串口
type fakeSource struct {
	mu      sync.Mutex
	data    []byte
	err     error
	dropped int
}

func (f *fakeSource) Feed(p string) {
	f.mu.Lock()
	f.data = append(f.data, p...)
	f.mu.Unlock()
}

func (f *fakeSource) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeSource) TryRead(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		err := f.err
		f.err = nil
		return 0, err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func (f *fakeSource) TakeDropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.dropped
	f.dropped = 0
	return n
}

// fakeSink 记录每次写入
type fakeSink struct {
	id      string
	kind    SinkKind
	err     error
	got     []string
	closed  bool
	onWrite func()
}

func newFakeTCP(id string) *fakeSink { return &fakeSink{id: id, kind: SinkTCP} }

func (f *fakeSink) ID() string     { return f.id }
func (f *fakeSink) Kind() SinkKind { return f.kind }
func (f *fakeSink) Alive() bool    { return !f.closed }

func (f *fakeSink) Write(p []byte) error {
	if f.onWrite != nil {
		f.onWrite()
	}
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, string(p))
	return nil
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSink) Joined() string {
	out := ""
	for _, s := range f.got {
		out += s
	}
	return out
}
