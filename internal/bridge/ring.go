package bridge

// RingBuffer 固定容量的字节环形缓冲区
//
// 只在tick线程内使用：读取器写入，分发器读出，不需要加锁。
// 写满时丢弃最旧的未读字节，由调用方计入溢出计数。
type RingBuffer struct {
	buf  []byte
	head int // 下一个写入位置
	size int // 未读字节数
}

// NewRingBuffer 创建环形缓冲区
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Cap 容量
func (r *RingBuffer) Cap() int { return len(r.buf) }

// Len 未读字节数
func (r *RingBuffer) Len() int { return r.size }

// Free 剩余空间
func (r *RingBuffer) Free() int { return len(r.buf) - r.size }

// Write 写入字节，返回因溢出被丢弃的旧字节数
func (r *RingBuffer) Write(p []byte) (dropped int) {
	capacity := len(r.buf)

	// 单次写入超过容量时只保留末尾部分
	if len(p) > capacity {
		dropped = r.size + len(p) - capacity
		p = p[len(p)-capacity:]
		r.head = 0
		r.size = 0
	} else if over := r.size + len(p) - capacity; over > 0 {
		dropped = over
		r.size -= over
	}

	n := copy(r.buf[r.head:], p)
	if n < len(p) {
		copy(r.buf, p[n:])
	}
	r.head = (r.head + len(p)) % capacity
	r.size += len(p)
	return dropped
}

// Drain 取出全部未读字节（按到达顺序），缓冲区清空
func (r *RingBuffer) Drain(dst []byte) []byte {
	if r.size == 0 {
		return dst[:0]
	}
	if cap(dst) < r.size {
		dst = make([]byte, r.size)
	}
	dst = dst[:r.size]

	tail := (r.head - r.size + len(r.buf)) % len(r.buf)
	n := copy(dst, r.buf[tail:])
	if n < r.size {
		copy(dst[n:], r.buf[:r.head])
	}
	r.size = 0
	return dst
}

// Read 按到达顺序取出最多 len(p) 个字节
func (r *RingBuffer) Read(p []byte) int {
	n := len(p)
	if n > r.size {
		n = r.size
	}
	if n == 0 {
		return 0
	}

	tail := (r.head - r.size + len(r.buf)) % len(r.buf)
	c := copy(p[:n], r.buf[tail:])
	if c < n {
		copy(p[c:n], r.buf)
	}
	r.size -= n
	return n
}

// Reset 丢弃全部未读字节
func (r *RingBuffer) Reset() {
	r.head = 0
	r.size = 0
}
