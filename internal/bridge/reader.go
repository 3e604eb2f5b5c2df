package bridge

import (
	"github.com/wfunc/boat-telnet/internal/errors"
	"go.uber.org/zap"
)

// Source 串口数据源
//
// TryRead 必须立即返回：没有数据时返回 0, nil。
// 返回的错误视为硬件读取故障，读取器只记录，不中断tick。
type Source interface {
	TryRead(p []byte) (int, error)
}

// dropReporter 数据源自身缓冲区的溢出计数（例如串口FIFO）
type dropReporter interface {
	TakeDropped() int
}

// Reader 串口读取器：每个tick把串口上已到达的字节搬进环形缓冲区
type Reader struct {
	src    Source
	ring   *RingBuffer
	status *Status
	chunk  []byte
	limit  int // 单个tick最多读取的字节数
	logger *zap.Logger
}

// NewReader 创建读取器
func NewReader(src Source, ring *RingBuffer, status *Status, chunkSize int, logger *zap.Logger) *Reader {
	if chunkSize <= 0 {
		chunkSize = 256
	}
	return &Reader{
		src:    src,
		ring:   ring,
		status: status,
		chunk:  make([]byte, chunkSize),
		limit:  ring.Cap(),
		logger: logger,
	}
}

// Ingest 读取当前可用的全部字节，返回本次读取的字节数
func (r *Reader) Ingest() int {
	total := 0
	for total < r.limit {
		want := len(r.chunk)
		if rest := r.limit - total; rest < want {
			want = rest
		}

		n, err := r.src.TryRead(r.chunk[:want])
		if n > 0 {
			if dropped := r.ring.Write(r.chunk[:n]); dropped > 0 {
				r.status.AddOverflow(dropped)
			}
			r.status.AddBytesIn(n)
			total += n
		}
		if err != nil {
			r.status.SetLastError(faultCode(err))
			r.logger.Warn("串口读取故障", zap.Error(err))
			break
		}
		if n < want {
			break
		}
	}

	if d, ok := r.src.(dropReporter); ok {
		if n := d.TakeDropped(); n > 0 {
			r.status.AddOverflow(n)
		}
	}
	return total
}

// faultCode 串口类错误保留原错误码，其余归为读取失败
func faultCode(err error) errors.ErrorCode {
	if code := errors.GetCode(err); code >= errors.ErrSerialPortOpen && code < errors.ErrListen {
		return code
	}
	return errors.ErrSerialPortRead
}
