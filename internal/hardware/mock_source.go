package hardware

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// MockSource 模拟GPS串口（serial.mock_mode）
//
// 每个间隔生成一组RMC/GGA语句，坐标沿固定航向缓慢移动。
type MockSource struct {
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time
	next     time.Time
	pending  []byte

	lat, lon float64 // 度
	course   float64 // 度
	speed    float64 // 节
}

// NewMockSource 创建模拟数据源
func NewMockSource(interval time.Duration) *MockSource {
	if interval <= 0 {
		interval = time.Second
	}
	return &MockSource{
		interval: interval,
		now:      time.Now,
		lat:      9.3547,
		lon:      -82.2420,
		course:   84.4,
		speed:    5.2,
	}
}

// TryRead 到达间隔时生成新语句，不阻塞
func (m *MockSource) TryRead(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !now.Before(m.next) {
		m.emit(now.UTC())
		m.next = now.Add(m.interval)
	}

	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

func (m *MockSource) emit(t time.Time) {
	// 按航速推进位置
	dist := m.speed / 3600 * m.interval.Seconds() / 60
	rad := m.course * math.Pi / 180
	m.lat += dist * math.Cos(rad)
	m.lon += dist * math.Sin(rad) / math.Cos(m.lat*math.Pi/180)

	lat, ns := nmeaCoord(m.lat, 2, "N", "S")
	lon, ew := nmeaCoord(m.lon, 3, "E", "W")
	hms := t.Format("150405") + ".00"

	m.pending = append(m.pending, Sentence(fmt.Sprintf("GPRMC,%s,A,%s,%s,%s,%s,%.1f,%.1f,%s,,",
		hms, lat, ns, lon, ew, m.speed, m.course, t.Format("020106")))...)
	m.pending = append(m.pending, Sentence(fmt.Sprintf("GPGGA,%s,%s,%s,%s,%s,1,08,0.9,2.0,M,-12.0,M,,",
		hms, lat, ns, lon, ew))...)
}

// nmeaCoord 把十进制度转换为 ddmm.mmmm 形式
func nmeaCoord(v float64, degDigits int, pos, neg string) (string, string) {
	hemi := pos
	if v < 0 {
		hemi = neg
		v = -v
	}
	deg := math.Floor(v)
	min := (v - deg) * 60
	return fmt.Sprintf("%0*d%07.4f", degDigits, int(deg), min), hemi
}

// Checksum NMEA校验和：'$'与'*'之间所有字节的异或
func Checksum(body string) byte {
	var cs byte
	for i := 0; i < len(body); i++ {
		cs ^= body[i]
	}
	return cs
}

// Sentence 组装带校验和与行尾的完整语句
func Sentence(body string) string {
	return fmt.Sprintf("$%s*%02X\r\n", body, Checksum(body))
}
