package hardware

import "io"

// SerialPort 串口接口（*serial.Port 满足，测试中可替换）
type SerialPort interface {
	io.ReadWriteCloser
	Flush() error
}

// Opener 打开串口，PortSource 每次重连都会调用
type Opener func() (SerialPort, error)
