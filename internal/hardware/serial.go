package hardware

import (
	"fmt"
	"os"
	"strings"

	"github.com/tarm/serial"
	"github.com/wfunc/boat-telnet/internal/config"
	"github.com/wfunc/boat-telnet/internal/errors"
)

// SerialPortExists 检查串口设备是否存在
func SerialPortExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// parseParity 解析校验位
func parseParity(p string) (serial.Parity, error) {
	switch strings.ToUpper(p) {
	case "", "N", "NONE":
		return serial.ParityNone, nil
	case "O", "ODD":
		return serial.ParityOdd, nil
	case "E", "EVEN":
		return serial.ParityEven, nil
	case "M", "MARK":
		return serial.ParityMark, nil
	case "S", "SPACE":
		return serial.ParitySpace, nil
	}
	return 0, fmt.Errorf("未知的校验位: %q", p)
}

// parseStopBits 解析停止位（1、15表示1.5、2）
func parseStopBits(n int) (serial.StopBits, error) {
	switch n {
	case 0, 1:
		return serial.Stop1, nil
	case 15:
		return serial.Stop1Half, nil
	case 2:
		return serial.Stop2, nil
	}
	return 0, fmt.Errorf("未知的停止位: %d", n)
}

// PortConfig 把配置转换为tarm/serial的串口参数
func PortConfig(cfg *config.SerialConfig) (*serial.Config, error) {
	parity, err := parseParity(cfg.Parity)
	if err != nil {
		return nil, err
	}
	stop, err := parseStopBits(cfg.StopBits)
	if err != nil {
		return nil, err
	}

	size := byte(cfg.DataBits)
	if size == 0 {
		size = serial.DefaultSize
	}

	return &serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.BaudRate,
		Size:        size,
		Parity:      parity,
		StopBits:    stop,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// OpenSerialPort 打开串口
func OpenSerialPort(cfg *config.SerialConfig) (SerialPort, error) {
	pc, err := PortConfig(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigValidate)
	}

	port, err := serial.OpenPort(pc)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrSerialPortOpen, "port=%s baud=%d", cfg.Port, cfg.BaudRate)
	}
	return port, nil
}

// NewOpener 返回按配置打开串口的 Opener
func NewOpener(cfg *config.SerialConfig) Opener {
	return func() (SerialPort, error) {
		return OpenSerialPort(cfg)
	}
}
