package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown          ErrorCode = 1000
	ErrInvalidParam     ErrorCode = 1001
	ErrNotFound         ErrorCode = 1002
	ErrAlreadyExists    ErrorCode = 1003
	ErrPermissionDenied ErrorCode = 1004
	ErrTimeout          ErrorCode = 1005
	ErrCanceled         ErrorCode = 1006
	ErrNotImplemented   ErrorCode = 1007

	// 串口错误 (3000-3999)
	ErrSerialPortOpen  ErrorCode = 3000
	ErrSerialPortRead  ErrorCode = 3001
	ErrSerialTimeout   ErrorCode = 3002
	ErrSerialOverflow  ErrorCode = 3003
	ErrDeviceOffline   ErrorCode = 3004

	// 网络/输出端错误 (4000-4999)
	ErrListen           ErrorCode = 4000
	ErrSessionRejected  ErrorCode = 4001
	ErrSessionClosed    ErrorCode = 4002
	ErrSendBufferFull   ErrorCode = 4003
	ErrUDPOpen          ErrorCode = 4004
	ErrUDPSend          ErrorCode = 4005
	ErrMQTTConnect      ErrorCode = 4006
	ErrMQTTPublish      ErrorCode = 4007
	ErrWebSocketConnect ErrorCode = 4008
	ErrMessageFormat    ErrorCode = 4009

	// 设置/数据库错误 (5000-5999)
	ErrDatabaseConnect  ErrorCode = 5000
	ErrDatabaseQuery    ErrorCode = 5001
	ErrDatabaseUpdate   ErrorCode = 5002
	ErrSettingNotFound  ErrorCode = 5003
	ErrSettingReadOnly  ErrorCode = 5004
	ErrSettingType      ErrorCode = 5005
	ErrSettingDuplicate ErrorCode = 5006

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigParse    ErrorCode = 6001
	ErrConfigValidate ErrorCode = 6002
	ErrConfigMissing  ErrorCode = 6003

	// 安全错误 (7000-7999)
	ErrAuthentication ErrorCode = 7000
	ErrAuthorization  ErrorCode = 7001
	ErrTokenExpired   ErrorCode = 7002
	ErrTokenInvalid   ErrorCode = 7003
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	// 通用错误
	ErrUnknown:          "未知错误",
	ErrInvalidParam:     "无效的参数",
	ErrNotFound:         "资源未找到",
	ErrAlreadyExists:    "资源已存在",
	ErrPermissionDenied: "权限不足",
	ErrTimeout:          "操作超时",
	ErrCanceled:         "操作已取消",
	ErrNotImplemented:   "功能未实现",

	// 串口错误
	ErrSerialPortOpen: "串口打开失败",
	ErrSerialPortRead: "串口读取失败",
	ErrSerialTimeout:  "串口通信超时",
	ErrSerialOverflow: "串口缓冲区溢出",
	ErrDeviceOffline:  "设备离线",

	// 网络/输出端错误
	ErrListen:           "监听端口失败",
	ErrSessionRejected:  "会话数已达上限",
	ErrSessionClosed:    "会话连接已关闭",
	ErrSendBufferFull:   "发送缓冲区已满",
	ErrUDPOpen:          "UDP套接字打开失败",
	ErrUDPSend:          "UDP发送失败",
	ErrMQTTConnect:      "MQTT连接失败",
	ErrMQTTPublish:      "MQTT发布失败",
	ErrWebSocketConnect: "WebSocket连接失败",
	ErrMessageFormat:    "消息格式错误",

	// 设置/数据库错误
	ErrDatabaseConnect:  "数据库连接失败",
	ErrDatabaseQuery:    "数据库查询失败",
	ErrDatabaseUpdate:   "数据库更新失败",
	ErrSettingNotFound:  "设置项不存在",
	ErrSettingReadOnly:  "设置项只读",
	ErrSettingType:      "设置项类型不匹配",
	ErrSettingDuplicate: "设置项重复注册",

	// 配置错误
	ErrConfigLoad:     "配置加载失败",
	ErrConfigParse:    "配置解析失败",
	ErrConfigValidate: "配置验证失败",
	ErrConfigMissing:  "配置项缺失",

	// 安全错误
	ErrAuthentication: "认证失败",
	ErrAuthorization:  "授权失败",
	ErrTokenExpired:   "令牌已过期",
	ErrTokenInvalid:   "无效的令牌",
}

// 状态字符串中使用的短标签
var errorTags = map[ErrorCode]string{
	ErrSerialPortOpen:  "serial_open",
	ErrSerialPortRead:  "serial_read",
	ErrSerialTimeout:   "serial_timeout",
	ErrSerialOverflow:  "overflow",
	ErrDeviceOffline:   "serial_offline",
	ErrSessionRejected: "tcp_reject",
	ErrSessionClosed:   "tcp_closed",
	ErrSendBufferFull:  "tcp_full",
	ErrUDPOpen:         "udp_open",
	ErrUDPSend:         "udp_send",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`            // 错误码
	Message string       `json:"message"`         // 错误消息
	Details string       `json:"details"`         // 详细信息
	Cause   error        `json:"-"`               // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	// 捕获调用栈
	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return New(code, details)
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	if appErr, ok := err.(*AppError); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return Wrap(err, code, details)
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}

	return ErrUnknown
}

// Tag 返回错误码对应的短标签，用于状态字符串
func Tag(code ErrorCode) string {
	if tag, ok := errorTags[code]; ok {
		return tag
	}
	return fmt.Sprintf("e%d", code)
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			frame, more := frames.Next()

			// 跳过runtime和本包的调用
			if strings.Contains(frame.Function, "runtime.") ||
				strings.Contains(frame.Function, "github.com/wfunc/boat-telnet/internal/errors") {
				if !more {
					break
				}
				continue
			}

			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})

			if !more {
				break
			}

			// 只保留前10个栈帧
			if len(e.Stack) >= 10 {
				break
			}
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == ErrInvalidParam, e.Code == ErrSettingType, e.Code == ErrMessageFormat:
		return 400 // Bad Request
	case e.Code == ErrNotFound, e.Code == ErrSettingNotFound:
		return 404 // Not Found
	case e.Code == ErrPermissionDenied, e.Code == ErrSettingReadOnly:
		return 403 // Forbidden
	case e.Code == ErrTimeout:
		return 408 // Request Timeout
	case e.Code >= 7000 && e.Code <= 7003:
		return 401 // Unauthorized
	case e.Code >= ErrDatabaseConnect && e.Code <= ErrDatabaseUpdate:
		return 503 // Service Unavailable
	default:
		return 500 // Internal Server Error
	}
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	code := GetCode(err)
	switch code {
	case ErrTimeout,
		ErrSerialTimeout,
		ErrSerialPortOpen,
		ErrDeviceOffline,
		ErrUDPOpen,
		ErrMQTTConnect,
		ErrWebSocketConnect,
		ErrDatabaseConnect:
		return true
	default:
		return false
	}
}

// IsCritical 判断是否为严重错误
func IsCritical(err error) bool {
	if err == nil {
		return false
	}

	code := GetCode(err)
	switch code {
	case ErrDatabaseConnect,
		ErrListen,
		ErrConfigLoad,
		ErrConfigValidate,
		ErrConfigMissing:
		return true
	default:
		return false
	}
}
