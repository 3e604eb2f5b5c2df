package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	err = New(ErrSettingNotFound, "FOO")
	suite.Equal(ErrSettingNotFound, err.Code)
	suite.Equal("设置项不存在", err.Message)
	suite.Equal("FOO", err.Details)

	// 多个详情
	err = New(ErrUDPOpen, "bind失败", "地址: 0.0.0.0:0")
	suite.Equal("bind失败; 地址: 0.0.0.0:0", err.Details)
}

// 测试格式化错误创建
func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrSettingType, "设置 %s 不是 %s 类型", "STATUS", "bool")
	suite.Equal(ErrSettingType, err.Code)
	suite.Equal("设置 STATUS 不是 bool 类型", err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, ErrMQTTConnect)
	suite.Equal(ErrMQTTConnect, wrappedErr.Code)
	suite.Equal("connection refused", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
	suite.True(errors.Is(wrappedErr, originalErr))

	suite.Nil(Wrap(nil, ErrUnknown))

	// 包装已有的AppError时保留原始错误码
	appErr := New(ErrSettingNotFound, "BAR")
	wrappedAppErr := Wrap(appErr, ErrInvalidParam, "额外信息")
	suite.Equal(ErrSettingNotFound, wrappedAppErr.Code)
	suite.Contains(wrappedAppErr.Details, "额外信息")
}

// 测试格式化错误包装
func (suite *ErrorsTestSuite) TestWrapf() {
	originalErr := errors.New("no such file or directory")
	wrappedErr := Wrapf(originalErr, ErrSerialPortOpen, "打开 %s 失败", "/dev/ttyS2")
	suite.Equal(ErrSerialPortOpen, wrappedErr.Code)
	suite.Equal("打开 /dev/ttyS2 失败", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
}

// 测试错误码判断
func (suite *ErrorsTestSuite) TestIsAndGetCode() {
	err := New(ErrSettingReadOnly)
	suite.True(Is(err, ErrSettingReadOnly))
	suite.False(Is(err, ErrSettingNotFound))
	suite.False(Is(nil, ErrSettingReadOnly))
	suite.False(Is(errors.New("标准错误"), ErrUnknown))

	suite.Equal(ErrSettingReadOnly, GetCode(err))
	suite.Equal(ErrUnknown, GetCode(errors.New("标准错误")))
	suite.Equal(ErrorCode(0), GetCode(nil))
}

// 测试错误消息
func (suite *ErrorsTestSuite) TestError() {
	err := &AppError{Code: ErrNotFound, Message: "资源未找到"}
	suite.Equal("[1002] 资源未找到", err.Error())

	err.Details = "ID: 42"
	suite.Equal("[1002] 资源未找到: ID: 42", err.Error())
}

// 测试WithCause
func (suite *ErrorsTestSuite) TestWithCause() {
	cause := errors.New("database is locked")
	err := New(ErrDatabaseUpdate).WithCause(cause)
	suite.Equal(cause, err.Cause)
	suite.Equal("database is locked", err.Details)

	err2 := New(ErrDatabaseUpdate, "写入失败").WithCause(cause)
	suite.Equal("写入失败", err2.Details)
}

// 测试HTTP状态码映射
func (suite *ErrorsTestSuite) TestHTTPStatus() {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrInvalidParam, 400},
		{ErrSettingType, 400},
		{ErrSettingNotFound, 404},
		{ErrSettingReadOnly, 403},
		{ErrTimeout, 408},
		{ErrAuthentication, 401},
		{ErrTokenInvalid, 401},
		{ErrDatabaseQuery, 503},
		{ErrUnknown, 500},
	}

	for _, tc := range testCases {
		err := New(tc.code)
		suite.Equal(tc.expected, err.HTTPStatus(), "错误码 %d 应该返回HTTP状态码 %d", tc.code, tc.expected)
	}
}

// 测试可重试与严重错误判断
func (suite *ErrorsTestSuite) TestRetryableAndCritical() {
	for _, code := range []ErrorCode{ErrSerialPortOpen, ErrUDPOpen, ErrMQTTConnect, ErrDatabaseConnect} {
		suite.True(IsRetryable(New(code)), "错误码 %d 应该是可重试的", code)
	}
	for _, code := range []ErrorCode{ErrSettingReadOnly, ErrSessionRejected, ErrInvalidParam} {
		suite.False(IsRetryable(New(code)), "错误码 %d 不应该是可重试的", code)
	}
	suite.False(IsRetryable(nil))

	for _, code := range []ErrorCode{ErrListen, ErrConfigLoad, ErrConfigValidate, ErrDatabaseConnect} {
		suite.True(IsCritical(New(code)), "错误码 %d 应该是严重错误", code)
	}
	// 串口故障不影响设备运行
	suite.False(IsCritical(New(ErrSerialPortRead)))
	suite.False(IsCritical(nil))
}

// 测试状态标签
func (suite *ErrorsTestSuite) TestTag() {
	suite.Equal("serial_read", Tag(ErrSerialPortRead))
	suite.Equal("udp_send", Tag(ErrUDPSend))
	suite.Equal("tcp_reject", Tag(ErrSessionRejected))
	suite.Equal("e1000", Tag(ErrUnknown))
}

// 测试调用栈捕获
func (suite *ErrorsTestSuite) TestStackCapture() {
	err := New(ErrUnknown)
	suite.Greater(len(err.Stack), 0)
	suite.NotEmpty(err.GetStack())
}

// 测试未知错误码
func (suite *ErrorsTestSuite) TestUnknownErrorCode() {
	err := New(ErrorCode(99999))
	suite.Equal(ErrorCode(99999), err.Code)
	suite.Equal("未知错误", err.Message)
}

// TestErrorsTestSuite 运行测试套件
func TestErrorsTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
