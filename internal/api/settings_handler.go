package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/boat-telnet/internal/errors"
	"github.com/wfunc/boat-telnet/internal/settings"
)

// SettingsHandler 设置项处理器
type SettingsHandler struct {
	host *settings.Host
}

// NewSettingsHandler 创建设置项处理器
func NewSettingsHandler(host *settings.Host) *SettingsHandler {
	return &SettingsHandler{host: host}
}

// UpdateSettingRequest 修改设置项请求，value 可以是布尔、数字或字符串
type UpdateSettingRequest struct {
	Value json.RawMessage `json:"value"`
}

// List 列出全部设置项
// @Summary 设置项列表
// @Tags Settings
// @Produce json
// @Success 200 {array} settings.View
// @Router /api/v1/settings [get]
func (h *SettingsHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.host.List())
}

// Get 获取单个设置项
// @Summary 获取设置项
// @Tags Settings
// @Produce json
// @Param id path string true "设置项ID"
// @Success 200 {object} settings.View
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/settings/{id} [get]
func (h *SettingsHandler) Get(c *gin.Context) {
	view, err := h.host.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Update 修改设置项
// @Summary 修改设置项
// @Tags Settings
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path string true "设置项ID"
// @Param request body UpdateSettingRequest true "新值"
// @Success 200 {object} settings.View
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/settings/{id} [put]
func (h *SettingsHandler) Update(c *gin.Context) {
	var req UpdateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Value) == 0 {
		details := "缺少value字段"
		if err != nil {
			details = err.Error()
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: details,
		})
		return
	}

	id := c.Param("id")
	text, err := valueText(req.Value)
	if err == nil {
		err = h.host.SetFromString(c.Request.Context(), id, text, settings.SourceHTTP)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	view, err := h.host.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// valueText 把JSON值转换成设置项文本
func valueText(raw json.RawMessage) (string, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", errors.Wrap(err, errors.ErrInvalidParam)
	}
	switch val := v.(type) {
	case bool:
		return strconv.FormatBool(val), nil
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	default:
		return "", errors.New(errors.ErrInvalidParam, string(raw))
	}
}

// respondError 按错误码返回错误响应
func respondError(c *gin.Context, err error) {
	appErr, ok := err.(*errors.AppError)
	if !ok {
		appErr = errors.Wrap(err, errors.ErrUnknown)
	}
	c.JSON(appErr.HTTPStatus(), ErrorResponse{
		Code:    strconv.Itoa(int(appErr.Code)),
		Message: appErr.Message,
		Details: appErr.Details,
	})
}
