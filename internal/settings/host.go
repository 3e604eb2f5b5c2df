package settings

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/wfunc/boat-telnet/internal/errors"
	"github.com/wfunc/boat-telnet/internal/logger"
	"github.com/wfunc/boat-telnet/internal/models"
	"github.com/wfunc/boat-telnet/internal/repository"
	"go.uber.org/zap"
)

// 设置项变更来源
const (
	SourceHTTP   = "http"
	SourceMQTT   = "mqtt"
	SourceConfig = "config"
)

// Listener 设置项变更监听器
type Listener func(id, value string)

// View 对外展示的设置项
type View struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Value       string `json:"value"`
	ReadOnly    bool   `json:"read_only"`
	Description string `json:"description"`
}

type entry struct {
	id          string
	typ         string
	description string
	readOnly    bool

	value    bool
	onChange func(bool)

	read func() string
}

// Host 设置项宿主，布尔项持久化到数据库，字符串项只读
type Host struct {
	repo   repository.SettingRepository
	logger *zap.Logger

	// writeMu 串行化写入，保证回调顺序与持久化顺序一致
	writeMu   sync.Mutex
	mu        sync.RWMutex
	entries   map[string]*entry
	order     []string
	listeners []Listener
}

// NewHost 创建设置项宿主
func NewHost(repo repository.SettingRepository, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{
		repo:    repo,
		logger:  log,
		entries: make(map[string]*entry),
	}
}

// RegisterBool 注册布尔设置项，返回持久化的当前值；首次注册时写入默认值
func (h *Host) RegisterBool(id, description string, def bool, onChange func(bool)) (bool, error) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if h.exists(id) {
		return false, errors.New(errors.ErrSettingDuplicate, id)
	}

	ctx := context.Background()
	value := def
	stored, err := h.repo.Get(ctx, id)
	switch {
	case errors.Is(err, errors.ErrSettingNotFound):
		if err := h.repo.SetBool(ctx, id, def, description); err != nil {
			return false, err
		}
	case err != nil:
		return false, err
	default:
		parsed, perr := strconv.ParseBool(stored.Value)
		if perr != nil {
			h.logger.Warn("持久化值无法解析，使用默认值",
				zap.String("id", id),
				zap.String("value", stored.Value))
			if err := h.repo.SetBool(ctx, id, def, description); err != nil {
				return false, err
			}
		} else {
			value = parsed
		}
	}

	h.add(&entry{
		id:          id,
		typ:         models.SettingTypeBool,
		description: description,
		value:       value,
		onChange:    onChange,
	})
	h.logger.Info("注册设置项", zap.String("id", id), zap.Bool("value", value))
	return value, nil
}

// RegisterString 注册只读字符串设置项
func (h *Host) RegisterString(id, description string, read func() string) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if h.exists(id) {
		return errors.New(errors.ErrSettingDuplicate, id)
	}
	h.add(&entry{
		id:          id,
		typ:         models.SettingTypeString,
		description: description,
		readOnly:    true,
		read:        read,
	})
	return nil
}

// Subscribe 添加变更监听器
func (h *Host) Subscribe(l Listener) {
	h.mu.Lock()
	h.listeners = append(h.listeners, l)
	h.mu.Unlock()
}

// SetBool 修改布尔设置项。值变化时先持久化，再同步调用回调和监听器
func (h *Host) SetBool(ctx context.Context, id string, value bool, source string) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	h.mu.RLock()
	e, ok := h.entries[id]
	h.mu.RUnlock()
	switch {
	case !ok:
		return errors.New(errors.ErrSettingNotFound, id)
	case e.readOnly:
		return errors.New(errors.ErrSettingReadOnly, id)
	case e.typ != models.SettingTypeBool:
		return errors.New(errors.ErrSettingType, id)
	}

	h.mu.RLock()
	old := e.value
	h.mu.RUnlock()

	if err := h.repo.SetBool(ctx, id, value, e.description); err != nil {
		return err
	}
	if old == value {
		return nil
	}

	h.mu.Lock()
	e.value = value
	listeners := append([]Listener(nil), h.listeners...)
	h.mu.Unlock()

	newText := strconv.FormatBool(value)
	logger.LogSettingChange(id, strconv.FormatBool(old), newText, source)

	if e.onChange != nil {
		e.onChange(value)
	}
	for _, l := range listeners {
		l(id, newText)
	}
	return nil
}

// SetFromString 按文本修改设置项，支持 true/false/1/0/on/off
func (h *Host) SetFromString(ctx context.Context, id, text, source string) error {
	value, ok := ParseBool(text)
	if !ok {
		h.mu.RLock()
		e, exists := h.entries[id]
		h.mu.RUnlock()
		if !exists {
			return errors.New(errors.ErrSettingNotFound, id)
		}
		if e.readOnly {
			return errors.New(errors.ErrSettingReadOnly, id)
		}
		return errors.Newf(errors.ErrSettingType, "%s: %q", id, text)
	}
	return h.SetBool(ctx, id, value, source)
}

// Get 获取设置项当前值
func (h *Host) Get(id string) (View, error) {
	h.mu.RLock()
	e, ok := h.entries[id]
	var v View
	if ok {
		v = viewOf(e)
	}
	h.mu.RUnlock()
	if !ok {
		return View{}, errors.New(errors.ErrSettingNotFound, id)
	}
	if e.typ == models.SettingTypeString {
		v.Value = e.read()
	}
	return v, nil
}

// List 按注册顺序列出全部设置项
func (h *Host) List() []View {
	h.mu.RLock()
	views := make([]View, 0, len(h.order))
	readers := make([]func() string, 0, len(h.order))
	for _, id := range h.order {
		e := h.entries[id]
		views = append(views, viewOf(e))
		readers = append(readers, e.read)
	}
	h.mu.RUnlock()

	for i, read := range readers {
		if read != nil {
			views[i].Value = read()
		}
	}
	return views
}

func viewOf(e *entry) View {
	v := View{
		ID:          e.id,
		Type:        e.typ,
		ReadOnly:    e.readOnly,
		Description: e.description,
	}
	if e.typ == models.SettingTypeBool {
		v.Value = strconv.FormatBool(e.value)
	}
	return v
}

func (h *Host) exists(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.entries[id]
	return ok
}

func (h *Host) add(e *entry) {
	h.mu.Lock()
	h.entries[e.id] = e
	h.order = append(h.order, e.id)
	h.mu.Unlock()
}

// ParseBool 解析开关文本
func ParseBool(text string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true", "1", "on":
		return true, true
	case "false", "0", "off":
		return false, true
	}
	return false, false
}
