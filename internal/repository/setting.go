package repository

import (
	"context"
	stderrors "errors"
	"strconv"
	"sync"

	"github.com/wfunc/boat-telnet/internal/errors"
	"github.com/wfunc/boat-telnet/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingRepository 设置项仓储接口
type SettingRepository interface {
	BaseRepository
	Get(ctx context.Context, id string) (*models.Setting, error)
	GetBool(ctx context.Context, id string, defaultValue bool) bool
	Set(ctx context.Context, setting *models.Setting) error
	SetBool(ctx context.Context, id string, value bool, description string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Setting, error)
	RefreshCache(ctx context.Context) error
}

// settingRepo 设置项仓储实现，读取走内存缓存
type settingRepo struct {
	*BaseRepo
	mu    sync.RWMutex
	cache map[string]models.Setting
}

// NewSettingRepository 创建设置项仓储
func NewSettingRepository(db *gorm.DB) SettingRepository {
	repo := &settingRepo{
		BaseRepo: NewBaseRepo(db),
		cache:    make(map[string]models.Setting),
	}
	repo.RefreshCache(context.Background())
	return repo
}

// Get 获取设置项，不存在时返回 ErrSettingNotFound
func (r *settingRepo) Get(ctx context.Context, id string) (*models.Setting, error) {
	r.mu.RLock()
	s, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return &s, nil
	}

	var setting models.Setting
	err := r.db.WithContext(ctx).First(&setting, "id = ?", id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New(errors.ErrSettingNotFound, id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery, id)
	}

	r.mu.Lock()
	r.cache[id] = setting
	r.mu.Unlock()
	return &setting, nil
}

// GetBool 获取布尔设置项，不存在或无法解析时返回默认值
func (r *settingRepo) GetBool(ctx context.Context, id string, defaultValue bool) bool {
	s, err := r.Get(ctx, id)
	if err != nil {
		return defaultValue
	}
	v, err := strconv.ParseBool(s.Value)
	if err != nil {
		return defaultValue
	}
	return v
}

// Set 创建或更新设置项
func (r *settingRepo) Set(ctx context.Context, setting *models.Setting) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "type", "description", "updated_at"}),
		}).
		Create(setting).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabaseUpdate, setting.ID)
	}

	r.mu.Lock()
	r.cache[setting.ID] = *setting
	r.mu.Unlock()
	return nil
}

// SetBool 保存布尔设置项
func (r *settingRepo) SetBool(ctx context.Context, id string, value bool, description string) error {
	return r.Set(ctx, &models.Setting{
		ID:          id,
		Value:       strconv.FormatBool(value),
		Type:        models.SettingTypeBool,
		Description: description,
	})
}

// Delete 删除设置项
func (r *settingRepo) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&models.Setting{}, "id = ?", id).Error; err != nil {
		return errors.Wrap(err, errors.ErrDatabaseUpdate, id)
	}
	r.mu.Lock()
	delete(r.cache, id)
	r.mu.Unlock()
	return nil
}

// List 按ID排序列出全部设置项
func (r *settingRepo) List(ctx context.Context) ([]*models.Setting, error) {
	var settings []*models.Setting
	if err := r.db.WithContext(ctx).Order("id").Find(&settings).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return settings, nil
}

// RefreshCache 从数据库重新加载缓存
func (r *settingRepo) RefreshCache(ctx context.Context) error {
	settings, err := r.List(ctx)
	if err != nil {
		return err
	}

	cache := make(map[string]models.Setting, len(settings))
	for _, s := range settings {
		cache[s.ID] = *s
	}

	r.mu.Lock()
	r.cache = cache
	r.mu.Unlock()
	return nil
}
