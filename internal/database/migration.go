package database

import (
	"fmt"

	"github.com/wfunc/boat-telnet/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate 迁移全局数据库
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}
	return Migrate(DB, zap.NewNop())
}

// Migrate 迁移设置表。sqlite文件库在迁移期间持有锁文件，避免两个进程同时迁移。
func Migrate(db *gorm.DB, log *zap.Logger) error {
	if path := sqlitePath(db); path != "" {
		lock, err := acquireMigrationLock(path, log)
		if err != nil {
			return err
		}
		defer releaseMigrationLock(lock, log)
	}

	if err := db.AutoMigrate(&models.Setting{}); err != nil {
		log.Error("迁移失败", zap.Error(err))
		return err
	}
	log.Info("数据库迁移完成")
	return nil
}
