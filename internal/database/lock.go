package database

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	lockAttempts = 30
	lockStaleAge = 5 * time.Minute
)

// acquireMigrationLock 以独占方式创建锁文件
func acquireMigrationLock(dbPath string, log *zap.Logger) (*os.File, error) {
	lockPath := dbPath + ".migration.lock"

	for i := 0; i < lockAttempts; i++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
		if err == nil {
			return f, nil
		}

		// 进程崩溃留下的锁
		if info, err := os.Stat(lockPath); err == nil && time.Since(info.ModTime()) > lockStaleAge {
			log.Warn("迁移锁文件过期，删除", zap.String("lock", lockPath))
			os.Remove(lockPath)
			continue
		}

		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("无法获取迁移锁: %s", lockPath)
}

// releaseMigrationLock 释放迁移锁
func releaseMigrationLock(f *os.File, log *zap.Logger) {
	if f == nil {
		return
	}
	path := f.Name()
	f.Close()
	os.Remove(path)
	log.Debug("释放迁移锁", zap.String("lock", path))
}

// sqlitePath 返回sqlite主库文件路径，内存库或其他驱动返回空
func sqlitePath(db *gorm.DB) string {
	if db.Dialector.Name() != "sqlite" {
		return ""
	}
	sqlDB, err := db.DB()
	if err != nil {
		return ""
	}

	var (
		seq        int
		name, file string
	)
	if err := sqlDB.QueryRow("PRAGMA database_list").Scan(&seq, &name, &file); err != nil {
		return ""
	}
	return file
}
