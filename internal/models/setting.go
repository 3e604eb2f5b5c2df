package models

import (
	"time"
)

// 设置项值类型
const (
	SettingTypeBool   = "bool"
	SettingTypeString = "string"
)

// Setting 持久化的设备设置项
type Setting struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Value       string    `gorm:"size:255" json:"value"`
	Type        string    `gorm:"size:16;not null" json:"type"`
	Description string    `gorm:"size:255" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 表名
func (Setting) TableName() string {
	return "settings"
}
