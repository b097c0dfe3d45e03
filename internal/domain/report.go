package domain

import "time"

// ReportEntry 持久化键值表，保存分析编排器最近一次报告
type ReportEntry struct {
	Key       string    `gorm:"column:report_key;type:varchar(191);primaryKey" json:"key"`
	Content   string    `gorm:"type:mediumtext" json:"content"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ReportEntry) TableName() string {
	return "report_entries"
}
