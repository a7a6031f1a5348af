package repository

import (
	"time"

	"gorm.io/gorm"
)

// QueryOption 叠加在查询上的可选条件
type QueryOption func(*gorm.DB) *gorm.DB

// WithSince 只取某时刻之后开始的记录
func WithSince(since time.Time) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("started_at >= ?", since)
	}
}
