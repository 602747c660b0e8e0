package model

import (
	"time"

	"gorm.io/gorm"
)

// Timestamps 由 gorm 自动维护
type Timestamps struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BaseModel 用于用户可删除的记录（软删除）；路线图和资源需要物理删除或唯一键复用，不使用它
// swagger:model
type BaseModel struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamps
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
