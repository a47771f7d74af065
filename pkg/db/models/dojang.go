package models

import "time"

// Dojang is the tenant. Every other table carries its dojang_code.
type Dojang struct {
	Code       string    `gorm:"column:dojang_code;primaryKey"`
	Name       string    `gorm:"column:name;not null"`
	OwnerEmail string    `gorm:"column:owner_email;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
