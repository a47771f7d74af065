package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Student struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	DojangCode  string    `gorm:"column:dojang_code;not null;index"`
	FirstName   string    `gorm:"column:first_name;not null"`
	LastName    string    `gorm:"column:last_name;not null"`
	ParentEmail *string   `gorm:"column:parent_email"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (s *Student) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// FullName is used in customer descriptions and notification copy.
func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}
