package model

import "time"

// User: запись внешнего хранилища идентичностей: отправители и получатели.
type User struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Login    string `gorm:"uniqueIndex;not null" json:"login"`
	Email    string `gorm:"index" json:"email,omitempty"`
	Password string `gorm:"not null" json:"-"` // bcrypt-хеш

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
