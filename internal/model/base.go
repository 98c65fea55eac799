package model

import "time"

// BaseModel handles the numeric ID and timestamps shared by the imported entities
type BaseModel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
