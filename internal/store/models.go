package store

import "time"

// UserDocument is the SQLite row holding one user's medication document
type UserDocument struct {
	UserID    string    `gorm:"primaryKey" json:"user_id"`
	Document  string    `gorm:"type:text;not null" json:"document"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name independent of gorm's pluralizer
func (UserDocument) TableName() string {
	return "medication_documents"
}
