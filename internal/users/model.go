package users

import "strings"

// Account captures a registered user and their credential hash.
type Account struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Email            string `gorm:"column:email;size:320;not null;uniqueIndex:idx_users_email"`
	DisplayName      string `gorm:"column:display_name;size:320;not null"`
	PasswordHash     string `gorm:"column:password_hash;size:190;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName exposes the table backing user accounts.
func (Account) TableName() string {
	return "users"
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
