package models

import "time"

// Venue - заведение из каталога.
type Venue struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	District  string `json:"district"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	Instagram string `json:"instagram"`
}

// VenueFields - данные для создания заведения (без id).
type VenueFields struct {
	Name      string
	Category  string
	District  string
	Address   string
	Phone     string
	Instagram string
}

type User struct {
	ID        int64     `db:"id"`
	TgID      int64     `db:"tg_id"`
	Username  string    `db:"username"`
	FirstName string    `db:"first_name"`
	Phone     string    `db:"phone"`
	CreatedAt time.Time `db:"-"`
}

// UserState - состояние диалога пользователя.
type UserState struct {
	UserID      int64
	CurrentStep string
	TempData    map[string]string
}
