package models

import "time"

type Booking struct {
	ID          int64     `db:"id"`
	TgID        int64     `db:"tg_id"`
	VenueID     *int64    `db:"venue_id"`
	Category    string    `db:"category"` // категория или метка фильтра ("Район: ...")
	Date        string    `db:"date"`     // YYYY-MM-DD
	Time        string    `db:"time"`
	PeopleCount int       `db:"people_count"`
	Comment     string    `db:"comment"`
	CreatedAt   time.Time `db:"-"`
}

type Review struct {
	ID        int64     `db:"id"`
	TgID      int64     `db:"tg_id"`
	VenueID   *int64    `db:"venue_id"`
	Rating    int       `db:"rating"`
	Text      string    `db:"text"`
	CreatedAt time.Time `db:"-"`
}
