package flow

import (
	"fmt"
	"strconv"
	"time"

	"rezme/internal/chat"
)

const (
	calIgnore = "cal:ignore"
	calPrev   = "cal:prev:"
	calNext   = "cal:next:"
	calDay    = "cal:day:"

	monthLayout = "2006-01"
	dateLayout  = "2006-01-02"
)

var weekDays = []string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

// MonthCalendar строит месяц с навигацией, неделя начинается с понедельника.
func MonthCalendar(year int, month time.Month) *chat.Menu {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	ym := first.Format(monthLayout)

	rows := [][]chat.Button{{
		{Text: "<", Data: calPrev + ym},
		{Text: first.Format("Jan 2006"), Data: calIgnore},
		{Text: ">", Data: calNext + ym},
	}}

	header := make([]chat.Button, 0, len(weekDays))
	for _, d := range weekDays {
		header = append(header, chat.Button{Text: d, Data: calIgnore})
	}
	rows = append(rows, header)

	offset := (int(first.Weekday()) + 6) % 7
	days := first.AddDate(0, 1, -1).Day()

	week := make([]chat.Button, 0, 7)
	for i := 0; i < offset; i++ {
		week = append(week, chat.Button{Text: " ", Data: calIgnore})
	}
	for day := 1; day <= days; day++ {
		d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		week = append(week, chat.Button{Text: strconv.Itoa(day), Data: calDay + d.Format(dateLayout)})
		if len(week) == 7 {
			rows = append(rows, week)
			week = make([]chat.Button, 0, 7)
		}
	}
	if len(week) > 0 {
		for len(week) < 7 {
			week = append(week, chat.Button{Text: " ", Data: calIgnore})
		}
		rows = append(rows, week)
	}
	return &chat.Menu{Rows: rows}
}

// shiftMonth разбирает "YYYY-MM" и сдвигает его на delta месяцев.
func shiftMonth(ym string, delta int) (int, time.Month, error) {
	t, err := time.Parse(monthLayout, ym)
	if err != nil {
		return 0, 0, fmt.Errorf("parse month %q: %w", ym, err)
	}
	t = t.AddDate(0, delta, 0)
	return t.Year(), t.Month(), nil
}

// isPast сообщает, что дата строго раньше сегодняшнего дня now.
func isPast(date time.Time, now time.Time) bool {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return date.Before(today)
}

func humanDate(d time.Time) string {
	return d.Format("02.01.2006")
}
