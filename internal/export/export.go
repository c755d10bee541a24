// Package export выгружает брони в Excel.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rezme/internal/models"
	"rezme/internal/notify"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const bookingsSheet = "Брони"

// BookingRow - бронь вместе с названием заведения на момент выгрузки.
type BookingRow struct {
	models.Booking
	VenueName string
}

type Exporter struct {
	dir string
	now func() time.Time
}

func New(dir string) *Exporter {
	return &Exporter{dir: dir, now: time.Now}
}

var bookingHeaders = []string{"ID", "Telegram ID", "Заведение", "Категория/фильтр", "Дата", "Время", "Людей", "Комментарий", "Создано"}

// Bookings пишет строки в новый .xlsx и возвращает путь к файлу.
func (e *Exporter) Bookings(rows []BookingRow) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(bookingsSheet)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return "", fmt.Errorf("create header style: %w", err)
	}

	for i, header := range bookingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(bookingsSheet, cell, header); err != nil {
			return "", err
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(bookingHeaders), 1)
	if err := f.SetCellStyle(bookingsSheet, "A1", lastHeader, headerStyle); err != nil {
		return "", err
	}

	for i, r := range rows {
		values := []any{
			r.ID,
			r.TgID,
			r.VenueName,
			r.Category,
			notify.HumanDate(r.Date),
			r.Time,
			r.PeopleCount,
			r.Comment,
			r.CreatedAt.Format("02.01.2006 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(bookingsSheet, cell, &values); err != nil {
			return "", fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	widths := map[string]float64{"A": 8, "B": 15, "C": 25, "D": 22, "E": 12, "F": 8, "G": 8, "H": 40, "I": 18}
	for col, w := range widths {
		if err := f.SetColWidth(bookingsSheet, col, col, w); err != nil {
			return "", err
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return "", err
	}

	name := fmt.Sprintf("bookings_%s_%s.xlsx", e.now().Format("2006-01-02_15-04-05"), uuid.NewString()[:8])
	path := filepath.Join(e.dir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}
