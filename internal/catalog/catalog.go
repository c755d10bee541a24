// Package catalog хранит каталог заведений в JSON-документе на диске.
//
// Каждый вызов перечитывает документ целиком, поэтому ручные правки файла
// видны со следующего обращения. Изменения пишутся во временный файл и
// атомарно подменяют документ через rename.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"rezme/internal/models"
)

var (
	// ErrCorrupt - документ каталога не удалось разобрать.
	ErrCorrupt = errors.New("corrupt catalog")
	// ErrNotFound - заведение с таким id отсутствует.
	ErrNotFound = errors.New("venue not found")
)

const (
	placeholderName     = "Без названия"
	placeholderCategory = "Не указано"
	Placeholder         = "—"
)

// DefaultVenues - стартовый набор, записывается при первом обращении.
var DefaultVenues = []models.Venue{
	{ID: 1, Category: "Кафе/Рестораны", District: "Центр", Name: "Cafe Central", Address: "ул. Абая 10", Phone: "+7 777 123 45 67", Instagram: "https://instagram.com/cafecentral"},
	{ID: 2, Category: "Кафе/Рестораны", District: "Левый берег", Name: "Sky Lounge", Address: "пр. Назарбаева 15", Phone: "+7 707 111 22 33"},
	{ID: 3, Category: "Караоке", District: "Центр", Name: "Karaoke Night", Address: "ул. Сатпаева 5", Phone: "+7 705 555 66 77", Instagram: "https://instagram.com/karaokenight"},
	{ID: 4, Category: "Боулинг", District: "Правый берег", Name: "Strike Bowling", Address: "ТРЦ Mega, 3 этаж", Phone: "+7 700 999 88 77"},
}

// Store - каталог заведений поверх одного файла.
type Store struct {
	path     string
	defaults []models.Venue

	mu sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path, defaults: DefaultVenues}
}

// NewStoreWithDefaults позволяет подменить стартовый набор (пустой набор тоже допустим).
func NewStoreWithDefaults(path string, defaults []models.Venue) *Store {
	return &Store{path: path, defaults: defaults}
}

func (s *Store) Path() string {
	return s.path
}

// rawVenue различает отсутствующие ключи и пустые значения.
type rawVenue struct {
	ID        int64   `json:"id"`
	Name      *string `json:"name"`
	Category  *string `json:"category"`
	District  *string `json:"district"`
	Address   *string `json:"address"`
	Phone     *string `json:"phone"`
	Instagram *string `json:"instagram"`
}

func valueOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

func (s *Store) load() ([]models.Venue, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		venues := append([]models.Venue{}, s.defaults...)
		if err := s.save(venues); err != nil {
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
		return venues, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var raw []rawVenue
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}

	venues := make([]models.Venue, 0, len(raw))
	for _, v := range raw {
		venues = append(venues, models.Venue{
			ID:        v.ID,
			Name:      valueOr(v.Name, placeholderName),
			Category:  valueOr(v.Category, placeholderCategory),
			District:  valueOr(v.District, Placeholder),
			Address:   valueOr(v.Address, Placeholder),
			Phone:     valueOr(v.Phone, Placeholder),
			Instagram: valueOr(v.Instagram, ""),
		})
	}
	return venues, nil
}

func (s *Store) save(venues []models.Venue) error {
	if venues == nil {
		venues = []models.Venue{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(venues); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".venues-*.json")
	if err != nil {
		return fmt.Errorf("create temp catalog: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp catalog: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp catalog: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}
	return nil
}

// ListAll возвращает каталог в порядке хранения.
func (s *Store) ListAll() ([]models.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) filter(keep func(models.Venue) bool) ([]models.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	venues, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []models.Venue
	for _, v := range venues {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) ListByCategory(category string) ([]models.Venue, error) {
	return s.filter(func(v models.Venue) bool { return v.Category == category })
}

func (s *Store) ListByDistrict(district string) ([]models.Venue, error) {
	return s.filter(func(v models.Venue) bool { return v.District == district })
}

// Districts - непустые районы без повторов, по алфавиту.
func (s *Store) Districts() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	venues, err := s.load()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, v := range venues {
		if v.District == "" {
			continue
		}
		if _, ok := seen[v.District]; ok {
			continue
		}
		seen[v.District] = struct{}{}
		out = append(out, v.District)
	}
	sort.Strings(out)
	return out, nil
}

// Get возвращает ErrNotFound, если заведения нет.
func (s *Store) Get(id int64) (models.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	venues, err := s.load()
	if err != nil {
		return models.Venue{}, err
	}
	for _, v := range venues {
		if v.ID == id {
			return v, nil
		}
	}
	return models.Venue{}, ErrNotFound
}

// Add присваивает id = max(id) + 1 и сохраняет каталог целиком.
func (s *Store) Add(fields models.VenueFields) (models.Venue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	venues, err := s.load()
	if err != nil {
		return models.Venue{}, err
	}

	var maxID int64
	for _, v := range venues {
		if v.ID > maxID {
			maxID = v.ID
		}
	}

	venue := models.Venue{
		ID:        maxID + 1,
		Name:      fields.Name,
		Category:  fields.Category,
		District:  fields.District,
		Address:   fields.Address,
		Phone:     fields.Phone,
		Instagram: fields.Instagram,
	}
	if err := s.save(append(venues, venue)); err != nil {
		return models.Venue{}, err
	}
	return venue, nil
}

// Remove удаляет заведение. false без записи на диск, если id не найден.
func (s *Store) Remove(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	venues, err := s.load()
	if err != nil {
		return false, err
	}

	kept := make([]models.Venue, 0, len(venues))
	for _, v := range venues {
		if v.ID != id {
			kept = append(kept, v)
		}
	}
	if len(kept) == len(venues) {
		return false, nil
	}
	if err := s.save(kept); err != nil {
		return false, err
	}
	return true, nil
}
