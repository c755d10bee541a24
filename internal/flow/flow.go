// Package flow содержит многошаговые диалоги бота: бронирование, отзыв и
// добавление заведения оператором.
//
// Каждый диалог хранит тег текущего шага и собранные поля в state.Store.
// Поля читаются в типизированный черновик, который проверяет, что для тега
// есть все обязательные значения.
package flow

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"rezme/internal/chat"
	"rezme/internal/models"
)

// ErrInvalidState - сохраненные поля не соответствуют тегу шага.
var ErrInvalidState = errors.New("invalid dialog state")

// Тексты главного меню.
const (
	ButtonBook      = "🔔 Забронировать"
	ButtonVenues    = "📍 Все заведения"
	ButtonReview    = "✍️ Оставить отзыв"
	ButtonBusiness  = "Для бизнесов (Если вы хотите добавить свое заведение в нашу базу)"
	ButtonNews      = "Новости и обновления"
	ButtonInstagram = "Наш Instagram"
	ButtonAssistant = "Связаться с ИИ-помощником"

	ButtonSendPhone = "📱 Отправить номер"
)

// maxCallbackData - лимит Telegram на payload inline-кнопки, в байтах.
const maxCallbackData = 64

const districtPrefix = "district:"

func fitsCallback(prefix, value string) bool {
	return len(prefix)+len(value) <= maxCallbackData
}

const (
	msgError    = "Произошла ошибка, попробуйте позже 🙏"
	msgOutdated = "Эта кнопка устарела. Начните заново из меню 👇"
	msgUseMenu  = "Пожалуйста, выберите вариант кнопкой выше 👆"
)

// Engine - диалог, которому принадлежат теги состояний с его префиксом.
type Engine interface {
	Owns(tag string) bool
	HandleText(ctx context.Context, tag string, ev chat.Event) ([]chat.Reply, error)
	HandleCallback(ctx context.Context, tag string, ev chat.Event) ([]chat.Reply, error)
}

// Catalog - операции каталога заведений, нужные диалогам.
type Catalog interface {
	ListByCategory(category string) ([]models.Venue, error)
	ListByDistrict(district string) ([]models.Venue, error)
	Districts() ([]string, error)
	Get(id int64) (models.Venue, error)
	Add(fields models.VenueFields) (models.Venue, error)
}

// Authorizer - предикат оператора.
type Authorizer func(userID int64) bool

func MainMenu() *chat.Menu {
	return &chat.Menu{
		Keyboard: [][]string{
			{ButtonBook},
			{ButtonVenues},
			{ButtonReview},
			{ButtonBusiness},
			{ButtonNews, ButtonInstagram},
			{ButtonAssistant},
		},
		Placeholder: "Выберите действие из меню 👇",
	}
}

func PhoneMenu() *chat.Menu {
	return &chat.Menu{
		Keyboard:       [][]string{{ButtonSendPhone}},
		RequestContact: true,
		OneTime:        true,
		Placeholder:    "Нажмите кнопку, чтобы отправить номер",
	}
}

// ErrorReply - общий ответ при сбое хранилища.
func ErrorReply() chat.Reply {
	return chat.WithMenu(msgError, MainMenu())
}

// OutdatedReply - ответ на кнопку, которая не относится к текущему шагу.
func OutdatedReply() chat.Reply {
	return chat.Alert(msgOutdated)
}

var negations = map[string]struct{}{
	"нет":              {},
	"не":               {},
	"no":               {},
	"none":             {},
	"nothing":          {},
	"без комментариев": {},
}

// Optional обрезает пробелы и превращает слова-отказы ("нет", "no", ...) в пустую строку.
func Optional(text string) string {
	text = strings.TrimSpace(text)
	if _, ok := negations[strings.ToLower(text)]; ok {
		return ""
	}
	return text
}

// VenueCard - карточка заведения для списков.
func VenueCard(n int, v models.Venue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d️⃣ <b>%s</b>\n", n, html.EscapeString(v.Name))
	fmt.Fprintf(&b, "Категория: %s\n", html.EscapeString(v.Category))
	fmt.Fprintf(&b, "Район: %s\n", html.EscapeString(v.District))
	fmt.Fprintf(&b, "📍 %s\n", html.EscapeString(v.Address))
	fmt.Fprintf(&b, "📞 %s", html.EscapeString(v.Phone))
	if v.Instagram != "" {
		fmt.Fprintf(&b, "\n🔗 %s", html.EscapeString(v.Instagram))
	}
	return b.String()
}

// VenueCards - карточки через пустую строку.
func VenueCards(venues []models.Venue) string {
	parts := make([]string, 0, len(venues))
	for i, v := range venues {
		parts = append(parts, VenueCard(i+1, v))
	}
	return strings.Join(parts, "\n\n")
}

// payload отделяет префикс callback-данных: "time:18:00" -> "18:00".
func payload(data, prefix string) (string, bool) {
	if !strings.HasPrefix(data, prefix) {
		return "", false
	}
	return data[len(prefix):], true
}
