// Package chat описывает входящие события и исходящие ответы без привязки к Telegram.
package chat

type EventKind int

const (
	KindCommand EventKind = iota
	KindText
	KindCallback
)

func (k EventKind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindText:
		return "text"
	case KindCallback:
		return "callback"
	}
	return "unknown"
}

// Event - одно входящее действие пользователя.
type Event struct {
	UserID   int64
	ChatID   int64
	Username string
	FullName string
	Kind     EventKind

	Command string // без "/", для KindCommand
	Args    string
	Text    string
	Phone   string // номер из отправленного контакта

	Data       string // payload callback-кнопки
	CallbackID string
	MessageID  int // сообщение, к которому привязана callback-кнопка
}

// FirstName - первое слово полного имени.
func (e Event) FirstName() string {
	for i, r := range e.FullName {
		if r == ' ' {
			return e.FullName[:i]
		}
	}
	return e.FullName
}

type Button struct {
	Text string
	Data string
}

// Menu - inline-клавиатура (Rows) либо обычная клавиатура (Keyboard).
type Menu struct {
	Rows [][]Button

	Keyboard       [][]string
	RequestContact bool // первая кнопка Keyboard запрашивает контакт
	OneTime        bool
	Placeholder    string
}

// Inline строит меню по рядам кнопок.
func Inline(rows ...[]Button) *Menu {
	return &Menu{Rows: rows}
}

// Row - сокращение для ряда кнопок.
func Row(buttons ...Button) []Button {
	return buttons
}

// Chunk разбивает кнопки на ряды по size штук.
func Chunk(buttons []Button, size int) [][]Button {
	var rows [][]Button
	for i := 0; i < len(buttons); i += size {
		end := i + size
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return rows
}

// Reply - ответ пользователю.
//
// Alert относится к callback: текст всплывающего уведомления, ShowAlert делает
// его блокирующим. Reply только с Alert не порождает сообщение в чате.
// Edit просит заменить сообщение, с которого пришел callback.
type Reply struct {
	ChatID    int64 // 0 - чат пользователя, от которого пришло событие
	Text      string
	Menu      *Menu
	Edit      bool
	Alert     string
	ShowAlert bool
	Document  *Document
}

// Document - файл для отправки.
type Document struct {
	Path    string
	Caption string
}

func Text(text string) Reply {
	return Reply{Text: text}
}

func WithMenu(text string, menu *Menu) Reply {
	return Reply{Text: text, Menu: menu}
}

// Alert - отказ без перехода к следующему шагу.
func Alert(text string) Reply {
	return Reply{Alert: text, ShowAlert: true}
}
