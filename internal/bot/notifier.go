package bot

import (
	"context"
	"fmt"

	"rezme/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// OperatorNotifier отправляет карточку брони оператору в личные сообщения.
type OperatorNotifier struct {
	api     API
	adminID int64
}

func NewOperatorNotifier(api API, adminID int64) *OperatorNotifier {
	return &OperatorNotifier{api: api, adminID: adminID}
}

func (n *OperatorNotifier) NotifyBooking(_ context.Context, notice notify.BookingNotice) error {
	if n == nil || n.adminID == 0 {
		return nil
	}
	// без parse mode: карточка содержит пользовательский текст как есть
	msg := tgbotapi.NewMessage(n.adminID, notify.OperatorText(notice))
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("notify operator %d: %w", n.adminID, err)
	}
	return nil
}
