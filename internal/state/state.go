// Package state хранит состояние диалога пользователя: текущий шаг и собранные поля.
package state

import "context"

// None - у пользователя нет активного диалога.
const None = ""

// Store - контейнер состояния диалогов. Пользователи изолированы друг от друга.
type Store interface {
	SetState(ctx context.Context, userID int64, tag string) error
	GetState(ctx context.Context, userID int64) (string, error)
	// UpdateFields сливает fields с уже собранными полями.
	UpdateFields(ctx context.Context, userID int64, fields map[string]string) error
	GetFields(ctx context.Context, userID int64) (map[string]string, error)
	Clear(ctx context.Context, userID int64) error
}
