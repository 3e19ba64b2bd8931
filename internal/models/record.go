package models

import (
	"fmt"
	"strings"
	"time"
)

// Record представляет одну версионированную запись хранилища.
// Хранилище — единственный авторитетный владелец записей; клиенты
// держат только read-through кеши с теми же номерами версий.
type Record struct {
	UserID    string    `json:"user_id"`    // владелец записи
	Key       string    `json:"key"`        // непрозрачный строковый ключ
	Value     []byte    `json:"value"`      // nil = tombstone
	Version   int64     `json:"version"`    // монотонно растущая версия ключа
	UpdatedAt time.Time `json:"updated_at"` // время последней мутации
}

// Tombstone возвращает true, если запись логически удалена.
// Линия версий tombstone-ключа остается адресуемой: повторное
// создание требует CAS по текущей версии, а не VersionNew.
func (r *Record) Tombstone() bool {
	return r.Value == nil
}

// Clone создает глубокую копию записи
func (r *Record) Clone() *Record {
	clone := *r
	if r.Value != nil {
		clone.Value = make([]byte, len(r.Value))
		copy(clone.Value, r.Value)
	}
	return &clone
}

// Соглашение об именовании ключей: "<sessionID>.<kind>[.<id>]".
// Например "b2f1...d4.task.7c3a...9e" для sibling-записи задачи,
// "b2f1...d4.task.index" для index-записи и "b2f1...d4.key"
// для session key record.
const (
	// KindTask сегмент ключа для записей задач
	KindTask = "task"
	// IndexSuffix последний сегмент ключа index-записи
	IndexSuffix = "index"
	// SessionKeySuffix последний сегмент ключа session key record
	SessionKeySuffix = "key"
)

// TaskKey возвращает ключ sibling-записи задачи
func TaskKey(sessionID, taskID string) string {
	return fmt.Sprintf("%s.%s.%s", sessionID, KindTask, taskID)
}

// TaskIndexKey возвращает ключ index-записи задач сессии
func TaskIndexKey(sessionID string) string {
	return fmt.Sprintf("%s.%s.%s", sessionID, KindTask, IndexSuffix)
}

// TaskPrefix возвращает префикс всех записей задач сессии
func TaskPrefix(sessionID string) string {
	return sessionID + "." + KindTask + "."
}

// SessionKeyKey возвращает ключ session key record сессии
func SessionKeyKey(sessionID string) string {
	return sessionID + "." + SessionKeySuffix
}

// SessionIDFromKey извлекает идентификатор сессии из ключа записи.
// Возвращает пустую строку для ключей вне соглашения.
func SessionIDFromKey(key string) string {
	idx := strings.IndexByte(key, '.')
	if idx <= 0 {
		return ""
	}
	return key[:idx]
}

// TaskIDFromKey извлекает идентификатор задачи из ключа sibling-записи.
// Возвращает пустую строку для index-записей и ключей другого вида.
func TaskIDFromKey(key string) string {
	parts := strings.SplitN(key, ".", 3)
	if len(parts) != 3 || parts[1] != KindTask || parts[2] == IndexSuffix {
		return ""
	}
	return parts[2]
}

// IsTaskIndexKey проверяет, что ключ принадлежит index-записи задач
func IsTaskIndexKey(key string) bool {
	parts := strings.SplitN(key, ".", 3)
	return len(parts) == 3 && parts[1] == KindTask && parts[2] == IndexSuffix
}

// IsSessionKeyKey проверяет, что ключ принадлежит session key record
func IsSessionKeyKey(key string) bool {
	parts := strings.SplitN(key, ".", 2)
	return len(parts) == 2 && parts[1] == SessionKeySuffix
}
