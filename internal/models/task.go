package models

import "time"

// Статусы задачи. Статус определяет, в каком из двух списков
// index-записи находится id задачи, и используется процедурой
// rebuild как собственное "поле истины" sibling-записи.
const (
	TaskStatusActive   = "active"
	TaskStatusArchived = "archived"
)

// Task представляет расшифрованное содержимое sibling-записи задачи.
// Сериализуется в JSON и шифруется session-ключом перед записью
// в хранилище; сервер видит только непрозрачный блоб.
type Task struct {
	ID        string    `json:"id"`         // UUID задачи, совпадает с последним сегментом ключа
	Title     string    `json:"title"`      // заголовок задачи
	Status    string    `json:"status"`     // active | archived
	Done      bool      `json:"done"`       // выполнена ли задача
	CreatedAt time.Time `json:"created_at"` // время создания (ключ сортировки при rebuild)
	UpdatedAt time.Time `json:"updated_at"` // время последнего изменения
}

// TargetList возвращает статус-список, которому принадлежит задача
func (t *Task) TargetList() string {
	if t.Status == TaskStatusArchived {
		return TaskStatusArchived
	}
	return TaskStatusActive
}
