package api

// VersionNew специальное значение expected_version, означающее
// "ключ еще не должен существовать" (создание новой записи)
const VersionNew int64 = -1

// Record представляет одну версионированную запись key/value хранилища.
// Value равное nil означает tombstone (запись логически удалена,
// но ее версия продолжает расти при повторных мутациях).
type Record struct {
	Key     string `json:"key"`
	Value   []byte `json:"value"`   // nil = tombstone
	Version int64  `json:"version"` // монотонно растущая версия ключа
}

// MutateEntry представляет одну мутацию в batch запросе.
// Мутация применяется только если expected_version совпадает
// с текущей версией ключа (compare-and-swap).
type MutateEntry struct {
	Key             string `json:"key"`
	Value           []byte `json:"value,omitempty"`
	ExpectedVersion int64  `json:"expected_version"`
	Tombstone       bool   `json:"tombstone,omitempty"` // true = удаление (value игнорируется)
}

// MutateRequest представляет batch мутаций от клиента.
// Каждая запись применяется независимо, cross-key атомарности нет.
type MutateRequest struct {
	Entries []MutateEntry `json:"entries"`
}

// RejectedEntry описывает отклоненную мутацию.
// current_version позволяет клиенту выполнить повторный
// цикл read-modify-write без дополнительного запроса.
type RejectedEntry struct {
	Key            string `json:"key"`
	CurrentVersion int64  `json:"current_version"`
}

// MutateResponse представляет ответ сервера на batch мутаций
type MutateResponse struct {
	Accepted []Record        `json:"accepted"` // принятые записи с новыми версиями
	Rejected []RejectedEntry `json:"rejected"` // отклоненные по version conflict
}

// ScanResponse представляет ответ на prefix-scan запрос.
// Порядок записей не гарантируется: авторитетный порядок
// задает только index-запись namespace'а.
type ScanResponse struct {
	Records []Record `json:"records"`
}

// GetResponse представляет ответ на запрос одной записи
type GetResponse struct {
	Record Record `json:"record"`
}
