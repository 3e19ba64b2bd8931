package models

// TaskIndex представляет расшифрованное содержимое index-записи:
// авторитетный порядок sibling-записей задач одной сессии.
// Инвариант: каждый id из обоих списков соответствует живой
// (не-tombstone) sibling-записи, и каждый живой sibling числится
// ровно в одном списке ровно один раз.
type TaskIndex struct {
	OrderedActiveIDs   []string `json:"ordered_active_ids"`
	OrderedArchivedIDs []string `json:"ordered_archived_ids"`
}

// Contains проверяет наличие id в любом из списков
func (ix *TaskIndex) Contains(id string) bool {
	return containsID(ix.OrderedActiveIDs, id) || containsID(ix.OrderedArchivedIDs, id)
}

// List возвращает список по имени статуса (TaskStatusActive/TaskStatusArchived)
func (ix *TaskIndex) List(status string) []string {
	if status == TaskStatusArchived {
		return ix.OrderedArchivedIDs
	}
	return ix.OrderedActiveIDs
}

// Append добавляет id в конец указанного списка.
// Идемпотентно: повторное добавление уже присутствующего id — no-op.
func (ix *TaskIndex) Append(id, status string) {
	if ix.Contains(id) {
		return
	}
	if status == TaskStatusArchived {
		ix.OrderedArchivedIDs = append(ix.OrderedArchivedIDs, id)
		return
	}
	ix.OrderedActiveIDs = append(ix.OrderedActiveIDs, id)
}

// Remove удаляет id из обоих списков.
// Идемпотентно: отсутствующий id — no-op. Возвращает true, если id был найден.
func (ix *TaskIndex) Remove(id string) bool {
	var foundActive, foundArchived bool
	ix.OrderedActiveIDs, foundActive = removeID(ix.OrderedActiveIDs, id)
	ix.OrderedArchivedIDs, foundArchived = removeID(ix.OrderedArchivedIDs, id)
	return foundActive || foundArchived
}

// Move переносит id из списка from в конец списка to.
// Удаление из from идемпотентно (no-op при повторе), добавление
// в to не создает дубликатов.
func (ix *TaskIndex) Move(id, to string) {
	ix.Remove(id)
	if to == TaskStatusArchived {
		ix.OrderedArchivedIDs = append(ix.OrderedArchivedIDs, id)
		return
	}
	ix.OrderedActiveIDs = append(ix.OrderedActiveIDs, id)
}

// Filter возвращает копию index, в которой оставлены только id,
// присутствующие в множестве live. Защитная read-side репарация:
// tombstone-sibling, еще числящийся в index, отфильтровывается.
// Возвращает также количество отброшенных id.
func (ix *TaskIndex) Filter(live map[string]bool) (*TaskIndex, int) {
	filtered := &TaskIndex{}
	dropped := 0
	for _, id := range ix.OrderedActiveIDs {
		if live[id] {
			filtered.OrderedActiveIDs = append(filtered.OrderedActiveIDs, id)
		} else {
			dropped++
		}
	}
	for _, id := range ix.OrderedArchivedIDs {
		if live[id] {
			filtered.OrderedArchivedIDs = append(filtered.OrderedArchivedIDs, id)
		} else {
			dropped++
		}
	}
	return filtered, dropped
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) ([]string, bool) {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...), true
		}
	}
	return ids, false
}
