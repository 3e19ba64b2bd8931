package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/iudanet/syncvault/internal/models"
)

// ReadIndex читает index-запись и применяет read-side репарацию:
// id, для которых нет живой sibling-записи, отфильтровываются.
// Отсутствие index-записи — пустой индекс, не ошибка.
// Хранилище при этом не модифицируется; починку пишет только Rebuild.
func (m *Maintainer) ReadIndex(ctx context.Context, sessionID string) (*models.TaskIndex, error) {
	key, err := m.keys.ResolveKey(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve session key: %w", err)
	}

	record, found, err := m.store.GetRecord(ctx, models.TaskIndexKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("get index record: %w", err)
	}
	if !found || record.Tombstone() {
		return &models.TaskIndex{}, nil
	}

	ix, err := decodeIndex(record, key)
	if err != nil {
		return nil, err
	}

	tasks, err := m.liveTasks(ctx, sessionID, key)
	if err != nil {
		return nil, err
	}

	live := make(map[string]bool, len(tasks))
	for id := range tasks {
		live[id] = true
	}

	repaired, dropped := ix.Filter(live)
	if dropped > 0 {
		m.logger.Warn("index references dead tasks, repaired on read",
			"session_id", sessionID,
			"dropped", dropped,
		)
	}
	return repaired, nil
}

// ListTasks возвращает задачи статус-списка в порядке индекса.
// Задачи, попавшие в хранилище, но еще не в индекс (гонка с Add),
// не возвращаются: порядок определяет индекс.
func (m *Maintainer) ListTasks(ctx context.Context, sessionID, status string) ([]models.Task, error) {
	key, err := m.keys.ResolveKey(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve session key: %w", err)
	}

	ix, err := m.ReadIndex(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	tasks, err := m.liveTasks(ctx, sessionID, key)
	if err != nil {
		return nil, err
	}

	ids := ix.List(status)
	ordered := make([]models.Task, 0, len(ids))
	for _, id := range ids {
		task, ok := tasks[id]
		if !ok {
			continue
		}
		ordered = append(ordered, *task)
	}
	return ordered, nil
}

// Rebuild пересобирает index-запись из живых sibling-записей:
// задачи разбиваются по собственному полю Status и сортируются по
// CreatedAt от новых к старым. Ручной пользовательский порядок
// теряется — rebuild это восстановление после рассогласования,
// не обычная операция.
func (m *Maintainer) Rebuild(ctx context.Context, sessionID string) (*models.TaskIndex, error) {
	lock := m.nsLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	key, err := m.keys.ResolveKey(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("resolve session key: %w", err)
	}

	tasks, err := m.liveTasks(ctx, sessionID, key)
	if err != nil {
		return nil, err
	}

	list := make([]*models.Task, 0, len(tasks))
	for _, task := range tasks {
		list = append(list, task)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID // детерминизм при равных timestamp'ах
	})

	rebuilt := &models.TaskIndex{}
	for _, task := range list {
		rebuilt.Append(task.ID, task.TargetList())
	}

	err = m.updateIndex(ctx, sessionID, key, func(ix *models.TaskIndex) error {
		*ix = *rebuilt
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("index rebuilt",
		"session_id", sessionID,
		"active", len(rebuilt.OrderedActiveIDs),
		"archived", len(rebuilt.OrderedArchivedIDs),
	)
	return rebuilt, nil
}

// liveTasks читает и расшифровывает все живые sibling-записи задач
// namespace. Index-запись, попадающая под тот же префикс, пропускается.
func (m *Maintainer) liveTasks(
	ctx context.Context,
	sessionID string,
	sessionKey []byte,
) (map[string]*models.Task, error) {
	records, err := m.store.ScanRecords(ctx, models.TaskPrefix(sessionID), 0)
	if err != nil {
		return nil, fmt.Errorf("scan task records: %w", err)
	}

	tasks := make(map[string]*models.Task, len(records))
	for i := range records {
		record := &records[i]
		if models.IsTaskIndexKey(record.Key) || record.Tombstone() {
			continue
		}
		task, err := decodeTask(record, sessionKey)
		if err != nil {
			return nil, err
		}
		tasks[task.ID] = task
	}
	return tasks, nil
}
