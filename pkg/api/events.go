package api

// ChangeEvent представляет одно изменение, доставляемое подписчику
// через websocket канал. События по одному ключу приходят в порядке
// версий; между разными ключами порядок не гарантируется.
type ChangeEvent struct {
	Key       string `json:"key"`
	Value     []byte `json:"value,omitempty"` // nil при tombstone
	Version   int64  `json:"version"`
	SessionID string `json:"session_id,omitempty"` // первый сегмент ключа
	Tombstone bool   `json:"tombstone,omitempty"`
}

// EventBatch представляет пачку событий одного принятого mutate batch.
// События эфемерны: переподключившийся клиент обязан выполнить полный
// resync через prefix-scan, replay пропущенных событий не существует.
type EventBatch struct {
	Events []ChangeEvent `json:"events"`
}
