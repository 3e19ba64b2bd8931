package models

import "time"

// PushEndpoint представляет зарегистрированный пользователем HTTP
// endpoint для доставки уведомлений. Token передается в payload
// доставки as-is, сервер его не интерпретирует.
type PushEndpoint struct {
	ID        string    `json:"id"`         // UUID endpoint'а
	UserID    string    `json:"user_id"`    // владелец
	URL       string    `json:"url"`        // куда доставлять POST
	Token     string    `json:"token"`      // непрозрачный токен получателя
	CreatedAt time.Time `json:"created_at"` // время регистрации
}
