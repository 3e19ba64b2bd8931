package api

// RegisterEndpointRequest представляет запрос на регистрацию
// внешнего push endpoint'а (URL push-шлюза плюс device token)
type RegisterEndpointRequest struct {
	URL   string `json:"url"`   // URL endpoint'а, принимающего доставку
	Token string `json:"token"` // непрозрачный device token для шлюза
}

// RegisterEndpointResponse представляет ответ на регистрацию endpoint'а
type RegisterEndpointResponse struct {
	EndpointID string `json:"endpoint_id"` // UUID зарегистрированного endpoint'а
}

// NotificationPayload представляет содержимое push-уведомления.
// Data содержит только непрозрачные факты об изменениях (ключи, session id) —
// сервер не знает расшифрованного содержимого записей.
type NotificationPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// PushDelivery представляет тело HTTP запроса к одному endpoint'у
type PushDelivery struct {
	Token   string              `json:"token"`
	Payload NotificationPayload `json:"payload"`
}
