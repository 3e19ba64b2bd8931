package api

// RegisterRequest представляет запрос на регистрацию нового пользователя.
// Вместе с auth-данными клиент загружает свою асимметричную пару ключей:
// публичный ключ в открытом виде, приватный — зашифрованный ключом,
// производным от master password (сервер не может его прочитать).
type RegisterRequest struct {
	Username            string `json:"username"`              // username пользователя
	AuthKeyHash         string `json:"auth_key_hash"`         // SHA256 хеш auth_key (hex-encoded)
	PublicSalt          string `json:"public_salt"`           // base64 encoded salt (32 bytes)
	PublicKey           string `json:"public_key"`            // base64 X25519 публичный ключ (32 bytes)
	EncryptedPrivateKey string `json:"encrypted_private_key"` // base64 AES-GCM блоб с приватным ключом
}

// RegisterResponse представляет ответ на успешную регистрацию
type RegisterResponse struct {
	UserID  string `json:"user_id"` // UUID пользователя
	Message string `json:"message"` // сообщение об успешной регистрации
}

// SaltResponse представляет ответ с публичной солью пользователя
type SaltResponse struct {
	PublicSalt string `json:"public_salt"` // base64 encoded salt
}

// LoginRequest представляет запрос на аутентификацию
type LoginRequest struct {
	Username    string `json:"username"`      // username пользователя
	AuthKeyHash string `json:"auth_key_hash"` // SHA256 хеш auth_key (hex-encoded)
}

// TokenResponse представляет ответ с токенами доступа
type TokenResponse struct {
	UserID       string `json:"user_id"`       // UUID пользователя
	AccessToken  string `json:"access_token"`  // JWT access token
	RefreshToken string `json:"refresh_token"` // refresh token
	ExpiresIn    int64  `json:"expires_in"`    // время жизни access token в секундах
}

// KeyBundleResponse представляет ответ с парой ключей пользователя.
// Приватный ключ возвращается в зашифрованном виде — расшифровать его
// может только клиент, знающий master password.
type KeyBundleResponse struct {
	PublicKey           string `json:"public_key"`            // base64 X25519 публичный ключ
	EncryptedPrivateKey string `json:"encrypted_private_key"` // base64 AES-GCM блоб
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
