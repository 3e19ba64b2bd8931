package models

import "time"

// User представляет пользователя в системе
type User struct {
	ID                  string     `json:"id"`                    // UUID пользователя
	Username            string     `json:"username"`              // уникальный username
	AuthKeyHash         string     `json:"auth_key_hash"`         // SHA256 хеш auth_key (hex)
	PublicSalt          string     `json:"public_salt"`           // base64 encoded salt (32 bytes)
	PublicKey           string     `json:"public_key"`            // base64 X25519 публичный ключ
	EncryptedPrivateKey string     `json:"encrypted_private_key"` // base64 блоб с приватным ключом
	CreatedAt           time.Time  `json:"created_at"`            // время создания
	LastLogin           *time.Time `json:"last_login,omitempty"`  // время последнего входа, nil если не входил
}

// RefreshToken представляет refresh token пользователя
type RefreshToken struct {
	Token     string    `json:"token"`      // случайный base64 токен
	UserID    string    `json:"user_id"`    // ID пользователя
	ExpiresAt time.Time `json:"expires_at"` // время истечения
	CreatedAt time.Time `json:"created_at"` // время создания
}
