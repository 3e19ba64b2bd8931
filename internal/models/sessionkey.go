package models

// SessionKeyRecord представляет содержимое записи "<sessionID>.key":
// симметричный ключ сессии, запечатанный под публичный ключ получателя.
// Сама запись хранится без дополнительного шифрования — ее содержимое
// уже криптографически защищено асимметричной оберткой.
//
// Жизненный цикл: создается один раз той стороной, которой первой
// понадобилось отправить зашифрованное сообщение в сессии (CAS с
// expected_version = VersionNew); при проигрыше гонки создатель
// обязан прочитать победившую запись. Ротация выражается перезаписью
// записи — версия записи служит key version для кешей потребителей.
type SessionKeyRecord struct {
	SessionID    string `json:"session_id"`
	SenderPub    string `json:"sender_pub"`    // base64 эфемерный X25519 публичный ключ отправителя
	EncryptedKey string `json:"encrypted_key"` // base64 nonce||ciphertext (AES-GCM поверх ECDH+HKDF)
}
