package crypto

import (
	"bytes"
	"encoding/base64"
	"fmt"
)

// Кодировка значений записей хранилища. В хранилище сосуществуют две
// кодировки: устаревшая plain base64 (без шифрования) и актуальная
// AEAD-кодировка "v1." + base64(nonce||ciphertext). Выбор делается по
// дискриминантному префиксу, никогда через "попробовать одно, поймать
// ошибку, попробовать другое". Символ '.' не входит в алфавит base64,
// поэтому legacy-значение не может начинаться с "v1.".

// PayloadEncoding различает кодировки значения записи
type PayloadEncoding int

const (
	// EncodingLegacy устаревшая кодировка: plain base64 без шифрования.
	// Принимается только на чтение, новые writer'ы ее никогда не производят.
	EncodingLegacy PayloadEncoding = iota
	// EncodingAEAD актуальная кодировка: AES-256-GCM под session-ключом
	EncodingAEAD
)

// aeadPrefix дискриминантный префикс зашифрованных значений
const aeadPrefix = "v1."

// Payload представляет разобранное значение записи
type Payload struct {
	Encoding PayloadEncoding
	Data     []byte // nonce||ciphertext для AEAD, plaintext для legacy
}

// ParsePayload разбирает байты значения записи в тегированный вариант
func ParsePayload(value []byte) (*Payload, error) {
	if len(value) == 0 {
		return nil, fmt.Errorf("payload cannot be empty")
	}

	if bytes.HasPrefix(value, []byte(aeadPrefix)) {
		raw, err := base64.StdEncoding.DecodeString(string(value[len(aeadPrefix):]))
		if err != nil {
			return nil, fmt.Errorf("failed to decode encrypted payload: %w", err)
		}
		return &Payload{Encoding: EncodingAEAD, Data: raw}, nil
	}

	// Legacy: значение целиком — base64 от plaintext
	raw, err := base64.StdEncoding.DecodeString(string(value))
	if err != nil {
		return nil, fmt.Errorf("failed to decode legacy payload: %w", err)
	}
	return &Payload{Encoding: EncodingLegacy, Data: raw}, nil
}

// Open возвращает plaintext значения. Для AEAD-кодировки дешифрует
// session-ключом (fail-closed через ErrDecryptionFailed), для legacy
// возвращает уже декодированный plaintext как есть.
func (p *Payload) Open(key []byte) ([]byte, error) {
	switch p.Encoding {
	case EncodingAEAD:
		return Decrypt(p.Data, key)
	case EncodingLegacy:
		return p.Data, nil
	default:
		return nil, fmt.Errorf("unknown payload encoding %d", p.Encoding)
	}
}

// SealPayload шифрует plaintext session-ключом и кодирует в байты
// значения записи. Единственная кодировка, которую производят writer'ы.
func SealPayload(plaintext, key []byte) ([]byte, error) {
	encrypted, err := Encrypt(plaintext, key)
	if err != nil {
		return nil, fmt.Errorf("failed to seal payload: %w", err)
	}
	return []byte(aeadPrefix + base64.StdEncoding.EncodeToString(encrypted)), nil
}

// OpenPayload разбирает и расшифровывает значение записи за один вызов
func OpenPayload(value, key []byte) ([]byte, error) {
	payload, err := ParsePayload(value)
	if err != nil {
		return nil, err
	}
	return payload.Open(key)
}
