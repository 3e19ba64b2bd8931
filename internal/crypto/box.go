package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Асимметричная обертка session-ключей: X25519 key agreement между
// эфемерным ключом отправителя и публичным ключом получателя,
// HKDF-SHA256 для выведения wrapping-ключа, AES-256-GCM для запечатывания.

// hkdfInfo context string для деривации wrapping-ключа
const hkdfInfo = "syncvault session key wrap v1"

// KeyPair содержит X25519 пару ключей в сыром виде (32 bytes каждый)
type KeyPair struct {
	Public  []byte
	Private []byte
}

// GenerateKeyPair генерирует новую X25519 пару ключей
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate x25519 key: %w", err)
	}

	return &KeyPair{
		Public:  priv.PublicKey().Bytes(),
		Private: priv.Bytes(),
	}, nil
}

// deriveWrappingKey выводит симметричный wrapping-ключ из общего секрета
// ECDH(private, public)
func deriveWrappingKey(privateKey, publicKey []byte) ([]byte, error) {
	priv, err := ecdh.X25519().NewPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	pub, err := ecdh.X25519().NewPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}

	shared, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shared secret: %w", err)
	}

	// HKDF-SHA256: раскладываем общий секрет в 32-байтовый ключ
	kdf := hkdf.New(sha256.New, shared, nil, []byte(hkdfInfo))
	wrappingKey := make([]byte, KeySize)
	if _, err := io.ReadFull(kdf, wrappingKey); err != nil {
		return nil, fmt.Errorf("failed to expand wrapping key: %w", err)
	}

	return wrappingKey, nil
}

// WrapSessionKey запечатывает симметричный ключ сессии под публичный
// ключ получателя. Использует эфемерную пару отправителя: возвращает
// ее публичную часть (нужна получателю для unwrap) и блоб
// nonce||ciphertext.
func WrapSessionKey(sessionKey, recipientPublicKey []byte) (senderPub, encrypted []byte, err error) {
	if len(sessionKey) != KeySize {
		return nil, nil, fmt.Errorf("session key must be %d bytes, got %d", KeySize, len(sessionKey))
	}

	ephemeral, err := GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}

	wrappingKey, err := deriveWrappingKey(ephemeral.Private, recipientPublicKey)
	if err != nil {
		return nil, nil, err
	}

	encrypted, err = Encrypt(sessionKey, wrappingKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to seal session key: %w", err)
	}

	return ephemeral.Public, encrypted, nil
}

// UnwrapSessionKey распечатывает ключ сессии: ECDH между приватным
// ключом получателя и публичным ключом отправителя, затем AES-GCM open.
// Fail-closed: при несовпадении authentication tag возвращает
// ErrDecryptionFailed, частично расшифрованный ключ не возвращается никогда.
func UnwrapSessionKey(encrypted, recipientPrivateKey, senderPublicKey []byte) ([]byte, error) {
	wrappingKey, err := deriveWrappingKey(recipientPrivateKey, senderPublicKey)
	if err != nil {
		return nil, err
	}

	sessionKey, err := Decrypt(encrypted, wrappingKey)
	if err != nil {
		return nil, err
	}

	if len(sessionKey) != KeySize {
		return nil, fmt.Errorf("%w: unexpected session key length %d", ErrDecryptionFailed, len(sessionKey))
	}

	return sessionKey, nil
}
