// Package auth реализует клиентскую сторону identity-слоя:
// регистрацию с загрузкой key bundle, login с восстановлением
// X25519 пары и шифрованное хранение токенов.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/syncvault/internal/client/api"
	"github.com/iudanet/syncvault/internal/client/storage"
	"github.com/iudanet/syncvault/internal/crypto"
	"github.com/iudanet/syncvault/internal/validation"
	pkgapi "github.com/iudanet/syncvault/pkg/api"
)

// AuthStore defines interface for storing authentication data with encryption.
// This layer is responsible for encrypting/decrypting tokens before saving to storage.
type AuthStore interface {
	// SaveAuth encrypts tokens with encryptionKey and saves authentication data
	SaveAuth(ctx context.Context, auth *storage.AuthData, encryptionKey []byte) error

	// GetAuth retrieves authentication data and decrypts tokens
	GetAuth(ctx context.Context, encryptionKey []byte) (*storage.AuthData, error)

	// GetAuthMeta retrieves authentication data without decrypting tokens
	GetAuthMeta(ctx context.Context) (*storage.AuthData, error)

	// DeleteAuth removes stored authentication data
	DeleteAuth(ctx context.Context) error

	// IsAuthenticated checks if valid authentication exists
	IsAuthenticated(ctx context.Context) (bool, error)
}

// Service предоставляет функции авторизации
type Service struct {
	apiClient *api.Client
	authStore AuthStore
}

// NewService создает новый сервис авторизации
func NewService(apiClient *api.Client, authStore AuthStore) *Service {
	return &Service{
		apiClient: apiClient,
		authStore: authStore,
	}
}

// RegisterResult содержит результат регистрации
type RegisterResult struct {
	UserID        string          // UUID пользователя
	Username      string          // username
	PublicSalt    string          // public salt (base64)
	EncryptionKey []byte          // ключ шифрования (НЕ сохраняется!)
	KeyPair       *crypto.KeyPair // X25519 пара устройства
}

// Register регистрирует нового пользователя.
// Вместе с auth-данными на сервер загружается key bundle: публичный
// ключ в открытом виде и приватный, зашифрованный ключом из master
// password — сервер никогда не видит приватный ключ в открытом виде.
func (s *Service) Register(ctx context.Context, username, masterPassword string) (*RegisterResult, error) {
	// Валидация входных данных
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if err := validation.ValidatePassword(masterPassword); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}

	// 1. Генерируем публичную соль
	publicSaltBase64, err := crypto.GenerateSaltBase64()
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	// 2. Деривируем ключи из master password
	keys, err := crypto.DeriveKeysFromBase64Salt(masterPassword, username, publicSaltBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to derive keys: %w", err)
	}

	// 3. Хешируем auth_key для отправки на сервер
	authKeyHash, err := crypto.HashAuthKey(keys.AuthKey)
	if err != nil {
		return nil, fmt.Errorf("failed to hash auth key: %w", err)
	}

	// 4. Генерируем асимметричную пару и запечатываем приватный ключ
	keyPair, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	encryptedPrivateKey, err := crypto.EncryptToBase64(keyPair.Private, keys.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}

	// 5. Отправляем запрос на регистрацию
	req := pkgapi.RegisterRequest{
		Username:            username,
		AuthKeyHash:         authKeyHash,
		PublicSalt:          publicSaltBase64,
		PublicKey:           base64.StdEncoding.EncodeToString(keyPair.Public),
		EncryptedPrivateKey: encryptedPrivateKey,
	}

	resp, err := s.apiClient.Register(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}

	return &RegisterResult{
		UserID:        resp.UserID,
		Username:      username,
		PublicSalt:    publicSaltBase64,
		EncryptionKey: keys.EncryptionKey,
		KeyPair:       keyPair,
	}, nil
}

// LoginResult содержит результат авторизации
type LoginResult struct {
	AccessToken   string
	RefreshToken  string
	UserID        string
	Username      string
	SessionID     string // namespace задач этого устройства
	PublicSalt    string
	EncryptionKey []byte
	KeyPair       *crypto.KeyPair
	ExpiresIn     int64
}

// Login выполняет аутентификацию пользователя.
// После получения токенов забирает key bundle с сервера и
// восстанавливает X25519 пару, расшифровывая приватный ключ
// ключом из master password.
func (s *Service) Login(ctx context.Context, username, masterPassword string) (*LoginResult, error) {
	// Валидация входных данных
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if err := validation.ValidatePassword(masterPassword); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}

	// 1. Получаем public_salt с сервера
	saltResp, err := s.apiClient.GetSalt(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get salt: %w", err)
	}

	// 2. Деривируем ключи из master password
	keys, err := crypto.DeriveKeysFromBase64Salt(masterPassword, username, saltResp.PublicSalt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive keys: %w", err)
	}

	// 3. Хешируем auth_key
	authKeyHash, err := crypto.HashAuthKey(keys.AuthKey)
	if err != nil {
		return nil, fmt.Errorf("failed to hash auth key: %w", err)
	}

	// 4. Отправляем запрос на логин
	req := pkgapi.LoginRequest{
		Username:    username,
		AuthKeyHash: authKeyHash,
	}

	resp, err := s.apiClient.Login(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	s.apiClient.SetAccessToken(resp.AccessToken)

	// 5. Забираем key bundle и восстанавливаем пару ключей
	keyPair, err := s.FetchKeyPair(ctx, keys.EncryptionKey)
	if err != nil {
		return nil, err
	}

	// 6. Получаем или создаем sessionID этого устройства
	sessionID, err := s.getOrCreateSessionID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create session ID: %w", err)
	}

	return &LoginResult{
		AccessToken:   resp.AccessToken,
		RefreshToken:  resp.RefreshToken,
		ExpiresIn:     resp.ExpiresIn,
		UserID:        resp.UserID,
		Username:      username,
		SessionID:     sessionID,
		PublicSalt:    saltResp.PublicSalt,
		EncryptionKey: keys.EncryptionKey,
		KeyPair:       keyPair,
	}, nil
}

// Refresh обновляет пару токенов и сохраняет их в хранилище
func (s *Service) Refresh(ctx context.Context, auth *storage.AuthData, encryptionKey []byte) (*storage.AuthData, error) {
	resp, err := s.apiClient.Refresh(ctx, auth.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	updated := *auth
	updated.AccessToken = resp.AccessToken
	updated.RefreshToken = resp.RefreshToken
	updated.ExpiresAt = expiresAt(resp.ExpiresIn)

	if err := s.authStore.SaveAuth(ctx, &updated, encryptionKey); err != nil {
		return nil, fmt.Errorf("failed to save refreshed tokens: %w", err)
	}

	s.apiClient.SetAccessToken(resp.AccessToken)

	return &updated, nil
}

// Logout выполняет выход из системы.
// Сервер уведомляется best effort (access token должен быть установлен
// вызывающим кодом); локальные данные удаляются всегда.
func (s *Service) Logout(ctx context.Context) error {
	if s.apiClient.AccessToken() != "" {
		if err := s.apiClient.Logout(ctx); err != nil {
			// Не прерываем процесс, если сервер недоступен
			slog.Warn("failed to logout on server", "error", err)
		}
	}

	if err := s.authStore.DeleteAuth(ctx); err != nil {
		return fmt.Errorf("failed to delete local auth data: %w", err)
	}

	return nil
}

// FetchKeyPair загружает key bundle с сервера и расшифровывает
// приватный ключ. Требует установленного access token.
func (s *Service) FetchKeyPair(ctx context.Context, encryptionKey []byte) (*crypto.KeyPair, error) {
	bundle, err := s.apiClient.GetKeyBundle(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch key bundle: %w", err)
	}

	publicKey, err := base64.StdEncoding.DecodeString(bundle.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}

	privateKey, err := crypto.DecryptFromBase64(bundle.EncryptedPrivateKey, encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt private key: %w", err)
	}

	return &crypto.KeyPair{Public: publicKey, Private: privateKey}, nil
}

// getOrCreateSessionID возвращает сохраненный sessionID устройства
// или создает новый. SessionID задает namespace задач: повторный login
// на том же устройстве продолжает работать с тем же namespace.
func (s *Service) getOrCreateSessionID(ctx context.Context) (string, error) {
	if s.authStore == nil {
		return uuid.New().String(), nil
	}

	authData, err := s.authStore.GetAuthMeta(ctx)
	if err != nil {
		// Первый login на этом устройстве
		if errors.Is(err, storage.ErrAuthNotFound) {
			return uuid.New().String(), nil
		}
		return "", fmt.Errorf("failed to get auth data: %w", err)
	}

	if authData.SessionID != "" {
		return authData.SessionID, nil
	}

	return uuid.New().String(), nil
}

// expiresAt переводит TTL в абсолютный unix timestamp
func expiresAt(expiresInSeconds int64) int64 {
	return time.Now().Unix() + expiresInSeconds
}
