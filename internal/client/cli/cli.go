// Package cli реализует консольные команды клиента SyncVault:
// управление учеткой, задачами и наблюдение за изменениями.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/iudanet/syncvault/internal/client/api"
	"github.com/iudanet/syncvault/internal/client/auth"
	"github.com/iudanet/syncvault/internal/client/iocli"
	"github.com/iudanet/syncvault/internal/client/storage"
	"github.com/iudanet/syncvault/internal/client/sync"
	"github.com/iudanet/syncvault/internal/crypto"
	"github.com/iudanet/syncvault/internal/index"
	"github.com/iudanet/syncvault/internal/keyring"
	"github.com/iudanet/syncvault/internal/validation"
)

// envMasterPassword имя переменной окружения с master password
const envMasterPassword = "SYNCVAULT_MASTER_PASSWORD"

// Passwords описывает неинтерактивные источники master password
type Passwords struct {
	FromFile string
	FromArgs string
}

// session держит расшифрованное состояние разблокированной сессии
type session struct {
	authData      *storage.AuthData
	encryptionKey []byte
	keyPair       *crypto.KeyPair
}

// Cli связывает команды с сервисами клиента
type Cli struct {
	io          iocli.IO
	apiClient   *api.Client
	authService *auth.Service
	authStore   auth.AuthStore
	cache       storage.RecordCache
	logger      *slog.Logger
	passwords   Passwords

	// sessionOverride позволяет работать с чужим namespace (--session)
	sessionOverride string
}

// New создает Cli. cache может быть nil (без локального кеша записей).
func New(
	io iocli.IO,
	apiClient *api.Client,
	authService *auth.Service,
	authStore auth.AuthStore,
	cache storage.RecordCache,
	logger *slog.Logger,
	passwords Passwords,
	sessionOverride string,
) *Cli {
	return &Cli{
		io:              io,
		apiClient:       apiClient,
		authService:     authService,
		authStore:       authStore,
		cache:           cache,
		logger:          logger,
		passwords:       passwords,
		sessionOverride: sessionOverride,
	}
}

// Run выполняет команду. Возвращает ошибку для ненулевого exit code.
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "register":
		return c.runRegister(ctx)
	case "login":
		return c.runLogin(ctx)
	case "logout":
		return c.runLogout(ctx)
	case "status":
		return c.runStatus(ctx)
	case "task":
		return c.runTask(ctx, args)
	case "watch":
		return c.runWatch(ctx)
	case "rebuild":
		return c.runRebuild(ctx)
	case "push":
		return c.runPush(ctx, args)
	default:
		PrintUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

// unlock восстанавливает сессию: читает auth-данные, деривирует ключи
// из master password, обновляет токены при истечении и забирает пару
// ключей устройства с сервера.
func (c *Cli) unlock(ctx context.Context) (*session, error) {
	meta, err := c.authStore.GetAuthMeta(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return nil, fmt.Errorf("not authenticated, run 'syncvault login' first")
		}
		return nil, fmt.Errorf("failed to get auth data: %w", err)
	}

	password, err := c.getMasterPassword()
	if err != nil {
		return nil, fmt.Errorf("failed to get master password: %w", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}

	keys, err := crypto.DeriveKeysFromBase64Salt(password, meta.Username, meta.PublicSalt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive keys: %w", err)
	}

	authData, err := c.authStore.GetAuth(ctx, keys.EncryptionKey)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return nil, fmt.Errorf("wrong master password")
		}
		return nil, fmt.Errorf("failed to decrypt auth data: %w", err)
	}

	// Истекший access token обновляем по refresh token
	if authData.ExpiresAt <= time.Now().Unix() {
		authData, err = c.authService.Refresh(ctx, authData, keys.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("session expired, run 'syncvault login' again: %w", err)
		}
	}

	c.apiClient.SetAccessToken(authData.AccessToken)

	keyPair, err := c.authService.FetchKeyPair(ctx, keys.EncryptionKey)
	if err != nil {
		return nil, err
	}

	return &session{
		authData:      authData,
		encryptionKey: keys.EncryptionKey,
		keyPair:       keyPair,
	}, nil
}

// sessionID возвращает namespace задач: флаг --session, если задан,
// иначе session ID этого устройства
func (c *Cli) sessionID(authData *storage.AuthData) string {
	if c.sessionOverride != "" {
		return c.sessionOverride
	}
	return authData.SessionID
}

// newKeyring создает key directory поверх API клиента
func (c *Cli) newKeyring(keyPair *crypto.KeyPair) *keyring.Directory {
	return keyring.New(c.apiClient, keyPair, c.logger)
}

// newMaintainer создает index maintainer поверх API клиента
func (c *Cli) newMaintainer(keys *keyring.Directory) *index.Maintainer {
	return index.NewMaintainer(c.apiClient, keys, c.logger)
}

// newSyncService создает сервис синхронизации
func (c *Cli) newSyncService(keys *keyring.Directory) *sync.Service {
	return sync.NewService(sync.WrapClient(c.apiClient), keys, c.cache, c.logger)
}

// getMasterPassword возвращает master password по убыванию приоритета:
// 1. Переменная окружения SYNCVAULT_MASTER_PASSWORD
// 2. Файл из --master-password-file
// 3. Аргумент --master-password
// 4. Интерактивный запрос
func (c *Cli) getMasterPassword() (string, error) {
	if envPassword := os.Getenv(envMasterPassword); envPassword != "" {
		return envPassword, nil
	}

	if c.passwords.FromFile != "" {
		content, err := os.ReadFile(c.passwords.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		// Убираем trailing newline/whitespace
		password := strings.TrimSpace(string(content))
		if password == "" {
			return "", fmt.Errorf("password file is empty")
		}
		return password, nil
	}

	if c.passwords.FromArgs != "" {
		return c.passwords.FromArgs, nil
	}

	password, err := c.io.ReadPassword("Master password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}

	return password, nil
}

func PrintUsage() {
	fmt.Println("SyncVault Client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  syncvault [OPTIONS] COMMAND")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version                    Show version information")
	fmt.Println("  --server URL                 Server URL (default: http://localhost:8080)")
	fmt.Println("  --db PATH                    Path to local database (default: syncvault-client.db)")
	fmt.Println("  --session ID                 Work with another session namespace (shared tasks)")
	fmt.Println("  --master-password PASSWORD   Master password (not recommended, use env var or file)")
	fmt.Println("  --master-password-file PATH  Path to file containing master password")
	fmt.Println()
	fmt.Println("Master Password Priority (highest to lowest):")
	fmt.Println("  1. SYNCVAULT_MASTER_PASSWORD environment variable")
	fmt.Println("  2. --master-password-file (file path)")
	fmt.Println("  3. --master-password (command line)")
	fmt.Println("  4. Interactive prompt (fallback)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  register                     Register new user")
	fmt.Println("  login                        Login to server")
	fmt.Println("  logout                       Logout from server")
	fmt.Println("  status                       Show authentication status")
	fmt.Println("  task add <title>             Add a task")
	fmt.Println("  task list [active|archived]  List tasks in index order")
	fmt.Println("  task done <id>               Mark task as done")
	fmt.Println("  task undone <id>             Mark task as not done")
	fmt.Println("  task move <id> <status>      Move task to active/archived list")
	fmt.Println("  task rm <id>                 Delete task")
	fmt.Println("  watch                        Stream live changes of the session")
	fmt.Println("  rebuild                      Rebuild the task index from task records")
	fmt.Println("  push add <url> <token>       Register a push notification endpoint")
	fmt.Println("  push rm <id>                 Delete a push notification endpoint")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  syncvault register")
	fmt.Println("  syncvault login")
	fmt.Println("  syncvault task add 'Buy milk'")
	fmt.Println("  syncvault task list")
	fmt.Println()
	fmt.Println("  # Using environment variable (recommended)")
	fmt.Println("  export SYNCVAULT_MASTER_PASSWORD='mySecretPassword123'")
	fmt.Println("  syncvault task list archived")
	fmt.Println()
	fmt.Println("  # Using password file (for automation)")
	fmt.Println("  echo 'mySecretPassword123' > ~/.syncvault-password")
	fmt.Println("  chmod 600 ~/.syncvault-password")
	fmt.Println("  syncvault --master-password-file ~/.syncvault-password watch")
	fmt.Println()
	fmt.Println("  # Watching a shared session")
	fmt.Println("  syncvault --session b692f5c0-2d88-4aa1-a9e1-13aa6e4976d5 watch")
	fmt.Println("  syncvault --server https://example.com login")
}
