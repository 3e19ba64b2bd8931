package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/syncvault/internal/client/storage"
)

func (c *Cli) runRegister(ctx context.Context) error {
	c.io.Println("=== Registration ===")
	c.io.Println()

	// Запрашиваем username
	username, err := c.io.ReadInput("Username: ")
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}

	// Запрашиваем master password
	masterPassword, err := c.io.ReadPassword("Master password (min 12 chars): ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	// Подтверждение пароля
	confirmPassword, err := c.io.ReadPassword("Confirm master password: ")
	if err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}

	if masterPassword != confirmPassword {
		return fmt.Errorf("passwords do not match")
	}

	c.io.Println()
	c.io.Println("Registering user...")

	result, err := c.authService.Register(ctx, username, masterPassword)
	if err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("✓ Registration successful!")
	c.io.Printf("User ID: %s\n", result.UserID)
	c.io.Printf("Username: %s\n", result.Username)
	c.io.Println()
	c.io.Println("⚠️  IMPORTANT: Remember your master password!")
	c.io.Println("   If you lose it, you will NOT be able to recover your data.")
	c.io.Println()
	c.io.Println("Please run 'syncvault login' to start using the service.")

	return nil
}

func (c *Cli) runLogin(ctx context.Context) error {
	c.io.Println("=== Login ===")
	c.io.Println()

	username, err := c.io.ReadInput("Username: ")
	if err != nil {
		return fmt.Errorf("failed to read username: %w", err)
	}

	masterPassword, err := c.io.ReadPassword("Master password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	c.io.Println()
	c.io.Println("Authenticating...")

	result, err := c.authService.Login(ctx, username, masterPassword)
	if err != nil {
		return err
	}

	// Сохраняем токены через слой шифрования
	authData := &storage.AuthData{
		Username:     result.Username,
		UserID:       result.UserID,
		SessionID:    result.SessionID,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		PublicSalt:   result.PublicSalt,
		ExpiresAt:    time.Now().Unix() + result.ExpiresIn,
	}

	if err := c.authStore.SaveAuth(ctx, authData, result.EncryptionKey); err != nil {
		return fmt.Errorf("failed to save auth data: %w", err)
	}

	c.io.Println()
	c.io.Println("✓ Login successful!")
	c.io.Printf("Username: %s\n", result.Username)
	c.io.Printf("Session:  %s\n", result.SessionID)
	c.io.Printf("Access token expires in: %d seconds\n", result.ExpiresIn)
	c.io.Println()
	c.io.Println("Your session has been saved securely.")

	return nil
}

func (c *Cli) runLogout(ctx context.Context) error {
	// Best effort: пробуем отозвать токены сервера, если сессия жива
	meta, err := c.authStore.GetAuthMeta(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			c.io.Println("Not authenticated.")
			return nil
		}
		return fmt.Errorf("failed to get auth data: %w", err)
	}

	if session, err := c.unlock(ctx); err == nil {
		c.apiClient.SetAccessToken(session.authData.AccessToken)
	} else {
		c.logger.Debug("logout without server revocation", "error", err)
	}

	if err := c.authService.Logout(ctx); err != nil {
		return err
	}

	// Локальный кеш записей этого устройства больше не нужен
	if c.cache != nil && meta.SessionID != "" {
		if err := c.cache.DeleteNamespace(ctx, meta.SessionID); err != nil {
			c.logger.Warn("failed to drop local record cache", "error", err)
		}
	}

	c.io.Println("✓ Logged out. Local session data removed.")
	return nil
}

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Authentication Status ===")
	c.io.Println()

	isAuth, err := c.authStore.IsAuthenticated(ctx)
	if err != nil {
		return fmt.Errorf("failed to check authentication: %w", err)
	}

	// Метаданные доступны без master password
	meta, err := c.authStore.GetAuthMeta(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			c.io.Println("Status: Not authenticated")
			c.io.Println()
			c.io.Println("Run 'syncvault login' to authenticate.")
			return nil
		}
		return fmt.Errorf("failed to get auth data: %w", err)
	}

	if isAuth {
		c.io.Println("Status: Authenticated")
	} else {
		c.io.Println("Status: Token expired")
	}
	c.io.Printf("Username: %s\n", meta.Username)
	c.io.Printf("Session:  %s\n", c.sessionID(meta))

	expiresAt := time.Unix(meta.ExpiresAt, 0)
	remaining := time.Until(expiresAt)

	c.io.Printf("Token expires: %s\n", expiresAt.Format(time.RFC3339))
	if remaining > 0 {
		c.io.Printf("Time remaining: %s\n", remaining.Round(time.Second))
	} else {
		c.io.Println("⚠️  Token has expired. It will be refreshed on the next command.")
	}

	return nil
}
