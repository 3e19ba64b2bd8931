// Package api реализует HTTP клиент SyncVault сервера.
// Клиент работает с зашифрованными значениями как с непрозрачными
// байтами: вся криптография живет слоями выше.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/iudanet/syncvault/internal/models"
	"github.com/iudanet/syncvault/pkg/api"
)

// APIError представляет ошибку сервера с HTTP статусом.
// Статус позволяет вызывающему коду различать not-found,
// unauthorized и прочие классы ошибок без парсинга текста.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string

	mu          sync.RWMutex
	accessToken string
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// SetAccessToken устанавливает access token для авторизованных запросов
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

// AccessToken возвращает текущий access token (пустая строка если не залогинены)
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// Register регистрирует нового пользователя
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error) {
	var resp api.RegisterResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/register", req, &resp, "")
	if err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &resp, nil
}

// GetSalt получает public_salt пользователя
func (c *Client) GetSalt(ctx context.Context, username string) (*api.SaltResponse, error) {
	var resp api.SaltResponse
	path := "/api/v1/auth/salt/" + url.PathEscape(username)
	err := c.doRequest(ctx, http.MethodGet, path, nil, &resp, "")
	if err != nil {
		return nil, fmt.Errorf("get salt request failed: %w", err)
	}
	return &resp, nil
}

// Login выполняет аутентификацию пользователя
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", req, &resp, "")
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Refresh обновляет пару токенов по refresh token.
// Refresh token передается в Authorization header.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/refresh", nil, &resp, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	return &resp, nil
}

// Logout отзывает все refresh tokens пользователя на сервере
func (c *Client) Logout(ctx context.Context) error {
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil, c.AccessToken())
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	return nil
}

// GetKeyBundle получает пару ключей пользователя: публичный ключ
// и приватный, зашифрованный master password'ом
func (c *Client) GetKeyBundle(ctx context.Context) (*api.KeyBundleResponse, error) {
	var resp api.KeyBundleResponse
	err := c.doRequest(ctx, http.MethodGet, "/api/v1/auth/keys", nil, &resp, c.AccessToken())
	if err != nil {
		return nil, fmt.Errorf("get key bundle request failed: %w", err)
	}
	return &resp, nil
}

// GetRecord возвращает одну запись по ключу.
// found=false если ключ ни разу не существовал. Tombstone возвращается
// как запись с Value == nil — его версия нужна для CAS при пересоздании.
func (c *Client) GetRecord(ctx context.Context, key string) (*models.Record, bool, error) {
	var resp api.GetResponse
	path := "/api/v1/records/" + url.PathEscape(key)
	err := c.doRequest(ctx, http.MethodGet, path, nil, &resp, c.AccessToken())
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get record request failed: %w", err)
	}
	return recordFromAPI(resp.Record), true, nil
}

// ScanRecords возвращает записи с данным префиксом ключа.
// limit <= 0 означает без ограничения.
func (c *Client) ScanRecords(ctx context.Context, prefix string, limit int) ([]models.Record, error) {
	q := url.Values{}
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/records"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var resp api.ScanResponse
	err := c.doRequest(ctx, http.MethodGet, path, nil, &resp, c.AccessToken())
	if err != nil {
		return nil, fmt.Errorf("scan records request failed: %w", err)
	}

	records := make([]models.Record, 0, len(resp.Records))
	for _, r := range resp.Records {
		records = append(records, *recordFromAPI(r))
	}
	return records, nil
}

// Mutate отправляет batch CAS-мутаций.
// Частичный успех — нормальный ответ, а не ошибка: отклоненные
// записи возвращаются в Rejected с текущими версиями.
func (c *Client) Mutate(ctx context.Context, entries []api.MutateEntry) (*api.MutateResponse, error) {
	var resp api.MutateResponse
	req := api.MutateRequest{Entries: entries}
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/records/mutate", req, &resp, c.AccessToken())
	if err != nil {
		return nil, fmt.Errorf("mutate request failed: %w", err)
	}
	return &resp, nil
}

// RegisterPushEndpoint регистрирует внешний endpoint для доставки уведомлений
func (c *Client) RegisterPushEndpoint(ctx context.Context, endpointURL, token string) (*api.RegisterEndpointResponse, error) {
	var resp api.RegisterEndpointResponse
	req := api.RegisterEndpointRequest{URL: endpointURL, Token: token}
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/push/endpoints", req, &resp, c.AccessToken())
	if err != nil {
		return nil, fmt.Errorf("register push endpoint request failed: %w", err)
	}
	return &resp, nil
}

// DeletePushEndpoint удаляет зарегистрированный push endpoint
func (c *Client) DeletePushEndpoint(ctx context.Context, endpointID string) error {
	path := "/api/v1/push/endpoints/" + url.PathEscape(endpointID)
	err := c.doRequest(ctx, http.MethodDelete, path, nil, nil, c.AccessToken())
	if err != nil {
		return fmt.Errorf("delete push endpoint request failed: %w", err)
	}
	return nil
}

// recordFromAPI конвертирует wire-представление записи в модель
func recordFromAPI(r api.Record) *models.Record {
	return &models.Record{
		Key:     r.Key,
		Value:   r.Value,
		Version: r.Version,
	}
}

// doRequest выполняет HTTP запрос.
// bearerToken добавляется в Authorization header, если не пуст.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}, bearerToken string) error {
	fullURL := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		message := string(respBody)
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			if errResp.Message != "" {
				message = errResp.Message
			} else if errResp.Error != "" {
				message = errResp.Error
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	// Декодируем успешный ответ
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
