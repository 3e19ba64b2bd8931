package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/syncvault/internal/client/api"
	"github.com/iudanet/syncvault/internal/client/auth"
	"github.com/iudanet/syncvault/internal/client/storage"
)

// fakeIO реализует iocli.IO со скриптованными ответами
type fakeIO struct {
	inputs    []string
	passwords []string
	output    strings.Builder
}

func (f *fakeIO) Println(a ...any) {
	f.output.WriteString(fmt.Sprintln(a...))
}

func (f *fakeIO) Printf(format string, a ...any) {
	f.output.WriteString(fmt.Sprintf(format, a...))
}

func (f *fakeIO) ReadInput(prompt string) (string, error) {
	if len(f.inputs) == 0 {
		return "", io.EOF
	}
	input := f.inputs[0]
	f.inputs = f.inputs[1:]
	return input, nil
}

func (f *fakeIO) ReadPassword(prompt string) (string, error) {
	if len(f.passwords) == 0 {
		return "", io.EOF
	}
	password := f.passwords[0]
	f.passwords = f.passwords[1:]
	return password, nil
}

func (f *fakeIO) Write(p []byte) (int, error) {
	f.output.Write(p)
	return len(p), nil
}

// mockAuthStore реализует auth.AuthStore
type mockAuthStore struct {
	data   *storage.AuthData
	getErr error
}

func (m *mockAuthStore) SaveAuth(ctx context.Context, a *storage.AuthData, key []byte) error {
	cp := *a
	m.data = &cp
	return nil
}

func (m *mockAuthStore) GetAuth(ctx context.Context, key []byte) (*storage.AuthData, error) {
	return m.get()
}

func (m *mockAuthStore) GetAuthMeta(ctx context.Context) (*storage.AuthData, error) {
	return m.get()
}

func (m *mockAuthStore) get() (*storage.AuthData, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.data == nil {
		return nil, storage.ErrAuthNotFound
	}
	cp := *m.data
	return &cp, nil
}

func (m *mockAuthStore) DeleteAuth(ctx context.Context) error {
	m.data = nil
	return nil
}

func (m *mockAuthStore) IsAuthenticated(ctx context.Context) (bool, error) {
	return m.data != nil && m.data.ExpiresAt > time.Now().Unix(), nil
}

func newTestCli(io *fakeIO, store *mockAuthStore, passwords Passwords) *Cli {
	apiClient := api.NewClient("http://localhost:1")
	return New(
		io,
		apiClient,
		auth.NewService(apiClient, store),
		store,
		nil,
		slog.New(slog.DiscardHandler),
		passwords,
		"",
	)
}

func TestCli_Run_UnknownCommand(t *testing.T) {
	c := newTestCli(&fakeIO{}, &mockAuthStore{}, Passwords{})

	err := c.Run(context.Background(), "frobnicate", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestCli_Status_NotAuthenticated(t *testing.T) {
	io := &fakeIO{}
	c := newTestCli(io, &mockAuthStore{}, Passwords{})

	err := c.Run(context.Background(), "status", nil)

	require.NoError(t, err)
	assert.Contains(t, io.output.String(), "Not authenticated")
}

func TestCli_Status_Authenticated(t *testing.T) {
	io := &fakeIO{}
	store := &mockAuthStore{data: &storage.AuthData{
		Username:  "testuser",
		SessionID: "session-1",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}}
	c := newTestCli(io, store, Passwords{})

	err := c.Run(context.Background(), "status", nil)

	require.NoError(t, err)
	out := io.output.String()
	assert.Contains(t, out, "Status: Authenticated")
	assert.Contains(t, out, "testuser")
	assert.Contains(t, out, "session-1")
}

func TestCli_Status_ExpiredToken(t *testing.T) {
	io := &fakeIO{}
	store := &mockAuthStore{data: &storage.AuthData{
		Username:  "testuser",
		ExpiresAt: time.Now().Add(-time.Hour).Unix(),
	}}
	c := newTestCli(io, store, Passwords{})

	err := c.Run(context.Background(), "status", nil)

	require.NoError(t, err)
	assert.Contains(t, io.output.String(), "Token expired")
}

func TestCli_SessionOverride(t *testing.T) {
	c := newTestCli(&fakeIO{}, &mockAuthStore{}, Passwords{})
	authData := &storage.AuthData{SessionID: "device-session"}

	assert.Equal(t, "device-session", c.sessionID(authData))

	c.sessionOverride = "shared-session"
	assert.Equal(t, "shared-session", c.sessionID(authData))
}

func TestCli_GetMasterPassword_Priority(t *testing.T) {
	passwordFile := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(passwordFile, []byte("file-password\n"), 0600))

	tests := []struct {
		name      string
		env       string
		passwords Passwords
		prompts   []string
		want      string
	}{
		{
			name:      "env wins over everything",
			env:       "env-password",
			passwords: Passwords{FromFile: passwordFile, FromArgs: "args-password"},
			want:      "env-password",
		},
		{
			name:      "file wins over args",
			passwords: Passwords{FromFile: passwordFile, FromArgs: "args-password"},
			want:      "file-password",
		},
		{
			name:      "args win over prompt",
			passwords: Passwords{FromArgs: "args-password"},
			prompts:   []string{"prompt-password"},
			want:      "args-password",
		},
		{
			name:    "prompt is the fallback",
			prompts: []string{"prompt-password"},
			want:    "prompt-password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(envMasterPassword, tt.env)

			io := &fakeIO{passwords: tt.prompts}
			c := newTestCli(io, &mockAuthStore{}, tt.passwords)

			got, err := c.getMasterPassword()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCli_GetMasterPassword_EmptyFile(t *testing.T) {
	passwordFile := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(passwordFile, []byte("  \n"), 0600))

	t.Setenv(envMasterPassword, "")
	c := newTestCli(&fakeIO{}, &mockAuthStore{}, Passwords{FromFile: passwordFile})

	_, err := c.getMasterPassword()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "password file is empty")
}

func TestCli_GetMasterPassword_MissingFile(t *testing.T) {
	t.Setenv(envMasterPassword, "")
	c := newTestCli(&fakeIO{}, &mockAuthStore{}, Passwords{
		FromFile: filepath.Join(t.TempDir(), "does-not-exist"),
	})

	_, err := c.getMasterPassword()
	assert.Error(t, err)
}

func TestCli_Task_RequiresAuth(t *testing.T) {
	c := newTestCli(&fakeIO{}, &mockAuthStore{}, Passwords{})

	err := c.Run(context.Background(), "task", []string{"list"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authenticated")
}

func TestCli_Register_PasswordMismatch(t *testing.T) {
	io := &fakeIO{
		inputs:    []string{"testuser"},
		passwords: []string{"first-password-123", "different-password"},
	}
	c := newTestCli(io, &mockAuthStore{}, Passwords{})

	err := c.Run(context.Background(), "register", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "passwords do not match")
}
