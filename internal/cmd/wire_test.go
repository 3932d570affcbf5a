package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacenote/spacenote/internal/config"
	"github.com/spacenote/spacenote/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DatabaseURL = ":memory:"
	cfg.AttachmentsPath = t.TempDir()
	return cfg
}

func TestWireBootstrapsAdminAccount(t *testing.T) {
	t.Setenv("SPACENOTE_ADMIN_PASSWORD", "hunter2hunter2")
	a, err := wire(testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	session, err := a.idp.Authenticate(context.Background(), domain.AdminUsername, "hunter2hunter2")
	require.NoError(t, err)
	require.Equal(t, domain.AdminUsername, session.Username)
}

func TestWireIsIdempotentAcrossRestarts(t *testing.T) {
	cfg := testConfig(t)
	cfg.DatabaseURL = cfg.AttachmentsPath + "/spacenote.db"
	t.Setenv("SPACENOTE_ADMIN_PASSWORD", "hunter2hunter2")

	a1, err := wire(cfg)
	require.NoError(t, err)
	a1.Close()

	a2, err := wire(cfg)
	require.NoError(t, err)
	defer a2.Close()

	_, err = a2.idp.Authenticate(context.Background(), domain.AdminUsername, "hunter2hunter2")
	require.NoError(t, err)
}

func TestNewWorkerNilWithoutTelegramToken(t *testing.T) {
	cfg := testConfig(t)
	a, err := wire(cfg)
	require.NoError(t, err)
	defer a.Close()

	require.Nil(t, a.newWorker())
}

func TestNewWorkerBuiltWithTelegramToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.TelegramBotToken = "test-token"
	a, err := wire(cfg)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.newWorker())
}
