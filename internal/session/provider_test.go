package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskdeck/taskdeck/internal/config"
	"github.com/taskdeck/taskdeck/pkg/auth"
)

func testConfig(t *testing.T) config.SessionConfig {
	t.Helper()
	return config.SessionConfig{
		Secret:         "test-secret",
		StateDir:       t.TempDir(),
		ResolveTimeout: 2 * time.Second,
	}
}

func TestAnonymousSessionPersists(t *testing.T) {
	cfg := testConfig(t)

	p := NewProvider(cfg)
	require.NoError(t, p.Start(context.Background()))
	first := <-p.Sessions()

	assert.True(t, first.Anonymous)
	_, err := uuid.Parse(first.UserID)
	require.NoError(t, err)

	// A second provider over the same state dir resolves the same identity.
	p2 := NewProvider(cfg)
	require.NoError(t, p2.Start(context.Background()))
	second := <-p2.Sessions()
	assert.Equal(t, first.UserID, second.UserID)
}

func TestAnonymousIDRegeneratedWhenCorrupt(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(cfg.StateDir, "anonymous_id")
	require.NoError(t, os.WriteFile(path, []byte("not-a-uuid\n"), 0o600))

	p := NewProvider(cfg)
	require.NoError(t, p.Start(context.Background()))
	sess := <-p.Sessions()

	_, err := uuid.Parse(sess.UserID)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), sess.UserID)
}

func TestTokenSession(t *testing.T) {
	cfg := testConfig(t)
	token, err := auth.NewTokenVerifier(cfg.Secret).Generate("user-42", time.Hour)
	require.NoError(t, err)
	cfg.Token = token

	p := NewProvider(cfg)
	require.NoError(t, p.Start(context.Background()))
	sess := <-p.Sessions()

	assert.Equal(t, "user-42", sess.UserID)
	assert.False(t, sess.Anonymous)
}

func TestInvalidTokenFailsResolution(t *testing.T) {
	cfg := testConfig(t)
	cfg.Token = "not.a.token"
	cfg.ResolveTimeout = 300 * time.Millisecond

	p := NewProvider(cfg)
	err := p.Start(context.Background())
	require.Error(t, err)
}

func TestSetTokenPublishesChange(t *testing.T) {
	cfg := testConfig(t)
	verifier := auth.NewTokenVerifier(cfg.Secret)

	p := NewProvider(cfg)
	require.NoError(t, p.Start(context.Background()))
	anon := <-p.Sessions()
	require.True(t, anon.Anonymous)

	token, err := verifier.Generate("user-7", time.Hour)
	require.NoError(t, err)
	require.NoError(t, p.SetToken(token))

	sess := <-p.Sessions()
	assert.Equal(t, "user-7", sess.UserID)
	assert.False(t, sess.Anonymous)
}

func TestPublishKeepsLatestOnly(t *testing.T) {
	cfg := testConfig(t)
	verifier := auth.NewTokenVerifier(cfg.Secret)

	p := NewProvider(cfg)
	require.NoError(t, p.Start(context.Background()))
	// Nobody consumed the anonymous session; a token swap supersedes it.
	token, err := verifier.Generate("user-9", time.Hour)
	require.NoError(t, err)
	require.NoError(t, p.SetToken(token))

	sess := <-p.Sessions()
	assert.Equal(t, "user-9", sess.UserID, "a lagging consumer must only see the latest session")
}
