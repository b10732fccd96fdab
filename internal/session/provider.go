// Package session resolves the user identity that scopes every task
// operation. A session comes from a signed token when one is configured,
// otherwise from a persisted anonymous id. Consumers treat every published
// session as a hard boundary: nothing from the previous session may remain
// visible under the new one.
package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskdeck/taskdeck/internal/config"
	"github.com/taskdeck/taskdeck/pkg/auth"
)

// Session identifies the active user.
type Session struct {
	UserID    string
	Anonymous bool
}

// Provider resolves sessions and publishes each change on Sessions().
type Provider struct {
	cfg      config.SessionConfig
	verifier *auth.TokenVerifier
	sessions chan Session
}

// NewProvider creates a provider for cfg.
func NewProvider(cfg config.SessionConfig) *Provider {
	return &Provider{
		cfg:      cfg,
		verifier: auth.NewTokenVerifier(cfg.Secret),
		sessions: make(chan Session, 1),
	}
}

// Sessions delivers the resolved session and every subsequent change.
func (p *Provider) Sessions() <-chan Session {
	return p.sessions
}

// Start resolves the initial session, retrying transient failures with
// exponential backoff, and publishes it. Resolution is bounded by the
// configured timeout.
func (p *Provider) Start(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ResolveTimeout)
	defer cancel()

	var lastErr error
	backoff := 200 * time.Millisecond
	for attempt := 1; attempt <= 5; attempt++ {
		sess, err := p.resolve()
		if err == nil {
			p.publish(sess)
			return nil
		}
		lastErr = err
		log.Printf("[ERROR] resolve session (attempt %d): %v", attempt, err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("resolve session: %w", lastErr)
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("resolve session: %w", lastErr)
}

// SetToken swaps the session token and publishes the re-resolved session.
// An empty token falls back to the anonymous session.
func (p *Provider) SetToken(token string) error {
	p.cfg.Token = token
	sess, err := p.resolve()
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	p.publish(sess)
	return nil
}

func (p *Provider) publish(sess Session) {
	// Keep only the latest session: a consumer that lagged must not act on
	// a superseded identity.
	select {
	case <-p.sessions:
	default:
	}
	p.sessions <- sess
}

func (p *Provider) resolve() (Session, error) {
	if token := strings.TrimSpace(p.cfg.Token); token != "" {
		userID, err := p.verifier.Verify(token)
		if err != nil {
			return Session{}, err
		}
		return Session{UserID: userID}, nil
	}

	userID, err := p.anonymousID()
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: userID, Anonymous: true}, nil
}

// anonymousID loads the persisted anonymous user id, creating one on first
// use.
func (p *Provider) anonymousID() (string, error) {
	path := filepath.Join(p.cfg.StateDir, "anonymous_id")

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			return id, nil
		}
		// Corrupt state file; regenerate below.
		log.Printf("[ERROR] ignoring malformed anonymous id in %s", path)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read anonymous id: %w", err)
	}

	id := uuid.New().String()
	if err := os.MkdirAll(p.cfg.StateDir, 0o700); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write anonymous id: %w", err)
	}
	return id, nil
}
