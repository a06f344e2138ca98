// Package walletchat is a client for the wallet-integrated conversational
// agent. It opens one streaming request per turn, reconstructs a coherent
// renderable turn from the server-pushed event sequence, and owns session
// lifecycle: start, send, cancel, resume.
package walletchat

import (
	"context"
	"fmt"
	"time"

	"github.com/0xferal/walletchat/backend"
	"github.com/0xferal/walletchat/sessions"
)

// Client ties the backend API, the transcript store, and session
// configuration together.
type Client struct {
	cfg     *Config
	Backend *backend.Client
}

func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = NewConfig()
	}
	return &Client{
		cfg:     cfg,
		Backend: backend.NewClient(cfg.APIBaseURL),
	}
}

// NewChat creates a fresh session for the wallet and returns it ready for
// StartTurn. Controls are opaque backend concerns (spending limits,
// delegation flags).
func (c *Client) NewChat(ctx context.Context, walletAddress string, controls map[string]interface{}, chainID string) (*sessions.Session, error) {
	sessionID, err := c.Backend.CreateSession(ctx, walletAddress, controls, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s := c.newSession(sessionID, walletAddress, chainID)
	if c.cfg.Store != nil {
		if err := c.cfg.Store.CreateSession(sessionID, walletAddress, chainID); err != nil {
			s.Logger.Printf("Error recording session locally: %v", err)
		}
	}
	return s, nil
}

// ResumeChat restores a session from backend history. The returned session
// holds the prior turns as finalized snapshots; no stream is opened.
func (c *Client) ResumeChat(ctx context.Context, walletAddress string, since time.Time) (*sessions.Session, error) {
	sessionID, prior, err := c.Backend.ResumeSession(ctx, walletAddress, since)
	if err != nil {
		return nil, fmt.Errorf("failed to resume session: %w", err)
	}

	s := c.newSession(sessionID, walletAddress, "")
	turns := make([]*sessions.Turn, 0, len(prior))
	for _, p := range prior {
		turns = append(turns, sessions.RestoredTurn(p.Prompt, p.Answer, p.CreatedAt))
	}
	s.Resume(turns)
	return s, nil
}

func (c *Client) newSession(sessionID, walletAddress, chainID string) *sessions.Session {
	s := sessions.NewSession(sessionID, walletAddress, chainID, c.cfg.AgentURL, c.cfg.Store)
	s.WatchdogTimeout = c.cfg.WatchdogTimeout
	s.CoalesceInterval = c.cfg.CoalesceInterval
	return s
}
