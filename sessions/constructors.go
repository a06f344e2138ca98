package sessions

import (
	"fmt"
	"log"
	"os"

	"github.com/0xferal/walletchat/stores"
)

// NewSession creates a session bound to an agent endpoint. Store and render
// callback are optional and can be set on the returned session.
func NewSession(sessionID, walletAddress, chainID, agentURL string, store stores.TranscriptStore) *Session {
	logger := log.New(os.Stdout, fmt.Sprintf("[chat %s] ", sessionID), log.LstdFlags)

	return &Session{
		ID:               sessionID,
		WalletAddress:    walletAddress,
		ChainID:          chainID,
		AgentURL:         agentURL,
		Store:            store,
		WatchdogTimeout:  DefaultWatchdogTimeout,
		CoalesceInterval: DefaultCoalesceInterval,
		Logger:           logger,
	}
}
