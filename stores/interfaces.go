package stores

import (
	"time"

	"gorm.io/gorm"
)

// TurnRecord is one finalized (or aborted) prompt/response exchange within a
// chat session.
type TurnRecord struct {
	gorm.Model
	SessionID string `gorm:"index;not null"`
	Sequence  int    `gorm:"not null"`
	Prompt    string `gorm:"type:text"`
	// AnswerText is the authoritative final answer text, empty for aborted turns.
	AnswerText string `gorm:"type:text"`
	// ArtifactsJSON stores the JSON marshaled artifact bundle attached at finalization.
	ArtifactsJSON string `gorm:"type:json"`
	Aborted       bool   `gorm:"default:false"`
}

// ChatSession holds metadata for one wallet conversation.
type ChatSession struct {
	gorm.Model
	SessionID     string       `gorm:"uniqueIndex;not null"`
	WalletAddress string       `gorm:"index;not null"`
	ChainID       string       `gorm:"index"`
	Title         string       `gorm:"type:text"`
	TurnCount     int          `gorm:"default:0"`
	Turns         []TurnRecord `gorm:"foreignKey:SessionID;references:SessionID"`
}

// SessionInfo holds basic session metadata for listing.
type SessionInfo struct {
	SessionID     string
	WalletAddress string
	ChainID       string
	Title         string
	TurnCount     int
	CreatedAt     string
	UpdatedAt     string
}

// TranscriptStore abstracts transcript persistence.
type TranscriptStore interface {
	// Turn operations
	SaveTurn(sessionID, prompt, answerText string, artifacts interface{}, aborted bool) error
	FetchTurns(sessionID string, limit int) ([]TurnRecord, error)

	// Session operations
	CreateSession(sessionID, walletAddress, chainID string) error
	ListSessionsForWallet(walletAddress string) ([]SessionInfo, error)

	// Retention
	PruneSessionsBefore(cutoff time.Time) (int64, error)

	// Connection management
	Connect() error
	Close() error

	// Health check
	Ping() error
}

// StoreConfig holds configuration for database stores
type StoreConfig struct {
	Type       string            `json:"type"`       // "sqlite", "postgres"
	Connection string            `json:"connection"` // connection string
	Options    map[string]string `json:"options"`    // additional options
}

// NewStoreConfig creates a new store configuration
func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
		Options:    make(map[string]string),
	}
}

// WithOption adds an option to the store configuration
func (c *StoreConfig) WithOption(key, value string) *StoreConfig {
	c.Options[key] = value
	return c
}
