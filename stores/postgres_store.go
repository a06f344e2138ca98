package stores

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgresStore implements TranscriptStore for PostgreSQL databases
type PostgresStore struct {
	db  *gorm.DB
	dsn string
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(config *StoreConfig) (*PostgresStore, error) {
	if config.Type != "postgres" {
		return nil, fmt.Errorf("invalid store type for PostgreSQL store: %s", config.Type)
	}

	store := &PostgresStore{
		dsn: config.Connection,
	}

	if err := store.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	return store, nil
}

// NewPostgresStoreSimple creates a new PostgreSQL store with just a DSN
func NewPostgresStoreSimple(dsn string) (*PostgresStore, error) {
	config := NewStoreConfig("postgres", dsn)
	return NewPostgresStore(config)
}

// Connect establishes a connection to the PostgreSQL database
func (s *PostgresStore) Connect() error {
	db, err := gorm.Open(postgres.Open(s.dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	s.db = db

	// Auto-migrate the schema
	if err := s.db.AutoMigrate(&ChatSession{}, &TurnRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (s *PostgresStore) Ping() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}

// SaveTurn appends one finished turn to the session transcript
func (s *PostgresStore) SaveTurn(sessionID, prompt, answerText string, artifacts interface{}, aborted bool) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	var count int64
	if err := s.db.Model(&ChatSession{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
		log.Printf("Warning: Error checking for session %s: %v", sessionID, err)
	} else if count == 0 {
		if err := s.CreateSession(sessionID, "", ""); err != nil {
			log.Printf("Warning: Failed to create session record for %s: %v", sessionID, err)
		}
	}

	if err := s.db.Model(&TurnRecord{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count existing turns: %w", err)
	}

	seq := int(count) + 1

	artifactsJSON := "{}"
	if artifacts != nil {
		b, err := json.Marshal(artifacts)
		if err != nil {
			log.Printf("Error marshalling artifacts for DB storage (SessionID: %s): %v", sessionID, err)
			return fmt.Errorf("failed to marshal artifacts for database: %w", err)
		}
		artifactsJSON = string(b)
	}

	rec := TurnRecord{
		SessionID:     sessionID,
		Sequence:      seq,
		Prompt:        prompt,
		AnswerText:    answerText,
		ArtifactsJSON: artifactsJSON,
		Aborted:       aborted,
	}

	tx := s.db.Begin()
	if err := tx.Create(&rec).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to create turn record: %w", err)
	}

	if err := tx.Model(&ChatSession{}).Where("session_id = ?", sessionID).Update("turn_count", seq).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to update session turn count: %w", err)
	}

	return tx.Commit().Error
}

// FetchTurns retrieves turns for a session in sequence order
// limit: maximum number of turns to retrieve (0 = return all turns)
func (s *PostgresStore) FetchTurns(sessionID string, limit int) ([]TurnRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var turns []TurnRecord
	query := s.db.Where("session_id = ?", sessionID).Order("sequence ASC")

	if limit > 0 {
		var count int64
		if err := s.db.Model(&TurnRecord{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to count turns: %w", err)
		}

		if count > int64(limit) {
			query = query.Offset(int(count) - limit)
		}
	}

	if err := query.Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch turns: %w", err)
	}

	return turns, nil
}

// CreateSession creates a new chat session record
func (s *PostgresStore) CreateSession(sessionID, walletAddress, chainID string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sess := ChatSession{
		SessionID:     sessionID,
		WalletAddress: walletAddress,
		ChainID:       chainID,
		TurnCount:     0,
	}

	return s.db.Create(&sess).Error
}

// ListSessionsForWallet returns all sessions with details for a wallet address
func (s *PostgresStore) ListSessionsForWallet(walletAddress string) ([]SessionInfo, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var sessions []ChatSession
	if err := s.db.Where("wallet_address = ?", walletAddress).Order("updated_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch sessions: %w", err)
	}

	result := make([]SessionInfo, len(sessions))
	for i, c := range sessions {
		result[i] = SessionInfo{
			SessionID:     c.SessionID,
			WalletAddress: c.WalletAddress,
			ChainID:       c.ChainID,
			Title:         c.Title,
			TurnCount:     c.TurnCount,
			CreatedAt:     c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			UpdatedAt:     c.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	return result, nil
}

// PruneSessionsBefore deletes sessions (and their turns) last updated before
// the cutoff. Returns the number of sessions removed.
func (s *PostgresStore) PruneSessionsBefore(cutoff time.Time) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}

	var stale []ChatSession
	if err := s.db.Where("updated_at < ?", cutoff).Find(&stale).Error; err != nil {
		return 0, fmt.Errorf("failed to find stale sessions: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	ids := make([]string, len(stale))
	for i, c := range stale {
		ids[i] = c.SessionID
	}

	tx := s.db.Begin()
	if err := tx.Where("session_id IN ?", ids).Delete(&TurnRecord{}).Error; err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to delete stale turns: %w", err)
	}
	if err := tx.Where("session_id IN ?", ids).Delete(&ChatSession{}).Error; err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to delete stale sessions: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		return 0, err
	}

	return int64(len(ids)), nil
}
