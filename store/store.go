// Package store persists the agent's local state: the permission record, the
// "already asked" flag, the session token and the cached push subscription.
// It is the native analog of the browser's localStorage items.
package store

import (
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"garantia-push/models"
	"garantia-push/transport"
)

// agentState is a single-row table; every field tolerates lost updates.
type agentState struct {
	ID            uint `gorm:"primaryKey"`
	Asked         bool
	Permission    string
	LastCheckedAt time.Time
	AuthToken     string

	// cached push subscription, including private key material
	ChannelID  string
	Endpoint   string
	PrivateKey string
	AuthSecret string
	ServerKey  string

	UpdatedAt time.Time
}

func (agentState) TableName() string {
	return "agent_state"
}

type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the state database at path. ":memory:"
// yields an ephemeral store, used by tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&agentState{}); err != nil {
		return nil, err
	}
	if err := db.FirstOrCreate(&agentState{}, agentState{ID: 1}).Error; err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) load() (*agentState, error) {
	var state agentState
	if err := s.db.First(&state, 1).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) update(column string, value interface{}) error {
	return s.db.Model(&agentState{}).Where("id = ?", 1).Update(column, value).Error
}

// Asked reports whether the permission prompt has already been shown.
func (s *Store) Asked() (bool, error) {
	state, err := s.load()
	if err != nil {
		return false, err
	}
	return state.Asked, nil
}

func (s *Store) SetAsked(asked bool) error {
	return s.update("asked", asked)
}

// Permission returns the locally recorded platform permission. An empty
// record reads as "default" (never asked, never decided).
func (s *Store) Permission() (models.PermissionState, error) {
	state, err := s.load()
	if err != nil {
		return models.PermissionDefault, err
	}
	if state.Permission == "" {
		return models.PermissionDefault, nil
	}
	return models.PermissionState(state.Permission), nil
}

func (s *Store) SetPermission(p models.PermissionState) error {
	return s.update("permission", string(p))
}

func (s *Store) LastChecked() (time.Time, error) {
	state, err := s.load()
	if err != nil {
		return time.Time{}, err
	}
	return state.LastCheckedAt, nil
}

func (s *Store) SetLastChecked(t time.Time) error {
	return s.update("last_checked_at", t)
}

// Token returns the stored session bearer token, empty when signed out.
func (s *Store) Token() (string, error) {
	state, err := s.load()
	if err != nil {
		return "", err
	}
	return state.AuthToken, nil
}

func (s *Store) SetToken(token string) error {
	return s.update("auth_token", token)
}

// LoadSubscription implements transport.Cache.
func (s *Store) LoadSubscription() (*transport.Subscription, error) {
	state, err := s.load()
	if err != nil {
		return nil, err
	}
	if state.ChannelID == "" || state.Endpoint == "" {
		return nil, nil
	}
	return &transport.Subscription{
		ChannelID:  state.ChannelID,
		Endpoint:   state.Endpoint,
		PrivateKey: state.PrivateKey,
		AuthSecret: state.AuthSecret,
		ServerKey:  state.ServerKey,
	}, nil
}

// SaveSubscription implements transport.Cache.
func (s *Store) SaveSubscription(sub *transport.Subscription) error {
	return s.db.Model(&agentState{}).Where("id = ?", 1).Updates(map[string]interface{}{
		"channel_id":  sub.ChannelID,
		"endpoint":    sub.Endpoint,
		"private_key": sub.PrivateKey,
		"auth_secret": sub.AuthSecret,
		"server_key":  sub.ServerKey,
	}).Error
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
