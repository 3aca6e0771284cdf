package credential

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// credentialRecord is the persisted row shape for GormStore.
type credentialRecord struct {
	ID            string `gorm:"primaryKey;size:36"`
	Lookup        string `gorm:"uniqueIndex;size:64"`
	Type          string
	Scopes        string
	CreatedAt     time.Time
	ExpiresAt     time.Time `gorm:"index"`
	Revoked       bool
	RevokedReason string
	UserID        string
	ClientID      string
	ServiceID     string
}

func (credentialRecord) TableName() string { return "credentials" }

func (r credentialRecord) toCredential() Credential {
	var scopes []string
	if r.Scopes != "" {
		scopes = strings.Split(r.Scopes, " ")
	}
	return Credential{
		ID:            r.ID,
		Type:          Type(r.Type),
		Scopes:        scopes,
		CreatedAt:     r.CreatedAt,
		ExpiresAt:     r.ExpiresAt,
		Revoked:       r.Revoked,
		RevokedReason: r.RevokedReason,
		Metadata: Metadata{
			UserID:    r.UserID,
			ClientID:  r.ClientID,
			ServiceID: r.ServiceID,
		},
	}
}

// GormStore is the durable credential registry backed by an embedded sqlite
// database, so issued credentials survive process restarts.
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the sqlite database at path.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential database: %w", err)
	}
	return db, nil
}

// NewGormStore migrates the schema and returns the store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&credentialRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate credential schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Put(lookup string, cred Credential) error {
	rec := credentialRecord{
		ID:            cred.ID,
		Lookup:        lookup,
		Type:          string(cred.Type),
		Scopes:        strings.Join(cred.Scopes, " "),
		CreatedAt:     cred.CreatedAt,
		ExpiresAt:     cred.ExpiresAt,
		Revoked:       cred.Revoked,
		RevokedReason: cred.RevokedReason,
		UserID:        cred.Metadata.UserID,
		ClientID:      cred.Metadata.ClientID,
		ServiceID:     cred.Metadata.ServiceID,
	}
	return s.db.Create(&rec).Error
}

func (s *GormStore) Lookup(lookup string) (Credential, bool) {
	var rec credentialRecord
	err := s.db.Where("lookup = ?", lookup).First(&rec).Error
	if err != nil {
		return Credential{}, false
	}
	return rec.toCredential(), true
}

func (s *GormStore) Get(id string) (Credential, bool) {
	var rec credentialRecord
	err := s.db.Where("id = ?", id).First(&rec).Error
	if err != nil {
		return Credential{}, false
	}
	return rec.toCredential(), true
}

// Revoke flips the revoked flag exactly once. The conditional update makes
// the compare-and-set atomic at the database level.
func (s *GormStore) Revoke(id, reason string) error {
	res := s.db.Model(&credentialRecord{}).
		Where("id = ? AND revoked = ?", id, false).
		Updates(map[string]interface{}{"revoked": true, "revoked_reason": reason})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Either already revoked (idempotent success) or missing.
	var rec credentialRecord
	err := s.db.Select("id").Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) ExpiredIDs(cutoff time.Time) []string {
	var ids []string
	s.db.Model(&credentialRecord{}).
		Where("expires_at < ?", cutoff).
		Pluck("id", &ids)
	return ids
}

func (s *GormStore) Remove(id string, cutoff time.Time) bool {
	res := s.db.Where("id = ? AND expires_at < ?", id, cutoff).Delete(&credentialRecord{})
	return res.Error == nil && res.RowsAffected > 0
}

func (s *GormStore) Len() int {
	var count int64
	s.db.Model(&credentialRecord{}).Count(&count)
	return int(count)
}
