package repositories

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"beacon/internal/platform/models"
)

var ErrKeyNotFound = errors.New("api key not found")

type APIKeyRepository struct {
	db *sql.DB
}

func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create generates a producer key, stores its bcrypt hash, and returns the
// raw key. The raw key is never recoverable afterwards.
func (r *APIKeyRepository) Create(userID, name string) (*models.APIKey, string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return nil, "", err
	}
	rawKey := "bk_" + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	key := &models.APIKey{
		ID:        "key_" + uuid.New().String(),
		UserID:    userID,
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:10],
		CreatedAt: time.Now().Unix(),
	}

	query := `
		INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := r.db.Exec(query, key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt); err != nil {
		return nil, "", err
	}
	return key, rawKey, nil
}

// FindByRawKey narrows candidates by the stored prefix, then verifies the
// bcrypt hash. bcrypt hashes are not queryable directly.
func (r *APIKeyRepository) FindByRawKey(rawKey string) (*models.APIKey, error) {
	if len(rawKey) < 10 {
		return nil, ErrKeyNotFound
	}

	rows, err := r.db.Query(`
		SELECT id, user_id, name, key_hash, key_prefix, created_at, revoked_at
		FROM api_keys
		WHERE key_prefix = ? AND revoked_at IS NULL
	`, rawKey[:10])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var k models.APIKey
		var revokedAt sql.NullInt64
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.CreatedAt, &revokedAt); err != nil {
			return nil, err
		}
		if revokedAt.Valid {
			k.RevokedAt = &revokedAt.Int64
		}
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(rawKey)) == nil {
			return &k, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nil, ErrKeyNotFound
}

func (r *APIKeyRepository) ListForUser(userID string) ([]*models.APIKey, error) {
	rows, err := r.db.Query(`
		SELECT id, user_id, name, key_prefix, created_at, revoked_at
		FROM api_keys
		WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		var revokedAt sql.NullInt64
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyPrefix, &k.CreatedAt, &revokedAt); err != nil {
			return nil, err
		}
		if revokedAt.Valid {
			k.RevokedAt = &revokedAt.Int64
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (r *APIKeyRepository) Revoke(id, userID string) error {
	res, err := r.db.Exec(`
		UPDATE api_keys SET revoked_at = ? WHERE id = ? AND user_id = ? AND revoked_at IS NULL
	`, time.Now().Unix(), id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrKeyNotFound
	}
	return nil
}
