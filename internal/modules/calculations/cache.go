// Package calculations provides cached storage for derived statistics
// (expected returns, covariance matrices) so repeated optimization requests
// over the same universe don't recompute them.
package calculations

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultTTL is how long cached statistics stay valid. Price history is
// refreshed nightly, so a day is the natural expiry.
const DefaultTTL = 24 * time.Hour

// Cache provides key-value storage with expiration, backed by SQLite.
// Values are msgpack-encoded.
type Cache struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCache creates a new cache instance.
func NewCache(db *sql.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		log: log.With().Str("component", "calc_cache").Logger(),
	}
}

// InitSchema creates the cache table if missing.
func (c *Cache) InitSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS calc_cache (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create calc_cache table: %w", err)
	}
	return nil
}

// HashTickers creates a deterministic cache key fragment from a ticker list.
// Tickers are sorted so the hash is independent of input order.
func HashTickers(tickers []string) string {
	sorted := make([]string, len(tickers))
	copy(sorted, tickers)
	sort.Strings(sorted)
	h := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(h[:])
}

// Set stores a msgpack-encoded value under namespace:key with a TTL.
func (c *Cache) Set(namespace, key string, value interface{}, ttl time.Duration) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}

	expiresAt := time.Now().Add(ttl).Unix()
	_, err = c.db.Exec(`
		INSERT INTO calc_cache (key, value, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at
	`, namespace+":"+key, data, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Get retrieves a value into dest. Returns false when the key is missing or
// expired; decode failures are logged and treated as a miss so a corrupt
// entry never blocks recalculation.
func (c *Cache) Get(namespace, key string, dest interface{}) bool {
	var data []byte
	var expiresAt int64
	err := c.db.QueryRow(
		"SELECT value, expires_at FROM calc_cache WHERE key = ?",
		namespace+":"+key,
	).Scan(&data, &expiresAt)
	if err != nil {
		return false
	}
	if time.Now().Unix() >= expiresAt {
		return false
	}

	if err := msgpack.Unmarshal(data, dest); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to decode cached value, treating as miss")
		return false
	}
	return true
}

// Delete removes a cache entry.
func (c *Cache) Delete(namespace, key string) error {
	_, err := c.db.Exec("DELETE FROM calc_cache WHERE key = ?", namespace+":"+key)
	return err
}

// DeleteByPrefix removes all entries in a namespace.
func (c *Cache) DeleteByPrefix(namespace string) error {
	_, err := c.db.Exec("DELETE FROM calc_cache WHERE key LIKE ?", namespace+":%")
	return err
}

// PruneExpired deletes expired rows. Called from the maintenance schedule.
func (c *Cache) PruneExpired() (int64, error) {
	res, err := c.db.Exec("DELETE FROM calc_cache WHERE expires_at < ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune cache: %w", err)
	}
	return res.RowsAffected()
}
