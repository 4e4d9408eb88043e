// Package badger provides a Badger-backed embedding store.
package badger

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/recallkit/recall/pkg/storage"
)

// Config holds configuration for EmbeddingStore.
type Config struct {
	Path              string
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int
	// CacheSize bounds the number of (user, source type) vector sets kept
	// in memory. Zero disables the cache.
	CacheSize int
}

// EmbeddingStore implements storage.EmbeddingStore on Badger.
type EmbeddingStore struct {
	db     *badger.DB
	config *Config
	cache  *vectorCache
}

var _ storage.EmbeddingStore = (*EmbeddingStore)(nil)

// NewEmbeddingStore opens the Badger database at config.Path.
func NewEmbeddingStore(config *Config) (*EmbeddingStore, error) {
	opts := badger.DefaultOptions(config.Path)
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	if config.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = config.NumVersionsToKeep
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}

	s := &EmbeddingStore{db: db, config: config}
	if config.CacheSize > 0 {
		s.cache = newVectorCache(config.CacheSize)
	}
	return s, nil
}

// Key layout: emb:{user}:{source type}:{source id}. The user segment is
// escaped so every user prefix ends at its own separator.
func userPrefix(userID string) []byte {
	return []byte("emb:" + url.QueryEscape(userID) + ":")
}

func typePrefix(userID string, st storage.SourceType) []byte {
	return append(userPrefix(userID), []byte(string(st)+":")...)
}

func embeddingKey(userID string, st storage.SourceType, id string) []byte {
	return append(typePrefix(userID, st), []byte(id)...)
}

// record is the stored value; the vector uses the shared binary codec.
type record struct {
	SourceID  string `json:"source_id"`
	ChatID    string `json:"chat_id,omitempty"`
	Model     string `json:"model"`
	CreatedAt int64  `json:"created_at"`
	Vector    []byte `json:"vector"`
}

func serialize(e *storage.Embedding) ([]byte, error) {
	blob, err := storage.EncodeVector(e.Vector)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(record{
		SourceID:  e.SourceID,
		ChatID:    e.ChatID,
		Model:     e.Model,
		CreatedAt: e.CreatedAt.UnixMilli(),
		Vector:    blob,
	})
	if err != nil {
		return nil, &storage.SerializationError{Operation: "marshal", Cause: err}
	}
	return data, nil
}

func deserialize(data []byte, userID string, st storage.SourceType) (*storage.Embedding, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &storage.SerializationError{Operation: "unmarshal", Cause: err}
	}
	vec, err := storage.DecodeVector(r.Vector)
	if err != nil {
		return nil, err
	}
	return &storage.Embedding{
		SourceType: st,
		SourceID:   r.SourceID,
		UserID:     userID,
		ChatID:     r.ChatID,
		Model:      r.Model,
		Vector:     vec,
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
	}, nil
}

// PutEmbeddings inserts or replaces embeddings in one write batch.
func (s *EmbeddingStore) PutEmbeddings(ctx context.Context, embs []*storage.Embedding) error {
	if len(embs) == 0 {
		return nil
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, e := range embs {
		data, err := serialize(e)
		if err != nil {
			return err
		}
		if err := wb.Set(embeddingKey(e.UserID, e.SourceType, e.SourceID), data); err != nil {
			return fmt.Errorf("put embedding %s: %w", e.SourceID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush embeddings: %w", err)
	}
	for _, e := range embs {
		s.cache.invalidate(e.UserID, e.SourceType)
	}
	return nil
}

// ListEmbeddings returns the user's embeddings of one source type.
func (s *EmbeddingStore) ListEmbeddings(ctx context.Context, userID string, st storage.SourceType) ([]*storage.Embedding, error) {
	if cached, ok := s.cache.get(userID, st); ok {
		return cached, nil
	}

	var out []*storage.Embedding
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = typePrefix(userID, st)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				e, err := deserialize(val, userID, st)
				if err != nil {
					return err
				}
				out = append(out, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	s.cache.put(userID, st, out)
	return out, nil
}

// HasEmbeddings reports which ids carry an embedding.
func (s *EmbeddingStore) HasEmbeddings(ctx context.Context, userID string, st storage.SourceType, ids []string) (map[string]bool, error) {
	has := make(map[string]bool, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			_, err := txn.Get(embeddingKey(userID, st, id))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			has[id] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("has embeddings: %w", err)
	}
	return has, nil
}

// DeleteEmbeddings removes embeddings by source id.
func (s *EmbeddingStore) DeleteEmbeddings(ctx context.Context, userID string, st storage.SourceType, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := txn.Delete(embeddingKey(userID, st, id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	s.cache.invalidate(userID, st)
	return nil
}

// DeleteUser removes every embedding of the user.
func (s *EmbeddingStore) DeleteUser(ctx context.Context, userID string) error {
	if err := s.db.DropPrefix(userPrefix(userID)); err != nil {
		return fmt.Errorf("delete user embeddings: %w", err)
	}
	s.cache.invalidate(userID, storage.SourceMessage)
	s.cache.invalidate(userID, storage.SourceDistilled)
	return nil
}

// Close closes the underlying database.
func (s *EmbeddingStore) Close() error {
	return s.db.Close()
}

// CacheStats returns the vector cache hit rate and total lookups.
func (s *EmbeddingStore) CacheStats() (rate float64, total int64) {
	return s.cache.hitRate()
}
