package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/recallkit/recall/pkg/storage"
)

// EmbeddingStore keeps embeddings in memory, grouped by user.
type EmbeddingStore struct {
	mu    sync.RWMutex
	users map[string]map[string]*storage.Embedding // userID -> type:id -> embedding
}

var _ storage.EmbeddingStore = (*EmbeddingStore)(nil)

// NewEmbeddingStore creates an empty store.
func NewEmbeddingStore() *EmbeddingStore {
	return &EmbeddingStore{users: make(map[string]map[string]*storage.Embedding)}
}

func copyEmbedding(e *storage.Embedding) *storage.Embedding {
	cp := *e
	cp.Vector = append([]float32(nil), e.Vector...)
	return &cp
}

// PutEmbeddings inserts or replaces embeddings.
func (s *EmbeddingStore) PutEmbeddings(ctx context.Context, embs []*storage.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range embs {
		byKey := s.users[e.UserID]
		if byKey == nil {
			byKey = make(map[string]*storage.Embedding)
			s.users[e.UserID] = byKey
		}
		byKey[embeddingKey(e.SourceType, e.SourceID)] = copyEmbedding(e)
	}
	return nil
}

// ListEmbeddings returns the user's embeddings of one source type.
func (s *EmbeddingStore) ListEmbeddings(ctx context.Context, userID string, sourceType storage.SourceType) ([]*storage.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*storage.Embedding
	for _, e := range s.users[userID] {
		if e.SourceType == sourceType {
			out = append(out, copyEmbedding(e))
		}
	}
	return out, nil
}

// HasEmbeddings reports which ids carry an embedding.
func (s *EmbeddingStore) HasEmbeddings(ctx context.Context, userID string, sourceType storage.SourceType, ids []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	has := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.users[userID][embeddingKey(sourceType, id)]; ok {
			has[id] = true
		}
	}
	return has, nil
}

// DeleteEmbeddings removes embeddings by source id.
func (s *EmbeddingStore) DeleteEmbeddings(ctx context.Context, userID string, sourceType storage.SourceType, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.users[userID], embeddingKey(sourceType, id))
	}
	return nil
}

// DeleteUser removes all of the user's embeddings.
func (s *EmbeddingStore) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	return nil
}

// Close is a no-op.
func (s *EmbeddingStore) Close() error { return nil }

// embeddingKey joins the parts of an embedding's identity.
func embeddingKey(sourceType storage.SourceType, id string) string {
	return strings.Join([]string{string(sourceType), id}, ":")
}
