// Package vectorstore persists long-term conversational memory per
// (user, persona) pair and retrieves it by semantic similarity.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	chromem "github.com/philippgille/chromem-go"
)

// snippetLimit caps how much of one remembered turn is quoted back into
// the prompt.
const snippetLimit = 400

// SearchResult is a single semantic-search hit.
type SearchResult struct {
	TurnUID string
	Content string
	Score   float32
}

// Store wraps chromem-go with per-(user, persona) collections and disk
// persistence.
type Store struct {
	mu      sync.RWMutex
	db      *chromem.DB
	dataDir string
	embedFn chromem.EmbeddingFunc
}

// New creates (or opens) the persistent vector store at dataDir/vectorstore/.
// embedFunc is the embedding function to use — pass chromem.NewEmbeddingFuncOpenAICompat
// pointed at the OpenRouter embeddings endpoint.
func New(dataDir string, embedFunc chromem.EmbeddingFunc) (*Store, error) {
	dir := filepath.Join(dataDir, "vectorstore")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create vectorstore dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vectorstore: %w", err)
	}
	return &Store{db: db, dataDir: dir, embedFn: embedFunc}, nil
}

// collectionName returns the per-(user, persona) collection name.
func collectionName(userID, personaID string) string {
	return fmt.Sprintf("user_%s_persona_%s", userID, personaID)
}

// getOrCreateCollection returns (or creates) the collection for the pair.
func (s *Store) getOrCreateCollection(userID, personaID string) *chromem.Collection {
	name := collectionName(userID, personaID)
	col := s.db.GetCollection(name, s.embedFn)
	if col == nil {
		var err error
		col, err = s.db.CreateCollection(name, nil, s.embedFn)
		if err != nil {
			slog.Error("failed to create vector collection", "user", userID, "persona", personaID, "err", err)
			return nil
		}
	}
	return col
}

// WriteTurn indexes one completed exchange for later recall.
func (s *Store) WriteTurn(ctx context.Context, userID, personaID, userMessage, assistantReply string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.getOrCreateCollection(userID, personaID)
	if col == nil {
		return fmt.Errorf("vectorstore: nil collection for user %s persona %s", userID, personaID)
	}

	doc := chromem.Document{
		ID:      shortuuid.New(),
		Content: fmt.Sprintf("User: %s\nAssistant: %s", userMessage, assistantReply),
		Metadata: map[string]string{
			"persona":    personaID,
			"created_ts": fmt.Sprintf("%d", time.Now().Unix()),
		},
	}
	return col.AddDocument(ctx, doc)
}

// SearchSimilar returns the top-k remembered turns most similar to the query.
func (s *Store) SearchSimilar(ctx context.Context, userID, personaID, query string, k int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.getOrCreateCollection(userID, personaID)
	if col == nil {
		return nil, nil
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	var results []chromem.Result
	var err error

	// chromem-go sometimes throws "nResults must be <= number of documents" despite Count checks.
	// Step down k if it fails.
	for attemptK := k; attemptK > 0; attemptK-- {
		results, err = col.Query(ctx, query, attemptK, nil, nil)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{
			TurnUID: r.ID,
			Content: r.Content,
			Score:   r.Similarity,
		})
	}
	return out, nil
}

// RetrieveMemory formats the top-k similar turns into a bounded text block
// suitable for injection into the system prompt. Returns "" when nothing
// relevant is remembered.
func (s *Store) RetrieveMemory(ctx context.Context, userID, personaID, query string, k int) (string, error) {
	results, err := s.SearchSimilar(ctx, userID, personaID, query, k)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}
	var sb strings.Builder
	for _, r := range results {
		snippet := r.Content
		if len(snippet) > snippetLimit {
			snippet = snippet[:snippetLimit] + "..."
		}
		sb.WriteString("- " + snippet + "\n")
	}
	return sb.String(), nil
}
