// Package memory persists conversation exchanges per user in a vector store
// and retrieves semantically related ones for prompt context.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Record is one remembered exchange. Similarity is cosine, higher is more
// relevant; it is zero for timestamp-ordered reads.
type Record struct {
	ID         string
	UserID     string
	Text       string
	Question   string
	Subject    string
	Timestamp  time.Time
	Similarity float32
}

// Store is the qdrant-backed memory. A nil Store (or one built with a nil
// client) degrades every operation to an empty no-op so the gateway works
// without a vector store.
type Store struct {
	client     *qdrant.Client
	embedder   Embedder
	collection string
	dim        uint64
}

func NewStore(client *qdrant.Client, embedder Embedder, collection string, dim uint64) *Store {
	return &Store{client: client, embedder: embedder, collection: collection, dim: dim}
}

func (s *Store) enabled() bool {
	return s != nil && s.client != nil && s.embedder != nil
}

// Init creates the collection and the user_id payload index if missing.
func (s *Store) Init(ctx context.Context) error {
	if !s.enabled() {
		return nil
	}

	_, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		st, ok := status.FromError(err)
		if !ok || st.Code() != codes.NotFound {
			return err
		}
		if err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.dim,
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}

	// Every query filters on user_id; the index keeps that cheap.
	if _, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      "user_id",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		Wait:           qdrant.PtrOf(true),
	}); err != nil {
		slog.Warn("could not create user_id index", "error", err)
	}
	return nil
}

// Remember stores one question/answer exchange.
func (s *Store) Remember(ctx context.Context, userID, question, answer, subject string) error {
	if !s.enabled() || userID == "" {
		return nil
	}

	text := "Q: " + question + "\nA: " + answer
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed exchange: %w", err)
	}

	payload := map[string]any{
		"user_id":   userID,
		"text":      text,
		"question":  question,
		"timestamp": time.Now().Unix(),
	}
	if subject != "" {
		payload["subject"] = subject
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(uuid.NewString()),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	return err
}

// Search returns up to k exchanges semantically close to the query,
// restricted to the user, most similar first.
func (s *Store) Search(ctx context.Context, userID, query string, k int, subject string) ([]Record, error) {
	if !s.enabled() || userID == "" || k <= 0 {
		return nil, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	must := []*qdrant.Condition{qdrant.NewMatch("user_id", userID)}
	if subject != "" {
		must = append(must, qdrant.NewMatch("subject", subject))
	}

	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         &qdrant.Filter{Must: must},
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(hits))
	for _, hit := range hits {
		r := recordFromPayload(hit.Payload)
		r.ID = hit.Id.GetUuid()
		r.Similarity = hit.Score
		records = append(records, r)
	}
	return records, nil
}

// Recent returns the user's k newest exchanges, newest first.
func (s *Store) Recent(ctx context.Context, userID string, k int) ([]Record, error) {
	if !s.enabled() || userID == "" || k <= 0 {
		return nil, nil
	}

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("user_id", userID)}},
		Limit:          qdrant.PtrOf(uint32(k * 4)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(points))
	for _, p := range points {
		r := recordFromPayload(p.Payload)
		r.ID = p.Id.GetUuid()
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	if len(records) > k {
		records = records[:k]
	}
	return records, nil
}

// Clear removes everything stored for a user.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if !s.enabled() || userID == "" {
		return nil
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("user_id", userID)},
		}),
	})
	return err
}

// ContextFor formats related past exchanges as a prompt block, bounded by
// maxChars. Empty when nothing relevant is stored or the store is disabled.
func (s *Store) ContextFor(ctx context.Context, userID, query string, maxChars int) string {
	records, err := s.Search(ctx, userID, query, 3, "")
	if err != nil {
		slog.Debug("memory search failed", "user_id", userID, "error", err)
		return ""
	}
	if len(records) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("RELEVANT PAST CONVERSATIONS:\n")
	for _, r := range records {
		entry := r.Text + "\n"
		if b.Len()+len(entry) > maxChars {
			break
		}
		b.WriteString(entry)
	}
	if b.Len() <= len("RELEVANT PAST CONVERSATIONS:\n") {
		return ""
	}
	return strings.TrimRight(b.String(), "\n")
}

func recordFromPayload(payload map[string]*qdrant.Value) Record {
	r := Record{
		UserID:   payload["user_id"].GetStringValue(),
		Text:     payload["text"].GetStringValue(),
		Question: payload["question"].GetStringValue(),
		Subject:  payload["subject"].GetStringValue(),
	}
	if ts := payload["timestamp"].GetIntegerValue(); ts > 0 {
		r.Timestamp = time.Unix(ts, 0)
	}
	return r
}
