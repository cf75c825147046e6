package services

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/echonote/internal/models"
	"github.com/yoockh/echonote/internal/providers/embed"
	pgrepo "github.com/yoockh/echonote/internal/repositories/postgres"
	"github.com/yoockh/echonote/internal/utils"
)

// Actor identifies who an index write is performed for. Service-level writers
// name themselves explicitly instead of borrowing a fallback user identity;
// UserID always scopes the record to its owner.
type Actor struct {
	UserID  string
	Service string
}

func UserActor(userID string) Actor { return Actor{UserID: userID} }

func ServiceActor(service, userID string) Actor {
	return Actor{UserID: userID, Service: service}
}

func (a Actor) indexedBy() string {
	if a.Service != "" {
		return "service:" + a.Service
	}
	return "user"
}

// Fixed per-type ranking weights: transcript > summary > chat > note > task.
var typeWeights = map[string]float64{
	models.ContentTranscript: 0.10,
	models.ContentSummary:    0.08,
	models.ContentChat:       0.05,
	models.ContentNote:       0.03,
	models.ContentTodo:       0.02,
}

// extra weight for transcript/summary hits when the query is about recordings
const recordingBoost = 0.05

var recordingQueryHints = []string{
	"recording", "recorded", "transcript", "meeting", "call",
	"said", "talked", "spoke", "discussed", "conversation",
}

type QueryOptions struct {
	Limit         int
	MinSimilarity float64
	ContentTypes  []string
	// RecencyBias widens the recency term of the blended score.
	RecencyBias bool
}

type RecommendOptions struct {
	Limit            int
	MinSimilarity    float64
	IncludeCompleted bool
}

type SearchResult struct {
	ContentType string    `json:"content_type"`
	ContentID   string    `json:"content_id"`
	Text        string    `json:"text"`
	Similarity  float64   `json:"similarity"`
	Score       float64   `json:"score"`
	CreatedAt   time.Time `json:"created_at"`
}

type TaskRecommendation struct {
	TaskID     string  `json:"task_id"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
	Completed  bool    `json:"completed"`
}

type SearchService interface {
	// Index embeds text and inserts a new embedding record for
	// (contentType, contentID). Existing records are never mutated; the
	// newest record per content id wins at query time.
	Index(ctx context.Context, actor Actor, contentType, contentID, text string) error
	Query(ctx context.Context, userID, text string, opts QueryOptions) ([]SearchResult, error)
	RecommendTasks(ctx context.Context, userID, text string, opts RecommendOptions) ([]TaskRecommendation, error)
}

type searchService struct {
	embeddings pgrepo.EmbeddingRepository
	embedder   embed.Provider
	log        *logrus.Logger
	now        func() time.Time
}

func NewSearchService(embeddings pgrepo.EmbeddingRepository, embedder embed.Provider, log *logrus.Logger) SearchService {
	if log == nil {
		log = logrus.New()
	}
	return &searchService{
		embeddings: embeddings,
		embedder:   embedder,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *searchService) Index(ctx context.Context, actor Actor, contentType, contentID, text string) error {
	const op = "SearchService.Index"

	if actor.UserID == "" || contentType == "" || contentID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "actor, content_type, and content_id are required", nil)
	}
	if strings.TrimSpace(text) == "" {
		return utils.E(utils.CodeInvalidArgument, op, "text is empty", nil)
	}

	vec, err := s.embedder.EmbedText(ctx, text)
	if err != nil {
		return utils.E(utils.CodeEmbeddingFailed, op, "embedding call failed", err)
	}

	row := &models.EmbeddingRecord{
		ID:          uuid.NewString(),
		UserID:      actor.UserID,
		ContentType: contentType,
		ContentID:   contentID,
		IndexedBy:   actor.indexedBy(),
		Text:        text,
		Embedding:   pgvector.NewVector(vec),
		CreatedAt:   s.now(),
	}
	if err := s.embeddings.Insert(ctx, row); err != nil {
		return utils.E(utils.CodeEmbeddingFailed, op, "failed to insert embedding record", err)
	}
	return nil
}

func (s *searchService) Query(ctx context.Context, userID, text string, opts QueryOptions) ([]SearchResult, error) {
	const op = "SearchService.Query"

	if userID == "" || strings.TrimSpace(text) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and query text are required", nil)
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	types := opts.ContentTypes
	if len(types) == 0 {
		types = []string{
			models.ContentTranscript, models.ContentSummary,
			models.ContentChat, models.ContentNote, models.ContentTodo,
		}
	}

	queryVec, err := s.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, utils.E(utils.CodeEmbeddingFailed, op, "failed to embed query", err)
	}

	rows, err := s.embeddings.ListNewestByTypes(ctx, userID, types)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load embedding records", err)
	}

	aboutRecordings := looksRecordingRelated(text)
	now := s.now()

	var results []SearchResult
	for _, row := range rows {
		sim := cosineSimilarity(queryVec, row.Embedding.Slice())
		if sim < opts.MinSimilarity {
			continue
		}
		results = append(results, SearchResult{
			ContentType: row.ContentType,
			ContentID:   row.ContentID,
			Text:        row.Text,
			Similarity:  sim,
			Score:       blendScore(sim, row.ContentType, row.CreatedAt, now, aboutRecordings, opts.RecencyBias),
			CreatedAt:   row.CreatedAt,
		})
	}

	sortResults(results)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (s *searchService) RecommendTasks(ctx context.Context, userID, text string, opts RecommendOptions) ([]TaskRecommendation, error) {
	const op = "SearchService.RecommendTasks"

	if userID == "" || strings.TrimSpace(text) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and query text are required", nil)
	}
	if opts.Limit <= 0 {
		opts.Limit = 5
	}

	queryVec, err := s.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, utils.E(utils.CodeEmbeddingFailed, op, "failed to embed query", err)
	}

	rows, err := s.embeddings.ListNewestTaskEmbeddings(ctx, userID, opts.IncludeCompleted)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load task embeddings", err)
	}

	now := s.now()
	var recs []TaskRecommendation
	for _, row := range rows {
		sim := cosineSimilarity(queryVec, row.Embedding.Slice())
		if sim < opts.MinSimilarity {
			continue
		}
		recs = append(recs, TaskRecommendation{
			TaskID:     row.ContentID,
			Text:       row.Text,
			Similarity: sim,
			Score:      blendScore(sim, models.ContentTodo, row.CreatedAt, now, false, false),
			Completed:  row.Completed,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].TaskID < recs[j].TaskID
	})
	if len(recs) > opts.Limit {
		recs = recs[:opts.Limit]
	}
	return recs, nil
}

// blendScore combines similarity with the fixed per-type weight and a decaying
// recency term. For a fixed store and query embedding the score is a pure
// function of the row, which keeps rankings stable.
func blendScore(sim float64, contentType string, createdAt, now time.Time, aboutRecordings, recencyBias bool) float64 {
	score := sim + typeWeights[contentType]

	if aboutRecordings &&
		(contentType == models.ContentTranscript || contentType == models.ContentSummary) {
		score += recordingBoost
	}

	recencyScale := 0.05
	if recencyBias {
		recencyScale = 0.10
	}
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	score += recencyScale * math.Exp(-ageDays/30)

	return score
}

func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ContentID < results[j].ContentID
	})
}

func looksRecordingRelated(query string) bool {
	q := strings.ToLower(query)
	for _, hint := range recordingQueryHints {
		if strings.Contains(q, hint) {
			return true
		}
	}
	return false
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
