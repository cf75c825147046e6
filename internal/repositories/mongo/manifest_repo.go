package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/yoockh/echonote/internal/models"
	"github.com/yoockh/echonote/internal/utils"
)

type ManifestRepository interface {
	Create(ctx context.Context, m *models.UploadManifest) error
	Get(ctx context.Context, sessionID string) (*models.UploadManifest, error)
	AppendChunk(ctx context.Context, sessionID, chunkName string, expiresAt time.Time) error
	// Finalize marks the session complete and records the durable filename.
	Finalize(ctx context.Context, sessionID, finalFilename string) error
	Delete(ctx context.Context, sessionID string) error
}

type manifestRepo struct {
	col *mongo.Collection
}

func NewManifestRepo(db *mongo.Database) ManifestRepository {
	return &manifestRepo{col: db.Collection("upload_manifests")}
}

func (r *manifestRepo) Create(ctx context.Context, m *models.UploadManifest) error {
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.Chunks == nil {
		m.Chunks = []string{}
	}
	_, err := r.col.InsertOne(ctx, m)
	return err
}

func (r *manifestRepo) Get(ctx context.Context, sessionID string) (*models.UploadManifest, error) {
	var out models.UploadManifest
	err := r.col.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *manifestRepo) AppendChunk(ctx context.Context, sessionID, chunkName string, expiresAt time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID, "status": models.ManifestOpen},
		bson.M{
			"$push": bson.M{"chunks": chunkName},
			"$set": bson.M{
				"updated_at": time.Now().UTC(),
				"expires_at": expiresAt,
			},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *manifestRepo) Finalize(ctx context.Context, sessionID, finalFilename string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID},
		bson.M{"$set": bson.M{
			"status":         models.ManifestFinalized,
			"final_filename": finalFilename,
			"chunks":         []string{},
			"updated_at":     time.Now().UTC(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *manifestRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"session_id": sessionID})
	return err
}
