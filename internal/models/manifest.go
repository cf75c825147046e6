package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UploadManifest is the server-side record of one chunked upload session.
// Chunk order equals upload arrival order. The document is transient: a TTL
// index reaps abandoned sessions, and completed sessions keep only the final
// filename so retried finalization calls stay idempotent.
type UploadManifest struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID   string             `bson:"session_id" json:"session_id"`
	UserID      string             `bson:"user_id" json:"user_id"`
	RecordingID string             `bson:"recording_id" json:"recording_id"`

	Chunks []string `bson:"chunks" json:"chunks"` // stored chunk filenames, arrival order

	Status        string `bson:"status" json:"status"`                 // open|finalized
	FinalFilename string `bson:"final_filename" json:"final_filename"` // assigned at session start, exposed at finalize

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}

const (
	ManifestOpen      = "open"
	ManifestFinalized = "finalized"
)
