package services

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisProgress publishes pipeline stage events to the per-recording status
// channel consumed by the progress WebSocket.
type RedisProgress struct {
	rdb *redis.Client
	log *logrus.Logger
}

func NewRedisProgress(rdb *redis.Client, log *logrus.Logger) *RedisProgress {
	if log == nil {
		log = logrus.New()
	}
	return &RedisProgress{rdb: rdb, log: log}
}

func ProgressChannel(recordingID string) string {
	return "recording:" + recordingID + ":status"
}

func (p *RedisProgress) Publish(ctx context.Context, recordingID, stage, status string) {
	payload, _ := json.Marshal(map[string]string{
		"type":         "stage",
		"recording_id": recordingID,
		"stage":        stage,
		"status":       status,
	})
	if err := p.rdb.Publish(ctx, ProgressChannel(recordingID), string(payload)).Err(); err != nil {
		p.log.WithError(err).WithField("recording_id", recordingID).Debug("progress publish failed")
	}
}
