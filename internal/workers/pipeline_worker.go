package workers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/echonote/internal/services"
)

const DefaultStream = "pipeline:jobs"

// EnqueueJob queues a pipeline re-run for background processing.
func EnqueueJob(ctx context.Context, rdb *redis.Client, stream, userID, recordingID, language, style string) error {
	if stream == "" {
		stream = DefaultStream
	}
	return rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"user_id":      userID,
			"recording_id": recordingID,
			"language":     language,
			"style":        style,
			"ts_unix":      strconv.FormatInt(time.Now().UTC().Unix(), 10),
		},
	}).Err()
}

// PipelineWorkerPool consumes queued pipeline jobs from a Redis stream with a
// consumer group. One job runs the whole derivation chain for one recording;
// different recordings process concurrently across consumers.
type PipelineWorkerPool struct {
	Redis      *redis.Client
	Pipeline   services.PipelineService
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *PipelineWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Pipeline == nil {
		return errors.New("PipelineWorkerPool missing dependency: Redis/Pipeline must be set")
	}
	if p.Stream == "" {
		p.Stream = DefaultStream
	}
	if p.Group == "" {
		p.Group = "pipeline-workers"
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 3
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *PipelineWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    5,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func (p *PipelineWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	userID := getStr("user_id")
	recordingID := getStr("recording_id")
	if userID == "" || recordingID == "" {
		return
	}

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":     msg.ID,
		"recording_id": recordingID,
	})

	report, err := p.Pipeline.Process(ctx, userID, recordingID, services.ProcessOptions{
		Language:    getStr("language"),
		StylePrompt: getStr("style"),
	})
	if err != nil {
		log.WithError(err).Error("pipeline job failed before any stage ran")
		return
	}
	if !report.Complete {
		log.WithField("failed_stage", report.FailedStage).Warn("pipeline job incomplete")
		return
	}
	log.Info("pipeline job complete")
}
