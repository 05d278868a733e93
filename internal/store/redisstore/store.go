// Package redisstore keeps completion records in redis, one hash of
// unit -> timestamp per stage plus a parallel hash for payloads. Suited to
// deployments where several operators share a scheduler state without a
// relational database.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/synphys-pipeline/internal/pipeline"
)

type Store struct {
	client redis.UniversalClient
	prefix string
}

func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "synphys"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) finishedKey(stage string) string {
	return s.prefix + ":finished:" + stage
}

func (s *Store) payloadKey(stage string) string {
	return s.prefix + ":payload:" + stage
}

func (s *Store) FinishedUnits(ctx context.Context, stage string) (map[pipeline.Unit]time.Time, error) {
	raw, err := s.client.HGetAll(ctx, s.finishedKey(stage)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[pipeline.Unit]time.Time, len(raw))
	for unit, v := range raw {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("bad timestamp for stage %q unit %q: %w", stage, unit, err)
		}
		out[pipeline.Unit(unit)] = ts
	}
	return out, nil
}

func (s *Store) RecordResult(ctx context.Context, stage string, unit pipeline.Unit, payload []byte, completedAt time.Time) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.finishedKey(stage), string(unit), completedAt.UTC().Format(time.RFC3339Nano))
		if len(payload) > 0 {
			p.HSet(ctx, s.payloadKey(stage), string(unit), payload)
		} else {
			p.HDel(ctx, s.payloadKey(stage), string(unit))
		}
		return nil
	})
	return err
}

func (s *Store) DropUnits(ctx context.Context, stage string, units []pipeline.Unit) error {
	if len(units) == 0 {
		return nil
	}
	fields := make([]string, 0, len(units))
	for _, u := range units {
		fields = append(fields, string(u))
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, s.finishedKey(stage), fields...)
		p.HDel(ctx, s.payloadKey(stage), fields...)
		return nil
	})
	return err
}

func (s *Store) DropAll(ctx context.Context, stage string) error {
	return s.client.Del(ctx, s.finishedKey(stage), s.payloadKey(stage)).Err()
}
