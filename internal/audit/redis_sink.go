package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink appends records to a capped Redis stream so other processes
// can follow privileged changes as they happen.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisSink connects to redisURL and verifies the connection.
func NewRedisSink(redisURL, stream string) (*RedisSink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisSinkWithClient(client, stream), nil
}

func NewRedisSinkWithClient(client *redis.Client, stream string) *RedisSink {
	if stream == "" {
		stream = "daily:audit"
	}
	return &RedisSink{client: client, stream: stream, maxLen: 10000}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Write(ctx context.Context, rec Record) error {
	values := map[string]any{
		"actor_id":    rec.ActorID,
		"actor_email": rec.ActorEmail,
		"profile_id":  strconv.FormatInt(rec.ProfileID, 10),
		"action":      string(rec.Action),
		"at":          rec.At.UTC().Format(time.RFC3339Nano),
	}
	if rec.IdentityID != nil {
		values["identity_id"] = *rec.IdentityID
	}
	if len(rec.Detail) > 0 {
		detail, err := json.Marshal(rec.Detail)
		if err != nil {
			return fmt.Errorf("marshal audit detail: %w", err)
		}
		values["detail"] = string(detail)
	}

	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("append audit stream: %w", err)
	}
	return nil
}

// Recent returns up to n of the newest records in the stream.
func (s *RedisSink) Recent(ctx context.Context, n int64) ([]Record, error) {
	messages, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("read audit stream: %w", err)
	}
	records := make([]Record, 0, len(messages))
	for _, msg := range messages {
		records = append(records, recordFromValues(msg.Values))
	}
	return records, nil
}

func recordFromValues(values map[string]any) Record {
	str := func(key string) string {
		v, _ := values[key].(string)
		return v
	}
	rec := Record{
		ActorID:    str("actor_id"),
		ActorEmail: str("actor_email"),
		Action:     Action(str("action")),
	}
	rec.ProfileID, _ = strconv.ParseInt(str("profile_id"), 10, 64)
	rec.At, _ = time.Parse(time.RFC3339Nano, str("at"))
	if id := str("identity_id"); id != "" {
		rec.IdentityID = &id
	}
	if raw := str("detail"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &rec.Detail)
	}
	return rec
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
