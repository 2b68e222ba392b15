package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/whisk/internal/logging"
)

const (
	redisStreamPrefix = "whisk:"
	// MaxStreamLen approximately trims each stream via XADD MAXLEN ~, so
	// the log does not grow unbounded.
	MaxStreamLen = 10000
)

func redisStreamName(stream string) string {
	return redisStreamPrefix + stream
}

// RedisBroker is the Redis Streams implementation of Broker, grounded on
// the original system's redis-py XADD/XREAD/XREADGROUP usage.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker dials Redis and ensures the three consumer groups exist.
func NewRedisBroker(ctx context.Context, client *redis.Client) (*RedisBroker, error) {
	b := &RedisBroker{client: client}

	if err := b.Ping(ctx); err != nil {
		return nil, err
	}

	groups := []struct{ stream, group string }{
		{InvocationsStream, InvokersGroup},
		{ActivationResultsStream, ControllersGroup},
		{HeartbeatsStream, MonitorsGroup},
	}
	for _, g := range groups {
		if err := b.EnsureConsumerGroup(ctx, g.stream, g.group); err != nil {
			logging.Op().Warn("consumer group setup failed", "stream", g.stream, "group", g.group, "err", err)
		}
	}

	return b, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

func (b *RedisBroker) EnsureConsumerGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, redisStreamName(stream), group, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("create consumer group %s/%s: %w", stream, group, err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func (b *RedisBroker) PublishInvocation(ctx context.Context, msg InvocationMessage) (string, error) {
	descriptor, err := json.Marshal(msg.Descriptor)
	if err != nil {
		return "", fmt.Errorf("marshal action descriptor: %w", err)
	}
	values := map[string]interface{}{
		"activation_id":    msg.ActivationID,
		"action":           msg.Action,
		"params":           string(msg.Params),
		"blocking":         strconv.FormatBool(msg.Blocking),
		"namespace":        msg.Namespace,
		"deadline_unix_ms": strconv.FormatInt(msg.DeadlineUnixMS, 10),
		"descriptor":       string(descriptor),
		"trace_parent":     msg.TraceParent,
	}
	return b.xadd(ctx, InvocationsStream, values)
}

func (b *RedisBroker) PublishActivationResult(ctx context.Context, msg ActivationResultMessage) (string, error) {
	logs, err := json.Marshal(msg.Logs)
	if err != nil {
		return "", err
	}
	values := map[string]interface{}{
		"activation_id": msg.ActivationID,
		"status_code":   strconv.Itoa(msg.StatusCode),
		"response":      string(msg.Response),
		"logs":          string(logs),
		"duration_ms":   strconv.FormatInt(msg.DurationMS, 10),
		"invoker_id":    msg.InvokerID,
		"trace_parent":  msg.TraceParent,
	}
	return b.xadd(ctx, ActivationResultsStream, values)
}

func (b *RedisBroker) PublishHeartbeat(ctx context.Context, msg HeartbeatMessage) (string, error) {
	supported, err := json.Marshal(msg.SupportedRuntimes)
	if err != nil {
		return "", err
	}
	warm, err := json.Marshal(msg.WarmRuntimes)
	if err != nil {
		return "", err
	}
	values := map[string]interface{}{
		"invoker_id":         msg.InvokerID,
		"timestamp_unix_ms":  strconv.FormatInt(msg.TimestampUnixMS, 10),
		"capacity_mb":        strconv.Itoa(msg.CapacityMB),
		"active_containers":  strconv.Itoa(msg.ActiveContainers),
		"status":             msg.Status,
		"supported_runtimes": string(supported),
		"warm_runtimes":      string(warm),
	}
	return b.xadd(ctx, HeartbeatsStream, values)
}

func (b *RedisBroker) xadd(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream:     redisStreamName(stream),
		MaxLen:     MaxStreamLen,
		Approx:     true,
		Values:     values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", stream, err)
	}
	return id, nil
}

// ReadBlocking polls the activations_results stream for activationID,
// blocking in bounded increments until timeout elapses, mirroring the
// original system's subscribe_activation loop.
func (b *RedisBroker) ReadBlocking(ctx context.Context, activationID string, timeout time.Duration) (*ActivationResultMessage, error) {
	deadline := time.Now().Add(timeout)
	lastID := "0"

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrNoMessage
		}

		blockFor := remaining
		if blockFor > time.Second {
			blockFor = time.Second
		}

		res, err := b.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{redisStreamName(ActivationResultsStream), lastID},
			Count:   10,
			Block:   blockFor,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read blocking: %w", err)
		}

		for _, stream := range res {
			for _, entry := range stream.Messages {
				lastID = entry.ID
				if entry.Values["activation_id"] == activationID {
					return parseActivationResult(entry.Values)
				}
			}
		}
	}
}

// ReadRecent scans the tail of the activations_results stream for a
// non-blocking match.
func (b *RedisBroker) ReadRecent(ctx context.Context, activationID string, count int) (*ActivationResultMessage, error) {
	entries, err := b.client.XRevRangeN(ctx, redisStreamName(ActivationResultsStream), "+", "-", int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent: %w", err)
	}
	for _, entry := range entries {
		if entry.Values["activation_id"] == activationID {
			return parseActivationResult(entry.Values)
		}
	}
	return nil, ErrNoMessage
}

// RecentHeartbeats returns the most recent heartbeat per invoker, newest
// first scan, first occurrence per invoker kept.
func (b *RedisBroker) RecentHeartbeats(ctx context.Context, count int) ([]HeartbeatMessage, error) {
	entries, err := b.client.XRevRangeN(ctx, redisStreamName(HeartbeatsStream), "+", "-", int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("recent heartbeats: %w", err)
	}

	seen := make(map[string]bool)
	var out []HeartbeatMessage
	for _, entry := range entries {
		invokerID, _ := entry.Values["invoker_id"].(string)
		if invokerID == "" || seen[invokerID] {
			continue
		}
		seen[invokerID] = true

		ts, _ := strconv.ParseInt(asString(entry.Values["timestamp_unix_ms"]), 10, 64)
		capacity, _ := strconv.Atoi(asString(entry.Values["capacity_mb"]))
		active, _ := strconv.Atoi(asString(entry.Values["active_containers"]))

		var supported, warm []string
		if raw := asString(entry.Values["supported_runtimes"]); raw != "" {
			_ = json.Unmarshal([]byte(raw), &supported)
		}
		if raw := asString(entry.Values["warm_runtimes"]); raw != "" {
			_ = json.Unmarshal([]byte(raw), &warm)
		}

		out = append(out, HeartbeatMessage{
			InvokerID:         invokerID,
			TimestampUnixMS:   ts,
			CapacityMB:        capacity,
			ActiveContainers:  active,
			Status:            asString(entry.Values["status"]),
			SupportedRuntimes: supported,
			WarmRuntimes:      warm,
		})
	}
	return out, nil
}

func (b *RedisBroker) ConsumeInvocations(ctx context.Context, consumer string, count int, block time.Duration) ([]InvocationMessage, error) {
	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    InvokersGroup,
		Consumer: consumer,
		Streams:  []string{redisStreamName(InvocationsStream), ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume invocations: %w", err)
	}

	var out []InvocationMessage
	for _, stream := range res {
		for _, entry := range stream.Messages {
			blocking, _ := strconv.ParseBool(asString(entry.Values["blocking"]))
			deadline, _ := strconv.ParseInt(asString(entry.Values["deadline_unix_ms"]), 10, 64)
			var descriptor ActionDescriptor
			if raw := asString(entry.Values["descriptor"]); raw != "" {
				_ = json.Unmarshal([]byte(raw), &descriptor)
			}
			out = append(out, InvocationMessage{
				ActivationID:   asString(entry.Values["activation_id"]),
				Action:         asString(entry.Values["action"]),
				Params:         json.RawMessage(asString(entry.Values["params"])),
				Blocking:       blocking,
				Namespace:      asString(entry.Values["namespace"]),
				DeadlineUnixMS: deadline,
				Descriptor:     descriptor,
				TraceParent:    asString(entry.Values["trace_parent"]),
			})
		}
	}
	return out, nil
}

func parseActivationResult(values map[string]interface{}) (*ActivationResultMessage, error) {
	statusCode, _ := strconv.Atoi(asString(values["status_code"]))
	duration, _ := strconv.ParseInt(asString(values["duration_ms"]), 10, 64)

	var logs []string
	if raw := asString(values["logs"]); raw != "" {
		_ = json.Unmarshal([]byte(raw), &logs)
	}

	return &ActivationResultMessage{
		ActivationID: asString(values["activation_id"]),
		StatusCode:   statusCode,
		Response:     json.RawMessage(asString(values["response"])),
		Logs:         logs,
		DurationMS:   duration,
		InvokerID:    asString(values["invoker_id"]),
		TraceParent:  asString(values["trace_parent"]),
	}, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
