package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-appointments/internal/notify"
)

// NotificationQueue is the notification outbox: a ready list plus a sorted set of
// messages waiting for their retry time.
type NotificationQueue struct {
	client  *redis.Client
	ready   string
	delayed string
	wait    time.Duration
}

func NewNotificationQueue(client *redis.Client, name string) *NotificationQueue {
	return &NotificationQueue{
		client:  client,
		ready:   name,
		delayed: name + ":delayed",
		wait:    2 * time.Second,
	}
}

func (q *NotificationQueue) Publish(ctx context.Context, msg notify.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := q.client.LPush(ctx, q.ready, data).Err(); err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	return nil
}

func (q *NotificationQueue) Requeue(ctx context.Context, msg notify.Message, delay time.Duration) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	due := time.Now().Add(delay).UnixMilli()
	if err := q.client.ZAdd(ctx, q.delayed, redis.Z{Score: float64(due), Member: data}).Err(); err != nil {
		return fmt.Errorf("schedule notification retry: %w", err)
	}
	return nil
}

// promoteScript moves due retries from the delayed set to the ready list atomically.
var promoteScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, 100)
for _, m in ipairs(due) do
  redis.call("ZREM", KEYS[1], m)
  redis.call("LPUSH", KEYS[2], m)
end
return #due
`)

func (q *NotificationQueue) Next(ctx context.Context) (notify.Message, bool, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := promoteScript.Run(ctx, q.client, []string{q.delayed, q.ready}, now).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return notify.Message{}, false, fmt.Errorf("promote delayed notifications: %w", err)
	}

	res, err := q.client.BRPop(ctx, q.wait, q.ready).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return notify.Message{}, false, nil
		}
		return notify.Message{}, false, fmt.Errorf("pop notification: %w", err)
	}

	// BRPOP replies with [key, value]
	return decodeMessage(res[1])
}

func decodeMessage(raw string) (notify.Message, bool, error) {
	var msg notify.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return notify.Message{}, false, fmt.Errorf("decode notification: %w", err)
	}
	return msg, true, nil
}
