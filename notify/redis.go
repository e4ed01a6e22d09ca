// Package notify delivers circulation notifications to members.
//
// RedisNotifier does not talk to members itself: it pushes a JSON message on a
// Redis list that the mail/SMS workers consume, and de-duplicates identical
// messages for a configurable window.
package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"library_circulation/circulation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const DefaultQueue = "circulation:notifications"

// Message is the payload pushed to the queue.
type Message struct {
	ID       string                       `json:"id"`
	MemberID string                       `json:"memberId"`
	Kind     circulation.NotificationKind `json:"kind"`
	Subject  string                       `json:"subject"`
	Body     string                       `json:"body"`
	ActorID  string                       `json:"actorId,omitempty"`
	QueuedAt int64                        `json:"queuedAt"`
}

type RedisNotifier struct {
	rdb    *redis.Client
	queue  string
	dedupe time.Duration
}

func NewRedisNotifier(rdb *redis.Client, queue string, dedupe time.Duration) *RedisNotifier {
	if queue == "" {
		queue = DefaultQueue
	}
	return &RedisNotifier{rdb: rdb, queue: queue, dedupe: dedupe}
}

// sentKey 同一会员、同一类型、同一内容只发一次（在 dedupe 窗口内）。
func sentKey(memberID string, kind circulation.NotificationKind, subject, message string) string {
	sum := sha1.Sum([]byte(subject + "\x00" + message))
	return fmt.Sprintf("notify:sent:%s:%s:%s", memberID, kind, hex.EncodeToString(sum[:8]))
}

func (n *RedisNotifier) Notify(ctx context.Context, memberID string, kind circulation.NotificationKind, subject, message string) error {
	if n.dedupe > 0 {
		fresh, err := n.rdb.SetNX(ctx, sentKey(memberID, kind, subject, message), "1", n.dedupe).Result()
		if err != nil {
			return fmt.Errorf("notification dedupe: %w", err)
		}
		if !fresh {
			return nil
		}
	}
	b, err := json.Marshal(Message{
		ID:       uuid.NewString(),
		MemberID: memberID,
		Kind:     kind,
		Subject:  subject,
		Body:     message,
		ActorID:  circulation.ActorFrom(ctx),
		QueuedAt: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.rdb.RPush(ctx, n.queue, b).Err(); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Pending returns up to limit queued messages without consuming them.
func (n *RedisNotifier) Pending(ctx context.Context, limit int64) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := n.rdb.LRange(ctx, n.queue, 0, limit-1).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	out := make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.UnmarshalFromString(r, &m); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}
