// Package notify fans out advisory change events to connected UIs.
// Delivery is best-effort only: nothing in the issue/return/fine flow
// depends on an event arriving.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// 変更イベント。差分は運ばない（"何かが変わった"だけ）。
type ChangeEvent struct {
	Table  string    `json:"table"`
	Action string    `json:"action"` // INSERT / UPDATE / DELETE
	Key    string    `json:"key"`
	At     time.Time `json:"at"`
}

type Notifier interface {
	Publish(ctx context.Context, ev ChangeEvent)
	Subscribe(ctx context.Context, table string) (<-chan ChangeEvent, func())
}

const channelPrefix = "changes:"

// ---------- redis ----------

type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedis(addr, password string, db int) (*RedisNotifier, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisNotifier{rdb: rdb}, nil
}

func (n *RedisNotifier) Publish(ctx context.Context, ev ChangeEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[WARN] notify: marshal failed: %v", err)
		return
	}
	// 失敗してもオペレーション自体は成功扱い（広報専用チャネル）
	if err := n.rdb.Publish(ctx, channelPrefix+ev.Table, payload).Err(); err != nil {
		log.Printf("[WARN] notify: publish %s failed: %v", ev.Table, err)
	}
}

func (n *RedisNotifier) Subscribe(ctx context.Context, table string) (<-chan ChangeEvent, func()) {
	sub := n.rdb.Subscribe(ctx, channelPrefix+table)
	out := make(chan ChangeEvent, 16)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			default:
				// 遅い購読者はイベントを落とす。必要ならリロードで追いつける。
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel
}

func (n *RedisNotifier) Close() error { return n.rdb.Close() }

// ---------- no-op (redis未設定時) ----------

type NoopNotifier struct{}

func (NoopNotifier) Publish(ctx context.Context, ev ChangeEvent) {}

func (NoopNotifier) Subscribe(ctx context.Context, table string) (<-chan ChangeEvent, func()) {
	ch := make(chan ChangeEvent)
	return ch, func() { close(ch) }
}
