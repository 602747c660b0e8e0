package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisBroker 基于 list 的可靠队列：BRPOPLPUSH 把消息移入 active 列表，确认时 LREM
type RedisBroker struct {
	rdb       *redis.Client
	waitKey   string
	activeKey string
	block     time.Duration
}

func NewRedisBroker(rdb *redis.Client, name string) *RedisBroker {
	prefix := fmt.Sprintf("careermap:queue:%s", name)
	return &RedisBroker{
		rdb:       rdb,
		waitKey:   prefix + ":wait",
		activeKey: prefix + ":active",
		block:     2 * time.Second,
	}
}

func (b *RedisBroker) Publish(ctx context.Context, jobID string) error {
	return b.rdb.LPush(ctx, b.waitKey, jobID).Err()
}

func (b *RedisBroker) Receive(ctx context.Context) (*Message, error) {
	id, err := b.rdb.BRPopLPush(ctx, b.waitKey, b.activeKey, b.block).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoMessage
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return &Message{JobID: id}, nil
}

func (b *RedisBroker) Ack(ctx context.Context, msg *Message) error {
	return b.rdb.LRem(ctx, b.activeKey, 1, msg.JobID).Err()
}

var requeueScript = redis.NewScript(`
if redis.call('LREM', KEYS[1], 1, ARGV[1]) > 0 then
	redis.call('RPUSH', KEYS[2], ARGV[1])
	return 1
end
return 0
`)

// RequeueStalled 放回 wait 列表右端，使其优先被再次取出
func (b *RedisBroker) RequeueStalled(ctx context.Context, stalled func(jobID string) bool) (int, error) {
	ids, err := b.rdb.LRange(ctx, b.activeKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, id := range ids {
		if !stalled(id) {
			continue
		}
		n, err := requeueScript.Run(ctx, b.rdb, []string{b.activeKey, b.waitKey}, id).Int()
		if err != nil {
			return moved, err
		}
		moved += n
	}
	return moved, nil
}

func (b *RedisBroker) Close() error {
	return nil
}
