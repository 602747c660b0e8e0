// Package queue 持久化的异步任务队列：任务状态保存在 Redis hash 中，
// 消息投递由可替换的 Broker 负责（Redis list 或 RabbitMQ）
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var (
	ErrUnavailable = errors.New("queue unavailable")
	ErrJobNotFound = errors.New("job not found")
	// ErrNoMessage 在等待窗口内没有可用消息
	ErrNoMessage = errors.New("no message available")
)

type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

func (s State) Finished() bool {
	return s == StateCompleted || s == StateFailed
}

type Job struct {
	ID           string          `json:"jobId"`
	State        State           `json:"state"`
	Progress     int             `json:"progress"`
	Attempts     int             `json:"attempts"`
	FailedReason string          `json:"failedReason,omitempty"`
	Payload      json.RawMessage `json:"-"`
	CreatedAt    time.Time       `json:"createdAt"`
	StartedAt    time.Time       `json:"startedAt,omitempty"`
	FinishedAt   time.Time       `json:"finishedAt,omitempty"`
	HeartbeatAt  time.Time       `json:"-"`
}

// Message broker 投递的一条消息，只携带任务 id
type Message struct {
	JobID string
	// ack 在投递该消息的通道上确认，重连后的新通道不认识旧的 delivery tag
	ack func() error
}

type Broker interface {
	Publish(ctx context.Context, jobID string) error
	// Receive 阻塞等待一条消息，超时返回 ErrNoMessage
	Receive(ctx context.Context) (*Message, error)
	Ack(ctx context.Context, msg *Message) error
	Close() error
}

// StallRecoverer broker 自身没有重投机制时由队列定期回收卡住的任务
type StallRecoverer interface {
	RequeueStalled(ctx context.Context, stalled func(jobID string) bool) (int, error)
}

type Options struct {
	Name         string
	Retention    time.Duration
	StallTimeout time.Duration
}

type Queue struct {
	rdb    *redis.Client
	broker Broker
	opts   Options
}

// Delivery 正在被 worker 处理的任务
type Delivery struct {
	Job *Job
	msg *Message
}

func (d *Delivery) Decode(v interface{}) error {
	return json.Unmarshal(d.Job.Payload, v)
}

func New(rdb *redis.Client, broker Broker, opts Options) *Queue {
	if opts.Name == "" {
		opts.Name = "default"
	}
	if opts.Retention <= 0 {
		opts.Retention = 24 * time.Hour
	}
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = 2 * time.Minute
	}
	return &Queue{rdb: rdb, broker: broker, opts: opts}
}

func (q *Queue) Name() string {
	return q.opts.Name
}

func (q *Queue) jobKey(id string) string {
	return fmt.Sprintf("careermap:queue:%s:job:%s", q.opts.Name, id)
}

func NewJobID() string {
	return uuid.NewString()
}

func (q *Queue) Enqueue(ctx context.Context, payload interface{}) (string, error) {
	id := NewJobID()
	if err := q.EnqueueWithID(ctx, id, payload); err != nil {
		return "", err
	}
	return id, nil
}

// EnqueueWithID 先写任务状态再投递；投递失败时删除状态并返回 ErrUnavailable。
// 调用方可以先把 id 落库，再入队
func (q *Queue) EnqueueWithID(ctx context.Context, id string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}

	key := q.jobKey(id)
	now := nowMillis()
	if err := q.rdb.HSet(ctx, key,
		"state", string(StateWaiting),
		"progress", 0,
		"attempts", 0,
		"payload", string(body),
		"createdAt", now,
	).Err(); err != nil {
		return fmt.Errorf("%w: write job state: %v", ErrUnavailable, err)
	}

	if err := q.broker.Publish(ctx, id); err != nil {
		q.rdb.Del(context.Background(), key)
		return fmt.Errorf("%w: publish job: %v", ErrUnavailable, err)
	}
	return nil
}

func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	if id == "" {
		return nil, ErrJobNotFound
	}
	fields, err := q.rdb.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("read job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}
	return decodeJob(id, fields), nil
}

var progressScript = redis.NewScript(`
local raw = redis.call('HGET', KEYS[1], 'progress')
if not raw then
	return -1
end
local cur = tonumber(raw)
local p = tonumber(ARGV[1])
if p > cur then
	redis.call('HSET', KEYS[1], 'progress', p)
	cur = p
end
redis.call('HSET', KEYS[1], 'heartbeatAt', ARGV[2])
return cur
`)

// UpdateProgress 进度只增不减，超出 [0,100] 时截断
func (q *Queue) UpdateProgress(ctx context.Context, id string, pct int) error {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	res, err := progressScript.Run(ctx, q.rdb, []string{q.jobKey(id)}, pct, nowMillis()).Int()
	if err != nil {
		return fmt.Errorf("update progress of job %s: %w", id, err)
	}
	if res < 0 {
		return ErrJobNotFound
	}
	return nil
}

func (q *Queue) Heartbeat(ctx context.Context, id string) error {
	key := q.jobKey(id)
	n, err := q.rdb.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return q.rdb.HSet(ctx, key, "heartbeatAt", nowMillis()).Err()
}

// Dequeue 取出下一个待处理任务并标记为 active。已结束或已过期的消息直接确认丢弃
func (q *Queue) Dequeue(ctx context.Context) (*Delivery, error) {
	msg, err := q.broker.Receive(ctx)
	if err != nil {
		return nil, err
	}

	key := q.jobKey(msg.JobID)
	fields, err := q.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read job %s: %w", msg.JobID, err)
	}
	if len(fields) == 0 || State(fields["state"]).Finished() {
		_ = q.broker.Ack(ctx, msg)
		return nil, ErrNoMessage
	}

	now := nowMillis()
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, key, "state", string(StateActive), "startedAt", now, "heartbeatAt", now)
	attempts := pipe.HIncrBy(ctx, key, "attempts", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("activate job %s: %w", msg.JobID, err)
	}

	job := decodeJob(msg.JobID, fields)
	job.State = StateActive
	job.Attempts = int(attempts.Val())
	job.StartedAt = time.UnixMilli(now)
	job.HeartbeatAt = job.StartedAt
	return &Delivery{Job: job, msg: msg}, nil
}

func (q *Queue) Complete(ctx context.Context, d *Delivery) error {
	return q.finish(ctx, d, StateCompleted, "progress", 100)
}

func (q *Queue) Fail(ctx context.Context, d *Delivery, cause error) error {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	return q.finish(ctx, d, StateFailed, "failedReason", reason)
}

func (q *Queue) finish(ctx context.Context, d *Delivery, state State, extra ...interface{}) error {
	key := q.jobKey(d.Job.ID)
	values := append([]interface{}{"state", string(state), "finishedAt", nowMillis()}, extra...)

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, key, values...)
	pipe.Expire(ctx, key, q.opts.Retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("finish job %s: %w", d.Job.ID, err)
	}
	d.Job.State = state

	if err := q.broker.Ack(ctx, d.msg); err != nil {
		return fmt.Errorf("ack job %s: %w", d.Job.ID, err)
	}
	return nil
}

// RecoverStalled 心跳超过 StallTimeout 的 active 任务重新放回等待队列
func (q *Queue) RecoverStalled(ctx context.Context) (int, error) {
	rec, ok := q.broker.(StallRecoverer)
	if !ok {
		return 0, nil
	}
	deadline := time.Now().Add(-q.opts.StallTimeout)
	return rec.RequeueStalled(ctx, func(jobID string) bool {
		fields, err := q.rdb.HMGet(ctx, q.jobKey(jobID), "state", "heartbeatAt", "startedAt").Result()
		if err != nil {
			return false
		}
		// 状态已过期的任务放回后会在 Dequeue 时被丢弃
		if fields[0] == nil {
			return true
		}
		last := time.Time{}
		for _, f := range fields[1:] {
			if s, ok := f.(string); ok {
				if t := fromMillis(s); t.After(last) {
					last = t
				}
			}
		}
		// 刚被取出尚未写入 startedAt 的任务不回收
		if last.IsZero() {
			return false
		}
		return last.Before(deadline)
	})
}

func (q *Queue) SupportsStallRecovery() bool {
	_, ok := q.broker.(StallRecoverer)
	return ok
}

func (q *Queue) Close() error {
	return q.broker.Close()
}

func decodeJob(id string, f map[string]string) *Job {
	progress, _ := strconv.Atoi(f["progress"])
	attempts, _ := strconv.Atoi(f["attempts"])
	return &Job{
		ID:           id,
		State:        State(f["state"]),
		Progress:     progress,
		Attempts:     attempts,
		FailedReason: f["failedReason"],
		Payload:      json.RawMessage(f["payload"]),
		CreatedAt:    fromMillis(f["createdAt"]),
		StartedAt:    fromMillis(f["startedAt"]),
		FinishedAt:   fromMillis(f["finishedAt"]),
		HeartbeatAt:  fromMillis(f["heartbeatAt"]),
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func fromMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
