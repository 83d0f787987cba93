package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shaiso/Swarm/internal/domain"
)

// defaultKeyPrefix — префикс ключей брокера в Redis.
const defaultKeyPrefix = "swarm:"

// enqueueScript атомарно создаёт job, если его ещё нет.
//
// KEYS: job, waiting, delayed, seq
// ARGV: json, id, priority, runAtMs, nowMs
var enqueueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return redis.call('GET', KEYS[1])
end
redis.call('SET', KEYS[1], ARGV[1])
if tonumber(ARGV[4]) > tonumber(ARGV[5]) then
	redis.call('ZADD', KEYS[3], ARGV[4], ARGV[2])
else
	local seq = redis.call('INCR', KEYS[4])
	redis.call('ZADD', KEYS[2], tonumber(ARGV[3]) * 1e12 + seq, ARGV[2])
end
return false
`)

// leaseScript переносит наступившие delayed и просроченные active в waiting,
// затем выдаёт голову waiting.
//
// KEYS: waiting, delayed, active, seq
// ARGV: nowMs, leaseUntilMs, jobKeyPrefix
var leaseScript = redis.NewScript(`
local function requeue(set)
	local ids = redis.call('ZRANGEBYSCORE', set, '-inf', ARGV[1], 'LIMIT', 0, 100)
	for _, id in ipairs(ids) do
		redis.call('ZREM', set, id)
		local raw = redis.call('GET', ARGV[3] .. id)
		if raw then
			local job = cjson.decode(raw)
			local seq = redis.call('INCR', KEYS[4])
			redis.call('ZADD', KEYS[1], (job.priority or 0) * 1e12 + seq, id)
		end
	end
end
requeue(KEYS[2])
requeue(KEYS[3])
local head = redis.call('ZRANGE', KEYS[1], 0, 0)
if #head == 0 then
	return false
end
local id = head[1]
redis.call('ZREM', KEYS[1], id)
redis.call('ZADD', KEYS[3], ARGV[2], id)
return redis.call('GET', ARGV[3] .. id)
`)

// RedisBroker — Broker поверх Redis sorted sets.
//
// Раскладка ключей:
//
//	swarm:job:{id}            — JSON domain.Job
//	swarm:q:{queue}:waiting   — ZSET, score = priority*1e12 + seq
//	swarm:q:{queue}:delayed   — ZSET, score = runAt (ms)
//	swarm:q:{queue}:active    — ZSET, score = lease deadline (ms)
//	swarm:seq                 — счётчик FIFO
type RedisBroker struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisBroker создаёт RedisBroker.
func NewRedisBroker(client redis.UniversalClient) *RedisBroker {
	return &RedisBroker{
		client: client,
		prefix: defaultKeyPrefix,
		now:    time.Now,
	}
}

func (b *RedisBroker) jobKey(id string) string { return b.prefix + "job:" + id }

func (b *RedisBroker) jobKeyPrefix() string { return b.prefix + "job:" }

func (b *RedisBroker) seqKey() string { return b.prefix + "seq" }

func (b *RedisBroker) stateKey(queue string, s domain.JobState) string {
	return fmt.Sprintf("%sq:%s:%s", b.prefix, queue, s)
}

// Enqueue ставит job в очередь.
func (b *RedisBroker) Enqueue(ctx context.Context, queue, jobType string, payload any, opts EnqueueOptions) (*domain.Job, error) {
	now := b.now()
	job, err := newJob(queue, jobType, payload, opts, now)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	keys := []string{
		b.jobKey(job.ID),
		b.stateKey(queue, domain.JobStateWaiting),
		b.stateKey(queue, domain.JobStateDelayed),
		b.seqKey(),
	}

	existing, err := enqueueScript.Run(ctx, b.client, keys,
		string(raw), job.ID, job.Priority, job.RunAt.UnixMilli(), now.UnixMilli(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return job, nil
	}
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	var dup domain.Job
	if err := json.Unmarshal([]byte(existing), &dup); err != nil {
		return nil, fmt.Errorf("unmarshal existing job: %w", err)
	}
	return &dup, nil
}

// Lease выдаёт следующий job очереди.
func (b *RedisBroker) Lease(ctx context.Context, queue string, leaseFor time.Duration) (*domain.Job, error) {
	now := b.now()

	keys := []string{
		b.stateKey(queue, domain.JobStateWaiting),
		b.stateKey(queue, domain.JobStateDelayed),
		b.stateKey(queue, domain.JobStateActive),
		b.seqKey(),
	}

	raw, err := leaseScript.Run(ctx, b.client, keys,
		now.UnixMilli(), now.Add(leaseFor).UnixMilli(), b.jobKeyPrefix(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("lease job: %w", err)
	}

	var job domain.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// Retry возвращает выданный job в очередь с задержкой.
func (b *RedisBroker) Retry(ctx context.Context, job *domain.Job, delay time.Duration) error {
	active := b.stateKey(job.Queue, domain.JobStateActive)

	err := b.client.ZScore(ctx, active, job.ID).Err()
	if errors.Is(err, redis.Nil) {
		return ErrNotLeased
	}
	if err != nil {
		return fmt.Errorf("check lease: %w", err)
	}

	now := b.now()
	updated := *job
	updated.RunAt = now.Add(delay)

	raw, err := json.Marshal(&updated)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, b.jobKey(job.ID), raw, 0)
		pipe.ZRem(ctx, active, job.ID)
		pipe.ZAdd(ctx, b.stateKey(job.Queue, domain.JobStateDelayed), redis.Z{
			Score:  float64(updated.RunAt.UnixMilli()),
			Member: job.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("retry job: %w", err)
	}
	return nil
}

// Remove удаляет job.
func (b *RedisBroker) Remove(ctx context.Context, jobID string) error {
	raw, err := b.client.Get(ctx, b.jobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	var job domain.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("unmarshal job: %w", err)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, b.stateKey(job.Queue, domain.JobStateWaiting), jobID)
		pipe.ZRem(ctx, b.stateKey(job.Queue, domain.JobStateDelayed), jobID)
		pipe.ZRem(ctx, b.stateKey(job.Queue, domain.JobStateActive), jobID)
		pipe.Del(ctx, b.jobKey(jobID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove job: %w", err)
	}
	return nil
}

// ListJobs возвращает jobs очереди в указанных состояниях.
func (b *RedisBroker) ListJobs(ctx context.Context, queue string, states ...domain.JobState) ([]domain.Job, error) {
	if len(states) == 0 {
		states = []domain.JobState{domain.JobStateWaiting, domain.JobStateDelayed, domain.JobStateActive}
	}

	var jobs []domain.Job
	for _, state := range states {
		ids, err := b.client.ZRange(ctx, b.stateKey(queue, state), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", state, err)
		}
		if len(ids) == 0 {
			continue
		}

		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = b.jobKey(id)
		}

		values, err := b.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("load %s jobs: %w", state, err)
		}

		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				continue
			}
			var job domain.Job
			if err := json.Unmarshal([]byte(s), &job); err != nil {
				return nil, fmt.Errorf("unmarshal job: %w", err)
			}
			jobs = append(jobs, job)
		}
	}

	return jobs, nil
}
