package veriq

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	ikeys "github.com/VeriQ/veriq-go/internal/keys"
	"github.com/redis/go-redis/v9"
)

// Store persists tasks in Redis. Tasks are long-lived keyed records, not
// pop-once queue members: each task is a HASH of scalar fields plus a SET for
// the assigned roster, a HASH for submissions, and a LIST recording
// submission arrival order. A per-status ZSET scored by updated-at ms serves
// as the status+update-time secondary index.
//
// All cross-process coordination happens through the store: submissions are
// appended by an atomic script and every other mutation is conditioned on
// the task's version. There are no in-process locks.
type Store struct {
	rdb     redis.UniversalClient
	encoder Encoder
	now     func() time.Time
}

// NewStore creates a task store on the given Redis client.
func NewStore(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb, encoder: &JSONEncoder{}, now: time.Now}
}

// createScript reserves the task hash and indexes it as pending.
// Returns 0 when the id already exists.
var createScript = redis.NewScript(`
local created = redis.call('HSETNX', KEYS[1], 'id', ARGV[1])
if created == 0 then return 0 end
for i = 3, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
redis.call('ZADD', KEYS[2], tonumber(ARGV[2]), ARGV[1])
return 1
`)

// casScript applies field writes only if the stored version matches.
// KEYS: task hash, workers set, then one status index per AllStatuses order.
// ARGV: expected version, now ms, then field/value pairs. The sentinel field
// "@workers" rewrites the roster set from a comma-joined value instead of
// touching the hash.
// Returns the new version, 0 on version mismatch, -1 when the task is missing.
var casScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local cur = redis.call('HGET', KEYS[1], 'version')
if cur ~= ARGV[1] then return 0 end
for i = 3, #ARGV, 2 do
  if ARGV[i] == '@workers' then
    redis.call('DEL', KEYS[2])
    if ARGV[i+1] ~= '' then
      for w in string.gmatch(ARGV[i+1], '([^,]+)') do
        redis.call('SADD', KEYS[2], w)
      end
    end
  else
    redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
  end
end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
local v = redis.call('HINCRBY', KEYS[1], 'version', 1)
local id = redis.call('HGET', KEYS[1], 'id')
for i = 3, 8 do
  redis.call('ZREM', KEYS[i], id)
end
local pos = {pending=3, assigned=4, in_progress=5, verification_complete=6, failed=7, pending_retry=8}
local st = redis.call('HGET', KEYS[1], 'status')
redis.call('ZADD', KEYS[pos[st]], tonumber(ARGV[2]), id)
return v
`)

// submitScript is the atomic submission append. It gates on status and
// roster membership, rejects duplicates via HSETNX, records arrival order,
// and promotes the task to in_progress, all in one round trip so concurrent
// submissions from distinct workers can never drop each other.
// KEYS: task hash, workers set, submissions hash, order list,
// assigned index, in_progress index.
// ARGV: worker id, submission JSON, now ms.
// Returns the submission count, or -1 missing / -2 bad status / -3 not
// assigned / -4 duplicate.
var submitScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local st = redis.call('HGET', KEYS[1], 'status')
if st ~= 'assigned' and st ~= 'in_progress' then return -2 end
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 0 then return -3 end
if redis.call('HSETNX', KEYS[3], ARGV[1], ARGV[2]) == 0 then return -4 end
redis.call('RPUSH', KEYS[4], ARGV[1])
redis.call('HSET', KEYS[1], 'status', 'in_progress')
redis.call('HINCRBY', KEYS[1], 'version', 1)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[3])
local id = redis.call('HGET', KEYS[1], 'id')
redis.call('ZREM', KEYS[5], id)
redis.call('ZADD', KEYS[6], tonumber(ARGV[3]), id)
return redis.call('HLEN', KEYS[3])
`)

// Create persists a new task in pending status. It returns ErrDuplicateTask
// if the ID already exists.
func (s *Store) Create(ctx context.Context, t *Task) error {
	nowMs := s.now().UnixMilli()
	t.Status = StatusPending
	t.CreatedAt = nowMs
	t.UpdatedAt = nowMs
	t.Version = 1

	args := []any{
		t.ID,
		strconv.FormatInt(nowMs, 10),
		"type", t.Type,
		"priority", strconv.Itoa(t.Priority),
		"payload", string(t.Payload),
		"deadline_ms", strconv.FormatInt(t.Deadline, 10),
		"status", string(t.Status),
		"recovery_attempts", "0",
		"created_at", strconv.FormatInt(nowMs, 10),
		"updated_at", strconv.FormatInt(nowMs, 10),
		"version", "1",
	}
	res, err := createScript.Run(ctx, s.rdb,
		[]string{ikeys.Task(t.ID), ikeys.StatusIndex(string(StatusPending))}, args...).Int()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrDuplicateTask
	}
	return nil
}

// Get loads a full task record, reconstructing submissions in arrival order.
func (s *Store) Get(ctx context.Context, id string) (*Task, error) {
	k := ikeys.For(id)
	pipe := s.rdb.Pipeline()
	hashCmd := pipe.HGetAll(ctx, k.Task)
	workersCmd := pipe.SMembers(ctx, k.Workers)
	subsCmd := pipe.HGetAll(ctx, k.Submissions)
	orderCmd := pipe.LRange(ctx, k.Order, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	fields := hashCmd.Val()
	if len(fields) == 0 {
		return nil, ErrTaskNotFound
	}
	t, err := s.decodeTask(fields)
	if err != nil {
		return nil, err
	}
	t.AssignedWorkers = workersCmd.Val()

	subs := subsCmd.Val()
	for _, w := range orderCmd.Val() {
		raw, ok := subs[w]
		if !ok {
			continue
		}
		var vr VerificationResult
		if err := s.encoder.Decode([]byte(raw), &vr); err != nil {
			return nil, err
		}
		t.Submissions = append(t.Submissions, vr)
	}
	return t, nil
}

// CompareAndSwap applies mutate to the task identified by id only if its
// stored version still equals expected. It enforces state-machine legality
// and returns the updated task, or ErrVersionConflict when another writer got
// there first. Submissions are append-only and cannot be mutated here.
func (s *Store) CompareAndSwap(ctx context.Context, id string, expected int64, mutate func(*Task) error) (*Task, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Version != expected {
		return nil, ErrVersionConflict
	}

	before := t.Status
	updated := *t
	if err := mutate(&updated); err != nil {
		return nil, err
	}
	if !CanTransition(before, updated.Status) {
		return nil, ErrIllegalTransition
	}

	consolidated := ""
	if updated.Consolidated != nil {
		raw, err := s.encoder.Encode(updated.Consolidated)
		if err != nil {
			return nil, err
		}
		consolidated = string(raw)
	}

	nowMs := s.now().UnixMilli()
	args := []any{
		strconv.FormatInt(expected, 10),
		strconv.FormatInt(nowMs, 10),
		"status", string(updated.Status),
		"status_reason", updated.StatusReason,
		"recovery_attempts", strconv.Itoa(updated.RecoveryAttempts),
		"retried_at", strconv.FormatInt(updated.RetriedAt, 10),
		"consolidated", consolidated,
		"@workers", strings.Join(updated.AssignedWorkers, ","),
	}
	res, err := casScript.Run(ctx, s.rdb, s.casKeys(id), args...).Int64()
	if err != nil {
		return nil, err
	}
	switch res {
	case -1:
		return nil, ErrTaskNotFound
	case 0:
		return nil, ErrVersionConflict
	}
	updated.Version = res
	updated.UpdatedAt = nowMs
	return &updated, nil
}

// AppendSubmission atomically appends one worker's verification to a task
// and promotes it to in_progress. Returns the resulting submission count.
func (s *Store) AppendSubmission(ctx context.Context, id string, vr VerificationResult) (int, error) {
	vr.SubmittedAt = s.now().UnixMilli()
	raw, err := s.encoder.Encode(vr)
	if err != nil {
		return 0, err
	}
	k := ikeys.For(id)
	keys := []string{
		k.Task, k.Workers, k.Submissions, k.Order,
		ikeys.StatusIndex(string(StatusAssigned)),
		ikeys.StatusIndex(string(StatusInProgress)),
	}
	res, err := submitScript.Run(ctx, s.rdb, keys,
		vr.WorkerID, string(raw), strconv.FormatInt(vr.SubmittedAt, 10)).Int()
	if err != nil {
		return 0, err
	}
	switch res {
	case -1:
		return 0, ErrTaskNotFound
	case -2:
		return 0, ErrTaskNotAcceptingSubmissions
	case -3:
		return 0, ErrWorkerNotAssigned
	case -4:
		return 0, ErrDuplicateSubmission
	}
	return res, nil
}

// Update re-reads and retries CompareAndSwap up to attempts times on version
// conflicts. The mutate func sees the freshly read task each round, so it can
// bail out when another writer already moved the task somewhere else.
func (s *Store) Update(ctx context.Context, id string, attempts int, mutate func(*Task) error) (*Task, error) {
	lastErr := error(ErrVersionConflict)
	for i := 0; i < attempts; i++ {
		t, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		updated, err := s.CompareAndSwap(ctx, id, t.Version, mutate)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// QueryByStatus returns up to limit task IDs in the given status whose
// updated-at is strictly before updatedBefore. A zero updatedBefore means no
// upper bound. Results come back oldest first.
func (s *Store) QueryByStatus(ctx context.Context, status Status, updatedBefore time.Time, limit int) ([]string, error) {
	maxScore := "+inf"
	if !updatedBefore.IsZero() {
		// Exclusive bound: a task updated exactly at the cutoff is not stale.
		maxScore = "(" + strconv.FormatInt(updatedBefore.UnixMilli(), 10)
	}
	return s.rdb.ZRangeByScore(ctx, ikeys.StatusIndex(string(status)), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   maxScore,
		Count: int64(limit),
	}).Result()
}

func (s *Store) casKeys(id string) []string {
	keys := []string{ikeys.Task(id), ikeys.Workers(id)}
	for _, st := range AllStatuses {
		keys = append(keys, ikeys.StatusIndex(string(st)))
	}
	return keys
}

func (s *Store) decodeTask(fields map[string]string) (*Task, error) {
	t := &Task{
		ID:           fields["id"],
		Type:         fields["type"],
		StatusReason: fields["status_reason"],
	}
	if p := fields["payload"]; p != "" {
		t.Payload = []byte(p)
	}
	status, err := ParseStatus(fields["status"])
	if err != nil {
		return nil, err
	}
	t.Status = status
	t.Priority, _ = strconv.Atoi(fields["priority"])
	t.Deadline, _ = strconv.ParseInt(fields["deadline_ms"], 10, 64)
	t.RecoveryAttempts, _ = strconv.Atoi(fields["recovery_attempts"])
	t.RetriedAt, _ = strconv.ParseInt(fields["retried_at"], 10, 64)
	t.CreatedAt, _ = strconv.ParseInt(fields["created_at"], 10, 64)
	t.UpdatedAt, _ = strconv.ParseInt(fields["updated_at"], 10, 64)
	t.Version, _ = strconv.ParseInt(fields["version"], 10, 64)
	if raw := fields["consolidated"]; raw != "" {
		var cr ConsolidatedResult
		if err := s.encoder.Decode([]byte(raw), &cr); err != nil {
			return nil, err
		}
		t.Consolidated = &cr
	}
	return t, nil
}
