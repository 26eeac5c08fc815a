package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "lingocast:"

// appendScript pushes onto a log only while the session's metadata key exists,
// so a late append can never resurrect an ended or expired session. The log
// inherits the metadata TTL so the whole session disappears together.
var appendScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local n = redis.call('RPUSH', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[1], 'last_activity_at', ARGV[2])
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[2], ttl)
end
return n
`)

var setLangScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'input_lang', ARGV[1])
return 1
`)

// RedisStore keeps each session as one hash plus two lists, namespaced by a
// fixed key prefix and the session code. It works against a single node or a
// cluster through redis.UniversalClient.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

func (s *RedisStore) CreateSession(ctx context.Context, code, inputLang string) error {
	if code == "" {
		return ErrInvalidInput
	}
	meta := s.metaKey(code)
	now := strconv.FormatInt(s.now().UnixMilli(), 10)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, meta, s.logKey(code, KindEvents), s.logKey(code, KindAudio))
		pipe.HSet(ctx, meta,
			"id", uuid.NewString(),
			"code", code,
			"input_lang", normalizeLang(inputLang),
			"active", "1",
			"created_at", now,
			"last_activity_at", now,
		)
		pipe.PExpire(ctx, meta, s.ttl)
		return nil
	})
	if err != nil {
		return unavailable("create session", err)
	}
	return nil
}

func (s *RedisStore) EndSession(ctx context.Context, code string) error {
	if code == "" {
		return ErrNotFound
	}
	var exists *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		exists = pipe.Exists(ctx, s.metaKey(code))
		pipe.Del(ctx, s.metaKey(code), s.logKey(code, KindEvents), s.logKey(code, KindAudio))
		return nil
	})
	if err != nil {
		return unavailable("end session", err)
	}
	if exists.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Session(ctx context.Context, code string) (Meta, error) {
	if code == "" {
		return Meta{}, ErrNotFound
	}
	return s.loadMeta(ctx, s.metaKey(code))
}

func (s *RedisStore) Sessions(ctx context.Context) ([]Meta, error) {
	var out []Meta
	iter := s.client.Scan(ctx, 0, s.prefix+"session:*", 100).Iterator()
	for iter.Next(ctx) {
		meta, err := s.loadMeta(ctx, iter.Val())
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("scan sessions", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *RedisStore) SetInputLang(ctx context.Context, code, lang string) error {
	if code == "" {
		return ErrNotFound
	}
	ok, err := setLangScript.Run(ctx, s.client, []string{s.metaKey(code)}, normalizeLang(lang)).Int()
	if err != nil {
		return unavailable("set input lang", err)
	}
	if ok == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) InputLang(ctx context.Context, code string) (string, error) {
	meta, err := s.Session(ctx, code)
	if err != nil {
		return "", err
	}
	return meta.InputLang, nil
}

func (s *RedisStore) Append(ctx context.Context, code string, kind Kind, entry Entry) (int, error) {
	if err := checkArgs(code, kind); err != nil {
		return 0, err
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("marshal entry: %w", err)
	}
	keys := []string{s.metaKey(code), s.logKey(code, kind)}
	n, err := appendScript.Run(ctx, s.client, keys, payload, s.now().UnixMilli()).Int()
	if err != nil {
		return 0, unavailable("append", err)
	}
	if n < 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

func (s *RedisStore) ReadRange(ctx context.Context, code string, kind Kind, from, to int) ([]Entry, error) {
	if err := checkArgs(code, kind); err != nil {
		return nil, err
	}
	if from < 0 {
		from = 0
	}
	var (
		exists *redis.IntCmd
		items  *redis.StringSliceCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		exists = pipe.Exists(ctx, s.metaKey(code))
		if to < 0 || to > from {
			stop := int64(-1)
			if to >= 0 {
				stop = int64(to - 1)
			}
			items = pipe.LRange(ctx, s.logKey(code, kind), int64(from), stop)
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("read range", err)
	}
	if exists.Val() == 0 {
		return nil, ErrNotFound
	}
	if items == nil {
		return []Entry{}, nil
	}
	raw := items.Val()
	out := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) Length(ctx context.Context, code string, kind Kind) (int, error) {
	if err := checkArgs(code, kind); err != nil {
		return 0, err
	}
	var exists, length *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		exists = pipe.Exists(ctx, s.metaKey(code))
		length = pipe.LLen(ctx, s.logKey(code, kind))
		return nil
	})
	if err != nil {
		return 0, unavailable("length", err)
	}
	if exists.Val() == 0 {
		return 0, ErrNotFound
	}
	return int(length.Val()), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) loadMeta(ctx context.Context, key string) (Meta, error) {
	var (
		fields *redis.MapStringStringCmd
		ttl    *redis.DurationCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return Meta{}, unavailable("load session", err)
	}
	vals := fields.Val()
	if len(vals) == 0 {
		return Meta{}, ErrNotFound
	}
	meta := Meta{
		ID:             vals["id"],
		Code:           vals["code"],
		InputLang:      normalizeLang(vals["input_lang"]),
		Active:         vals["active"] == "1",
		CreatedAt:      parseMillis(vals["created_at"]),
		LastActivityAt: parseMillis(vals["last_activity_at"]),
	}
	if meta.Code == "" {
		meta.Code = strings.Trim(strings.TrimPrefix(key, s.prefix+"session:"), "{}")
	}
	if d := ttl.Val(); d > 0 {
		meta.ExpiresAt = s.now().UTC().Add(d)
	}
	return meta, nil
}

// Keys of one session share the {code} hash tag so the append script stays
// on a single cluster slot.
func (s *RedisStore) metaKey(code string) string {
	return s.prefix + "session:{" + code + "}"
}

func (s *RedisStore) logKey(code string, kind Kind) string {
	return s.prefix + string(kind) + ":{" + code + "}"
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %w", ErrUnavailable, op, err)
}
