package goMFA

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "amfa"

// Method records keep their state in the third byte; see encodeMethod.
// Every consume script below refuses to act for a missing or disabled method.

// advanceCounterLua moves the replay high-water mark forward.
// KEYS[1] = counter key
// KEYS[2] = method key
// ARGV[1] = candidate counter
// ARGV[2] = disabled state
//
// Returns 1 when advanced, 0 when the candidate is not greater than the
// stored counter, -1 when the method does not exist, -2 when it is disabled.
var advanceCounterLua = redis.NewScript(`
local method = redis.call('GET', KEYS[2])
if not method then
  return -1
end
if string.byte(method, 3) == tonumber(ARGV[2]) then
  return -2
end
local candidate = tonumber(ARGV[1])
local last = redis.call('GET', KEYS[1])
if last and tonumber(last) >= candidate then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// consumeBackupLua moves a backup code from the active to the used set.
// KEYS[1] = active set
// KEYS[2] = used set
// KEYS[3] = method key
// ARGV[1] = code hash
// ARGV[2] = disabled state
//
// Returns 1 when consumed, 0 when already used, 2 when unknown, -1 when the
// method does not exist, -2 when it is disabled.
var consumeBackupLua = redis.NewScript(`
local method = redis.call('GET', KEYS[3])
if not method then
  return -1
end
if string.byte(method, 3) == tonumber(ARGV[2]) then
  return -2
end
if redis.call('SMOVE', KEYS[1], KEYS[2], ARGV[1]) == 1 then
  return 1
end
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
  return 0
end
return 2
`)

// consumeChannelLua marks a channel record used.
// KEYS[1] = record key
// KEYS[2] = method key
// ARGV[1] = now in unix milliseconds
// ARGV[2] = disabled state
//
// Record layout: version(1) used(1) issuedAt(8) expiresAt(8) hash(32),
// integers big-endian. Expiry is reported before reuse.
var consumeChannelLua = redis.NewScript(`
local method = redis.call('GET', KEYS[2])
if not method then
  return {err='method_missing'}
end
if string.byte(method, 3) == tonumber(ARGV[2]) then
  return {err='method_disabled'}
end

local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end
if string.byte(data, 1) ~= 1 then
  return {err='not_found'}
end

local nowMs = tonumber(ARGV[1])
local expiresAt = 0
for i = 11, 18 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end

if nowMs > expiresAt then
  return {err='expired'}
end
if string.byte(data, 2) == 1 then
  return {err='used'}
end

local updated = string.sub(data, 1, 1) .. string.char(1) .. string.sub(data, 3)
local ttlMs = redis.call('PTTL', KEYS[1])
if ttlMs > 0 then
  redis.call('SET', KEYS[1], updated, 'PX', ttlMs)
else
  redis.call('SET', KEYS[1], updated)
end
return 1
`)

// RedisStore is a Store on Redis. Backup codes, channel codes and the replay
// counter are consumed with Lua scripts and lifecycle transitions run under
// WATCH/MULTI, so every consume and transition is atomic across processes.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore. An empty prefix uses "amfa".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) methodKey(id string) string { return s.prefix + ":m:" + id }
func (s *RedisStore) userKey(userID string) string { return s.prefix + ":u:" + userID }
func (s *RedisStore) counterKey(id string) string { return s.prefix + ":r:" + id }
func (s *RedisStore) backupKey(id string) string { return s.prefix + ":b:" + id }
func (s *RedisStore) usedKey(id string) string { return s.prefix + ":bx:" + id }

func (s *RedisStore) channelKey(methodID string, hash [32]byte) string {
	return s.prefix + ":c:" + methodID + ":" + hex.EncodeToString(hash[:])
}

// channelIndexKey names the set of channel record keys of a method.
func (s *RedisStore) channelIndexKey(methodID string) string { return s.prefix + ":cs:" + methodID }

var disabledStateArg = strconv.Itoa(int(StateDisabled))

func typeField(t MethodType) string {
	return strconv.Itoa(int(t))
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (s *RedisStore) SaveMethod(ctx context.Context, m MFAMethod) error {
	encoded, err := encodeMethod(m)
	if err != nil {
		return err
	}

	const maxRetries = 4
	userKey := s.userKey(m.UserID)
	field := typeField(m.Type)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			oldID, err := tx.HGet(ctx, userKey, field).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			var stale []string
			if oldID != "" && oldID != m.ID {
				codes, err := tx.SMembers(ctx, s.channelIndexKey(oldID)).Result()
				if err != nil {
					return err
				}
				stale = append(codes,
					s.methodKey(oldID), s.counterKey(oldID), s.backupKey(oldID),
					s.usedKey(oldID), s.channelIndexKey(oldID))
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if len(stale) > 0 {
					pipe.Del(ctx, stale...)
				}
				pipe.Set(ctx, s.methodKey(m.ID), encoded, 0)
				pipe.HSet(ctx, userKey, field, m.ID)
				return nil
			})
			return err
		}, userKey)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return unavailable(err)
		}
		return nil
	}
	return ErrConcurrencyConflict
}

func (s *RedisStore) GetMethod(ctx context.Context, userID string, t MethodType) (MFAMethod, error) {
	id, err := s.redis.HGet(ctx, s.userKey(userID), typeField(t)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return MFAMethod{}, ErrMethodNotFound
		}
		return MFAMethod{}, unavailable(err)
	}
	return s.GetMethodByID(ctx, id)
}

func (s *RedisStore) GetMethodByID(ctx context.Context, methodID string) (MFAMethod, error) {
	data, err := s.redis.Get(ctx, s.methodKey(methodID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return MFAMethod{}, ErrMethodNotFound
		}
		return MFAMethod{}, unavailable(err)
	}
	m, err := decodeMethod(data)
	if err != nil {
		return MFAMethod{}, unavailable(err)
	}
	return m, nil
}

func (s *RedisStore) ListMethods(ctx context.Context, userID string) ([]MFAMethod, error) {
	ids, err := s.redis.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(ids) == 0 {
		return []MFAMethod{}, nil
	}

	cmds := make([]*redis.StringCmd, 0, len(ids))
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			cmds = append(cmds, pipe.Get(ctx, s.methodKey(id)))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	out := make([]MFAMethod, 0, len(cmds))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, unavailable(err)
		}
		m, err := decodeMethod(data)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

// updateMethod applies fn to the stored method under WATCH. fn returning an
// error aborts without writing.
func (s *RedisStore) updateMethod(ctx context.Context, methodID string, fn func(*MFAMethod) error) error {
	key := s.methodKey(methodID)
	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		m, err := decodeMethod(data)
		if err != nil {
			return err
		}
		if err := fn(&m); err != nil {
			return err
		}
		updated, err := encodeMethod(m)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case err == redis.TxFailedErr:
		return ErrConcurrencyConflict
	case errors.Is(err, redis.Nil):
		return ErrMethodNotFound
	case errors.Is(err, ErrConcurrencyConflict):
		return err
	default:
		return unavailable(err)
	}
}

func (s *RedisStore) TransitionMethod(ctx context.Context, methodID string, from, to MethodState) error {
	return s.updateMethod(ctx, methodID, func(m *MFAMethod) error {
		if m.State != from {
			return ErrConcurrencyConflict
		}
		m.State = to
		if to == StateEnabled {
			m.Verified = true
		}
		return nil
	})
}

func (s *RedisStore) TouchMethod(ctx context.Context, methodID string, at time.Time) error {
	var err error
	for i := 0; i < 3; i++ {
		err = s.updateMethod(ctx, methodID, func(m *MFAMethod) error {
			at := at.UTC()
			m.LastUsedAt = &at
			return nil
		})
		if !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
	}
	return err
}

func (s *RedisStore) AdvanceCounter(ctx context.Context, methodID string, counter uint64) (bool, error) {
	res, err := advanceCounterLua.Run(ctx, s.redis,
		[]string{s.counterKey(methodID), s.methodKey(methodID)},
		strconv.FormatUint(counter, 10), disabledStateArg,
	).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	switch res {
	case 1:
		return true, nil
	case 0:
		return false, nil
	case -2:
		return false, ErrMethodNotEnabled
	default:
		return false, ErrMethodNotFound
	}
}

func (s *RedisStore) ReplaceBackupCodes(ctx context.Context, methodID string, hashes [][32]byte) error {
	members := make([]interface{}, 0, len(hashes))
	for _, h := range hashes {
		members = append(members, string(h[:]))
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.backupKey(methodID), s.usedKey(methodID))
		if len(members) > 0 {
			pipe.SAdd(ctx, s.backupKey(methodID), members...)
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) ConsumeBackupCode(ctx context.Context, methodID string, hash [32]byte) error {
	res, err := consumeBackupLua.Run(ctx, s.redis,
		[]string{s.backupKey(methodID), s.usedKey(methodID), s.methodKey(methodID)},
		string(hash[:]), disabledStateArg,
	).Int64()
	if err != nil {
		return unavailable(err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return ErrCodeAlreadyUsed
	case 2:
		return ErrCodeMismatch
	case -2:
		return ErrMethodNotEnabled
	default:
		return ErrMethodNotFound
	}
}

func (s *RedisStore) CountBackupCodes(ctx context.Context, methodID string) (int, error) {
	n, err := s.redis.SCard(ctx, s.backupKey(methodID)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

func (s *RedisStore) DeleteBackupCodes(ctx context.Context, methodID string) error {
	if err := s.redis.Del(ctx, s.backupKey(methodID), s.usedKey(methodID)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) SaveChannelCode(ctx context.Context, rec ChannelOTPRecord, retain time.Duration) error {
	if lifetime := rec.ExpiresAt.Sub(rec.IssuedAt); retain < lifetime {
		retain = lifetime
	}
	if retain <= 0 {
		return errors.New("channel code retention must be > 0")
	}
	if rec.MethodID == "" {
		return errors.New("channel code requires a method id")
	}

	key := s.channelKey(rec.MethodID, rec.CodeHash)
	index := s.channelIndexKey(rec.MethodID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, encodeChannelRecord(rec), retain)
		pipe.SAdd(ctx, index, key)
		pipe.PExpire(ctx, index, retain)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) ConsumeChannelCode(ctx context.Context, methodID string, hash [32]byte, now time.Time) error {
	_, err := consumeChannelLua.Run(ctx, s.redis,
		[]string{s.channelKey(methodID, hash), s.methodKey(methodID)},
		now.UnixMilli(), disabledStateArg,
	).Result()
	if err == nil {
		return nil
	}

	// Servers may prefix script error replies, so match on the suffix.
	msg := err.Error()
	switch {
	case strings.HasSuffix(msg, "method_missing"):
		return ErrMethodNotFound
	case strings.HasSuffix(msg, "method_disabled"):
		return ErrMethodNotEnabled
	case strings.HasSuffix(msg, "not_found"):
		return ErrCodeMismatch
	case strings.HasSuffix(msg, "expired"):
		return ErrCodeExpired
	case strings.HasSuffix(msg, "used"):
		return ErrCodeAlreadyUsed
	default:
		return unavailable(err)
	}
}

func (s *RedisStore) DeleteChannelCodes(ctx context.Context, methodID string) error {
	index := s.channelIndexKey(methodID)
	keys, err := s.redis.SMembers(ctx, index).Result()
	if err != nil {
		return unavailable(err)
	}
	if err := s.redis.Del(ctx, append(keys, index)...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}
