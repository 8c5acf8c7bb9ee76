package goMFA

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/goMFA/backup"
	"github.com/MrEthical07/goMFA/channel"
)

type memoryChannelRecord struct {
	rec     ChannelOTPRecord
	purgeAt time.Time
}

type memoryUserKey struct {
	userID string
	t      MethodType
}

// MemoryStore is a process-local Store. It is safe for concurrent use and
// suits tests and single-instance deployments.
type MemoryStore struct {
	mu       sync.Mutex
	methods  map[string]MFAMethod
	byUser   map[memoryUserKey]string
	counters map[string]uint64
	backup   map[string]*backup.Set
	channel  map[string]map[[32]byte]*memoryChannelRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		methods:  make(map[string]MFAMethod),
		byUser:   make(map[memoryUserKey]string),
		counters: make(map[string]uint64),
		backup:   make(map[string]*backup.Set),
		channel:  make(map[string]map[[32]byte]*memoryChannelRecord),
	}
}

func (s *MemoryStore) SaveMethod(_ context.Context, m MFAMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryUserKey{userID: m.UserID, t: m.Type}
	if oldID, ok := s.byUser[key]; ok && oldID != m.ID {
		s.dropMethodLocked(oldID)
	}
	s.methods[m.ID] = copyMethod(m)
	s.byUser[key] = m.ID
	return nil
}

func (s *MemoryStore) dropMethodLocked(id string) {
	delete(s.methods, id)
	delete(s.counters, id)
	delete(s.backup, id)
	delete(s.channel, id)
}

// liveMethodLocked reports whether codes of methodID may still be consumed.
func (s *MemoryStore) liveMethodLocked(methodID string) error {
	m, ok := s.methods[methodID]
	if !ok {
		return ErrMethodNotFound
	}
	if m.State == StateDisabled {
		return ErrMethodNotEnabled
	}
	return nil
}

func (s *MemoryStore) GetMethod(_ context.Context, userID string, t MethodType) (MFAMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byUser[memoryUserKey{userID: userID, t: t}]
	if !ok {
		return MFAMethod{}, ErrMethodNotFound
	}
	return copyMethod(s.methods[id]), nil
}

func (s *MemoryStore) GetMethodByID(_ context.Context, methodID string) (MFAMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.methods[methodID]
	if !ok {
		return MFAMethod{}, ErrMethodNotFound
	}
	return copyMethod(m), nil
}

func (s *MemoryStore) ListMethods(_ context.Context, userID string) ([]MFAMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]MFAMethod, 0, 4)
	for key, id := range s.byUser {
		if key.userID == userID {
			out = append(out, copyMethod(s.methods[id]))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (s *MemoryStore) TransitionMethod(_ context.Context, methodID string, from, to MethodState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.methods[methodID]
	if !ok {
		return ErrMethodNotFound
	}
	if m.State != from {
		return ErrConcurrencyConflict
	}
	m.State = to
	if to == StateEnabled {
		m.Verified = true
	}
	s.methods[methodID] = m
	return nil
}

func (s *MemoryStore) TouchMethod(_ context.Context, methodID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.methods[methodID]
	if !ok {
		return ErrMethodNotFound
	}
	at = at.UTC()
	m.LastUsedAt = &at
	s.methods[methodID] = m
	return nil
}

func (s *MemoryStore) AdvanceCounter(_ context.Context, methodID string, counter uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.liveMethodLocked(methodID); err != nil {
		return false, err
	}
	if last, ok := s.counters[methodID]; ok && counter <= last {
		return false, nil
	}
	s.counters[methodID] = counter
	return true, nil
}

func (s *MemoryStore) ReplaceBackupCodes(_ context.Context, methodID string, hashes [][32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backup[methodID] = backup.NewSet(hashes)
	return nil
}

func (s *MemoryStore) ConsumeBackupCode(_ context.Context, methodID string, hash [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.liveMethodLocked(methodID); err != nil {
		return err
	}
	set, ok := s.backup[methodID]
	if !ok {
		return ErrCodeMismatch
	}
	switch err := set.Consume(hash); {
	case err == nil:
		return nil
	case errors.Is(err, backup.ErrAlreadyUsed):
		return ErrCodeAlreadyUsed
	default:
		return ErrCodeMismatch
	}
}

func (s *MemoryStore) CountBackupCodes(_ context.Context, methodID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backup[methodID].Len(), nil
}

func (s *MemoryStore) DeleteBackupCodes(_ context.Context, methodID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.backup, methodID)
	return nil
}

func (s *MemoryStore) SaveChannelCode(_ context.Context, rec ChannelOTPRecord, retain time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	purgeAt := rec.IssuedAt.Add(retain)
	if purgeAt.Before(rec.ExpiresAt) {
		purgeAt = rec.ExpiresAt
	}
	for id, records := range s.channel {
		for h, v := range records {
			if rec.IssuedAt.After(v.purgeAt) {
				delete(records, h)
			}
		}
		if len(records) == 0 {
			delete(s.channel, id)
		}
	}
	records := s.channel[rec.MethodID]
	if records == nil {
		records = make(map[[32]byte]*memoryChannelRecord)
		s.channel[rec.MethodID] = records
	}
	records[rec.CodeHash] = &memoryChannelRecord{rec: rec, purgeAt: purgeAt}
	return nil
}

func (s *MemoryStore) ConsumeChannelCode(_ context.Context, methodID string, hash [32]byte, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.liveMethodLocked(methodID); err != nil {
		return err
	}
	records := s.channel[methodID]
	entry, ok := records[hash]
	if !ok {
		return ErrCodeMismatch
	}
	if now.After(entry.purgeAt) {
		delete(records, hash)
		return ErrCodeMismatch
	}
	if err := channelOutcome(channel.Classify(entry.rec.ExpiresAt, entry.rec.Used, now)); err != nil {
		return err
	}
	entry.rec.Used = true
	return nil
}

func (s *MemoryStore) DeleteChannelCodes(_ context.Context, methodID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channel, methodID)
	return nil
}

// channelOutcome maps a channel classification onto the engine errors.
func channelOutcome(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, channel.ErrExpired):
		return ErrCodeExpired
	case errors.Is(err, channel.ErrAlreadyUsed):
		return ErrCodeAlreadyUsed
	default:
		return ErrCodeMismatch
	}
}

func copyMethod(m MFAMethod) MFAMethod {
	out := m
	if m.Secret != nil {
		out.Secret = append([]byte(nil), m.Secret...)
	}
	if m.LastUsedAt != nil {
		at := *m.LastUsedAt
		out.LastUsedAt = &at
	}
	return out
}
