// Copyright (C) 2025 Lex Machina (dev@lexmachina.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/lexmachina/lexmachina/services/orchestrator/datatypes"
)

// Key layout. Message keys embed a zero-padded sequence number so a prefix
// iteration returns the transcript in order.
//
//	case:<caseID>           → datatypes.Case
//	seq:<caseID>            → uint64 message counter
//	msg:<caseID>:<seq%08d>  → datatypes.Message
//	ev:<caseID>:<evidenceID>→ datatypes.Evidence
//	url:<sha256(url)>       → cached evidence download
const (
	casePrefix = "case:"
	seqPrefix  = "seq:"
	msgPrefix  = "msg:"
	evPrefix   = "ev:"
	urlPrefix  = "url:"
)

var (
	// ErrCaseNotFound is returned when the case ID has no record.
	ErrCaseNotFound = errors.New("case not found")

	// ErrCaseAlreadyRunning is returned by MarkRunning when another run
	// owns the case.
	ErrCaseAlreadyRunning = errors.New("case is already running")

	// ErrCacheMiss is returned by GetCachedDownload for unknown URLs.
	ErrCacheMiss = errors.New("cache miss")
)

// CaseStore persists cases, transcripts, and evidence, and fans persisted
// messages out to live subscribers (the WebSocket stream).
type CaseStore struct {
	db *badger.DB

	mu   sync.Mutex
	subs map[string]map[chan datatypes.Message]struct{}

	gcStop chan struct{}
	gcDone chan struct{}
}

// Open opens (or creates) the case database.
func Open(cfg Config) (*CaseStore, error) {
	db, err := openBadger(cfg)
	if err != nil {
		return nil, err
	}

	s := &CaseStore{
		db:   db,
		subs: make(map[string]map[chan datatypes.Message]struct{}),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go gcLoop(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger, s.gcStop, s.gcDone)
	}
	return s, nil
}

// OpenInMemory opens an in-memory store for testing.
func OpenInMemory() (*CaseStore, error) {
	return Open(InMemoryConfig())
}

// Close stops GC and closes the database.
func (s *CaseStore) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
	}
	return s.db.Close()
}

// =============================================================================
// Cases
// =============================================================================

// CreateCase stores a new case. Fails if the ID already exists.
func (s *CaseStore) CreateCase(ctx context.Context, c *datatypes.Case) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := []byte(casePrefix + c.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("case %s already exists", c.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return putJSON(txn, key, c)
	})
}

// GetCase fetches a case by ID.
func (s *CaseStore) GetCase(ctx context.Context, caseID string) (*datatypes.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var c datatypes.Case
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(casePrefix+caseID), &c)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, err
	}
	return &c, nil
}

// UpdateCase applies fn to the stored case inside a transaction and saves
// the result. fn sees the latest committed state.
func (s *CaseStore) UpdateCase(ctx context.Context, caseID string, fn func(*datatypes.Case) error) (*datatypes.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var updated datatypes.Case
	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(casePrefix + caseID)
		if err := getJSON(txn, key, &updated); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrCaseNotFound
			}
			return err
		}
		if err := fn(&updated); err != nil {
			return err
		}
		updated.UpdatedAt = time.Now().UnixMilli()
		return putJSON(txn, key, &updated)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// MarkRunning transitions a case to running. The compare-and-swap inside
// the transaction guarantees a single active run per case.
func (s *CaseStore) MarkRunning(ctx context.Context, caseID string) (*datatypes.Case, error) {
	return s.UpdateCase(ctx, caseID, func(c *datatypes.Case) error {
		if c.Status == datatypes.StatusRunning {
			return ErrCaseAlreadyRunning
		}
		c.Status = datatypes.StatusRunning
		return nil
	})
}

// =============================================================================
// Transcript
// =============================================================================

// AppendMessage assigns the next sequence number, persists the message, and
// notifies subscribers. The ID is assigned here if empty.
func (s *CaseStore) AppendMessage(ctx context.Context, m *datatypes.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().UnixMilli()
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		// Reject messages for unknown cases up front.
		if _, err := txn.Get([]byte(casePrefix + m.CaseID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrCaseNotFound
			}
			return err
		}

		seq, err := nextSeq(txn, []byte(seqPrefix+m.CaseID))
		if err != nil {
			return err
		}
		if m.ID == "" {
			m.ID = fmt.Sprintf("%s-%06d", m.CaseID, seq)
		}
		key := []byte(fmt.Sprintf("%s%s:%08d", msgPrefix, m.CaseID, seq))
		return putJSON(txn, key, m)
	})
	if err != nil {
		return err
	}

	s.notify(m)
	return nil
}

// ListMessages returns the transcript in append order.
func (s *CaseStore) ListMessages(ctx context.Context, caseID string) ([]datatypes.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []datatypes.Message
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(msgPrefix + caseID + ":")
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m datatypes.Message
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			})
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

// =============================================================================
// Evidence
// =============================================================================

// AddEvidence persists an evidence record for a case.
func (s *CaseStore) AddEvidence(ctx context.Context, e *datatypes.Evidence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(casePrefix + e.CaseID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrCaseNotFound
			}
			return err
		}
		key := []byte(fmt.Sprintf("%s%s:%s", evPrefix, e.CaseID, e.ID))
		return putJSON(txn, key, e)
	})
}

// ListEvidence returns all evidence attached to a case.
func (s *CaseStore) ListEvidence(ctx context.Context, caseID string) ([]datatypes.Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []datatypes.Evidence
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(evPrefix + caseID + ":")
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e datatypes.Evidence
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// =============================================================================
// Evidence download cache
// =============================================================================

// CachedDownload is the stored result of an evidence URL fetch.
type CachedDownload struct {
	MimeType  string `json:"mime_type"`
	Text      string `json:"text"`
	FetchedAt int64  `json:"fetched_at"`
}

// PutCachedDownload stores a download result with a TTL so stale evidence
// re-fetches eventually.
func (s *CaseStore) PutCachedDownload(ctx context.Context, url string, d *CachedDownload, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(urlPrefix+urlKey(url)), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// GetCachedDownload returns a previously cached fetch, or ErrCacheMiss.
func (s *CaseStore) GetCachedDownload(ctx context.Context, url string) (*CachedDownload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var d CachedDownload
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(urlPrefix+urlKey(url)), &d)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return &d, nil
}

func urlKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// =============================================================================
// Live subscriptions
// =============================================================================

// Subscribe returns a channel receiving every message appended to the case
// after this call. The caller must Unsubscribe when done.
func (s *CaseStore) Subscribe(caseID string) chan datatypes.Message {
	ch := make(chan datatypes.Message, 16)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[caseID] == nil {
		s.subs[caseID] = make(map[chan datatypes.Message]struct{})
	}
	s.subs[caseID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (s *CaseStore) Unsubscribe(caseID string, ch chan datatypes.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.subs[caseID]; ok {
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(s.subs, caseID)
		}
	}
}

// notify delivers a message to subscribers. Slow consumers are skipped
// rather than blocking the writer.
func (s *CaseStore) notify(m *datatypes.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs[m.CaseID] {
		select {
		case ch <- *m:
		default:
		}
	}
}

// =============================================================================
// Helpers
// =============================================================================

func putJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// nextSeq increments and returns the per-case message counter.
func nextSeq(txn *badger.Txn, key []byte) (uint64, error) {
	var seq uint64
	item, err := txn.Get(key)
	switch {
	case err == nil:
		err = item.Value(func(val []byte) error {
			if len(val) == 8 {
				seq = binary.BigEndian.Uint64(val)
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	case errors.Is(err, badger.ErrKeyNotFound):
		// first message
	default:
		return 0, err
	}

	seq++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return seq, txn.Set(key, buf)
}
