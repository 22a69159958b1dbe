package audit

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"stakegov/storage"
)

// Event identifies the lifecycle action captured by an audit record.
type Event string

const (
	EventTransfer      Event = "transfer"
	EventStake         Event = "stake"
	EventProposed      Event = "proposed"
	EventVote          Event = "vote"
	EventExecuted      Event = "executed"
	EventReleaseFailed Event = "release_failed"
)

// Record is an immutable journal entry. Records are numbered from zero and
// each one commits to its predecessor through PrevHash, so a rewritten entry
// breaks every hash after it.
type Record struct {
	Sequence      uint64    `json:"sequence"`
	Timestamp     time.Time `json:"timestamp"`
	Event         Event     `json:"event"`
	ProposalID    *uint64   `json:"proposalId,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	Details       string    `json:"details,omitempty"`
	CorrelationID string    `json:"correlationId"`
	RunID         string    `json:"runId,omitempty"`
	PrevHash      string    `json:"prevHash"`
	Hash          string    `json:"hash"`
}

// ForProposal returns a pointer suitable for Record.ProposalID.
func ForProposal(id uint64) *uint64 { return &id }

type head struct {
	Next uint64 `json:"next"`
	Hash string `json:"hash"`
}

var headKey = []byte("audit/head")

var recordPrefix = []byte("audit/record/")

func recordKey(seq uint64) []byte {
	return fmt.Appendf(append([]byte(nil), recordPrefix...), "%020d", seq)
}

// ErrChainBroken is returned by Verify when a stored record does not hash to
// the value recorded for it.
var ErrChainBroken = errors.New("audit: hash chain broken")

// Journal appends audit records to a key-value database.
type Journal struct {
	mu   sync.Mutex
	db   storage.Database
	next uint64
	last [32]byte
}

// Open loads the journal head from db, starting a fresh chain when none is
// stored.
func Open(db storage.Database) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: database required")
	}
	j := &Journal{db: db}
	raw, err := db.Get(headKey)
	if errors.Is(err, storage.ErrNotFound) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: load head: %w", err)
	}
	var h head
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("audit: decode head: %w", err)
	}
	last, err := decodeHash(h.Hash)
	if err != nil {
		return nil, fmt.Errorf("audit: decode head hash: %w", err)
	}
	j.next = h.Next
	j.last = last
	return j, nil
}

// Append stamps rec with the next sequence and chain hashes and persists it.
func (j *Journal) Append(rec Record) (Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec.Sequence = j.next
	rec.Timestamp = rec.Timestamp.UTC()
	if rec.CorrelationID == "" {
		rec.CorrelationID = uuid.NewString()
	}
	rec.PrevHash = hex.EncodeToString(j.last[:])
	sum, err := digest(j.last, rec)
	if err != nil {
		return Record{}, err
	}
	rec.Hash = hex.EncodeToString(sum[:])

	encoded, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("audit: encode record: %w", err)
	}
	encodedHead, err := json.Marshal(head{Next: rec.Sequence + 1, Hash: rec.Hash})
	if err != nil {
		return Record{}, fmt.Errorf("audit: encode head: %w", err)
	}
	if err := j.db.PutBatch([]storage.KV{
		{Key: recordKey(rec.Sequence), Value: encoded},
		{Key: headKey, Value: encodedHead},
	}); err != nil {
		return Record{}, fmt.Errorf("audit: persist record %d: %w", rec.Sequence, err)
	}
	j.next = rec.Sequence + 1
	j.last = sum
	return rec, nil
}

// Len returns the number of records in the journal.
func (j *Journal) Len() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.next
}

// Get loads the record with the given sequence.
func (j *Journal) Get(seq uint64) (Record, error) {
	raw, err := j.db.Get(recordKey(seq))
	if err != nil {
		return Record{}, fmt.Errorf("audit: record %d: %w", seq, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("audit: decode record %d: %w", seq, err)
	}
	return rec, nil
}

// List returns up to limit records starting at sequence from.
func (j *Journal) List(from, limit uint64) ([]Record, error) {
	end := j.Len()
	if from >= end || limit == 0 {
		return []Record{}, nil
	}
	if end-from > limit {
		end = from + limit
	}
	out := make([]Record, 0, end-from)
	err := j.walk(from, end, func(rec Record) error {
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Verify re-walks the chain from the first record and checks every hash.
func (j *Journal) Verify() error {
	j.mu.Lock()
	end, last := j.next, j.last
	j.mu.Unlock()

	var prev [32]byte
	err := j.walk(0, end, func(rec Record) error {
		if rec.PrevHash != hex.EncodeToString(prev[:]) {
			return fmt.Errorf("record %d prev hash: %w", rec.Sequence, ErrChainBroken)
		}
		sum, err := digest(prev, rec)
		if err != nil {
			return err
		}
		if rec.Hash != hex.EncodeToString(sum[:]) {
			return fmt.Errorf("record %d hash: %w", rec.Sequence, ErrChainBroken)
		}
		prev = sum
		return nil
	})
	if err != nil {
		return err
	}
	if prev != last {
		return fmt.Errorf("head hash: %w", ErrChainBroken)
	}
	return nil
}

// walk decodes records [from, end) in sequence order. A gap in the stored
// sequence numbers is reported as a broken chain.
func (j *Journal) walk(from, end uint64, fn func(Record) error) error {
	want := from
	var walkErr error
	err := j.db.Iterate(recordPrefix, recordKey(from), func(_, value []byte) bool {
		if want >= end {
			return false
		}
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			walkErr = fmt.Errorf("audit: decode record %d: %w", want, err)
			return false
		}
		if rec.Sequence != want {
			walkErr = fmt.Errorf("record %d missing: %w", want, ErrChainBroken)
			return false
		}
		if err := fn(rec); err != nil {
			walkErr = err
			return false
		}
		want++
		return true
	})
	if err != nil {
		return fmt.Errorf("audit: iterate records: %w", err)
	}
	if walkErr != nil {
		return walkErr
	}
	if want < end {
		return fmt.Errorf("record %d missing: %w", want, ErrChainBroken)
	}
	return nil
}

func digest(prev [32]byte, rec Record) ([32]byte, error) {
	rec.Hash = ""
	payload, err := json.Marshal(rec)
	if err != nil {
		return [32]byte{}, fmt.Errorf("audit: encode record for hashing: %w", err)
	}
	buf := make([]byte, 0, len(prev)+len(payload))
	buf = append(buf, prev[:]...)
	buf = append(buf, payload...)
	return blake3.Sum256(buf), nil
}

func decodeHash(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("hash must be %d bytes, got %s", len(out), strconv.Itoa(len(raw)))
	}
	copy(out[:], raw)
	return out, nil
}
