// Package interner maps strings to dense, stable uint32 ids and back.
//
// Ids are assigned sequentially in first-seen order, persisted in both
// directions, and never reused or removed for the life of a deployment.
package interner

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cockroachdb/pebble"
	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
)

var (
	strPrefix = []byte("intern/s/")
	numPrefix = []byte("intern/n/")
)

// ErrFull is returned when every uint32 id has been assigned.
var ErrFull = errors.New("interner: id space exhausted")

func strKey(s string) []byte {
	return append(append(make([]byte, 0, len(strPrefix)+len(s)), strPrefix...), s...)
}

func numKey(id uint32) []byte {
	return binary.BigEndian.AppendUint32(append(make([]byte, 0, len(numPrefix)+4), numPrefix...), id)
}

// Interner is not safe for concurrent use; the store runtime serializes access.
type Interner struct {
	db    *pebblestore.DB
	toID  map[string]uint32
	toStr []string

	// assignments staged in a batch that has not committed yet
	pending    map[string]uint32
	pendingStr []string
}

// Open loads the table from db.
func Open(db *pebblestore.DB) (*Interner, error) {
	in := &Interner{db: db, toID: map[string]uint32{}, pending: map[string]uint32{}}
	err := db.ScanPrefix(numPrefix, func(k, v []byte) error {
		id := binary.BigEndian.Uint32(k[len(numPrefix):])
		if int(id) != len(in.toStr) {
			return fmt.Errorf("interner: gap in id sequence at %d", id)
		}
		s := string(v)
		in.toStr = append(in.toStr, s)
		in.toID[s] = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return in, nil
}

// Stage returns the id for s, writing a new assignment into b when s has not
// been seen. Call Commit after b commits or Rollback if it does not.
func (in *Interner) Stage(b *pebble.Batch, s string) (uint32, error) {
	if id, ok := in.toID[s]; ok {
		return id, nil
	}
	if id, ok := in.pending[s]; ok {
		return id, nil
	}
	next := len(in.toStr) + len(in.pendingStr)
	if uint64(next) > math.MaxUint32 {
		return 0, ErrFull
	}
	id := uint32(next)
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], id)
	if err := b.Set(strKey(s), v[:], nil); err != nil {
		return 0, err
	}
	if err := b.Set(numKey(id), []byte(s), nil); err != nil {
		return 0, err
	}
	in.pending[s] = id
	in.pendingStr = append(in.pendingStr, s)
	return id, nil
}

// Commit publishes staged assignments.
func (in *Interner) Commit() {
	for _, s := range in.pendingStr {
		in.toID[s] = in.pending[s]
		in.toStr = append(in.toStr, s)
	}
	in.Rollback()
}

// Rollback forgets staged assignments.
func (in *Interner) Rollback() {
	if len(in.pendingStr) == 0 {
		return
	}
	in.pending = map[string]uint32{}
	in.pendingStr = in.pendingStr[:0]
}

// ToNum returns the id of s, assigning and persisting one if needed.
func (in *Interner) ToNum(ctx context.Context, s string) (uint32, error) {
	if id, ok := in.toID[s]; ok {
		return id, nil
	}
	b := in.db.NewBatch()
	defer b.Close()
	id, err := in.Stage(b, s)
	if err != nil {
		in.Rollback()
		return 0, err
	}
	if err := in.db.CommitBatch(ctx, b); err != nil {
		in.Rollback()
		return 0, err
	}
	in.Commit()
	return id, nil
}

// ToString returns the string for id. A miss means the stored reference is
// corrupt; callers substitute a sentinel.
func (in *Interner) ToString(id uint32) (string, bool) {
	if int64(id) >= int64(len(in.toStr)) {
		return "", false
	}
	return in.toStr[id], true
}

// Len returns the number of committed entries.
func (in *Interner) Len() int { return len(in.toStr) }
