// Package deployment persists the settings fixed when a data directory is
// first initialized: caller allow-lists, timestamp granularity and the
// removal switch.
package deployment

import (
	"encoding/json"
	"fmt"
	"slices"

	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
	"github.com/rzbill/evstore/pkg/events"
)

var initKey = []byte("deploy/init")

// InitArgs are written once and never changed.
type InitArgs struct {
	PushAllowlist   []string `json:"pushAllowlist"`
	ReadAllowlist   []string `json:"readAllowlist"`
	RemoveAllowlist []string `json:"removeAllowlist"`
	GranularityMs   uint64   `json:"granularityMs,omitempty"`
	RemovalEnabled  bool     `json:"removalEnabled"`
	CreatedAtMs     int64    `json:"createdAtMs"`
}

// CanPush reports whether caller may push events.
func (a InitArgs) CanPush(caller string) bool { return slices.Contains(a.PushAllowlist, caller) }

// CanRead reports whether caller may read events.
func (a InitArgs) CanRead(caller string) bool { return slices.Contains(a.ReadAllowlist, caller) }

// CanRemove reports whether caller may remove events. Always false unless
// removal was enabled at initialization.
func (a InitArgs) CanRemove(caller string) bool {
	return a.RemovalEnabled && slices.Contains(a.RemoveAllowlist, caller)
}

// Allowlists returns copies of the three lists.
func (a InitArgs) Allowlists() events.Allowlists {
	return events.Allowlists{
		Push:   slices.Clone(a.PushAllowlist),
		Read:   slices.Clone(a.ReadAllowlist),
		Remove: slices.Clone(a.RemoveAllowlist),
	}
}

// Equal reports whether two argument sets configure the same deployment,
// ignoring creation time.
func (a InitArgs) Equal(b InitArgs) bool {
	return slices.Equal(a.PushAllowlist, b.PushAllowlist) &&
		slices.Equal(a.ReadAllowlist, b.ReadAllowlist) &&
		slices.Equal(a.RemoveAllowlist, b.RemoveAllowlist) &&
		a.GranularityMs == b.GranularityMs &&
		a.RemovalEnabled == b.RemovalEnabled
}

// Ensure stores args if the data directory has none yet and returns the
// effective arguments. created is false when stored arguments were found;
// those win over args.
func Ensure(db *pebblestore.DB, args InitArgs, nowMs int64) (effective InitArgs, created bool, err error) {
	b, err := db.Get(initKey)
	switch {
	case err == nil:
		var stored InitArgs
		if err := json.Unmarshal(b, &stored); err != nil {
			return InitArgs{}, false, fmt.Errorf("deployment: corrupt init args: %w", err)
		}
		return stored, false, nil
	case !pebblestore.IsNotFound(err):
		return InitArgs{}, false, err
	}
	args.CreatedAtMs = nowMs
	raw, err := json.Marshal(args)
	if err != nil {
		return InitArgs{}, false, err
	}
	if err := db.Set(initKey, raw); err != nil {
		return InitArgs{}, false, err
	}
	return args, true, nil
}
