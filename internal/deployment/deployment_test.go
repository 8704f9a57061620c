package deployment

import (
	"testing"

	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
)

func TestEnsureIsWriteOnce(t *testing.T) {
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	first := InitArgs{PushAllowlist: []string{"p"}, GranularityMs: 1000}
	a1, created, err := Ensure(db, first, 42)
	if err != nil {
		t.Fatalf("ensure1: %v", err)
	}
	if !created || a1.CreatedAtMs != 42 {
		t.Fatalf("first ensure: created=%v args=%+v", created, a1)
	}

	a2, created, err := Ensure(db, InitArgs{PushAllowlist: []string{"other"}}, 99)
	if err != nil {
		t.Fatalf("ensure2: %v", err)
	}
	if created {
		t.Fatalf("second ensure must not overwrite")
	}
	if !a2.Equal(first) || a2.CreatedAtMs != 42 {
		t.Fatalf("stored args changed: %+v", a2)
	}
}

func TestPermissions(t *testing.T) {
	a := InitArgs{
		PushAllowlist:   []string{"producer"},
		ReadAllowlist:   []string{"reader"},
		RemoveAllowlist: []string{"admin"},
	}
	if !a.CanPush("producer") || a.CanPush("reader") {
		t.Fatalf("push permissions wrong")
	}
	if !a.CanRead("reader") || a.CanRead("") {
		t.Fatalf("read permissions wrong")
	}
	if a.CanRemove("admin") {
		t.Fatalf("remove must require the removal switch")
	}
	a.RemovalEnabled = true
	if !a.CanRemove("admin") {
		t.Fatalf("admin should remove once enabled")
	}
	lists := a.Allowlists()
	lists.Push[0] = "mutated"
	if a.PushAllowlist[0] != "producer" {
		t.Fatalf("Allowlists must return copies")
	}
}
