package anonymize

import (
	"bytes"
	"regexp"
	"testing"

	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
	"github.com/rzbill/evstore/pkg/events"
	"github.com/stretchr/testify/require"
)

var hex32 = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestAnonymizeIsDeterministicAndFixedLength(t *testing.T) {
	salt := Salt{1, 2, 3}
	a, err := Resolve(events.AnonymizedValue("alice"), &salt)
	require.NoError(t, err)
	b, err := Resolve(events.AnonymizedValue("alice"), &salt)
	require.NoError(t, err)
	require.Equal(t, *a, *b)
	require.Regexp(t, hex32, *a)
	require.NotEqual(t, "alice", *a)

	other := Salt{9}
	c, err := Resolve(events.AnonymizedValue("alice"), &other)
	require.NoError(t, err)
	require.NotEqual(t, *a, *c, "different salts must not link")
}

func TestPublicRoundTrips(t *testing.T) {
	got, err := Resolve(events.PublicValue("alice"), nil)
	require.NoError(t, err)
	require.Equal(t, "alice", *got)

	got, err = Resolve(nil, nil)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestAnonymizeWithoutSalt(t *testing.T) {
	_, err := Resolve(events.AnonymizedValue("alice"), nil)
	require.ErrorIs(t, err, ErrSaltNotReady)
	require.True(t, NeedsSalt(&events.IdempotentEvent{Source: events.AnonymizedValue("x")}))
	require.False(t, NeedsSalt(&events.IdempotentEvent{User: events.PublicValue("x")}))
}

func TestBucket(t *testing.T) {
	in := []uint64{1001, 2150, 3299}
	cases := map[uint64][]uint64{
		100:  {1000, 2100, 3200},
		1000: {1000, 2000, 3000},
		0:    {1001, 2150, 3299},
	}
	for g, want := range cases {
		for i, ts := range in {
			require.Equal(t, want[i], Bucket(ts, g), "granularity %d ts %d", g, ts)
		}
	}
}

func TestSaltProviderInstallsOnce(t *testing.T) {
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	require.NoError(t, err)

	p, err := OpenSaltProvider(db)
	require.NoError(t, err)
	require.False(t, p.Ready())

	s, err := GenerateSalt(bytes.NewReader(bytes.Repeat([]byte{7}, SaltSize)))
	require.NoError(t, err)
	require.NoError(t, p.Install(s))
	require.ErrorIs(t, p.Install(Salt{}), ErrSaltAlreadySet)
	require.NoError(t, db.Close())

	db2, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close() })
	p2, err := OpenSaltProvider(db2)
	require.NoError(t, err)
	got, ok := p2.Get()
	require.True(t, ok)
	require.Equal(t, s, *got)
}

func TestGenerateSaltShortReader(t *testing.T) {
	_, err := GenerateSalt(bytes.NewReader([]byte{1, 2}))
	require.Error(t, err)
	s, err := GenerateSalt(nil)
	require.NoError(t, err)
	require.NotEqual(t, Salt{}, s)
}
