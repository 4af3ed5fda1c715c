package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err, "Open should succeed against a fresh directory")

	t.Cleanup(func() { _ = s.Release() })

	return s
}

func TestPutGetDelete(t *testing.T) {
	s := openTestStore(t)

	iid := []byte("doc-1")

	_, err := s.Get(iid)
	require.ErrorIs(t, err, ErrNotFound, "Get should fail before any Put")

	err = s.Put(iid, []byte(`{"version":1}`))
	require.NoError(t, err, "Put should succeed")

	got, err := s.Get(iid)
	require.NoError(t, err, "Get should succeed after Put")
	assert.Equal(t, `{"version":1}`, string(got), "Get should return the exact bytes written")

	err = s.Delete(iid)
	require.NoError(t, err, "Delete should succeed")

	_, err = s.Get(iid)
	assert.ErrorIs(t, err, ErrNotFound, "Get should fail after Delete")
}

func TestSequenceNumberRoundTrip(t *testing.T) {
	s := openTestStore(t)

	sn, err := s.GetSN()
	require.NoError(t, err, "GetSN should succeed before any write")
	assert.Zero(t, sn, "sn should be 0 before any write")

	err = s.WriteSN(42)
	require.NoError(t, err, "WriteSN should succeed")

	sn, err = s.GetSN()
	require.NoError(t, err, "GetSN should succeed after WriteSN")
	assert.Equal(t, uint64(42), sn, "GetSN should return the last written sn")
}

func TestCount(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		err := s.Put([]byte{byte(i)}, []byte("x"))
		require.NoError(t, err, "Put %d should succeed", i)
	}

	n, err := s.Count()
	require.NoError(t, err, "Count should succeed")
	assert.Equal(t, uint64(5), n, "Count should match the number of documents put")
}

func TestFlushIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		assert.NoError(t, s.Flush(), "Flush %d should succeed", i)
	}
}
