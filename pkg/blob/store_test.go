package blob

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRevoke(t *testing.T) {
	s := NewStore()

	h := s.Put([]byte("jpeg"))
	assert.True(t, strings.HasPrefix(string(h), "blob:"))
	assert.Equal(t, 1, s.Len())

	data, err := s.Get(h)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	s.Revoke(h)
	assert.Equal(t, 0, s.Len())

	_, err = s.Get(h)
	assert.Error(t, err)

	// second revoke is harmless
	s.Revoke(h)
}

func TestHandlesAreUnique(t *testing.T) {
	s := NewStore()
	a := s.Put(nil)
	b := s.Put(nil)
	assert.NotEqual(t, a, b)
}

func TestConcurrentPut(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Revoke(s.Put([]byte{1}))
			s.Put([]byte{2})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.Len())
}
