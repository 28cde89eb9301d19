package blob

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLifecycle(t *testing.T) {
	s := NewStore("reelsaver://background/")
	data := []byte{0x00, 0x01, 0x02}

	url := s.Create(data, "video/mp4")
	assert.True(t, strings.HasPrefix(url, "blob:reelsaver://background/"))
	assert.True(t, IsBlobURL(url))
	assert.Equal(t, 1, s.Len())

	b, ok := s.Resolve(url)
	require.True(t, ok)
	assert.Equal(t, data, b.Data)
	assert.Equal(t, "video/mp4", b.Type)
	assert.Equal(t, 3, b.Size())

	s.Revoke(url)
	_, ok = s.Resolve(url)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())

	// second revoke is harmless
	s.Revoke(url)
	assert.Equal(t, 0, s.Len())
}

func TestStoreURLsAreUnique(t *testing.T) {
	s := NewStore("x")
	a := s.Create(nil, "video/mp4")
	b := s.Create(nil, "video/mp4")
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, s.Len())
}

func TestIsBlobURL(t *testing.T) {
	assert.False(t, IsBlobURL("https://example.com/video.mp4"))
	assert.False(t, IsBlobURL(""))
}
