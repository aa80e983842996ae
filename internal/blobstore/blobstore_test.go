package blobstore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	key, err := s.Put(ctx, "proformas", "../../etc/Quote.PDF", "application/pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "proformas/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))

	obj, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Quote.PDF", obj.Filename)
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.Equal(t, int64(8), obj.Size)
	assert.Equal(t, []byte("%PDF-1.4"), obj.Data)

	obj.Data[0] = 'X'
	again, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, byte('%'), again.Data[0], "returned data is a copy")

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete(ctx, key))
}

func TestNewKeyIsUnique(t *testing.T) {
	a := NewKey("receipts", "r.png")
	b := NewKey("receipts", "r.png")
	assert.NotEqual(t, a, b)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"invoice.pdf":          "invoice.pdf",
		`C:\Users\me\scan.png`: "scan.png",
		"a\"b\nc.txt":          "abc.txt",
		"":                     "document",
		"/":                    "document",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}
