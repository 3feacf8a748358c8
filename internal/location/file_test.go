package location

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileProviderReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "location.json")
	p := NewFileProvider(path, nil, nil)
	defer p.Close()

	assert.Equal(t, Query{}, p.Read())

	require.NoError(t, p.Write(Query{"status": "failed", "page": "2"}, WriteOptions{Replace: true}))
	assert.Equal(t, Query{"status": "failed", "page": "2"}, p.Read())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"page": "2"`)
}

func TestFileProviderAcceptsJSONC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "location.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  // edited by hand
  "status": "failed",
  "page": 3,
  "platform": null,
}`), 0o644))

	p := NewFileProvider(path, nil, nil)
	assert.Equal(t, Query{"status": "failed", "page": "3", "platform": ""}, p.Read())
}

func TestFileProviderMalformedReadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "location.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"status": `), 0o644))

	p := NewFileProvider(path, nil, nil)
	assert.Equal(t, Query{}, p.Read())
}

func TestFileProviderNotifiesOnExternalEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "location.json")
	p := NewFileProvider(path, nil, nil)
	defer p.Close()

	changes := make(chan Query, 8)
	cancel := p.OnChange(func(q Query) { changes <- q })
	defer cancel()

	require.NoError(t, os.WriteFile(path, []byte(`{"status": "pending"}`), 0o644))

	select {
	case q := <-changes:
		assert.Equal(t, Query{"status": "pending"}, q)
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
	}

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}
