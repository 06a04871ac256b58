package mp3_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/audiograph/mp3"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content []byte
		missing bool
	}{
		{name: "missing", missing: true},
		{name: "empty", content: []byte{}},
		{name: "text", content: []byte("this is definitely not an mp3 stream")},
		{name: "zeros", content: make([]byte, 4096)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := filepath.Join(dir, test.name+".mp3")
			if !test.missing {
				require.NoError(t, os.WriteFile(path, test.content, 0o600))
			}
			src, err := mp3.Open(path)
			assert.Error(t, err)
			assert.Nil(t, src)
			if test.missing {
				assert.ErrorIs(t, err, os.ErrNotExist)
			}
		})
	}
}
