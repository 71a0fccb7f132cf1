package terminology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadKeepsRawText(t *testing.T) {
	t.Parallel()

	body := "cat = gato\ndog = perro\n"
	got, err := Load(write(t, "book_term.txt", body))
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	got, err := Load(filepath.Join(t.TempDir(), "none_term.txt"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadValidatesStructuredFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		body    string
		wantErr bool
	}{
		{name: "json", file: "t.json", body: `{"cat":"gato"}`},
		{name: "yaml", file: "t.yaml", body: "cat: gato\n"},
		{name: "yml", file: "t.YML", body: "cat: gato\n"},
		{name: "toml", file: "t.toml", body: "cat = \"gato\"\n"},
		{name: "empty json", file: "t.json", body: "  \n"},
		{name: "broken json", file: "t.json", body: `{"cat":`, wantErr: true},
		{name: "broken toml", file: "t.toml", body: "cat = = gato", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Load(write(t, tt.file, tt.body))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.body, got)
		})
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	t.Parallel()

	_, err := Load(write(t, "glossary.csv", "a,b"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}
