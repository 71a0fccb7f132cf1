// Package terminology loads the glossary shared with every chunk request.
package terminology

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ErrUnsupportedFormat is returned for files whose extension is not accepted.
var ErrUnsupportedFormat = errors.New("unsupported terminology format")

// structured maps accepted extensions to viper config types.
var structured = map[string]string{
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
}

// Load returns the raw content of path. A missing file yields an empty
// glossary. Structured formats are parsed once to reject malformed documents;
// the unparsed text is what gets sent.
func Load(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	configType, isStructured := structured[ext]
	if !isStructured && ext != ".txt" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- the glossary path is chosen by the operator.
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read terminology: %w", err)
	}

	if isStructured && len(bytes.TrimSpace(data)) > 0 {
		v := viper.New()
		v.SetConfigType(configType)
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return "", fmt.Errorf("parse terminology %s: %w", path, err)
		}
	}
	return string(data), nil
}
