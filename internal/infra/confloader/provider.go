package confloader

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/v2"
)

// ErrReadBytesNotSupported is returned when ReadBytes is called on a map provider.
var ErrReadBytesNotSupported = errors.New("confloader: ReadBytes not supported by map provider, use Read() instead")

// mapProvider is a koanf provider over an in-memory map.
type mapProvider map[string]any

// ReadBytes returns an error as map provider doesn't support byte serialization.
func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, ErrReadBytesNotSupported
}

// Read returns the configuration map.
func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}

// tomlParser is a koanf.Parser backed by BurntSushi/toml.
type tomlParser struct{}

// TOML returns the TOML parser.
func TOML() koanf.Parser {
	return tomlParser{}
}

func (tomlParser) Unmarshal(b []byte) (map[string]any, error) {
	out := make(map[string]any)
	if _, err := toml.Decode(string(b), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (tomlParser) Marshal(m map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParserFor picks the parser for a configuration file by its extension.
// JSON is read by the YAML parser.
func ParserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
		return yaml.Parser(), nil
	case ".toml":
		return TOML(), nil
	default:
		return nil, errors.New("confloader: unsupported config file extension " + ext)
	}
}
