package hugorm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v2"
)

// ConfigParseError wraps a failure to parse a configuration file,
// naming the underlying decoder error without losing it.
type ConfigParseError struct {
	err error
}

func (pe ConfigParseError) Error() string {
	return fmt.Sprintf("hugorm: parsing config: %s", pe.err)
}

func (pe ConfigParseError) Unwrap() error { return pe.err }

// osFS reads config files straight off the local filesystem; File.Load
// always reads through it.
type osFS struct{}

func (osFS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// inMem is a config source whose values were decoded from a reader
// the caller supplied (AddConfigFrom) rather than read from a file.
type inMem struct {
	values map[string]interface{}
}

func (c *inMem) Values() map[string]interface{} {
	return deepCopyMap(c.values, false)
}

// File is a config source backed by a single file of a known format
// (yaml, json, or toml).
type File struct {
	filetype string
	filename string
	values   map[string]interface{}
}

func (c *File) Values() map[string]interface{} {
	return deepCopyMap(c.values, false)
}

// Load reads and decodes the file, replacing any previously loaded
// values. Call it again to pick up changes. (config.Watcher reloads
// on every write event by calling config.Load, which builds a fresh
// File and loads it.)
func (c *File) Load() error {
	data, err := (osFS{}).ReadFile(c.filename)
	if err != nil {
		return err
	}

	values := make(map[string]interface{})
	if err := unmarshalReader(c.filetype, bytes.NewReader(data), values); err != nil {
		return err
	}
	c.values = values
	return nil
}

// unmarshalReader decodes in according to format into c, wrapping any
// decoder error as a ConfigParseError so callers can distinguish a
// malformed config file from an I/O failure.
func unmarshalReader(format string, in io.Reader, c map[string]interface{}) error {
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(in); err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(buf.Bytes(), &c); err != nil {
			return ConfigParseError{err}
		}
	case "json":
		if err := json.Unmarshal(buf.Bytes(), &c); err != nil {
			return ConfigParseError{err}
		}
	case "toml":
		tree, err := toml.LoadReader(buf)
		if err != nil {
			return ConfigParseError{err}
		}
		for k, v := range tree.ToMap() {
			c[k] = v
		}
	default:
		return ConfigParseError{fmt.Errorf("unsupported config format %q", format)}
	}
	return nil
}
