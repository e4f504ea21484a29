// internal/rules/load.go
package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/solatis/inboxkeeper/internal/types"
)

/*
 * Rule set loading.
 *
 * Reads the {"rules": [...]} document from JSON (.json), YAML (.yaml,
 * .yml) or TOML (.toml, one [[rules]] table per rule). YAML and TOML are
 * decoded to a generic tree and re-encoded as JSON so every format shares
 * the JSON decoding rules in internal/types (legacy keys, bare-string
 * actions).
 *
 * Load errors are returned to the caller wrapped around a sentinel from
 * internal/types; the engine never sees a partially decoded set.
 */

// Format is a rule file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath infers the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", types.ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// LoadRuleSet reads and decodes a rule file.
func LoadRuleSet(path string) (types.RuleSet, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return types.RuleSet{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.RuleSet{}, fmt.Errorf("%w: %s", types.ErrRuleSetNotFound, path)
		}
		return types.RuleSet{}, fmt.Errorf("failed to read rule set: %w", err)
	}
	return ParseRuleSet(data, format)
}

// LoadRuleSetOrEmpty is LoadRuleSet but returns an empty set when the file
// does not exist.
func LoadRuleSetOrEmpty(path string) (types.RuleSet, error) {
	rs, err := LoadRuleSet(path)
	if errors.Is(err, types.ErrRuleSetNotFound) {
		return types.RuleSet{}, nil
	}
	return rs, err
}

// ParseRuleSet decodes a rule document.
func ParseRuleSet(data []byte, format Format) (types.RuleSet, error) {
	var rs types.RuleSet

	switch format {
	case FormatJSON:
	case FormatYAML:
		var tree any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return rs, fmt.Errorf("%w: %v", types.ErrMalformedRuleSet, err)
		}
		converted, err := json.Marshal(tree)
		if err != nil {
			return rs, fmt.Errorf("%w: %v", types.ErrMalformedRuleSet, err)
		}
		data = converted
	case FormatTOML:
		var tree map[string]any
		if _, err := toml.Decode(string(data), &tree); err != nil {
			return rs, fmt.Errorf("%w: %v", types.ErrMalformedRuleSet, err)
		}
		if len(tree) == 0 {
			return rs, nil
		}
		converted, err := json.Marshal(tree)
		if err != nil {
			return rs, fmt.Errorf("%w: %v", types.ErrMalformedRuleSet, err)
		}
		data = converted
	default:
		return rs, fmt.Errorf("%w: %q", types.ErrUnsupportedFormat, format)
	}

	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return rs, nil
	}
	if err := json.Unmarshal(data, &rs); err != nil {
		return types.RuleSet{}, fmt.Errorf("%w: %v", types.ErrMalformedRuleSet, err)
	}
	return rs, nil
}
