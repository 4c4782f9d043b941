// Package streamrip injects the selected ARL into streamrip's config.toml.
//
// The file must already contain a [deezer] table; only its arl value is
// rewritten, byte for byte everything else in the file is kept.
package streamrip

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"
)

// ConfigFile is streamrip's config file name inside its config directory.
const ConfigFile = "config.toml"

// ErrNoDeezerTable is returned when the config has no [deezer] table.
var ErrNoDeezerTable = errors.New("config file does not contain deezer table")

// DefaultPath returns streamrip's platform default config file path.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("determine config directory: %w", err)
	}
	return filepath.Join(base, "streamrip", ConfigFile), nil
}

// Resolve returns the config file to patch. An empty override selects
// DefaultPath. Otherwise override may name the file itself, a directory
// holding config.toml, or a glob pattern (doublestar syntax) that must match
// exactly one file.
func Resolve(override string) (string, error) {
	if override == "" {
		return DefaultPath()
	}

	if info, err := os.Stat(override); err == nil {
		if info.IsDir() {
			return filepath.Join(override, ConfigFile), nil
		}
		return override, nil
	}

	if !doublestar.ValidatePathPattern(override) {
		return "", fmt.Errorf("config path %s does not exist", override)
	}
	matches, err := doublestar.FilepathGlob(override, doublestar.WithFilesOnly())
	if err != nil {
		return "", fmt.Errorf("glob %s: %w", override, err)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("config path %s does not exist", override)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("config pattern %s is ambiguous: %d matches", override, len(matches))
	}
}

// Patch sets deezer.arl in the TOML file at path and rewrites it atomically.
// Only the bytes of the existing arl value change; when the key is missing it
// is inserted on the line after the [deezer] header.
func Patch(path, arl string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the user
	if err != nil {
		return fmt.Errorf("read streamrip config: %w", err)
	}

	out, err := setARL(data, arl)
	if err != nil {
		return err
	}

	// The edit must leave a document that decodes to the new value.
	var check config
	if err := toml.Unmarshal(out, &check); err != nil {
		return fmt.Errorf("patched streamrip config is invalid: %w", err)
	}
	if check.Deezer.ARL != arl {
		return fmt.Errorf("patched streamrip config has deezer.arl %q", check.Deezer.ARL)
	}

	mode := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, out, mode); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename streamrip config: %w", err)
	}
	return nil
}

// setARL returns data with deezer.arl set to arl. It locates the [deezer]
// header and the arl value with the TOML parser and splices raw bytes, so
// comments, ordering and quoting elsewhere are untouched.
func setARL(data []byte, arl string) ([]byte, error) {
	var (
		p         unstable.Parser
		table     []string
		headerEnd = -1
		value     *unstable.Range
	)
	p.Reset(data)
	for p.NextExpression() {
		expr := p.Expression()
		switch expr.Kind {
		case unstable.Table, unstable.ArrayTable:
			table = keyPath(expr.Key())
			if expr.Kind == unstable.Table && pathEqual(table, "deezer") {
				if headerEnd >= 0 {
					return nil, errors.New("parse streamrip config: duplicate [deezer] table")
				}
				headerEnd = lastKeyEnd(expr.Key())
			}
			if expr.Kind == unstable.ArrayTable {
				// Keys under [[...]] never address deezer.arl.
				table = append(table, "[]")
			}
		case unstable.KeyValue:
			full := append(append([]string(nil), table...), keyPath(expr.Key())...)
			if !pathEqual(full, "deezer", "arl") {
				continue
			}
			v := expr.Value()
			if v.Kind != unstable.String {
				return nil, fmt.Errorf("streamrip config: deezer.arl is a %s, not a string", v.Kind)
			}
			r := v.Raw
			value = &r
		}
	}
	if err := p.Error(); err != nil {
		return nil, fmt.Errorf("parse streamrip config: %w", err)
	}
	if headerEnd < 0 {
		return nil, ErrNoDeezerTable
	}

	quoted := quote(arl)
	var b bytes.Buffer
	b.Grow(len(data) + len(quoted) + 8)
	if value != nil {
		start := int(value.Offset)
		end := start + int(value.Length)
		b.Write(data[:start])
		b.WriteString(quoted)
		b.Write(data[end:])
		return b.Bytes(), nil
	}

	// Insert after the header line, keeping its line ending.
	eol := "\n"
	insertAt := len(data)
	if i := bytes.IndexByte(data[headerEnd:], '\n'); i >= 0 {
		insertAt = headerEnd + i + 1
		if i > 0 && data[headerEnd+i-1] == '\r' {
			eol = "\r\n"
		}
	}
	b.Write(data[:insertAt])
	if insertAt == len(data) && (len(data) == 0 || data[len(data)-1] != '\n') {
		b.WriteString(eol)
	}
	b.WriteString("arl = " + quoted + eol)
	b.Write(data[insertAt:])
	return b.Bytes(), nil
}

// keyPath collects the parts of a (possibly dotted) key.
func keyPath(it unstable.Iterator) []string {
	var parts []string
	for it.Next() {
		parts = append(parts, string(it.Node().Data))
	}
	return parts
}

// lastKeyEnd returns the offset just past the last part of a key.
func lastKeyEnd(it unstable.Iterator) int {
	end := 0
	for it.Next() {
		r := it.Node().Raw
		end = int(r.Offset + r.Length)
	}
	return end
}

func pathEqual(path []string, want ...string) bool {
	if len(path) != len(want) {
		return false
	}
	for i := range path {
		if path[i] != want[i] {
			return false
		}
	}
	return true
}

// quote renders s as a TOML basic string.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

type config struct {
	Deezer struct {
		ARL string `toml:"arl"`
	} `toml:"deezer"`
}

// Current returns the deezer.arl value currently in the file, or "" if unset.
func Current(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the user
	if err != nil {
		return "", fmt.Errorf("read streamrip config: %w", err)
	}
	var doc config
	if err := toml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse streamrip config: %w", err)
	}
	return doc.Deezer.ARL, nil
}
