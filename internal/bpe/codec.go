package bpe

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// CheckpointSuffix is appended to the output path for mid-training snapshots.
const CheckpointSuffix = ".checkpoint"

// FormatPairKey renders p as the persisted key "left,right".
func FormatPairKey(p Pair) string {
	return p.String()
}

// ParsePairKey parses a "left,right" key. Both parts must be plain decimal
// non-negative integers.
func ParsePairKey(key string) (Pair, error) {
	parts := strings.Split(key, ",")
	if len(parts) != 2 {
		return Pair{}, malformed("invalid pair key %q", key)
	}
	var vals [2]int
	for i, part := range parts {
		if part == "" || strings.TrimLeft(part, "0123456789") != "" {
			return Pair{}, malformed("invalid pair key %q", key)
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return Pair{}, malformed("invalid pair key %q: %v", key, err)
		}
		vals[i] = v
	}
	return Pair{Left: vals[0], Right: vals[1]}, nil
}

// WriteTable writes t as a JSON object of "left,right" keys to ids, one
// entry per line, in id order.
func WriteTable(w io.Writer, t *MergeTable) error {
	bw := bufio.NewWriter(w)
	if t.Len() == 0 {
		bw.WriteString("{}\n")
		return bw.Flush()
	}
	bw.WriteString("{\n")
	for i, r := range t.rules {
		fmt.Fprintf(bw, "  %q: %d", FormatPairKey(r.Pair), r.ID)
		if i < len(t.rules)-1 {
			bw.WriteByte(',')
		}
		bw.WriteByte('\n')
	}
	bw.WriteString("}\n")
	return bw.Flush()
}

// ReadTable parses a table written by WriteTable. Entries may appear in
// any order; duplicate keys, unparsable keys, non-integer ids and gaps or
// repeats in the id sequence are all rejected.
func ReadTable(r io.Reader) (*MergeTable, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, malformed("invalid merge table: %v", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, malformed("merge table must be a JSON object")
	}

	seen := make(map[string]bool)
	var rules []Rule
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, malformed("invalid merge table: %v", err)
		}
		key, _ := keyTok.(string)
		if seen[key] {
			return nil, malformed("duplicate pair key %q", key)
		}
		seen[key] = true

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, malformed("invalid value for %q: %v", key, err)
		}
		id, err := strconv.Atoi(string(raw))
		if err != nil {
			return nil, malformed("id for %q is not an integer: %s", key, raw)
		}
		pair, err := ParsePairKey(key)
		if err != nil {
			return nil, err
		}
		rules = append(rules, Rule{Pair: pair, ID: id})
	}
	if _, err := dec.Token(); err != nil {
		return nil, malformed("invalid merge table: %v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, malformed("trailing data after merge table")
	}

	sort.SliceStable(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	t := NewMergeTable()
	for _, rule := range rules {
		if err := t.Insert(rule.Pair, rule.ID); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// MarshalJSON implements json.Marshaler using the persisted format.
func (t *MergeTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler with ReadTable's validation.
func (t *MergeTable) UnmarshalJSON(data []byte) error {
	parsed, err := ReadTable(bytes.NewReader(data))
	if err != nil {
		return err
	}
	*t = *parsed
	return nil
}

// SaveTable writes t to path atomically: the data goes to a temporary file
// in the same directory which is then renamed over path.
func SaveTable(path string, t *MergeTable) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ioError("failed to create output directory", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return ioError("failed to create temporary file", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err := WriteTable(tmp, t); err != nil {
		cleanup()
		return ioError("failed to write merge table", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return ioError("failed to sync merge table", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return ioError("failed to close merge table", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return ioError("failed to replace merge table", err)
	}
	return nil
}

// LoadTable reads a table from path.
func LoadTable(path string) (*MergeTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioError(fmt.Sprintf("failed to open merge table %s", path), err)
	}
	defer f.Close()

	t, err := ReadTable(f)
	if err != nil {
		var bpeErr *Error
		if errors.As(err, &bpeErr) {
			bpeErr.Message = path + ": " + bpeErr.Message
		}
		return nil, err
	}
	return t, nil
}

// Checksum returns the hex SHA-256 of t's persisted form.
func Checksum(t *MergeTable) string {
	h := sha256.New()
	WriteTable(h, t)
	return hex.EncodeToString(h.Sum(nil))
}
