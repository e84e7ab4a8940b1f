package sqlstore

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonesrussell/quartz/internal/domain"
)

var errNonStringValues = errors.New("job data map holds non-string values")

// JobDataSerializer converts a JobDataMap to and from its persisted BLOB
// form. The choice of serializer is store-wide and every cluster peer
// must use the same one.
type JobDataSerializer interface {
	Encode(data domain.JobDataMap) ([]byte, error)
	Decode(blob []byte) (domain.JobDataMap, error)
}

func init() {
	// Concrete types carried through the JobDataMap's any values.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(time.Time{})
	gob.Register(time.Duration(0))
}

// GobSerializer stores the map as an opaque gob blob. Values must be
// gob-encodable; custom types need gob.Register by the caller.
type GobSerializer struct{}

func (GobSerializer) Encode(data domain.JobDataMap) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(map[string]any(data)); err != nil {
		return nil, fmt.Errorf("encode job data: %w", err)
	}
	return buf.Bytes(), nil
}

func (GobSerializer) Decode(blob []byte) (domain.JobDataMap, error) {
	if len(blob) == 0 {
		return domain.JobDataMap{}, nil
	}
	var m map[string]any
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode job data: %w", err)
	}
	return domain.JobDataMap(m), nil
}

// PropertiesSerializer stores the map as sorted key=value text lines. It
// rejects non-string values, trading expressiveness for a representation
// readable from any language. Enabled by the useProperties setting.
type PropertiesSerializer struct{}

func (PropertiesSerializer) Encode(data domain.JobDataMap) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if !data.StringsOnly() {
		return nil, fmt.Errorf("encode job data as properties: %w", errNonStringValues)
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		v, _ := data[k].(string)
		fmt.Fprintf(&buf, "%s=%s\n", escapeProp(k), escapeProp(v))
	}
	return buf.Bytes(), nil
}

func (PropertiesSerializer) Decode(blob []byte) (domain.JobDataMap, error) {
	m := domain.JobDataMap{}
	sc := bufio.NewScanner(bytes.NewReader(blob))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		k, v, ok := cutUnescaped(line)
		if !ok {
			return nil, fmt.Errorf("decode job data properties: malformed line %q", line)
		}
		m[unescapeProp(k)] = unescapeProp(v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("decode job data properties: %w", err)
	}
	return m, nil
}

func escapeProp(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "=", `\=`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

func unescapeProp(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			if s[i] == 'n' {
				b.WriteByte('\n')
			} else {
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// cutUnescaped splits on the first '=' not preceded by a backslash.
func cutUnescaped(line string) (string, string, bool) {
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '=':
			return line[:i], line[i+1:], true
		}
	}
	return "", "", false
}
