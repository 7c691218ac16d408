// Package source enumerates sample source files and parses their contents.
package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultDir is the folder sources are read from when none is configured.
const DefaultDir = "adc_data"

// Extension is the suffix every source file carries.
const Extension = ".txt"

// SampleKey marks a sample record inside a source file.
const SampleKey = "ADC:"

// ErrNotFound is returned by Content for an unknown identifier.
var ErrNotFound = errors.New("source: not found")

// Catalog lists source identifiers in transmission order and returns the
// bytes for each one.
type Catalog interface {
	List(ctx context.Context) ([]string, error)
	Content(ctx context.Context, id string) ([]byte, error)
}

// Dir is a Catalog over the .txt files of one directory, listed in lexical
// order. Subdirectories are ignored.
type Dir struct {
	Path string
}

func NewDir(path string) *Dir {
	if path == "" {
		path = DefaultDir
	}
	return &Dir{Path: path}
}

func (d *Dir) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, fmt.Errorf("source: list %s: %w", d.Path, err)
	}
	var ids []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

func (d *Dir) Content(_ context.Context, id string) ([]byte, error) {
	if id != filepath.Base(id) {
		return nil, fmt.Errorf("source: %q: %w", id, ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(d.Path, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("source: %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("source: read %q: %w", id, err)
	}
	return data, nil
}

// Memory is an in-memory Catalog. Identifiers keep insertion order.
type Memory struct {
	ids  []string
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Add stores content under id, replacing any previous value.
func (m *Memory) Add(id string, content []byte) *Memory {
	if _, ok := m.data[id]; !ok {
		m.ids = append(m.ids, id)
	}
	m.data[id] = content
	return m
}

func (m *Memory) List(context.Context) ([]string, error) {
	return append([]string(nil), m.ids...), nil
}

func (m *Memory) Content(_ context.Context, id string) ([]byte, error) {
	data, ok := m.data[id]
	if !ok {
		return nil, fmt.Errorf("source: %q: %w", id, ErrNotFound)
	}
	return data, nil
}

// FrequencyTag is the marker a source name carries for a test frequency.
func FrequencyTag(freq string) string {
	return "hz" + freq
}

// MatchFrequency returns the first identifier containing the frequency tag.
func MatchFrequency(ids []string, freq string) (string, bool) {
	if freq == "" {
		return "", false
	}
	tag := FrequencyTag(freq)
	for _, id := range ids {
		if strings.Contains(id, tag) {
			return id, true
		}
	}
	return "", false
}

// ParseSamples extracts the integer after the last SampleKey on every line
// that contains one. Lines without the key are ignored; lines with the key
// but no parsable integer are skipped and counted.
func ParseSamples(content []byte) (samples []int64, skipped int) {
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 4096), len(content)+1)
	for sc.Scan() {
		line := sc.Text()
		i := strings.LastIndex(line, SampleKey)
		if i < 0 {
			continue
		}
		v, err := strconv.ParseInt(strings.TrimSpace(line[i+len(SampleKey):]), 10, 64)
		if err != nil {
			skipped++
			continue
		}
		samples = append(samples, v)
	}
	return samples, skipped
}
