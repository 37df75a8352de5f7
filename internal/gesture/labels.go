package gesture

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// maxClassIndex bounds label map indices so a stray key cannot force a huge
// allocation.
const maxClassIndex = 4096

// LabelMap maps classifier output indices to gesture labels. Lookups by
// label are case-insensitive.
type LabelMap struct {
	labels []string
	index  map[string]int
}

// NewLabelMap builds a LabelMap where labels[i] is class i. Blank entries
// are kept as gaps and never match a lookup.
func NewLabelMap(labels []string) *LabelMap {
	m := &LabelMap{
		labels: append([]string(nil), labels...),
		index:  make(map[string]int, len(labels)),
	}
	for i, l := range m.labels {
		key := foldLabel(l)
		if key == "" {
			continue
		}
		if _, dup := m.index[key]; !dup {
			m.index[key] = i
		}
	}
	return m
}

// ParseLabelMap parses a JSON object of string-encoded class indices to
// labels, e.g. {"0":"fist","1":"open_palm"}. Malformed entries are skipped.
// When the document itself cannot be parsed an empty map is returned along
// with the error.
func ParseLabelMap(data []byte) (*LabelMap, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return NewLabelMap(nil), fmt.Errorf("parse label map: %w", err)
	}

	type entry struct {
		index int
		label string
	}
	var entries []entry
	size := 0
	for k, v := range raw {
		i, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || i < 0 || i > maxClassIndex {
			continue
		}
		var label string
		if err := json.Unmarshal(v, &label); err != nil || strings.TrimSpace(label) == "" {
			continue
		}
		entries = append(entries, entry{index: i, label: label})
		if i+1 > size {
			size = i + 1
		}
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].index < entries[b].index })

	labels := make([]string, size)
	for _, e := range entries {
		labels[e.index] = e.label
	}
	return NewLabelMap(labels), nil
}

// LoadLabelMap reads and parses a label map file.
func LoadLabelMap(path string) (*LabelMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewLabelMap(nil), fmt.Errorf("read label map: %w", err)
	}
	return ParseLabelMap(data)
}

// Labels returns the labels in class index order.
func (m *LabelMap) Labels() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.labels...)
}

// Len returns the number of classes.
func (m *LabelMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.labels)
}

// Index returns the class index of label.
func (m *LabelMap) Index(label string) (int, bool) {
	if m == nil {
		return 0, false
	}
	i, ok := m.index[foldLabel(label)]
	return i, ok
}

// Label returns the label of class i, or its decimal index when unknown.
func (m *LabelMap) Label(i int) string {
	if m != nil && i >= 0 && i < len(m.labels) && m.labels[i] != "" {
		return m.labels[i]
	}
	return strconv.Itoa(i)
}

// MarshalJSON encodes the map in the label file format.
func (m *LabelMap) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, m.Len())
	for i, l := range m.Labels() {
		if l != "" {
			out[strconv.Itoa(i)] = l
		}
	}
	return json.Marshal(out)
}

func foldLabel(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
