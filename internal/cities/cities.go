// Package cities loads the city label -> search-API identifier table.
package cities

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type City struct {
	Name string
	ID   int64
}

// Table keeps cities in file order.
type Table struct {
	cities []City
	byName map[string]int64
}

// Load reads a YAML or JSON mapping of city label to numeric id.
func Load(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read city table: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Table, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse city table: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, errors.New("city table is empty")
	}
	m := doc.Content[0]
	if m.Kind != yaml.MappingNode {
		return nil, errors.New("city table must be a mapping of name to id")
	}
	t := &Table{byName: make(map[string]int64, len(m.Content)/2)}
	for i := 0; i+1 < len(m.Content); i += 2 {
		name := strings.TrimSpace(m.Content[i].Value)
		raw := strings.TrimSpace(m.Content[i+1].Value)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("city %q: invalid id %q", name, raw)
		}
		if name == "" {
			return nil, fmt.Errorf("empty city name at line %d", m.Content[i].Line)
		}
		if _, dup := t.byName[name]; dup {
			return nil, fmt.Errorf("duplicate city %q", name)
		}
		t.byName[name] = id
		t.cities = append(t.cities, City{Name: name, ID: id})
	}
	if len(t.cities) == 0 {
		return nil, errors.New("city table is empty")
	}
	return t, nil
}

// New builds a table from explicit entries (tests, embedded tables).
func New(cs ...City) *Table {
	t := &Table{byName: make(map[string]int64, len(cs))}
	for _, c := range cs {
		if _, dup := t.byName[c.Name]; dup {
			continue
		}
		t.byName[c.Name] = c.ID
		t.cities = append(t.cities, c)
	}
	return t
}

func (t *Table) Cities() []City {
	out := make([]City, len(t.cities))
	copy(out, t.cities)
	return out
}

func (t *Table) Lookup(name string) (int64, bool) {
	id, ok := t.byName[name]
	return id, ok
}

func (t *Table) Len() int { return len(t.cities) }
