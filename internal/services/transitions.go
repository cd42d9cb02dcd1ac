package services

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	domain "github.com/northline-logistics/api/internal/domain"
)

// TransitionTable lists, per target status, the statuses an order may move from.
// A status without an entry accepts any predecessor; the zero value allows everything.
type TransitionTable struct {
	predecessors map[domain.OrderStatus]map[domain.OrderStatus]struct{}
}

type transitionFile struct {
	Transitions map[string][]string `yaml:"transitions"`
}

// LoadTransitionTable reads a YAML table from path. An empty path yields the unconstrained table.
//
//	transitions:
//	  pickup: [assigned]
//	  delivered: [intransit, pickup]
func LoadTransitionTable(path string) (TransitionTable, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return TransitionTable{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return TransitionTable{}, fmt.Errorf("transitions: read %s: %w", path, err)
	}
	return ParseTransitionTable(data)
}

// ParseTransitionTable decodes the YAML form and rejects unknown statuses.
func ParseTransitionTable(data []byte) (TransitionTable, error) {
	var file transitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return TransitionTable{}, fmt.Errorf("transitions: decode: %w", err)
	}
	table := TransitionTable{predecessors: make(map[domain.OrderStatus]map[domain.OrderStatus]struct{}, len(file.Transitions))}
	for target, froms := range file.Transitions {
		to := domain.OrderStatus(strings.TrimSpace(target))
		if !to.Valid() {
			return TransitionTable{}, fmt.Errorf("transitions: unknown status %q", target)
		}
		allowed := make(map[domain.OrderStatus]struct{}, len(froms))
		for _, raw := range froms {
			from := domain.OrderStatus(strings.TrimSpace(raw))
			if !from.Valid() {
				return TransitionTable{}, fmt.Errorf("transitions: unknown status %q under %q", raw, target)
			}
			allowed[from] = struct{}{}
		}
		table.predecessors[to] = allowed
	}
	return table, nil
}

// Allows reports whether an order in from may move to to.
func (t TransitionTable) Allows(from, to domain.OrderStatus) bool {
	allowed, constrained := t.predecessors[to]
	if !constrained {
		return true
	}
	_, ok := allowed[from]
	return ok
}
