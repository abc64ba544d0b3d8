package paper

import (
	"sort"
	"strconv"
	"strings"
)

// PartBSlots is the fixed order of Part B question numbers.
var PartBSlots = []string{"2", "3", "4", "5", "6", "7"}

// Group is one Part B slot: either a single compulsory question or an a/b choice.
type Group struct {
	QNo       string
	Members   []Question
	Singleton bool
	// Malformed is set when a bare label shares the slot with sub-labelled siblings.
	Malformed bool
}

// Rows returns the members that are rendered for the group, in a, b order.
func (g Group) Rows() []Question {
	if g.Singleton {
		return g.Members
	}
	var rows []Question
	for _, suffix := range []string{"a", "b"} {
		for _, m := range g.Members {
			if normalizeLabel(m.Label) == g.QNo+suffix {
				rows = append(rows, m)
				break
			}
		}
	}
	return rows
}

// SortPartA returns the Part A questions ordered by numeric label.
func SortPartA(questions []Question) []Question {
	out := make([]Question, 0, len(questions))
	for _, q := range questions {
		if q.Part == PartA {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ni, iok := labelNumber(out[i].Label)
		nj, jok := labelNumber(out[j].Label)
		switch {
		case iok && jok:
			return ni < nj
		case iok:
			return true
		default:
			return false
		}
	})
	return out
}

// GroupPartB collects the Part B questions into the six fixed slots. Slots without
// data come back empty; nothing here fails.
func GroupPartB(questions []Question) []Group {
	groups := make([]Group, 0, len(PartBSlots))
	for _, qNo := range PartBSlots {
		g := Group{QNo: qNo}
		bare := false
		for _, q := range questions {
			if q.Part != PartB {
				continue
			}
			switch normalizeLabel(q.Label) {
			case qNo:
				bare = true
				g.Members = append(g.Members, q)
			case qNo + "a", qNo + "b":
				g.Members = append(g.Members, q)
			}
		}
		g.Singleton = len(g.Members) == 1 && bare
		g.Malformed = bare && len(g.Members) > 1
		groups = append(groups, g)
	}
	return groups
}

// ORAfter reports whether an "OR" separator follows the group at index i of n.
func ORAfter(i, n int) bool {
	return i%2 == 0 && i < n-1
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

func labelNumber(label string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(label))
	return n, err == nil
}
