package providers

import (
	"strings"
)

// DisabledPrefix marks an order entry that keeps its position but is skipped.
const DisabledPrefix = "d_"

// DefaultOrder is the built-in priority list. Every entry is mandatory in a
// custom ordering.
var DefaultOrder = []SourceID{
	SourceTTMLWord,
	SourceKugouSynced,
	SourceLRCLibSynced,
	SourceLegacySynced,
	SourceLocalSynced,
	SourceTTMLLine,
	SourceLRCLibPlain,
	SourceHostPlain,
}

// OrderEntry is one position in the priority list.
type OrderEntry struct {
	Source   SourceID `json:"source"`
	Disabled bool     `json:"disabled,omitempty"`
}

func (e OrderEntry) String() string {
	if e.Disabled {
		return DisabledPrefix + string(e.Source)
	}
	return string(e.Source)
}

// ParseOrderEntry reads "source" or "d_source".
func ParseOrderEntry(raw string) OrderEntry {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, DisabledPrefix) {
		return OrderEntry{Source: SourceID(strings.TrimPrefix(raw, DisabledPrefix)), Disabled: true}
	}
	return OrderEntry{Source: SourceID(raw)}
}

// DefaultEntries returns DefaultOrder with every entry enabled.
func DefaultEntries() []OrderEntry {
	out := make([]OrderEntry, len(DefaultOrder))
	for i, id := range DefaultOrder {
		out[i] = OrderEntry{Source: id}
	}
	return out
}

// ValidateOrder returns the effective priority list for a custom ordering.
// An empty custom list yields the default. A list that names an unknown
// source, repeats a source, or drops a built-in source is rejected and the
// default is returned with rejected set.
func ValidateOrder(custom []string) (order []OrderEntry, rejected bool) {
	if len(custom) == 0 {
		return DefaultEntries(), false
	}

	known := make(map[SourceID]bool, len(DefaultOrder))
	for _, id := range DefaultOrder {
		known[id] = true
	}

	seen := make(map[SourceID]bool, len(custom))
	order = make([]OrderEntry, 0, len(custom))
	for _, raw := range custom {
		entry := ParseOrderEntry(raw)
		if !known[entry.Source] || seen[entry.Source] {
			return DefaultEntries(), true
		}
		seen[entry.Source] = true
		order = append(order, entry)
	}

	if len(seen) != len(known) {
		return DefaultEntries(), true
	}
	return order, false
}

// Enabled returns the sources of order that are not disabled, in order.
func Enabled(order []OrderEntry) []SourceID {
	out := make([]SourceID, 0, len(order))
	for _, e := range order {
		if !e.Disabled {
			out = append(out, e.Source)
		}
	}
	return out
}

// OrderStrings renders order back to its configuration form.
func OrderStrings(order []OrderEntry) []string {
	out := make([]string, len(order))
	for i, e := range order {
		out[i] = e.String()
	}
	return out
}
