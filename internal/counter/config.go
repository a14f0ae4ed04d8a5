// Package counter owns the per-community counter configuration and keeps the
// display surfaces' names in line with the latest statistics.
package counter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/developingchet/guild-counter-sync/internal/stats"
)

// MaxCounters is the number of label positions a configuration has.
const MaxCounters = stats.MetricCount

// MaxLabelLength bounds a label so the rendered name stays under the
// platform's 100 character channel name limit.
const MaxLabelLength = 80

// Config is one community's counter configuration.
//
// Labels are index-aligned to metrics: position 0 total, 1 active, 2 voice,
// 3 boosts. An empty label disables that counter. Slots holds one display
// surface per non-empty label, in label order.
type Config struct {
	GuildID    string
	Labels     [MaxCounters]string
	Slots      []string
	CategoryID string
}

// Binding ties one display surface to the label and metric it shows.
type Binding struct {
	Slot   string
	Label  string
	Metric stats.Metric
}

// ActiveLabels returns the number of non-empty labels.
func (c Config) ActiveLabels() int {
	n := 0
	for _, l := range c.Labels {
		if l != "" {
			n++
		}
	}
	return n
}

// Bindings pairs the k-th non-empty label with the k-th slot. A label with
// no slot left produces no binding.
func (c Config) Bindings() []Binding {
	out := make([]Binding, 0, len(c.Slots))
	k := 0
	for i, label := range c.Labels {
		if label == "" {
			continue
		}
		if k >= len(c.Slots) {
			break
		}
		out = append(out, Binding{Slot: c.Slots[k], Label: label, Metric: stats.Metric(i)})
		k++
	}
	return out
}

// Validate checks the structural invariants of a configuration.
func (c Config) Validate() error {
	if c.GuildID == "" {
		return fmt.Errorf("guild id is required")
	}
	if c.CategoryID == "" {
		return fmt.Errorf("category id is required")
	}
	for i, l := range c.Labels {
		if err := ValidateLabel(l); err != nil {
			return fmt.Errorf("label %d: %w", i+1, err)
		}
	}
	if n := c.ActiveLabels(); len(c.Slots) != n {
		return fmt.Errorf("slot count %d does not match %d non-empty labels", len(c.Slots), n)
	}
	seen := make(map[string]bool, len(c.Slots))
	for _, s := range c.Slots {
		if s == "" {
			return fmt.Errorf("empty slot id")
		}
		if seen[s] {
			return fmt.Errorf("duplicate slot id %s", s)
		}
		seen[s] = true
	}
	return nil
}

// ValidateLabel checks a single label. Empty labels are valid (disabled).
func ValidateLabel(l string) error {
	if l != strings.TrimSpace(l) {
		return fmt.Errorf("label %q has surrounding whitespace", l)
	}
	if utf8.RuneCountInString(l) > MaxLabelLength {
		return fmt.Errorf("label longer than %d characters", MaxLabelLength)
	}
	return nil
}

// without drops the given slots along with the labels bound to them, so the
// remaining slots keep their metrics.
func (c Config) without(slots map[string]bool) Config {
	out := Config{GuildID: c.GuildID, CategoryID: c.CategoryID}
	for _, b := range c.Bindings() {
		if slots[b.Slot] {
			continue
		}
		out.Labels[b.Metric] = b.Label
		out.Slots = append(out.Slots, b.Slot)
	}
	return out
}

func (c Config) clone() Config {
	out := c
	out.Slots = append([]string(nil), c.Slots...)
	return out
}
