package counter

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/template"
)

// NameData holds variables available in the display name template.
type NameData struct {
	Label  string // configured label, e.g. "Members"
	Value  string // metric value, or the placeholder for new surfaces
	Icon   string // metric emoji
	Metric string // "total", "active", "voice" or "boosts"
}

// DisplayNamer renders display surface names.
type DisplayNamer struct {
	tmpl        *template.Template
	placeholder string
}

// NewDisplayNamer parses the name template.
func NewDisplayNamer(tmpl, placeholder string) (*DisplayNamer, error) {
	t, err := template.New("display").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("DISPLAY_NAME_TEMPLATE: %w", err)
	}
	return &DisplayNamer{tmpl: t, placeholder: placeholder}, nil
}

// Name renders the desired name for a binding showing value.
func (n *DisplayNamer) Name(b Binding, value int) (string, error) {
	return n.render(b, strconv.Itoa(value))
}

// Placeholder renders the name a freshly created surface starts with.
func (n *DisplayNamer) Placeholder(b Binding) (string, error) {
	return n.render(b, n.placeholder)
}

func (n *DisplayNamer) render(b Binding, value string) (string, error) {
	var buf bytes.Buffer
	data := NameData{
		Label:  b.Label,
		Value:  value,
		Icon:   b.Metric.Icon(),
		Metric: b.Metric.String(),
	}
	if err := n.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %q: %w", n.tmpl.Name(), err)
	}
	name := strings.TrimSpace(buf.String())
	if name == "" {
		return "", fmt.Errorf("render template %q: empty name", n.tmpl.Name())
	}
	return name, nil
}
