// Package output renders command results for the terminal. Colour is used
// only when stdout is a terminal and colour was not switched off.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/tidwall/pretty"
	"golang.org/x/term"

	"github.com/yuya-takeyama/dtool-info/pkg/compare"
	"github.com/yuya-takeyama/dtool-info/pkg/dataset"
)

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type Printer struct {
	out   io.Writer
	err   io.Writer
	color bool

	red   lipgloss.Style
	green lipgloss.Style
	errRd lipgloss.Style
}

// New returns a Printer writing results to out and diagnostics to errw.
func New(out, errw io.Writer, noColor bool) *Printer {
	p := &Printer{
		out:   out,
		err:   errw,
		color: !noColor && IsTerminal(out),
	}
	r := lipgloss.NewRenderer(out)
	p.red = r.NewStyle().Foreground(lipgloss.Color("1"))
	p.green = r.NewStyle().Foreground(lipgloss.Color("2"))
	p.errRd = lipgloss.NewRenderer(errw).NewStyle().Foreground(lipgloss.Color("1"))
	return p
}

func (p *Printer) Out() io.Writer { return p.out }

func (p *Printer) paint(style lipgloss.Style, s string) string {
	if !p.color {
		return s
	}
	return style.Render(s)
}

func (p *Printer) Println(s string) {
	fmt.Fprintln(p.out, s)
}

// Errorln writes s to the diagnostics stream, in red where it is a terminal.
func (p *Printer) Errorln(s string) {
	if p.color && IsTerminal(p.err) {
		s = p.errRd.Render(s)
	}
	fmt.Fprintln(p.err, s)
}

// JSON writes v indented, syntax-highlighted when colour is on.
func (p *Printer) JSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return p.RawJSON(data)
}

// RawJSON reformats an already encoded JSON document.
func (p *Printer) RawJSON(data []byte) error {
	formatted := pretty.Pretty(data)
	if p.color {
		formatted = pretty.Color(formatted, nil)
	}
	_, err := p.out.Write(formatted)
	return err
}

// Diff prints the records of the stage a staged diff stopped at. Identical
// datasets print nothing.
func (p *Printer) Diff(r *compare.StagedResult, dsName, refName string) {
	switch r.Stage {
	case compare.IdentifiersDiffer:
		p.diffHeader("identifiers", dsName, refName, "present")
		for _, rec := range r.Identifiers {
			p.Println(fmt.Sprintf("%s, %s, %s", rec.Identifier, strconv.FormatBool(rec.InDataset), strconv.FormatBool(rec.InReference)))
		}
	case compare.SizesDiffer:
		p.diffHeader("sizes", dsName, refName, "size")
		for _, rec := range r.Sizes {
			p.Println(fmt.Sprintf("%s, %d, %d", rec.Identifier, rec.DatasetSize, rec.ReferenceSize))
		}
	case compare.ContentDiffers:
		p.diffHeader("content", dsName, refName, "hash")
		for _, rec := range r.Content {
			p.Println(fmt.Sprintf("%s, %s, %s", rec.Identifier, rec.DatasetHash, rec.ReferenceHash))
		}
	}
}

func (p *Printer) diffHeader(desc, dsName, refName, prop string) {
	p.Println(p.paint(p.red, "Different "+desc))
	p.Println(fmt.Sprintf("ID, %s in '%s', %s in '%s'", prop, dsName, prop, refName))
}

// Verification prints one red line per finding, or a green all-clear.
func (p *Printer) Verification(r *compare.VerificationResult) {
	if r.OK() {
		p.Println(p.paint(p.green, "All good :)"))
		return
	}
	groups := []struct {
		label   string
		entries []compare.Entry
	}{
		{"Unknown item", r.Unknown},
		{"Missing item", r.Missing},
		{"Altered item size", r.AlteredSize},
		{"Altered item", r.AlteredHash},
	}
	for _, g := range groups {
		for _, e := range g.entries {
			p.Println(p.paint(p.red, fmt.Sprintf("%s: %s %s", g.label, e.Identifier, e.Relpath)))
		}
	}
}

// DatasetList prints "<uuid> - <name> - <uri>" with names padded to a common
// width. Proto datasets are shown in red.
func (p *Printer) DatasetList(infos []dataset.Info) {
	width := 0
	for _, info := range infos {
		if len(info.Name) > width {
			width = len(info.Name)
		}
	}
	for _, info := range infos {
		line := fmt.Sprintf("%s - %-*s - %s", info.UUID, width, info.Name, info.URI)
		if info.Type == dataset.TypeProtoDataset {
			line = p.paint(p.red, line)
		}
		p.Println(line)
	}
}

// Items prints "<identifier>  <relpath>" for every item in identifier order.
func (p *Printer) Items(ds *dataset.DataSet) error {
	for _, id := range ds.Identifiers() {
		props, err := ds.ItemProperties(id)
		if err != nil {
			return err
		}
		p.Println(fmt.Sprintf("%s  %s", id, props.Relpath))
	}
	return nil
}

// Summary is the JSON document printed by the summary command.
type Summary struct {
	Name            string  `json:"name"`
	UUID            string  `json:"uuid"`
	CreatorUsername string  `json:"creator_username"`
	NumberOfItems   int     `json:"number_of_items"`
	SizeInBytes     int64   `json:"size_in_bytes"`
	FrozenAt        float64 `json:"frozen_at"`
}

func NewSummary(ds *dataset.DataSet) Summary {
	admin := ds.Admin()
	return Summary{
		Name:            admin.Name,
		UUID:            admin.UUID,
		CreatorUsername: admin.CreatorUsername,
		NumberOfItems:   len(ds.Identifiers()),
		SizeInBytes:     ds.TotalSize(),
		FrozenAt:        admin.FrozenAt,
	}
}
