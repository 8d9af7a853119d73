// Package report summarises the frozen datasets below a base URI as a text
// table, CSV or an HTML page.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/yuya-takeyama/dtool-info/internal/log"
	"github.com/yuya-takeyama/dtool-info/internal/worker"
	"github.com/yuya-takeyama/dtool-info/pkg/dataset"
)

const (
	FormatText = "text"
	FormatCSV  = "csv"
	FormatHTML = "html"
)

// Formats lists the accepted output formats.
var Formats = []string{FormatText, FormatCSV, FormatHTML}

// Source lists and opens datasets. *storage.Resolver satisfies it.
type Source interface {
	ListDatasetURIs(ctx context.Context, base string) ([]dataset.Info, error)
	Open(ctx context.Context, uri string) (*dataset.DataSet, error)
}

type Entry struct {
	Name        string
	UUID        string
	URI         string
	Creator     string
	SizeInBytes int64
	NumItems    int
	FrozenAt    time.Time
	Readme      string
}

type Report struct {
	BaseURI    string
	Datasets   []Entry
	TotalSize  int64
	TotalItems int
}

type Option func(*options)

type options struct {
	loc         *time.Location
	concurrency int
}

// WithLocation sets the time zone dates are printed in. The default is
// time.Local.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// Build opens every frozen dataset below base. Proto datasets are skipped.
func Build(ctx context.Context, src Source, base string, opts ...Option) (*Report, error) {
	o := options{loc: time.Local}
	for _, opt := range opts {
		opt(&o)
	}

	infos, err := src.ListDatasetURIs(ctx, base)
	if err != nil {
		return nil, err
	}
	var frozen []dataset.Info
	for _, info := range infos {
		if info.Type == dataset.TypeDataset {
			frozen = append(frozen, info)
		} else {
			log.Debugf("skipping %s: type %s", info.URI, info.Type)
		}
	}

	entries := make([]Entry, len(frozen))
	err = worker.ForEach(ctx, len(frozen), o.concurrency, func(ctx context.Context, i int) error {
		ds, err := src.Open(ctx, frozen[i].URI)
		if err != nil {
			return fmt.Errorf("open %s: %w", frozen[i].URI, err)
		}
		readme, err := ds.ReadmeContent(ctx)
		if err != nil {
			return err
		}
		admin := ds.Admin()
		entries[i] = Entry{
			Name:        admin.Name,
			UUID:        admin.UUID,
			URI:         ds.URI(),
			Creator:     admin.CreatorUsername,
			SizeInBytes: ds.TotalSize(),
			NumItems:    len(ds.Identifiers()),
			FrozenAt:    dataset.TimeFromTimestamp(admin.FrozenAt).In(o.loc),
			Readme:      readme,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r := &Report{BaseURI: base, Datasets: entries}
	for _, e := range entries {
		r.TotalSize += e.SizeInBytes
		r.TotalItems += e.NumItems
	}
	sort.SliceStable(r.Datasets, func(i, j int) bool {
		a, b := r.Datasets[i], r.Datasets[j]
		if a.Creator != b.Creator {
			return a.Creator < b.Creator
		}
		if a.Date() != b.Date() {
			return a.Date() < b.Date()
		}
		return a.Name < b.Name
	})
	return r, nil
}

// Date is the day the dataset was frozen, as YYYY-MM-DD.
func (e Entry) Date() string {
	return e.FrozenAt.Format("2006-01-02")
}

// SizeString formats a byte count the way the text report aligns it: a
// six-wide number followed by a three-wide binary unit.
func SizeString(n int64) string {
	num := float64(n)
	for _, unit := range []string{"", "Ki", "Mi", "Gi", "Ti", "Pi", "Ei", "Zi"} {
		if math.Abs(num) < 1024.0 {
			return fmt.Sprintf("%6.1f%-3s", num, unit+"B")
		}
		num /= 1024.0
	}
	return fmt.Sprintf("%6.1f%-3s", num, "YiB")
}

// Write renders the report in format.
func (r *Report) Write(w io.Writer, format string) error {
	switch format {
	case "", FormatText:
		return r.WriteText(w)
	case FormatCSV:
		return r.WriteCSV(w)
	case FormatHTML:
		return r.WriteHTML(w)
	default:
		return fmt.Errorf("unknown report format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// WriteText writes one line per dataset followed by a totals line whose
// item count lines up with the per-dataset counts.
func (r *Report) WriteText(w io.Writer) error {
	creatorWidth, itemsWidth := 0, 0
	for _, e := range r.Datasets {
		creatorWidth = max(creatorWidth, len(e.Creator))
		itemsWidth = max(itemsWidth, len(strconv.Itoa(e.NumItems)))
	}

	for _, e := range r.Datasets {
		if _, err := fmt.Fprintf(w, "%s %-*s %*d %s %s\n",
			SizeString(e.SizeInBytes), creatorWidth, e.Creator, itemsWidth, e.NumItems, e.Date(), e.Name); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s %*d\n", SizeString(r.TotalSize), creatorWidth+itemsWidth+1, r.TotalItems)
	return err
}

func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "size_in_bytes", "creator", "num_items", "date", "uri"}); err != nil {
		return err
	}
	for _, e := range r.Datasets {
		record := []string{
			e.Name,
			strconv.FormatInt(e.SizeInBytes, 10),
			e.Creator,
			strconv.Itoa(e.NumItems),
			e.Date(),
			e.URI,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"ibytes": func(n int64) string { return humanize.IBytes(uint64(n)) },
	"comma":  func(n int) string { return humanize.Comma(int64(n)) },
	"ago":    func(t time.Time) string { return humanize.Time(t) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>dtool report: {{.BaseURI}}</title>
</head>
<body>
<h1>Datasets in {{.BaseURI}}</h1>
<p>{{len .Datasets}} datasets, {{comma .TotalItems}} items, {{ibytes .TotalSize}}</p>
<table>
<thead>
<tr><th>Name</th><th>Size</th><th>Creator</th><th>Items</th><th>Frozen</th><th>URI</th></tr>
</thead>
<tbody>
{{- range .Datasets}}
<tr>
<td title="{{.UUID}}">{{.Name}}</td>
<td>{{ibytes .SizeInBytes}}</td>
<td>{{.Creator}}</td>
<td>{{comma .NumItems}}</td>
<td title="{{ago .FrozenAt}}">{{.Date}}</td>
<td>{{.URI}}</td>
</tr>
{{- if .Readme}}
<tr><td colspan="6"><pre>{{.Readme}}</pre></td></tr>
{{- end}}
{{- end}}
</tbody>
</table>
</body>
</html>
`))

func (r *Report) WriteHTML(w io.Writer) error {
	return htmlTemplate.Execute(w, r)
}
