package report

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuya-takeyama/dtool-info/internal/config"
	"github.com/yuya-takeyama/dtool-info/internal/testkit"
	"github.com/yuya-takeyama/dtool-info/pkg/storage"
	"github.com/yuya-takeyama/dtool-info/pkg/storage/disk"
)

// 2018-05-16 12:00:00 UTC
const may16 = 1526472000

func buildReport(t *testing.T, setup func(base string)) *Report {
	t.Helper()
	base := t.TempDir()
	setup(base)
	r, err := Build(context.Background(), storage.NewResolver(config.Default()), base, WithLocation(time.UTC))
	require.NoError(t, err)
	return r
}

func catsAndToys(t *testing.T, base string) {
	testkit.CreateDataset(t, base, "toys", map[string]string{
		"ball.txt": "bounce",
		"car.txt":  "vroom",
	}, testkit.WithFrozenAt(may16))
	testkit.CreateDataset(t, base, "big_cats", map[string]string{
		"lion.txt":    "roar!!!",
		"tiger.txt":   "grrrrr",
		"cheetah.txt": "purr!!",
	}, testkit.WithFrozenAt(may16))
	testkit.CreateDataset(t, base, "unfinished", map[string]string{"x": "x"}, testkit.AsProto())
}

func TestWriteText(t *testing.T) {
	r := buildReport(t, func(base string) { catsAndToys(t, base) })

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf, FormatText))
	assert.Equal(t, strings.Join([]string{
		"  19.0B   olssont 3 2018-05-16 big_cats",
		"  11.0B   olssont 2 2018-05-16 toys",
		"  30.0B           5",
	}, "\n")+"\n", buf.String())
}

func TestWriteCSV(t *testing.T) {
	base := t.TempDir()
	catsAndToys(t, base)
	r, err := Build(context.Background(), storage.NewResolver(config.Default()), base, WithLocation(time.UTC))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf, FormatCSV))
	assert.Equal(t, strings.Join([]string{
		"name,size_in_bytes,creator,num_items,date,uri",
		"big_cats,19,olssont,3,2018-05-16," + disk.URI(base+"/big_cats"),
		"toys,11,olssont,2,2018-05-16," + disk.URI(base+"/toys"),
	}, "\n")+"\n", buf.String())
}

func TestWriteHTML(t *testing.T) {
	r := buildReport(t, func(base string) {
		catsAndToys(t, base)
		testkit.CreateDataset(t, base, "tricky", map[string]string{"a": "a"},
			testkit.WithReadme("<script>alert(1)</script>"))
	})

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf, FormatHTML))
	html := buf.String()
	assert.Contains(t, html, "<html>")
	assert.Contains(t, html, "</html>")
	assert.Contains(t, html, "<td>19 B</td>")
	assert.Contains(t, html, "big_cats")
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestSortOrder(t *testing.T) {
	r := buildReport(t, func(base string) {
		testkit.CreateDataset(t, base, "b_later", nil, testkit.WithCreator("alice"), testkit.WithFrozenAt(may16+86400))
		testkit.CreateDataset(t, base, "z_early", nil, testkit.WithCreator("alice"), testkit.WithFrozenAt(may16))
		testkit.CreateDataset(t, base, "a_bob", nil, testkit.WithCreator("bob"), testkit.WithFrozenAt(may16))
		testkit.CreateDataset(t, base, "a_early", nil, testkit.WithCreator("alice"), testkit.WithFrozenAt(may16))
	})

	var names []string
	for _, e := range r.Datasets {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a_early", "z_early", "b_later", "a_bob"}, names)
	assert.Equal(t, 0, r.TotalItems)
}

func TestEmptyReport(t *testing.T) {
	r := buildReport(t, func(string) {})

	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf))
	assert.Equal(t, "   0.0B   0\n", buf.String())
}

func TestUnknownFormat(t *testing.T) {
	r := &Report{}
	assert.Error(t, r.Write(&bytes.Buffer{}, "pdf"))
}

func TestSizeString(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "   0.0B  "},
		{19, "  19.0B  "},
		{2048, "   2.0KiB"},
		{5 * 1024 * 1024, "   5.0MiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SizeString(tt.n))
	}
}
