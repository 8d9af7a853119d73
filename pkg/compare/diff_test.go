package compare

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuya-takeyama/dtool-info/pkg/dataset"
	"github.com/yuya-takeyama/dtool-info/pkg/hashing"
	"github.com/yuya-takeyama/dtool-info/pkg/logger"
)

var (
	idX = dataset.GenerateIdentifier("x")
	idY = dataset.GenerateIdentifier("y")
	idZ = dataset.GenerateIdentifier("z")
)

func TestDiffReflexive(t *testing.T) {
	ds := newMemDataset(hashing.MD5, item("x", "hello"), item("y", "world!"), item("dir/z", ""))

	result, err := Diff(context.Background(), ds, ds, Options{Full: true})
	require.NoError(t, err)
	assert.Equal(t, Identical, result.Stage)
	assert.Equal(t, 0, result.ExitCode())
	assert.True(t, result.FullCompared)
	assert.Equal(t, hashing.MD5, result.HashFunction)
	assert.Empty(t, result.Identifiers)
	assert.Empty(t, result.Sizes)
	assert.Empty(t, result.Content)
}

func TestDiffIdentifiersDiffer(t *testing.T) {
	a := newMemDataset(hashing.MD5, sizedItem("x", 10), sizedItem("y", 20))
	b := newMemDataset(hashing.MD5, sizedItem("x", 10), sizedItem("y", 20), sizedItem("z", 5))
	counter := logger.NewCounter()

	result, err := Diff(context.Background(), a, b, Options{Full: true, Progress: counter})
	require.NoError(t, err)

	assert.Equal(t, IdentifiersDiffer, result.Stage)
	assert.Equal(t, 1, result.ExitCode())
	assert.Equal(t, []PresenceRecord{{Identifier: idZ, InDataset: false, InReference: true}}, result.Identifiers)
	assert.Empty(t, result.Sizes)
	assert.Empty(t, result.Content)

	// Later stages are never evaluated.
	assert.Zero(t, a.itemHashCalls)
	assert.NotContains(t, counter.Totals, PhaseSizes)
	assert.NotContains(t, counter.Totals, PhaseContent)
}

func TestDiffIdentifiersBothDirections(t *testing.T) {
	a := newMemDataset(hashing.MD5, item("x", "1"), item("y", "2"))
	b := newMemDataset(hashing.MD5, item("x", "1"), item("z", "3"))

	records := DiffIdentifiers(a, b)
	want := []PresenceRecord{
		{Identifier: idY, InDataset: true, InReference: false},
		{Identifier: idZ, InDataset: false, InReference: true},
	}
	if want[0].Identifier > want[1].Identifier {
		want[0], want[1] = want[1], want[0]
	}
	assert.Equal(t, want, records)
}

func TestDiffSizesDiffer(t *testing.T) {
	a := newMemDataset(hashing.MD5, sizedItem("x", 10), sizedItem("y", 20))
	b := newMemDataset(hashing.MD5, sizedItem("x", 10), sizedItem("y", 25))
	counter := logger.NewCounter()

	result, err := Diff(context.Background(), a, b, Options{Full: true, Progress: counter})
	require.NoError(t, err)

	assert.Equal(t, SizesDiffer, result.Stage)
	assert.Equal(t, 2, result.ExitCode())
	assert.Equal(t, []SizeRecord{{Identifier: idY, DatasetSize: 20, ReferenceSize: 25}}, result.Sizes)
	assert.Empty(t, result.Content)

	assert.Zero(t, a.itemHashCalls, "content must not be hashed after a size difference")
	assert.Equal(t, 2, counter.Totals[PhaseSizes])
	assert.Equal(t, 2, counter.Ticks[PhaseSizes])
	assert.NotContains(t, counter.Totals, PhaseContent)
}

func TestDiffContentDiffers(t *testing.T) {
	a := newMemDataset(hashing.MD5, item("x", "0123456789"), item("y", "aaaaaaaaaa"))
	b := newMemDataset(hashing.MD5, item("x", "0123456789"), item("y", "bbbbbbbbbb"))
	counter := logger.NewCounter()

	result, err := Diff(context.Background(), a, b, Options{Full: true, Progress: counter, Concurrency: 2})
	require.NoError(t, err)

	assert.Equal(t, ContentDiffers, result.Stage)
	assert.Equal(t, 3, result.ExitCode())
	require.Len(t, result.Content, 1)
	assert.Equal(t, idY, result.Content[0].Identifier)
	assert.Equal(t, b.manifest[idY].Hash, result.Content[0].ReferenceHash)
	assert.Equal(t, a.manifest[idY].Hash, result.Content[0].DatasetHash)

	assert.Equal(t, 2, counter.Ticks[PhaseContent])
	assert.Equal(t, 2, counter.Done[PhaseContent])
}

func TestDiffWithoutFullSkipsContent(t *testing.T) {
	a := newMemDataset(hashing.MD5, item("x", "0123456789"), item("y", "aaaaaaaaaa"))
	b := newMemDataset(hashing.MD5, item("x", "0123456789"), item("y", "bbbbbbbbbb"))

	result, err := Diff(context.Background(), a, b, Options{})
	require.NoError(t, err)
	assert.Equal(t, Identical, result.Stage)
	assert.False(t, result.FullCompared)
	assert.Empty(t, result.HashFunction)
	assert.Zero(t, a.itemHashCalls)
}

func TestDiffContentUsesReferenceHashFunction(t *testing.T) {
	a := newMemDataset(hashing.MD5, item("x", "same"), item("y", "content"))
	b := newMemDataset(hashing.SHA256, item("x", "same"), item("y", "content"))

	// The recorded hashes differ only because the algorithms differ.
	require.NotEqual(t, a.manifest[idX].Hash, b.manifest[idX].Hash)

	result, err := Diff(context.Background(), a, b, Options{Full: true})
	require.NoError(t, err)
	assert.Equal(t, Identical, result.Stage)
	assert.Equal(t, hashing.SHA256, result.HashFunction)
	assert.Equal(t, map[string]int{hashing.SHA256: 2}, a.hashFunctionsUsed)
	assert.Zero(t, b.itemHashCalls, "the reference is never rehashed")
}

func TestDiffContentHashFailureIsFatal(t *testing.T) {
	a := newMemDataset(hashing.MD5, item("x", "1"), item("y", "2"), item("z", "3"))
	b := newMemDataset(hashing.MD5, item("x", "1"), item("y", "2"), item("z", "3"))
	unreadable := errors.New("unreadable")
	a.itemHashFunc = func(ctx context.Context, id dataset.Identifier, hashFunction string) (string, error) {
		if id == idY {
			return "", unreadable
		}
		return b.manifest[id].Hash, nil
	}

	counter := logger.NewCounter()

	result, err := Diff(context.Background(), a, b, Options{Full: true, Progress: counter})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, unreadable)

	// The phase is closed even though it failed.
	require.Contains(t, counter.Done, PhaseContent)
	assert.Less(t, counter.Done[PhaseContent], 3)
}

func TestDiffOrderIndependent(t *testing.T) {
	build := func() (*memDataset, *memDataset) {
		a := newMemDataset(hashing.MD5, item("a", "1"), item("b", "22"), item("c", "333"), item("d", "4444"))
		b := newMemDataset(hashing.MD5, item("a", "1"), item("b", "23"), item("c", "334"), item("d", "4444"))
		return a, b
	}

	a1, b1 := build()
	first, err := Diff(context.Background(), a1, b1, Options{Full: true})
	require.NoError(t, err)

	a2, b2 := build()
	a2.reverseOrder()
	b2.reverseOrder()
	second, err := Diff(context.Background(), a2, b2, Options{Full: true})
	require.NoError(t, err)

	assert.Equal(t, ContentDiffers, first.Stage)
	assert.Equal(t, first, second)
	require.Len(t, first.Content, 2)
	assert.True(t, first.Content[0].Identifier < first.Content[1].Identifier)
}

func TestDiffSizesUnknownIdentifier(t *testing.T) {
	a := newMemDataset(hashing.MD5, item("x", "1"))
	b := newMemDataset(hashing.MD5, item("x", "1"), item("y", "2"))

	counter := logger.NewCounter()

	_, err := DiffSizes(a, b, Options{Progress: counter})
	assert.True(t, dataset.IsNoSuchItem(err))
	assert.Equal(t, 1, counter.Done[PhaseSizes])
}

func TestStage(t *testing.T) {
	tests := []struct {
		stage    Stage
		wantCode int
		wantText string
	}{
		{Identical, 0, "identical"},
		{IdentifiersDiffer, 1, "identifiers differ"},
		{SizesDiffer, 2, "sizes differ"},
		{ContentDiffers, 3, "content differs"},
		{Stage(42), 42, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.wantText, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.stage.ExitCode())
			assert.Equal(t, tt.wantText, tt.stage.String())
			text, err := tt.stage.MarshalText()
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, string(text))
		})
	}
}
