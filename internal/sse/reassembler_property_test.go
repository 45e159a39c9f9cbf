// internal/sse/reassembler_property_test.go
package sse

import (
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_SplitInvariance checks that reassembly is independent of
// delivery chunking: for any set of cut points, feeding the stream in
// pieces yields the same decoded sequence as feeding it whole.
func TestProperty_SplitInvariance(t *testing.T) {
	stream := frameE1 + frameP1 + frameE2

	whole, werrs := New().Feed(stream)
	if len(werrs) != 0 {
		t.Fatal(werrs)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("chunked feed equals whole feed", prop.ForAll(
		func(rawCuts []int) bool {
			chunks := splitAt(stream, rawCuts)
			got, errs := feedChunks(New(), chunks...)
			return len(errs) == 0 && sameResults(whole, got)
		},
		gen.SliceOf(gen.IntRange(0, len(stream))),
	))

	properties.Property("fixed chunk sizes equal whole feed", prop.ForAll(
		func(size int) bool {
			var cuts []int
			for i := size; i < len(stream); i += size {
				cuts = append(cuts, i)
			}
			chunks := splitAt(stream, cuts)
			got, errs := feedChunks(New(), chunks...)
			return len(errs) == 0 && sameResults(whole, got)
		},
		gen.IntRange(1, len(stream)),
	))

	properties.TestingRun(t)
}

// splitAt cuts s at the given (unordered, possibly duplicated) positions.
func splitAt(s string, cuts []int) []string {
	sorted := append([]int(nil), cuts...)
	sort.Ints(sorted)

	var chunks []string
	prev := 0
	for _, c := range sorted {
		if c < prev || c > len(s) {
			continue
		}
		chunks = append(chunks, s[prev:c])
		prev = c
	}
	chunks = append(chunks, s[prev:])
	return chunks
}
