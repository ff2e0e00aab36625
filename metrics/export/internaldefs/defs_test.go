package internaldefs

import (
	"strings"
	"testing"

	"github.com/MrEthical07/credcore"
)

func TestCounterDefsUniqueAndPrefixed(t *testing.T) {
	seenID := make(map[credcore.MetricID]bool)
	seenName := make(map[string]bool)
	for _, def := range CounterDefs {
		if seenID[def.ID] || seenName[def.Name] {
			t.Fatalf("duplicate counter def %+v", def)
		}
		seenID[def.ID], seenName[def.Name] = true, true

		if !strings.HasPrefix(def.Name, "credcore_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("bad counter name %q", def.Name)
		}
		if def.ID == credcore.MetricValidateLatency {
			t.Fatal("latency id exported as a counter")
		}
	}
}

func TestBucketTables(t *testing.T) {
	if len(HistogramUpperBounds)+1 != len(HistogramBoundSuffix) {
		t.Fatalf("bounds %d vs suffixes %d", len(HistogramUpperBounds), len(HistogramBoundSuffix))
	}

	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 0, 2, 0, 0, 0, 0, 3}))
	want := [8]uint64{1, 1, 3, 3, 3, 3, 3, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
