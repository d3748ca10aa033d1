package news

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHistory_Merge(t *testing.T) {
	tests := []struct {
		name string
		seen []string
		add  []string
		want []string
	}{
		{
			name: "empty history",
			add:  []string{"b", "a"},
			want: []string{"a", "b"},
		},
		{
			name: "union keeps previous ids",
			seen: []string{"A1"},
			add:  []string{"A2", "A3", "A1"},
			want: []string{"A1", "A2", "A3"},
		},
		{
			name: "empty ids are ignored",
			seen: []string{"x"},
			add:  []string{"", "y"},
			want: []string{"x", "y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHistory()
			for _, id := range tt.seen {
				h.SeenIDs[id] = struct{}{}
			}
			before := len(h.SeenIDs)

			merged := h.Merge(tt.add)

			if diff := cmp.Diff(tt.want, merged.SortedIDs()); diff != "" {
				t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
			}
			if len(h.SeenIDs) != before {
				t.Errorf("Merge() mutated the original history: len = %d, want %d", len(h.SeenIDs), before)
			}
		})
	}
}

func TestHistory_Seen(t *testing.T) {
	h := NewHistory().Merge([]string{"A1"})
	if !h.Seen("A1") {
		t.Error("Seen(A1) = false, want true")
	}
	if h.Seen("A2") {
		t.Error("Seen(A2) = true, want false")
	}
}
