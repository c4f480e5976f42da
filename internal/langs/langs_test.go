package langs

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want []string
	}{
		{"nil", nil, []string{}},
		{"empty", []string{}, []string{}},
		{"single", []string{"en"}, []string{"en"}},
		{"region stripped", []string{"en-US"}, []string{"en"}},
		{"lowercased", []string{"EN"}, []string{"en"}},
		{"deduplicated preserving order", []string{"pt-BR", "en-US", "PT"}, []string{"pt", "en"}},
		{"blank tags dropped", []string{"", "en"}, []string{"en"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.tags)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize(%v) = %v, want %v", tt.tags, got, tt.want)
			}
		})
	}
}

func TestFirst(t *testing.T) {
	if got := First(nil); got != Untagged {
		t.Errorf("First(nil) = %q, want %q", got, Untagged)
	}
	if got := First([]string{"pt", "en"}); got != "pt" {
		t.Errorf("First() = %q, want pt", got)
	}
}

func TestTrackerActiveEmpty(t *testing.T) {
	tracker := NewTracker(1000)
	got := tracker.Active()
	if len(got) != 0 {
		t.Errorf("Active() = %v, want empty", got)
	}
}

func TestTrackerOrdersByCount(t *testing.T) {
	tracker := NewTracker(1000)
	tracker.AddSighting("en")
	tracker.AddSighting("pt")
	tracker.AddSighting("pt")

	want := []string{"pt", "en"}
	if got := tracker.Active(); !reflect.DeepEqual(got, want) {
		t.Errorf("Active() = %v, want %v", got, want)
	}
}

func TestTrackerThresholdIsStrict(t *testing.T) {
	// top/divisor = 2, so a language needs strictly more than 2 sightings
	tracker := NewTracker(1000)
	for i := 0; i < 2000; i++ {
		tracker.AddSighting("pt")
	}
	tracker.AddSighting("hu")
	tracker.AddSighting("hu")

	want := []string{"pt"}
	if got := tracker.Active(); !reflect.DeepEqual(got, want) {
		t.Errorf("Active() = %v, want %v", got, want)
	}

	tracker.AddSighting("hu")
	want = []string{"pt", "hu"}
	if got := tracker.Active(); !reflect.DeepEqual(got, want) {
		t.Errorf("Active() after third sighting = %v, want %v", got, want)
	}
}

func TestTrackerCountsUntagged(t *testing.T) {
	tracker := NewTracker(1000)
	tracker.AddSighting(Untagged)
	tracker.AddSighting(Untagged)
	tracker.AddSighting("en")

	snap := tracker.Snapshot()
	if snap[Untagged] != 2 || snap["en"] != 1 {
		t.Errorf("Snapshot() = %v", snap)
	}

	want := []string{Untagged, "en"}
	if got := tracker.Active(); !reflect.DeepEqual(got, want) {
		t.Errorf("Active() = %v, want %v", got, want)
	}
}
