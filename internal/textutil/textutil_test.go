package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	if got := SanitizeFileName(` cam:1/"door"? `); got != "cam-1-door" {
		t.Fatalf("unexpected sanitized name %q", got)
	}
	if SanitizeFileName("   ") != "" {
		t.Fatal("blank input should stay blank")
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		day, name, want string
	}{
		{"20240101", "A1.265", "20240101_A1.mp4"},
		{"20240101", "20240101_120000.250", "20240101_120000.mp4"},
		{"", "clip.h265", "clip.mp4"},
		{"20240101", ".265", "20240101_segment.mp4"},
	}
	for _, tt := range tests {
		if got := OutputName(tt.day, tt.name); got != tt.want {
			t.Errorf("OutputName(%q, %q) = %q, want %q", tt.day, tt.name, got, tt.want)
		}
	}
}

func TestTitle(t *testing.T) {
	tests := map[string]string{
		"front_door-0815.265": "Front Door 0815",
		"GARAGE.250":          "Garage",
		"a b.c.265":           "A B C",
	}
	for in, want := range tests {
		if got := Title(in); got != want {
			t.Errorf("Title(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatDay(t *testing.T) {
	if got := FormatDay("20240131"); got != "2024-01-31" {
		t.Fatalf("unexpected day %q", got)
	}
	if got := FormatDay("2024013"); got != "2024013" {
		t.Fatalf("short day should pass through, got %q", got)
	}
}

func TestExpandCaption(t *testing.T) {
	fields := CaptionFields{Name: "front_door.265", Day: "20240131", Segment: "20240131/record/front_door.265"}
	got := ExpandCaption("{title} · {day} ({segment}) {unknown}", fields)
	want := "Front Door · 2024-01-31 (20240131/record/front_door.265) {unknown}"
	if got != want {
		t.Fatalf("ExpandCaption = %q, want %q", got, want)
	}
	if ExpandCaption("  ", fields) != "" {
		t.Fatal("empty template should produce no caption")
	}
}
