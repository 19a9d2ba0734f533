package agent

import (
	"strings"
	"testing"
)

func TestCountImages(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    int
	}{
		{"no images", "just some text", 0},
		{"one image", "before [IMAGE_DATA:aGVsbG8=] after", 1},
		{"two images", "[IMAGE_DATA:aGVsbG8=] middle [IMAGE_DATA:d29ybGQ=]", 2},
		{"paged image", "[PAGE_3_IMAGE_DATA:aGVsbG8=]", 1},
		{"mixed", "[IMAGE_DATA:aGk=] text [PAGE_2_IMAGE_DATA:eW8=] more", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CountImages(tc.content); got != tc.want {
				t.Errorf("CountImages(%q) = %d, want %d", tc.content, got, tc.want)
			}
		})
	}
}

func TestStripImageMarkers_RemovesMarkersKeepsSurroundingText(t *testing.T) {
	content := "before [IMAGE_DATA:aGVsbG8gd29ybGQ=] after"
	got := StripImageMarkers(content)
	if strings.Contains(got, "IMAGE_DATA") {
		t.Errorf("StripImageMarkers left a marker behind: %q", got)
	}
	if !strings.Contains(got, "before ") || !strings.Contains(got, " after") {
		t.Errorf("StripImageMarkers dropped surrounding text: %q", got)
	}
}

func TestStripImageMarkers_NoMarkersReturnsUnchanged(t *testing.T) {
	content := "nothing to strip here"
	if got := StripImageMarkers(content); got != content {
		t.Errorf("StripImageMarkers(%q) = %q, want unchanged", content, got)
	}
}

func TestStripImageMarkers_MultipleAndPagedMarkers(t *testing.T) {
	content := "a[IMAGE_DATA:aGk=]b[PAGE_1_IMAGE_DATA:eW8=]c"
	got := StripImageMarkers(content)
	if got != "abc" {
		t.Errorf("StripImageMarkers(%q) = %q, want %q", content, got, "abc")
	}
}

func TestRetainImages_KeepsMostRecentAndNotesDropped(t *testing.T) {
	content := "[IMAGE_DATA:aQ==] one [IMAGE_DATA:Yg==] two [IMAGE_DATA:Yw==]"

	out, dropped := RetainImages(content, 1)
	if dropped != 2 {
		t.Fatalf("dropped = %d, want 2", dropped)
	}
	if CountImages(out) != 1 {
		t.Errorf("expected exactly one image marker to remain, got content %q", out)
	}
	if !strings.Contains(out, ImagesOmittedMarker(2)) {
		t.Errorf("expected an omitted-images marker, got %q", out)
	}
	if !strings.Contains(out, "[IMAGE_DATA:Yw==]") {
		t.Errorf("expected the last (most recent) image to survive, got %q", out)
	}
}

func TestRetainImages_UnderLimitIsNoOp(t *testing.T) {
	content := "[IMAGE_DATA:aQ==] only one"
	out, dropped := RetainImages(content, 5)
	if dropped != 0 || out != content {
		t.Errorf("RetainImages() = (%q, %d), want unchanged", out, dropped)
	}
}

func TestRetainImages_KeepZeroDropsAll(t *testing.T) {
	content := "[IMAGE_DATA:aQ==] and [IMAGE_DATA:Yg==]"
	out, dropped := RetainImages(content, 0)
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	if CountImages(out) != 0 {
		t.Errorf("expected no images to remain, got %q", out)
	}
}
