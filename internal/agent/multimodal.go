package agent

import (
	"fmt"
	"regexp"
	"strconv"
)

// Wire-level markers embedding image data directly in message content. There
// is no separate attachment object: an image is just a base64 blob inline in
// the text the model and the context manager both see.
var (
	imageDataPattern     = regexp.MustCompile(`\[IMAGE_DATA:[A-Za-z0-9+/=]*\]`)
	pageImageDataPattern = regexp.MustCompile(`\[PAGE_(\d+)_IMAGE_DATA:[A-Za-z0-9+/=]*\]`)
)

// ImagesOmittedMarker renders the notice left behind when images are
// dropped during compression.
func ImagesOmittedMarker(n int) string {
	return fmt.Sprintf("[IMAGES_OMITTED:%d]", n)
}

// imageMarker locates one image block within a message's content.
type imageMarker struct {
	Start, End int
	Page       int // 0 for an unpaged [IMAGE_DATA:...] block
}

// findImageMarkers returns every image marker in content in document order.
func findImageMarkers(content string) []imageMarker {
	var markers []imageMarker
	for _, loc := range imageDataPattern.FindAllStringIndex(content, -1) {
		markers = append(markers, imageMarker{Start: loc[0], End: loc[1]})
	}
	for _, loc := range pageImageDataPattern.FindAllSubmatchIndex([]byte(content), -1) {
		page, _ := strconv.Atoi(content[loc[2]:loc[3]])
		markers = append(markers, imageMarker{Start: loc[0], End: loc[1], Page: page})
	}
	sortMarkersByStart(markers)
	return markers
}

func sortMarkersByStart(markers []imageMarker) {
	for i := 1; i < len(markers); i++ {
		for j := i; j > 0 && markers[j].Start < markers[j-1].Start; j-- {
			markers[j], markers[j-1] = markers[j-1], markers[j]
		}
	}
}

// CountImages returns how many image markers content contains.
func CountImages(content string) int {
	return len(findImageMarkers(content))
}

// StripImageMarkers removes every image marker span from content, leaving
// the surrounding text untouched. Callers measuring token cost use this to
// keep an image's base64 payload from being counted as ordinary text before
// substituting ImageTokenCost per image.
func StripImageMarkers(content string) string {
	markers := findImageMarkers(content)
	if len(markers) == 0 {
		return content
	}

	var out []byte
	last := 0
	for _, m := range markers {
		out = append(out, content[last:m.Start]...)
		last = m.End
	}
	out = append(out, content[last:]...)
	return string(out)
}

// ImageTokenCost is the synthetic per-image token charge the context
// manager's budget math uses in place of actually tokenizing image bytes.
const ImageTokenCost = 65

// RetainImages keeps at most `keep` image markers (the ones appearing latest
// in content, on the assumption that later images are the most salient for
// an ongoing conversation) and replaces the rest with a single
// [IMAGES_OMITTED:n] notice appended to the end of the text. It returns the
// rewritten content and how many images were dropped.
func RetainImages(content string, keep int) (string, int) {
	markers := findImageMarkers(content)
	if len(markers) <= keep {
		return content, 0
	}

	dropFrom := len(markers) - keep
	if keep <= 0 {
		dropFrom = 0
	}
	toDrop := markers[:dropFrom]
	if keep <= 0 {
		toDrop = markers
	}

	var out []byte
	last := 0
	for _, m := range toDrop {
		out = append(out, content[last:m.Start]...)
		last = m.End
	}
	out = append(out, content[last:]...)

	dropped := len(toDrop)
	result := string(out) + "\n" + ImagesOmittedMarker(dropped)
	return result, dropped
}
