package inspect

import (
	"regexp"
	"sort"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
)

// exifCapableURL matches image URLs in formats that can carry EXIF data.
// PNG, GIF, and WebP are skipped: parsing them for EXIF is wasted work.
var exifCapableURL = regexp.MustCompile(`(?i)\.(jpe?g|tiff?|heic)(?:\?[^"'\s]*)?$`)

// CanCarryEXIF reports whether the asset URL points at a format worth
// inspecting.
func CanCarryEXIF(rawURL string) bool {
	return exifCapableURL.MatchString(rawURL)
}

// EXIFNote summarizes privacy-relevant EXIF metadata in image bytes.
// It returns an empty string when the image has no EXIF data, carries
// nothing of note, or cannot be parsed — a broken image is the mirror
// user's problem only insofar as it renders, not as a finding.
func EXIFNote(imageData []byte) string {
	rawExif, err := exif.SearchAndExtractExif(imageData)
	if err != nil || rawExif == nil {
		return ""
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return ""
	}

	notes := make(map[string]bool)
	for _, entry := range entries {
		switch entry.TagName {
		case "GPSLatitude", "GPSLongitude", "GPSLatitudeRef", "GPSLongitudeRef":
			notes["gps position"] = true
		case "SerialNumber", "CameraSerialNumber", "BodySerialNumber", "LensSerialNumber":
			notes["device serial number"] = true
		case "Make", "Model":
			notes["camera identification"] = true
		case "Artist", "Author", "Copyright", "XPAuthor":
			notes["author information"] = true
		}
	}

	if len(notes) == 0 {
		return ""
	}

	parts := make([]string, 0, len(notes))
	for note := range notes {
		parts = append(parts, note)
	}
	sort.Strings(parts)
	return "contains " + strings.Join(parts, ", ")
}
