package pipeline

import (
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// exifDateTimeLayout is the EXIF DateTimeOriginal wire format.
const exifDateTimeLayout = "2006:01:02 15:04:05"

// captureDate reads the embedded capture timestamp from an image file and
// returns its calendar date. Missing files, non-image media, absent EXIF
// blocks and unparseable values all return nil; the caller falls back to
// the current Eastern date.
func captureDate(mediaPath string) *time.Time {
	f, err := os.Open(mediaPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	meta, err := exif.Decode(f)
	if err != nil {
		return nil
	}

	tag, err := meta.Get(exif.DateTimeOriginal)
	if err != nil {
		return nil
	}
	value, err := tag.StringVal()
	if err != nil {
		return nil
	}

	return parseExifDateTime(value)
}

// parseExifDateTime parses an EXIF timestamp into a calendar date.
func parseExifDateTime(value string) *time.Time {
	captured, err := time.Parse(exifDateTimeLayout, value)
	if err != nil {
		return nil
	}
	date := time.Date(captured.Year(), captured.Month(), captured.Day(), 0, 0, 0, 0, time.UTC)
	return &date
}
