// Package metadata extracts image headers and EXIF tags, the pure
// functions Scanner calls at pipeline step 4 (§4.3). Decoding never
// fails the pipeline: a malformed or absent tag yields a zero-value
// field, not an error, and a JSON rendering of the decoded EXIF tags is
// still captured as the raw blob when the EXIF segment decodes.
package metadata

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"

	"github.com/barrulus/clepho/internal/store"
)

// Result is the (Dimensions, Format, ExifStruct, RawExifBlob) tuple
// spec.md §4.3 names as MetadataExtractor's output.
type Result struct {
	Width, Height int
	Format        string
	EXIF          store.ExifData
	RawEXIF       []byte
}

// Extract reads path once, decoding the image header for dimensions and
// format and, independently, the EXIF segment for structured fields.
func Extract(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("metadata: open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return Result{}, fmt.Errorf("metadata: read %s: %w", path, err)
	}
	return ExtractBytes(data)
}

// ExtractBytes extracts from an in-memory image, used by Scanner when it
// has already buffered the file for hashing.
func ExtractBytes(data []byte) (Result, error) {
	var res Result

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// Header decode failure is still reported via the error return
		// (Scanner still writes the row, with zero dimensions and the
		// error on the file's event);
		// EXIF extraction below is independent and still attempted.
		res.Width, res.Height, res.Format = 0, 0, ""
	} else {
		res.Width, res.Height, res.Format = cfg.Width, cfg.Height, format
	}

	res.EXIF, res.RawEXIF = extractEXIF(data)

	if err != nil {
		return res, fmt.Errorf("metadata: decode header: %w", err)
	}
	return res, nil
}

// extractEXIF never returns an error: any failure collapses to a
// zero-value ExifData, per §4.3's "EXIF parsing never fails the
// pipeline". The raw blob is preserved whenever the segment was found,
// even if individual tags fail to parse.
func extractEXIF(data []byte) (store.ExifData, []byte) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return store.ExifData{}, nil
	}

	raw, _ := x.MarshalJSON()

	var out store.ExifData
	out.CameraMake = tagString(x, exif.Make)
	out.CameraModel = tagString(x, exif.Model)
	out.Lens = tagString(x, exif.LensModel)
	out.FocalLength = tagRational(x, exif.FocalLength)
	out.Aperture = tagRational(x, exif.FNumber)
	out.ShutterSpeed = tagShutterSpeed(x)
	out.ISO = tagInt(x, exif.ISOSpeedRatings)

	if t, err := x.DateTime(); err == nil {
		out.TakenAt = &t
	}

	if lat, lon, err := x.LatLong(); err == nil {
		out.GPSLatitude = &lat
		out.GPSLongitude = &lon
	}

	return out, raw
}

func tagString(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return strings.Trim(tag.String(), `"`)
	}
	return s
}

func tagRational(x *exif.Exif, name exif.FieldName) float64 {
	tag, err := x.Get(name)
	if err != nil {
		return 0
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func tagInt(x *exif.Exif, name exif.FieldName) int {
	tag, err := x.Get(name)
	if err != nil {
		return 0
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return v
}

// tagShutterSpeed renders ExposureTime as "1/N" when the denominator
// exceeds the numerator, matching how camera EXIF viewers display it, and
// as decimal seconds with an "s" suffix otherwise.
func tagShutterSpeed(x *exif.Exif) string {
	tag, err := x.Get(exif.ExposureTime)
	if err != nil {
		return ""
	}
	num, den, err := tag.Rat2(0)
	if err != nil || num == 0 {
		return ""
	}
	if den > num {
		return "1/" + strconv.FormatInt(den/num, 10)
	}
	seconds := float64(num) / float64(den)
	return strconv.FormatFloat(seconds, 'f', -1, 64) + "s"
}
