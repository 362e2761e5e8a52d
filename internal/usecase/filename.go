package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const timestampLayout = "20060102_150405"

var (
	ErrNoTimestampSeparator = errors.New("filename does not contain expected timestamp separator '-'")
	ErrTimestampFormat      = errors.New("filename timestamp is not in YYYYMMDD_HHMMSS_TZ format")
)

// FormatTimestamp renders t as YYYYMMDD_HHMMSS_TZ. Numeric zone
// abbreviations such as "-03" have their sign spelled out so the name keeps
// a single '-' before the timestamp.
func FormatTimestamp(t time.Time) string {
	zone := strings.NewReplacer("-", "m", "+", "p").Replace(t.Format("MST"))
	return t.Format(timestampLayout) + "_" + zone
}

// ArtifactFilename is {name}-{YYYYMMDD_HHMMSS_TZ}.{ext}.gz.
func ArtifactFilename(name string, t time.Time, ext string) string {
	return fmt.Sprintf("%s-%s.%s.gz", name, FormatTimestamp(t), ext)
}

// ParseFilenameTimestamp recovers the creation time from an artifact name,
// interpreting the wall clock in loc.
func ParseFilenameTimestamp(filename string, loc *time.Location) (time.Time, error) {
	name := strings.TrimSuffix(filename, ".gz")
	if i := strings.LastIndex(name, "."); i != -1 {
		name = name[:i]
	}

	i := strings.LastIndex(name, "-")
	if i == -1 {
		return time.Time{}, ErrNoTimestampSeparator
	}

	parts := strings.Split(name[i+1:], "_")
	if len(parts) < 2 {
		return time.Time{}, ErrTimestampFormat
	}

	ts, err := time.ParseInLocation(timestampLayout, parts[0]+"_"+parts[1], loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrTimestampFormat, err)
	}
	return ts, nil
}
