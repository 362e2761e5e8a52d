package usecase

import (
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestArtifactFilename(t *testing.T) {
	Convey("Given run timestamps in several zones", t, func() {
		zones := []string{"UTC", "Asia/Jakarta", "America/Sao_Paulo", "Asia/Kathmandu"}

		for _, zone := range zones {
			loc, err := time.LoadLocation(zone)
			So(err, ShouldBeNil)
			ts := time.Date(2024, 3, 9, 23, 59, 58, 750_000_000, loc)

			name := ArtifactFilename("my-shop_db", ts, "sql")

			Convey("The name should parse back within a second in "+zone, func() {
				So(strings.HasPrefix(name, "my-shop_db-20240309_235958_"), ShouldBeTrue)
				So(strings.HasSuffix(name, ".sql.gz"), ShouldBeTrue)

				parsed, err := ParseFilenameTimestamp(name, loc)
				So(err, ShouldBeNil)
				So(parsed, ShouldHappenWithin, time.Second, ts)
			})
		}

		Convey("Numeric zone abbreviations should not add separators", func() {
			loc, err := time.LoadLocation("America/Sao_Paulo")
			So(err, ShouldBeNil)
			So(FormatTimestamp(time.Date(2024, 1, 1, 12, 0, 0, 0, loc)), ShouldEqual, "20240101_120000_m03")
		})
	})
}

func TestParseFilenameTimestamp(t *testing.T) {
	Convey("ParseFilenameTimestamp", t, func() {
		Convey("It should read files without the .gz suffix", func() {
			ts, err := ParseFilenameTimestamp("cache-20240101_000000_UTC.rdb", time.UTC)
			So(err, ShouldBeNil)
			So(ts, ShouldEqual, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		})

		Convey("It should date a leftover temp file by its artifact name", func() {
			ts, err := ParseFilenameTimestamp("x-20240101_000000_UTC.sql.gz.tmp", time.UTC)
			So(err, ShouldBeNil)
			So(ts, ShouldEqual, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		})

		Convey("It should interpret the wall clock in the given zone", func() {
			loc, err := time.LoadLocation("Asia/Jakarta")
			So(err, ShouldBeNil)
			ts, err := ParseFilenameTimestamp("shop-20240101_070000_WIB.sql.gz", loc)
			So(err, ShouldBeNil)
			So(ts.UTC(), ShouldEqual, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		})

		Convey("It should reject names without a separator", func() {
			_, err := ParseFilenameTimestamp("notes.db.gz", time.UTC)
			So(errors.Is(err, ErrNoTimestampSeparator), ShouldBeTrue)
		})

		Convey("It should reject a missing time part", func() {
			_, err := ParseFilenameTimestamp("notes-20240101.db.gz", time.UTC)
			So(errors.Is(err, ErrTimestampFormat), ShouldBeTrue)
		})

		Convey("It should reject a malformed date", func() {
			_, err := ParseFilenameTimestamp("notes-2024AB01_999999_UTC.db.gz", time.UTC)
			So(errors.Is(err, ErrTimestampFormat), ShouldBeTrue)
		})
	})
}
