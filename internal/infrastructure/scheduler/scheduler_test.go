package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/semmidev/dockdump/internal/infrastructure/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestScheduler(t *testing.T) {
	Convey("Given a Scheduler", t, func() {
		scheduler := New(context.Background(), logger.Nop())

		Convey("New function", func() {
			Convey("It should create a new scheduler successfully", func() {
				So(scheduler, ShouldNotBeNil)
				So(scheduler.cron, ShouldNotBeNil)
			})
		})

		Convey("AddJob function", func() {
			Convey("When adding a job with a valid cron spec", func() {
				var runs atomic.Int32
				err := scheduler.AddJob("* * * * * *", "count", func(ctx context.Context) error {
					runs.Add(1)
					return errors.New("failures are only logged")
				})

				Convey("It should run the job", func() {
					So(err, ShouldBeNil)
					So(scheduler.Next().IsZero(), ShouldBeFalse)

					scheduler.Start()
					time.Sleep(2 * time.Second)
					scheduler.Stop()

					So(runs.Load(), ShouldBeGreaterThanOrEqualTo, int32(1))
				})
			})

			Convey("When adding a job with an invalid cron spec", func() {
				err := scheduler.AddJob("invalid spec", "noop", func(ctx context.Context) error { return nil })

				Convey("It should return an error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "expected exactly 6 fields")
				})
			})
		})

		Convey("When a job outlasts its interval", func() {
			var running, overlaps, runs atomic.Int32
			err := scheduler.AddJob("* * * * * *", "slow", func(ctx context.Context) error {
				if running.Add(1) > 1 {
					overlaps.Add(1)
				}
				runs.Add(1)
				time.Sleep(2500 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			So(err, ShouldBeNil)

			scheduler.Start()
			time.Sleep(3500 * time.Millisecond)
			scheduler.Stop()

			Convey("Overlapping ticks should be skipped", func() {
				So(overlaps.Load(), ShouldEqual, int32(0))
				So(runs.Load(), ShouldBeBetweenOrEqual, int32(1), int32(2))
			})
		})

		Convey("Start and Stop methods", func() {
			var runs atomic.Int32
			So(scheduler.AddJob("* * * * * *", "count", func(ctx context.Context) error {
				runs.Add(1)
				return nil
			}), ShouldBeNil)

			Convey("It should not run jobs after stopping", func() {
				So(func() { scheduler.Start() }, ShouldNotPanic)
				time.Sleep(1500 * time.Millisecond)
				So(func() { scheduler.Stop() }, ShouldNotPanic)

				after := runs.Load()
				time.Sleep(1500 * time.Millisecond)
				So(runs.Load(), ShouldEqual, after)
			})
		})

		Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			scheduler := New(ctx, logger.Nop())
			var runs atomic.Int32
			So(scheduler.AddJob("* * * * * *", "count", func(ctx context.Context) error {
				runs.Add(1)
				return nil
			}), ShouldBeNil)

			scheduler.Start()
			time.Sleep(1500 * time.Millisecond)
			scheduler.Stop()

			So(runs.Load(), ShouldEqual, int32(0))
		})
	})
}
