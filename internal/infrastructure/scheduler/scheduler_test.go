package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Infof(string, ...interface{}) {}

func (l *recordingLogger) Errorf(template string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(template, args...))
}

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func TestScheduler(t *testing.T) {
	Convey("Given a Scheduler", t, func() {
		log := &recordingLogger{}
		scheduler := New(log)

		Convey("New function", func() {
			So(scheduler.cron, ShouldNotBeNil)
			So(scheduler.Len(), ShouldEqual, 0)
		})

		Convey("AddJob function", func() {
			Convey("When adding a job with a valid cron spec", func() {
				var runs int32
				err := scheduler.AddJob("backup:shop", "* * * * * *", func(ctx context.Context) error {
					atomic.AddInt32(&runs, 1)
					return nil
				})

				Convey("It should run the job", func() {
					So(err, ShouldBeNil)
					So(scheduler.Len(), ShouldEqual, 1)

					scheduler.Start(context.Background())
					time.Sleep(2 * time.Second)
					scheduler.Stop()

					So(atomic.LoadInt32(&runs), ShouldBeGreaterThanOrEqualTo, 1)
				})
			})

			Convey("When a job fails", func() {
				err := scheduler.AddJob("cleanup", "* * * * * *", func(ctx context.Context) error {
					return errors.New("disk full")
				})
				So(err, ShouldBeNil)

				Convey("The failure should be logged", func() {
					scheduler.Start(context.Background())
					time.Sleep(2 * time.Second)
					scheduler.Stop()

					So(log.errorCount(), ShouldBeGreaterThanOrEqualTo, 1)
					So(log.errors[0], ShouldContainSubstring, "Job cleanup failed")
					So(log.errors[0], ShouldContainSubstring, "disk full")
				})
			})

			Convey("When a job panics", func() {
				err := scheduler.AddJob("broken", "* * * * * *", func(ctx context.Context) error {
					panic("boom")
				})
				So(err, ShouldBeNil)

				Convey("The scheduler should recover", func() {
					scheduler.Start(context.Background())
					time.Sleep(2 * time.Second)
					So(func() { scheduler.Stop() }, ShouldNotPanic)
					So(log.errorCount(), ShouldBeGreaterThanOrEqualTo, 1)
				})
			})

			Convey("When adding a job with an invalid cron spec", func() {
				err := scheduler.AddJob("bad", "invalid spec", func(ctx context.Context) error { return nil })

				Convey("It should return an error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "expected exactly 6 fields")
				})
			})

			Convey("Descriptors should be accepted", func() {
				So(scheduler.AddJob("daily", "@daily", func(ctx context.Context) error { return nil }), ShouldBeNil)
			})
		})

		Convey("Start and Stop methods", func() {
			var runs int32
			err := scheduler.AddJob("tick", "* * * * * *", func(ctx context.Context) error {
				atomic.AddInt32(&runs, 1)
				return nil
			})
			So(err, ShouldBeNil)

			Convey("No job should run after Stop", func() {
				scheduler.Start(context.Background())
				time.Sleep(2 * time.Second)
				scheduler.Stop()

				stopped := atomic.LoadInt32(&runs)
				So(stopped, ShouldBeGreaterThanOrEqualTo, 1)

				time.Sleep(1500 * time.Millisecond)
				So(atomic.LoadInt32(&runs), ShouldEqual, stopped)
			})
		})
	})
}
