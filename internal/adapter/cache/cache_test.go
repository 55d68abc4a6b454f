package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/sqlkeep/internal/domain"
)

var sampleEntries = []domain.BackupEntry{
	{FileName: "backup_shop_2024-03-05_10-20-30.sql.gz", Size: "1.50 KB", Date: "2024-03-05 10:20:30", SizeBytes: 1536, Compressed: true},
	{FileName: "backup_shop_2024-03-04_10-20-30.sql", Size: "3.00 KB", Date: "2024-03-04 10:20:30", SizeBytes: 3072},
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	Convey("Given a memory cache", t, func() {
		c := NewMemory()
		now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
		c.now = func() time.Time { return now }

		So(c.Set(ctx, "backup_list:/b", sampleEntries, time.Minute), ShouldBeNil)

		Convey("Get should return the entries while fresh", func() {
			got, ok := c.Get(ctx, "backup_list:/b")
			So(ok, ShouldBeTrue)
			So(got, ShouldResemble, sampleEntries)
		})

		Convey("Get should miss once the TTL has passed", func() {
			now = now.Add(time.Minute)
			_, ok := c.Get(ctx, "backup_list:/b")
			So(ok, ShouldBeFalse)
		})

		Convey("Invalidate should drop the entry", func() {
			So(c.Invalidate(ctx, "backup_list:/b"), ShouldBeNil)
			_, ok := c.Get(ctx, "backup_list:/b")
			So(ok, ShouldBeFalse)
		})

		Convey("A zero TTL should not cache", func() {
			So(c.Set(ctx, "backup_list:/b", sampleEntries, 0), ShouldBeNil)
			_, ok := c.Get(ctx, "backup_list:/b")
			So(ok, ShouldBeFalse)
		})

		Convey("Returned slices should not alias the cache", func() {
			got, _ := c.Get(ctx, "backup_list:/b")
			got[0].FileName = "changed"
			again, _ := c.Get(ctx, "backup_list:/b")
			So(again[0].FileName, ShouldEqual, sampleEntries[0].FileName)
		})
	})
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()

	Convey("Given a redis cache", t, func() {
		srv := miniredis.RunT(t)
		c, err := NewRedis(ctx, srv.Addr(), "", 0)
		So(err, ShouldBeNil)
		defer c.Close()

		So(c.Set(ctx, "backup_list:/b", sampleEntries, 5*time.Minute), ShouldBeNil)

		Convey("Get should decode the stored listing", func() {
			got, ok := c.Get(ctx, "backup_list:/b")
			So(ok, ShouldBeTrue)
			So(len(got), ShouldEqual, 2)
			So(got[0].FileName, ShouldEqual, sampleEntries[0].FileName)
			So(got[0].Compressed, ShouldBeTrue)
			So(srv.TTL("sqlkeep:backup_list:/b"), ShouldEqual, 5*time.Minute)
		})

		Convey("The entry should expire with its TTL", func() {
			srv.FastForward(6 * time.Minute)
			_, ok := c.Get(ctx, "backup_list:/b")
			So(ok, ShouldBeFalse)
		})

		Convey("Invalidate should delete the key", func() {
			So(c.Invalidate(ctx, "backup_list:/b"), ShouldBeNil)
			So(srv.Exists("sqlkeep:backup_list:/b"), ShouldBeFalse)
		})

		Convey("Garbage in redis should be a miss", func() {
			So(srv.Set("sqlkeep:backup_list:/x", "not json"), ShouldBeNil)
			_, ok := c.Get(ctx, "backup_list:/x")
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given an unreachable redis", t, func() {
		srv := miniredis.RunT(t)
		addr := srv.Addr()
		srv.Close()

		_, err := NewRedis(ctx, addr, "", 0)

		So(err, ShouldNotBeNil)
	})
}
