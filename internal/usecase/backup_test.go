package usecase

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"

	"github.com/semmidev/sqlkeep/internal/adapter/compressor"
	"github.com/semmidev/sqlkeep/internal/domain"
)

func newTestBackup(q *fakeQuerier, store *memStore, opts BackupOptions, targets ...UploadTarget) *Backup {
	log := zap.NewNop().Sugar()
	db := &fakeDatabase{name: "shop", q: q}
	retention := NewRetention("shop", store, newMapCache(), log, RetentionOptions{MaxCount: 10, MaxAgeDays: 30})
	publisher := NewPublisher("shop", store, targets, log)
	uc := NewBackup(db, store, compressor.NewGzip(), retention, publisher, log, opts)
	uc.now = func() time.Time { return time.Date(2024, 3, 5, 10, 20, 30, 0, time.Local) }
	return uc
}

func TestBackupCreate(t *testing.T) {
	ctx := context.Background()

	Convey("Given a backup of the shop schema", t, func() {
		q := newFakeQuerier().shop()
		store := newMemStore()

		Convey("When every table is backed up in full", func() {
			rec := &recorder{}
			res := newTestBackup(q, store, BackupOptions{Charset: "utf8mb4"}).Create(ctx, rec)
			script := store.content(res.FileName)

			Convey("It should write a named artifact", func() {
				So(res.Success, ShouldBeTrue)
				So(res.FileName, ShouldEqual, "backup_shop_2024-03-05_10-20-30.sql")
				So(regexp.MustCompile(`^backup_shop_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}\.sql$`).MatchString(res.FileName), ShouldBeTrue)
			})

			Convey("It should emit objects in dependency order", func() {
				order := []string{
					"START TRANSACTION;",
					"CREATE TABLE `items`",
					"INSERT INTO `items`",
					"CREATE TABLE `audit`",
					"INSERT INTO `audit`",
					"VIEW `items_view`",
					"TRIGGER `trg_items`",
					"TRIGGER `trg_audit`",
					"PROCEDURE `p_sync`",
					"FUNCTION `f_total`",
					"COMMIT;",
					"-- Dump completed on",
				}
				last := -1
				for _, marker := range order {
					idx := strings.Index(script, marker)
					So(idx, ShouldBeGreaterThan, last)
					last = idx
				}
			})

			Convey("It should report monotonic progress up to a fixed total", func() {
				// 2 tables x (structure + data) + view + 2 triggers + 2 routines + 3
				So(len(rec.events), ShouldEqual, 12)
				for i, e := range rec.events {
					So(e.total, ShouldEqual, 12)
					So(e.current, ShouldEqual, i+1)
				}
				So(rec.events[9].status, ShouldEqual, "Compression disabled")
				So(rec.events[10].status, ShouldEqual, "Writing backup file")
				So(rec.events[11].status, ShouldEqual, "Cleaning up old backups")
			})

			Convey("It should keep definers by default", func() {
				So(script, ShouldContainSubstring, "DEFINER=`root`@`%`")
			})
		})

		Convey("When table modes are set", func() {
			opts := BackupOptions{TableModes: map[string]domain.TableMode{
				"items": domain.ModeStructureOnly,
				"audit": domain.ModeDataOnly,
			}}
			rec := &recorder{}
			res := newTestBackup(q, store, opts).Create(ctx, rec)
			script := store.content(res.FileName)

			Convey("Structure-only tables have no inserts and data-only tables no DDL", func() {
				So(res.Success, ShouldBeTrue)
				So(script, ShouldContainSubstring, "CREATE TABLE `items`")
				So(script, ShouldNotContainSubstring, "INSERT INTO `items`")
				So(script, ShouldNotContainSubstring, "CREATE TABLE `audit`")
				So(script, ShouldContainSubstring, "INSERT INTO `audit`")
				So(rec.events[0].total, ShouldEqual, 10)
			})
		})

		Convey("When a table is excluded", func() {
			rec := &recorder{}
			res := newTestBackup(q, store, BackupOptions{ExcludedTables: []string{"audit"}}).Create(ctx, rec)
			script := store.content(res.FileName)

			Convey("It should leave no trace of the table", func() {
				So(res.Success, ShouldBeTrue)
				So(script, ShouldNotContainSubstring, "CREATE TABLE `audit`")
				So(script, ShouldNotContainSubstring, "INSERT INTO `audit`")
				So(script, ShouldNotContainSubstring, "`trg_audit`")
				So(rec.events[0].total, ShouldEqual, 9)
			})
		})

		Convey("When definers are removed", func() {
			res := newTestBackup(q, store, BackupOptions{RemoveDefiners: true}).Create(ctx, nil)

			Convey("No DEFINER clause should remain", func() {
				So(res.Success, ShouldBeTrue)
				So(store.content(res.FileName), ShouldNotContainSubstring, "DEFINER=")
			})
		})

		Convey("When a routine definition cannot be read", func() {
			q.errors["SHOW CREATE PROCEDURE `p_sync`"] = domain.ErrQuery.New("access denied")

			res := newTestBackup(q, store, BackupOptions{}).Create(ctx, nil)
			script := store.content(res.FileName)

			Convey("It should mark the routine and finish the run", func() {
				So(res.Success, ShouldBeTrue)
				So(script, ShouldContainSubstring, "-- Error: could not back up PROCEDURE `p_sync`")
				So(script, ShouldContainSubstring, "FUNCTION `f_total`")
				So(script, ShouldContainSubstring, "-- Dump completed on")
			})
		})

		Convey("When the connection drops mid-run", func() {
			q.errors["SELECT * FROM `audit`"] = domain.ErrConnection.New("server has gone away")

			res := newTestBackup(q, store, BackupOptions{}).Create(ctx, nil)

			Convey("It should fail without writing an artifact", func() {
				So(res.Success, ShouldBeFalse)
				So(res.Message, ShouldContainSubstring, "server has gone away")
				So(len(store.files), ShouldEqual, 0)
			})
		})

		Convey("When the connection drops while reading a trigger", func() {
			q.errors["SHOW CREATE TRIGGER `trg_items`"] = domain.ErrConnection.New("server has gone away")

			res := newTestBackup(q, store, BackupOptions{}).Create(ctx, nil)

			Convey("It should abort instead of using the trigger metadata", func() {
				So(res.Success, ShouldBeFalse)
				So(res.Message, ShouldContainSubstring, "server has gone away")
				So(len(store.files), ShouldEqual, 0)
			})
		})

		Convey("When the session cannot be opened", func() {
			uc := newTestBackup(q, store, BackupOptions{})
			uc.db = &fakeDatabase{name: "shop", sessionErr: domain.ErrConnection.New("refused")}

			res := uc.Create(ctx, nil)

			So(res.Success, ShouldBeFalse)
			So(uc.Execute(ctx), ShouldNotBeNil)
		})

		Convey("When compression is enabled", func() {
			res := newTestBackup(q, store, BackupOptions{Compress: true}).Create(ctx, nil)

			Convey("It should write a gzip artifact holding the full script", func() {
				So(res.Success, ShouldBeTrue)
				So(res.FileName, ShouldEndWith, ".sql.gz")

				var plain bytes.Buffer
				err := compressor.NewGzip().Decompress(&plain, strings.NewReader(store.content(res.FileName)))
				So(err, ShouldBeNil)
				So(plain.String(), ShouldContainSubstring, "INSERT INTO `items`")
				So(plain.String(), ShouldContainSubstring, "-- Dump completed on")
			})
		})

		Convey("When the artifact cannot be written", func() {
			store.saveErr = domain.ErrIO.New("read-only file system")

			res := newTestBackup(q, store, BackupOptions{}).Create(ctx, nil)

			So(res.Success, ShouldBeFalse)
			So(res.FileName, ShouldBeEmpty)
			So(res.Message, ShouldContainSubstring, "read-only file system")
		})

		Convey("When the upload target fails", func() {
			target := &fakeTarget{err: domain.ErrUpload.New("ftp: 530 Login incorrect")}
			res := newTestBackup(q, store, BackupOptions{}, UploadTarget{Name: "ftp", Storage: target}).Create(ctx, nil)

			Convey("The backup should still succeed", func() {
				So(res.Success, ShouldBeTrue)
				So(store.content(res.FileName), ShouldNotBeEmpty)
			})
		})

		Convey("When the upload target works", func() {
			target := &fakeTarget{}
			res := newTestBackup(q, store, BackupOptions{}, UploadTarget{Name: "ftp", Storage: target}).Create(ctx, nil)

			So(res.Success, ShouldBeTrue)
			So(target.uploaded, ShouldResemble, []string{res.FileName})
		})

		Convey("When older backups exceed the retention count", func() {
			base := time.Now().Add(-time.Hour)
			for i := 0; i < 10; i++ {
				store.put(backupFilename("shop", base.Add(-time.Duration(i)*time.Minute), false), 10, base.Add(-time.Duration(i)*time.Minute))
			}

			res := newTestBackup(q, store, BackupOptions{}).Create(ctx, nil)

			Convey("The oldest one should be pruned after the write", func() {
				So(res.Success, ShouldBeTrue)
				So(len(store.files), ShouldEqual, 10)
				_, ok := store.files[res.FileName]
				So(ok, ShouldBeTrue)
			})
		})
	})
}
