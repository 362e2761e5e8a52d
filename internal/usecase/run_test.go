package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/semmidev/dockdump/internal/adapter/database"
	"github.com/semmidev/dockdump/internal/domain"
	"github.com/semmidev/dockdump/internal/infrastructure/logger"
	"github.com/semmidev/dockdump/internal/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

type recordingNotifier struct {
	events  []domain.Event
	ctxErrs []error
	err     error
}

func (r *recordingNotifier) Notify(ctx context.Context, event domain.Event) error {
	r.events = append(r.events, event)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return r.err
}

// cancellingRunner fails every target and cancels the run on the first one,
// the way a signal arriving mid-run does.
type cancellingRunner struct {
	cancel context.CancelFunc
}

func (r cancellingRunner) Run(ctx context.Context, target domain.DatabaseTarget, _ domain.RunContext) (domain.BackupArtifact, error) {
	r.cancel()
	return domain.BackupArtifact{}, domain.NewStrategyError(target.Name, ctx.Err())
}

func (r *recordingNotifier) kinds() []domain.EventKind {
	out := make([]domain.EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (f *fixture) coordinator(t *testing.T, targets []domain.DatabaseTarget, n domain.Notifier) *RunCoordinator {
	c := NewRunCoordinator(
		targets,
		domain.RetentionWindow{Days: 7},
		time.UTC,
		f.dispatcher(t),
		NewRetentionPurger(f.tree, nil, logger.Nop()),
		n,
		logger.Nop(),
	)
	c.now = func() time.Time { return f.rc.Timestamp }
	c.newID = func() string { return f.rc.RunID }
	return c
}

func TestRunCoordinator(t *testing.T) {
	Convey("Given mariadb, postgres and sqlite targets", t, func() {
		f := newFixture(t)
		ctx := context.Background()
		n := &recordingNotifier{}

		mariadb := f.runtime.Add("shop-db")
		mariadb.OnExec(testutil.MatchProgram("mysqldump"), testutil.Response{Stdout: []byte("-- mariadb dump\n")})

		postgres := f.runtime.Add("pg")
		postgres.OnExec(testutil.MatchProgram("pg_dump"), testutil.Response{Stdout: []byte("-- pg dump\n")})

		sqlite := f.runtime.Add("notes-app")
		sqlite.OnExec(testutil.MatchProgram(database.DefaultSQLiteExecPath), testutil.Response{ExitCode: 1, Stderr: []byte("Error: database is locked")})

		targets := []domain.DatabaseTarget{
			mariadbTarget(),
			{
				Engine:       domain.EnginePostgres,
				Name:         "analytics",
				ContainerRef: "pg",
				Credentials:  map[string]string{domain.CredUser: "pg", domain.CredPassword: "pw", domain.CredDatabase: "events"},
			},
			{
				Engine:       domain.EngineSQLite,
				Name:         "notes",
				ContainerRef: "notes-app",
				PathHints:    map[string]string{domain.HintDBPath: "/data/notes.db"},
			},
		}

		stale := touch(f.tree.Dir("mariadb", "shop"), "shop-20231201_000000_UTC.sql.gz", 8)

		summary := f.coordinator(t, targets, n).Run(ctx)

		Convey("Two artifacts and one failure should be recorded", func() {
			So(len(summary.Artifacts), ShouldEqual, 2)
			So(summary.Artifacts[0].TargetName, ShouldEqual, "shop")
			So(summary.Artifacts[1].TargetName, ShouldEqual, "analytics")
			So(filepath.Base(summary.Artifacts[1].Path), ShouldEqual, "analytics-20240108_120000_UTC.dump.gz")

			So(len(summary.Failures), ShouldEqual, 1)
			So(summary.Failures[0].Target, ShouldEqual, "notes")
			So(domain.IsKind(summary.Failures[0].Err, domain.KindDumpCommand), ShouldBeTrue)
			So(summary.Succeeded(), ShouldBeFalse)
		})

		Convey("The purge phase should still run", func() {
			So(len(summary.Purged), ShouldEqual, 1)
			So(summary.Purged[0].Path, ShouldEqual, stale)
			So(summary.PurgedBytes, ShouldEqual, uint64(8))
			So(exists(stale), ShouldBeFalse)
		})

		Convey("The sqlite container should be cleaned up once", func() {
			So(sqlite.CountCalls(testutil.MatchProgram("rm")), ShouldEqual, 1)
		})

		Convey("The notifier should see start, three logs and fail", func() {
			So(n.kinds(), ShouldResemble, []domain.EventKind{
				domain.EventStart, domain.EventLog, domain.EventLog, domain.EventLog, domain.EventFail,
			})
			for _, e := range n.events {
				So(e.RunID, ShouldEqual, "run-1")
			}
			So(n.events[1].Message, ShouldEqual, "SUCCESS: Backup for shop completed.")
			So(strings.HasPrefix(n.events[3].Message, "FAILURE: Backup for notes failed with error:"), ShouldBeTrue)

			final := n.events[4]
			So(final.NewFiles, ShouldEqual, 2)
			So(final.NewBytes, ShouldEqual, summary.NewBytes())
			So(final.PurgedFiles, ShouldEqual, 1)
			So(final.Message, ShouldContainSubstring, "failed for one or more databases")
		})

		Convey("Artifact names should parse back to the run timestamp", func() {
			for _, a := range summary.Artifacts {
				ts, err := ParseFilenameTimestamp(filepath.Base(a.Path), time.UTC)
				So(err, ShouldBeNil)
				So(ts, ShouldHappenWithin, time.Second, summary.Context.Timestamp)
			}
		})
	})

	Convey("Given only failing targets", t, func() {
		f := newFixture(t)
		n := &recordingNotifier{err: errors.New("hc down")}
		stale := touch(f.tree.Dir("mariadb", "shop"), "shop-20231201_000000_UTC.sql.gz", 1)

		c := f.coordinator(t, []domain.DatabaseTarget{mariadbTarget()}, n)
		err := c.Execute(context.Background())

		Convey("The run should still purge and report", func() {
			So(err, ShouldNotBeNil)
			So(exists(stale), ShouldBeFalse)
			So(n.kinds(), ShouldResemble, []domain.EventKind{domain.EventStart, domain.EventLog, domain.EventFail})
		})
	})

	Convey("Given a valkey target", t, func() {
		f := newFixture(t)
		n := &recordingNotifier{}
		cache := f.runtime.Add("cache")
		cache.OnExec(testutil.MatchArgs("BGSAVE"), testutil.Response{Stdout: []byte("Background saving started\n")})
		cache.WriteFile("/data/dump.rdb", []byte("REDIS0011"))

		c := f.coordinator(t, []domain.DatabaseTarget{{Engine: domain.EngineValkeyRedis, Name: "cache", ContainerRef: "cache"}}, n)
		summary := c.Run(context.Background())

		Convey("It should produce an .rdb.gz artifact and succeed", func() {
			So(summary.Succeeded(), ShouldBeTrue)
			So(len(summary.Artifacts), ShouldEqual, 1)
			So(summary.Artifacts[0].Path, ShouldEndWith, ".rdb.gz")
			So(n.events[len(n.events)-1].Kind, ShouldEqual, domain.EventSuccess)
		})
	})

	Convey("Purge should run only the purge phase", t, func() {
		f := newFixture(t)
		n := &recordingNotifier{}
		stale := touch(f.tree.Dir("mariadb", "shop"), "shop-20231201_000000_UTC.sql.gz", 3)

		purged, total := f.coordinator(t, []domain.DatabaseTarget{mariadbTarget()}, n).Purge(context.Background())

		So(len(purged), ShouldEqual, 1)
		So(total, ShouldEqual, uint64(3))
		So(exists(stale), ShouldBeFalse)
		So(n.events, ShouldBeEmpty)
	})
}

func TestRunCoordinatorInterrupted(t *testing.T) {
	Convey("Given a run that is cancelled while backing up", t, func() {
		f := newFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		n := &recordingNotifier{}

		c := NewRunCoordinator(
			[]domain.DatabaseTarget{mariadbTarget()},
			domain.RetentionWindow{Days: 7},
			time.UTC,
			cancellingRunner{cancel: cancel},
			NewRetentionPurger(f.tree, nil, logger.Nop()),
			n,
			logger.Nop(),
		)
		c.now = func() time.Time { return f.rc.Timestamp }
		c.newID = func() string { return f.rc.RunID }

		summary := c.Run(ctx)

		Convey("The final fail event should be sent on a live context", func() {
			So(summary.Succeeded(), ShouldBeFalse)
			last := len(n.events) - 1
			So(n.events[last].Kind, ShouldEqual, domain.EventFail)
			So(n.ctxErrs[last], ShouldBeNil)
			So(n.events[last].RunID, ShouldEqual, "run-1")
		})
	})
}
