package notifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/dockdump/internal/domain"
	. "github.com/smartystreets/goconvey/convey"
)

type ping struct {
	Method string
	Path   string
	RunID  string
	Body   string
}

func newPingServer(status int) (*httptest.Server, func() []ping) {
	var mu sync.Mutex
	var pings []ping
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		pings = append(pings, ping{Method: r.Method, Path: r.URL.Path, RunID: r.URL.Query().Get("rid"), Body: string(body)})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	return srv, func() []ping {
		mu.Lock()
		defer mu.Unlock()
		return append([]ping(nil), pings...)
	}
}

func TestHealthchecks(t *testing.T) {
	Convey("Given a Healthchecks notifier", t, func() {
		srv, pings := newPingServer(http.StatusOK)
		defer srv.Close()

		hc, err := NewHealthchecks(srv.URL + "/uuid/")
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("Start should GET the start endpoint with the run id", func() {
			So(hc.Notify(ctx, domain.Event{Kind: domain.EventStart, RunID: "r1", Message: "ignored"}), ShouldBeNil)
			So(pings(), ShouldResemble, []ping{{Method: http.MethodGet, Path: "/uuid/start", RunID: "r1"}})
		})

		Convey("Log should POST the message", func() {
			So(hc.Notify(ctx, domain.Event{Kind: domain.EventLog, RunID: "r1", Message: "SUCCESS: Backup for shop completed."}), ShouldBeNil)
			So(pings(), ShouldResemble, []ping{{Method: http.MethodPost, Path: "/uuid/log", RunID: "r1", Body: "SUCCESS: Backup for shop completed."}})
		})

		Convey("Success should GET the base url", func() {
			So(hc.Notify(ctx, domain.Event{Kind: domain.EventSuccess, RunID: "r1", Message: "done"}), ShouldBeNil)
			So(pings()[0].Path, ShouldEqual, "/uuid")
			So(pings()[0].Method, ShouldEqual, http.MethodGet)
		})

		Convey("Fail should POST the summary", func() {
			So(hc.Notify(ctx, domain.Event{Kind: domain.EventFail, RunID: "r1", Message: "1 failed"}), ShouldBeNil)
			So(pings()[0], ShouldResemble, ping{Method: http.MethodPost, Path: "/uuid/fail", RunID: "r1", Body: "1 failed"})
		})
	})

	Convey("A non-success status should be reported", t, func() {
		srv, _ := newPingServer(http.StatusInternalServerError)
		defer srv.Close()

		hc, err := NewHealthchecks(srv.URL)
		So(err, ShouldBeNil)
		err = hc.Notify(context.Background(), domain.Event{Kind: domain.EventStart})
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "non-success status")
	})

	Convey("An empty url should be rejected", t, func() {
		_, err := NewHealthchecks("  ")
		So(err, ShouldNotBeNil)
	})
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg.Text)
	}
	return tgbotapi.Message{}, f.err
}

func TestTelegram(t *testing.T) {
	Convey("Given a Telegram notifier", t, func() {
		sender := &fakeSender{}
		ctx := context.Background()
		summary := domain.Event{
			Kind:        domain.EventFail,
			RunID:       "r1",
			Timestamp:   time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC),
			NewFiles:    2,
			NewBytes:    3 * 1024 * 1024,
			PurgedFiles: 1,
			PurgedBytes: 512 * 1024,
		}

		Convey("It should send a summary for the final event", func() {
			tg := NewTelegram(sender, 42, false)
			So(tg.Notify(ctx, summary), ShouldBeNil)
			So(len(sender.sent), ShouldEqual, 1)
			So(sender.sent[0], ShouldContainSubstring, "Backup Run Failed")
			So(sender.sent[0], ShouldContainSubstring, "New: 2 files (3.00 MB)")
			So(sender.sent[0], ShouldContainSubstring, "Purged: 1 files (0.50 MB)")
		})

		Convey("It should skip start events", func() {
			tg := NewTelegram(sender, 42, false)
			So(tg.Notify(ctx, domain.Event{Kind: domain.EventStart}), ShouldBeNil)
			So(sender.sent, ShouldBeEmpty)
		})

		Convey("With only failures it should drop successes", func() {
			tg := NewTelegram(sender, 42, true)
			So(tg.Notify(ctx, domain.Event{Kind: domain.EventLog, Message: "SUCCESS: Backup for shop completed."}), ShouldBeNil)
			So(tg.Notify(ctx, domain.Event{Kind: domain.EventLog, Message: "FAILURE: Backup for notes failed with error: boom"}), ShouldBeNil)
			So(sender.sent, ShouldResemble, []string{"❌ FAILURE: Backup for notes failed with error: boom"})
		})

		Convey("Send errors should be returned", func() {
			sender.err = errors.New("chat not found")
			tg := NewTelegram(sender, 42, false)
			So(tg.Notify(ctx, summary), ShouldNotBeNil)
		})
	})
}

type recordingNotifier struct {
	events []domain.Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, event domain.Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestMulti(t *testing.T) {
	Convey("Multi should deliver to every notifier and join errors", t, func() {
		a := &recordingNotifier{err: errors.New("down")}
		b := &recordingNotifier{}
		m := NewMulti(a, b)

		err := m.Notify(context.Background(), domain.Event{Kind: domain.EventStart})

		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "notifier 0: down")
		So(len(a.events), ShouldEqual, 1)
		So(len(b.events), ShouldEqual, 1)
		So(m.Len(), ShouldEqual, 2)
	})

	Convey("An empty Multi should do nothing", t, func() {
		So(NewMulti().Notify(context.Background(), domain.Event{}), ShouldBeNil)
	})
}
