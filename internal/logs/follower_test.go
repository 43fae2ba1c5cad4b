package logs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docker/docker/errdefs"

	"github.com/germanoeich/dockctl/internal/core"
	"github.com/germanoeich/dockctl/internal/dockerx"
	"github.com/germanoeich/dockctl/internal/events"
	"github.com/germanoeich/dockctl/internal/gateway"
)

func newFollower(t *testing.T, fake *dockerx.FakeClient, capacity int) (*Follower, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	gw := gateway.New(fake, bus, nil)
	return NewFollower(gw, events.NewSubscriber(bus, nil), capacity, nil), bus
}

func TestFollow_SanitizesIntoRing(t *testing.T) {
	fake := dockerx.NewFakeClient()
	fake.AddLogLines("web", []string{
		"2024-01-02T03:04:05.000000000Z \x1b[32mready\x1b[0m",
		"plain line",
		`{"level":"warn","msg":"slow"}`,
	})
	f, bus := newFollower(t, fake, 10)

	if err := f.Follow(context.Background(), "web"); err != nil {
		t.Fatalf("Follow: %v", err)
	}

	lines := f.Lines("web", 0)
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if lines[2].Level != core.SevWarn || lines[1].Level != core.SevUnknown {
		t.Errorf("levels = %v, %v", lines[1].Level, lines[2].Level)
	}
	if lines[0].Text != "ready" {
		t.Errorf("line 0 = %q, want %q", lines[0].Text, "ready")
	}
	if want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC); !lines[0].Time.Equal(want) {
		t.Errorf("line 0 time = %v, want %v", lines[0].Time, want)
	}
	if lines[1].Text != "plain line" || lines[1].Container != "web" {
		t.Errorf("line 1 = %+v", lines[1])
	}
	if got := f.Lines("web", lines[0].Seq); len(got) != 2 {
		t.Errorf("Lines since first = %d, want 2", len(got))
	}
	if n := bus.Listeners(events.LogsChannel("web")); n != 0 {
		t.Fatalf("listeners after follow = %d, want 0", n)
	}
}

func TestFollow_RingIsBounded(t *testing.T) {
	fake := dockerx.NewFakeClient()
	fake.AddLogLines("web", []string{"1", "2", "3", "4", "5"})
	f, _ := newFollower(t, fake, 3)

	if err := f.Follow(context.Background(), "web"); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	lines := f.Lines("web", 0)
	if len(lines) != 3 || lines[0].Text != "3" || lines[2].Text != "5" {
		t.Fatalf("lines = %+v", lines)
	}
}

func TestFollow_UnknownContainer(t *testing.T) {
	fake := dockerx.NewFakeClient()
	f, bus := newFollower(t, fake, 10)

	err := f.Follow(context.Background(), "ghost")
	if !errors.Is(err, core.ErrBackendRejected) {
		t.Fatalf("err = %v, want BackendRejected", err)
	}
	if n := bus.Listeners(events.LogsChannel("ghost")); n != 0 {
		t.Fatalf("listeners = %d, want 0", n)
	}
}

func TestFollow_TransportError(t *testing.T) {
	fake := dockerx.NewFakeClient()
	fake.AddLogLines("web", nil)
	fake.SetError("StreamLogs", errdefs.Unavailable(errors.New("daemon gone")))
	f, _ := newFollower(t, fake, 10)

	if err := f.Follow(context.Background(), "web"); !errors.Is(err, core.ErrTransportFailure) {
		t.Fatalf("err = %v, want TransportFailure", err)
	}
}

func TestFollow_EmptyName(t *testing.T) {
	f, _ := newFollower(t, dockerx.NewFakeClient(), 10)
	if err := f.Follow(context.Background(), ""); !errors.Is(err, core.ErrValidationFailed) {
		t.Fatalf("err = %v, want ValidationFailed", err)
	}
}

func TestStart_OneStreamPerContainer(t *testing.T) {
	fake := dockerx.NewFakeClient()
	fake.AddLogLines("web", []string{"a"})
	release := fake.Gate("StreamLogs")
	f, _ := newFollower(t, fake, 10)

	if !f.Start(context.Background(), "web") {
		t.Fatal("first Start did not start a stream")
	}
	if f.Start(context.Background(), "web") {
		t.Fatal("second Start started a duplicate stream")
	}
	if !f.Following("web") {
		t.Fatal("Following = false while streaming")
	}

	release()
	deadline := time.Now().Add(2 * time.Second)
	for f.Following("web") {
		if time.Now().After(deadline) {
			t.Fatal("stream did not finish")
		}
		time.Sleep(time.Millisecond)
	}
	if lines := f.Lines("web", 0); len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
}

func TestStop_CancelsStreams(t *testing.T) {
	fake := dockerx.NewFakeClient()
	fake.AddLogLines("web", []string{"a"})
	fake.Gate("StreamLogs")
	f, bus := newFollower(t, fake, 10)

	f.Start(context.Background(), "web")
	f.Stop()

	if f.Following("web") {
		t.Fatal("still following after Stop")
	}
	if n := bus.Listeners(events.LogsChannel("web")); n != 0 {
		t.Fatalf("listeners after Stop = %d, want 0", n)
	}
}

func TestSplitTimestamp(t *testing.T) {
	ts, msg, stamped := splitTimestamp("2024-01-02T03:04:05.123456789Z hello")
	if msg != "hello" || ts.Nanosecond() != 123456789 || !stamped {
		t.Fatalf("got %v %q %v", ts, msg, stamped)
	}
	_, msg, stamped = splitTimestamp("no timestamp here")
	if msg != "no timestamp here" || stamped {
		t.Fatalf("msg = %q stamped = %v", msg, stamped)
	}
}

func waitIdle(t *testing.T, f *Follower, name string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.Following(name) {
		if time.Now().After(deadline) {
			t.Fatal("stream did not finish")
		}
		time.Sleep(time.Millisecond)
	}
}

func running(name string, state core.ContainerState) []core.ContainerSummary {
	n := name
	return []core.ContainerSummary{{Name: &n, State: state}}
}

func TestStart_EndedStreamResumesAfterRestart(t *testing.T) {
	fake := dockerx.NewFakeClient()
	fake.AddLogLines("web", []string{
		"2024-01-02T03:04:05.000000000Z first",
		"2024-01-02T03:04:06.000000000Z second",
	})
	f, _ := newFollower(t, fake, 10)
	f.Observe(running("web", core.StateRunning))

	if !f.Start(context.Background(), "web") {
		t.Fatal("Start did not start a stream")
	}
	waitIdle(t, f, "web")
	if f.Start(context.Background(), "web") {
		t.Fatal("ended stream was restarted without the container restarting")
	}

	f.Observe(running("web", core.StateExited))
	f.Observe(running("web", core.StateRunning))
	fake.AddLogLines("web", []string{"2024-01-02T03:05:00.000000000Z third"})

	if !f.Start(context.Background(), "web") {
		t.Fatal("stream not resumed after restart")
	}
	waitIdle(t, f, "web")

	lines := f.Lines("web", 0)
	var texts []string
	for _, l := range lines {
		texts = append(texts, l.Text)
	}
	if len(texts) != 3 || texts[0] != "first" || texts[2] != "third" {
		t.Fatalf("lines after resume = %q, want replayed lines skipped", texts)
	}
}

func TestObserve_ForgetsVanishedContainers(t *testing.T) {
	fake := dockerx.NewFakeClient()
	fake.AddLogLines("web", []string{"a"})
	f, _ := newFollower(t, fake, 10)

	if err := f.Follow(context.Background(), "web"); err != nil {
		t.Fatal(err)
	}
	f.Observe(running("web", core.StateRunning))
	if len(f.Lines("web", 0)) != 1 {
		t.Fatal("ring dropped while container still listed")
	}
	f.Observe(nil)
	if f.Lines("web", 0) != nil {
		t.Fatal("ring kept for a vanished container")
	}
}
