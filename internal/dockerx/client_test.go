package dockerx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/germanoeich/dockctl/internal/core"
)

func TestFakeClient_ListAndLifecycle(t *testing.T) {
	ctx := context.Background()
	fake := NewFakeClient()
	fake.AddContainer("web", core.StateRunning)
	fake.AddContainer("db", core.StateExited)

	containers, err := fake.ListContainers(ctx)
	if err != nil {
		t.Fatalf("ListContainers failed: %v", err)
	}
	if len(containers) != 2 {
		t.Fatalf("Expected 2 containers, got %d", len(containers))
	}

	if err := fake.PauseContainer(ctx, "web"); err != nil {
		t.Fatalf("PauseContainer: %v", err)
	}
	if st, _ := fake.State("web"); st != core.StatePaused {
		t.Errorf("web state = %s, want paused", st)
	}
	if containers[0].State != core.StateRunning {
		t.Error("ListContainers result aliases fake storage")
	}

	if err := fake.StartContainer(ctx, "missing"); !errdefs.IsNotFound(err) {
		t.Errorf("start missing = %v, want NotFound", err)
	}

	if err := fake.RemoveContainer(ctx, "db"); err != nil {
		t.Fatalf("RemoveContainer: %v", err)
	}
	if _, ok := fake.State("db"); ok {
		t.Error("db still listed after remove")
	}
	if n := fake.Calls("PauseContainer"); n != 1 {
		t.Errorf("PauseContainer calls = %d", n)
	}
}

func TestFakeClient_CreateContainerPublishesPort(t *testing.T) {
	ctx := context.Background()
	fake := NewFakeClient()
	if err := fake.CreateContainer(ctx, "nginx:latest", &core.PortMapping{HostPort: 8080, ContainerPort: 80}); err != nil {
		t.Fatal(err)
	}
	list, _ := fake.ListContainers(ctx)
	if len(list) != 1 || list[0].State != core.StateRunning {
		t.Fatalf("containers = %+v", list)
	}
	if len(list[0].Ports) != 1 || list[0].Ports[0] != "0.0.0.0:8080->80/tcp" {
		t.Errorf("ports = %v", list[0].Ports)
	}
}

func TestFakeClient_StreamLogs(t *testing.T) {
	fake := NewFakeClient()
	fake.AddLogLines("web", []string{"one", "two"})

	stream, err := fake.StreamLogs(context.Background(), "web")
	if err != nil {
		t.Fatalf("StreamLogs failed: %v", err)
	}
	defer stream.Close()
	content, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(content) != "one\ntwo\n" {
		t.Errorf("content = %q", content)
	}

	if _, err := fake.StreamLogs(context.Background(), "nonexistent"); !errdefs.IsNotFound(err) {
		t.Errorf("Expected NotFound for non-existent container, got %v", err)
	}
}

func TestFakeClient_NetworkRules(t *testing.T) {
	ctx := context.Background()
	fake := NewFakeClient()

	if err := fake.CreateNetwork(ctx, "backend", ""); err != nil {
		t.Fatal(err)
	}
	if err := fake.CreateNetwork(ctx, "backend", "bridge"); !errdefs.IsConflict(err) {
		t.Errorf("duplicate network = %v, want Conflict", err)
	}
	if err := fake.ConnectNetwork(ctx, "web", "net-backend"); err != nil {
		t.Fatal(err)
	}
	if err := fake.RemoveNetwork(ctx, "net-backend"); !errdefs.IsForbidden(err) {
		t.Errorf("remove in-use network = %v, want Forbidden", err)
	}
	if err := fake.DisconnectNetwork(ctx, "web", "net-backend"); err != nil {
		t.Fatal(err)
	}
	if err := fake.DisconnectNetwork(ctx, "web", "net-backend"); !errdefs.IsNotFound(err) {
		t.Errorf("second disconnect = %v, want NotFound", err)
	}
	if err := fake.RemoveNetwork(ctx, "net-backend"); err != nil {
		t.Errorf("remove network: %v", err)
	}
}

func TestFakeClient_ErrorHandling(t *testing.T) {
	fake := NewFakeClient()
	ctx := context.Background()

	fake.SetError("ListContainers", io.ErrUnexpectedEOF)
	if _, err := fake.ListContainers(ctx); err != io.ErrUnexpectedEOF {
		t.Errorf("Expected UnexpectedEOF error, got %v", err)
	}

	fake.SetError("ListContainers", nil)
	if _, err := fake.ListContainers(ctx); err != nil {
		t.Errorf("error not cleared: %v", err)
	}
}

func TestFakeClient_Gate(t *testing.T) {
	fake := NewFakeClient()
	release := fake.Gate("ListImages")

	done := make(chan error, 1)
	go func() {
		_, err := fake.ListImages(context.Background())
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("gated call returned before release")
	case <-time.After(20 * time.Millisecond):
	}
	release()
	release()
	if err := <-done; err != nil {
		t.Fatalf("ListImages: %v", err)
	}

	fake.Gate("ListVolumes")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := fake.ListVolumes(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("gated call with expired ctx = %v", err)
	}
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestDemux_MergesStdoutAndStderr(t *testing.T) {
	var raw bytes.Buffer
	stdout := stdcopy.NewStdWriter(&raw, stdcopy.Stdout)
	stderr := stdcopy.NewStdWriter(&raw, stdcopy.Stderr)
	io.WriteString(stdout, "2024-01-01T00:00:00.000000000Z started\n")
	io.WriteString(stderr, "2024-01-01T00:00:01.000000000Z warning: slow\n")
	io.WriteString(stdout, "2024-01-01T00:00:02.000000000Z done\n")

	src := &closeRecorder{Reader: &raw}
	content, err := io.ReadAll(demux(src))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	want := []string{"started", "warning: slow", "done"}
	if len(lines) != len(want) {
		t.Fatalf("Expected %d log lines, got %d: %q", len(want), len(lines), content)
	}
	for i, line := range lines {
		ts, msg, _ := strings.Cut(line, " ")
		if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
			t.Errorf("Line %d: invalid timestamp %q: %v", i, ts, err)
		}
		if msg != want[i] {
			t.Errorf("Line %d: got %q, want %q", i, msg, want[i])
		}
	}
	if !src.closed {
		t.Error("source stream not closed")
	}
}

func TestDemux_CorruptStream(t *testing.T) {
	src := &closeRecorder{Reader: strings.NewReader("\x07\x00\x00\x00\x00\x00\x00\x05hello")}
	if _, err := io.ReadAll(demux(src)); err == nil {
		t.Fatal("expected demux error for unknown stream type")
	}
}

func TestFormatPort(t *testing.T) {
	testCases := []struct {
		ip              string
		public, private uint16
		want            string
	}{
		{"", 0, 80, "80/tcp"},
		{"", 8080, 80, "8080->80/tcp"},
		{"0.0.0.0", 8080, 80, "0.0.0.0:8080->80/tcp"},
	}
	for _, tc := range testCases {
		if got := formatPort(tc.ip, tc.public, tc.private, "tcp"); got != tc.want {
			t.Errorf("formatPort(%q, %d, %d) = %q, want %q", tc.ip, tc.public, tc.private, got, tc.want)
		}
	}
}
