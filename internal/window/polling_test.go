package window

import (
	"context"
	"sync"
	"testing"
	"time"
)

type scriptedProvider struct {
	mu     sync.Mutex
	info   WindowInfo
	err    error
	closed map[uintptr]bool
}

func (p *scriptedProvider) set(info WindowInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.info = info
	p.err = nil
}

func (p *scriptedProvider) ForegroundWindow() (WindowInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info, p.err
}

func (p *scriptedProvider) IsWindow(h uintptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed[h]
}

type recorder struct {
	mu     sync.Mutex
	events []WindowEvent
}

func (r *recorder) handle(e WindowEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func TestPollEmitsFocusAndTitleChanges(t *testing.T) {
	p := &scriptedProvider{closed: map[uintptr]bool{}}
	src := NewPollingSource(p, time.Hour, nil)
	rec := &recorder{}
	src.OnEvent(rec.handle)

	p.set(WindowInfo{Handle: 1, Title: "main.go - VS Code", ProcessName: "Code.exe"})
	src.Poll()
	src.Poll() // unchanged, no event

	p.set(WindowInfo{Handle: 1, Title: "util.go - VS Code", ProcessName: "Code.exe"})
	src.Poll()

	p.closed[1] = true
	p.set(WindowInfo{Handle: 2, Title: "Inbox - Outlook", ProcessName: "OUTLOOK.EXE"})
	src.Poll()

	got := rec.types()
	want := []EventType{EventFocused, EventTitleChanged, EventClosed, EventFocused}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	active, err := src.ActiveWindow()
	if err != nil || active.Handle != 2 {
		t.Errorf("Expected active handle 2, got %v (err %v)", active.Handle, err)
	}
}

func TestPollIgnoresMissingForeground(t *testing.T) {
	p := &scriptedProvider{err: ErrNoActiveWindow}
	src := NewPollingSource(p, time.Hour, nil)
	rec := &recorder{}
	src.OnEvent(rec.handle)

	src.Poll()
	if n := len(rec.types()); n != 0 {
		t.Errorf("Expected no events, got %d", n)
	}
}

func TestHandlerPanicDoesNotStopDelivery(t *testing.T) {
	p := &scriptedProvider{closed: map[uintptr]bool{}}
	p.set(WindowInfo{Handle: 7, Title: "x"})
	src := NewPollingSource(p, time.Hour, nil)
	rec := &recorder{}
	src.OnEvent(func(WindowEvent) { panic("bad handler") })
	src.OnEvent(rec.handle)

	src.Poll()
	if n := len(rec.types()); n != 1 {
		t.Errorf("Expected second handler to run, got %d events", n)
	}
}

func TestStartStop(t *testing.T) {
	p := &scriptedProvider{closed: map[uintptr]bool{}}
	p.set(WindowInfo{Handle: 3, Title: "Terminal"})
	src := NewPollingSource(p, 5*time.Millisecond, nil)
	rec := &recorder{}
	src.OnEvent(rec.handle)

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := src.Start(context.Background()); err == nil {
		t.Error("Expected error starting twice")
	}
	time.Sleep(30 * time.Millisecond)
	src.Stop()
	src.Stop()

	if got := rec.types(); len(got) != 1 || got[0] != EventFocused {
		t.Errorf("Expected single focus event, got %v", got)
	}
}
