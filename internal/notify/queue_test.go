package notify_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"raidbot/internal/chat"
	"raidbot/internal/notify"
)

type sentMsg struct {
	ChatID int64
	Text   string
	Media  string
}

type fakeTransport struct {
	mu      sync.Mutex
	nextID  int64
	sent    []sentMsg
	deleted [][2]int64
	pinned  [][2]int64
	failing map[int64]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failing: make(map[int64]bool)}
}

func (f *fakeTransport) SendText(_ context.Context, chatID int64, text string, _ chat.Keyboard) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[chatID] {
		return 0, chat.TransportError{Op: "sendMessage", ChatID: chatID, Err: fmt.Errorf("kicked")}
	}
	f.nextID++
	f.sent = append(f.sent, sentMsg{ChatID: chatID, Text: text})
	return f.nextID, nil
}

func (f *fakeTransport) SendMedia(_ context.Context, chatID int64, mediaRef, caption string, _ chat.Keyboard) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[chatID] {
		return 0, chat.TransportError{Op: "sendPhoto", ChatID: chatID, Err: fmt.Errorf("kicked")}
	}
	f.nextID++
	f.sent = append(f.sent, sentMsg{ChatID: chatID, Text: caption, Media: mediaRef})
	return f.nextID, nil
}

func (f *fakeTransport) EditText(context.Context, int64, int64, string, chat.Keyboard) error {
	return nil
}

func (f *fakeTransport) DeleteMessage(_ context.Context, chatID, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, [2]int64{chatID, messageID})
	return nil
}

func (f *fakeTransport) PinMessage(_ context.Context, chatID, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned = append(f.pinned, [2]int64{chatID, messageID})
	return nil
}

func (f *fakeTransport) AnswerCallback(context.Context, string, string) error { return nil }

func (f *fakeTransport) snapshot() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMsg(nil), f.sent...)
}

type fakeTargets struct {
	mu      sync.Mutex
	ids     []int64
	evicted []int64
}

func (f *fakeTargets) Targets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.ids...)
}

func (f *fakeTargets) Evict(chatID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = append(f.evicted, chatID)
	remaining := f.ids[:0]
	for _, id := range f.ids {
		if id != chatID {
			remaining = append(remaining, id)
		}
	}
	f.ids = remaining
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBroadcastFanOutInOrder(t *testing.T) {
	transport := newFakeTransport()
	targets := &fakeTargets{ids: []int64{-1, -2}}
	q := notify.NewQueue(transport, targets, zap.NewNop(), time.Millisecond)
	if err := q.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop()

	q.Enqueue(notify.Job{Kind: notify.KindRaidAnnouncement, Text: "first"})
	q.Enqueue(notify.Job{Kind: notify.KindVoteUpdate, Text: "second"})

	waitFor(t, func() bool { return len(transport.snapshot()) == 4 })
	sent := transport.snapshot()
	for i, want := range []string{"first", "first", "second", "second"} {
		if sent[i].Text != want {
			t.Fatalf("send %d = %q, want %q (all: %v)", i, sent[i].Text, want, sent)
		}
	}
}

func TestSecondStartFails(t *testing.T) {
	q := notify.NewQueue(newFakeTransport(), &fakeTargets{}, zap.NewNop(), time.Millisecond)
	if err := q.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop()
	if err := q.Start(); err == nil {
		t.Fatal("second start should fail")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	q := notify.NewQueue(newFakeTransport(), &fakeTargets{}, zap.NewNop(), time.Millisecond)
	if err := q.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	q.Stop()
	// A second Stop, and a Stop on a never-started queue, must not panic.
	q.Stop()
	notify.NewQueue(newFakeTransport(), &fakeTargets{}, zap.NewNop(), time.Millisecond).Stop()
}

func TestRestartAfterStop(t *testing.T) {
	transport := newFakeTransport()
	targets := &fakeTargets{ids: []int64{-1}}
	q := notify.NewQueue(transport, targets, zap.NewNop(), time.Millisecond)
	if err := q.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	q.Enqueue(notify.Job{Kind: notify.KindVoteUpdate, Text: "first"})
	waitFor(t, func() bool { return len(transport.snapshot()) == 1 })
	q.Stop()

	if err := q.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer q.Stop()
	q.Enqueue(notify.Job{Kind: notify.KindVoteUpdate, Text: "second"})
	waitFor(t, func() bool { return len(transport.snapshot()) >= 2 })
	sent := transport.snapshot()
	if sent[len(sent)-1].Text != "second" {
		t.Fatalf("restarted consumer did not deliver: %+v", sent)
	}
}

func TestDeleteBeforeSendPerKind(t *testing.T) {
	transport := newFakeTransport()
	targets := &fakeTargets{ids: []int64{-1}}
	q := notify.NewQueue(transport, targets, zap.NewNop(), time.Millisecond)
	if err := q.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop()

	q.Enqueue(notify.Job{Kind: notify.KindRaidAnnouncement, Text: "round 1"})
	waitFor(t, func() bool { return len(transport.snapshot()) == 1 })

	// A different kind must not delete the announcement.
	q.Enqueue(notify.Job{Kind: notify.KindDailySummary, Text: "summary"})
	waitFor(t, func() bool { return len(transport.snapshot()) == 2 })
	transport.mu.Lock()
	deletions := len(transport.deleted)
	transport.mu.Unlock()
	if deletions != 0 {
		t.Fatalf("cross-kind deletion: %d", deletions)
	}

	// Same kind deletes the previous round first.
	q.Enqueue(notify.Job{Kind: notify.KindRaidAnnouncement, Text: "round 2"})
	waitFor(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return len(transport.deleted) == 1
	})
	transport.mu.Lock()
	gone := transport.deleted[0]
	transport.mu.Unlock()
	if gone[0] != -1 || gone[1] != 1 {
		t.Fatalf("deleted = %v, want chat -1 message 1", gone)
	}
}

func TestFailedTargetIsEvicted(t *testing.T) {
	transport := newFakeTransport()
	transport.failing[-2] = true
	targets := &fakeTargets{ids: []int64{-1, -2, -3}}
	q := notify.NewQueue(transport, targets, zap.NewNop(), time.Millisecond)
	if err := q.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop()

	q.Enqueue(notify.Job{Kind: notify.KindRaidAnnouncement, Text: "hi"})
	waitFor(t, func() bool { return len(transport.snapshot()) == 2 })

	targets.mu.Lock()
	evicted := append([]int64(nil), targets.evicted...)
	targets.mu.Unlock()
	if len(evicted) != 1 || evicted[0] != -2 {
		t.Fatalf("evicted = %v, want [-2]", evicted)
	}

	// Healthy targets were still served.
	for _, m := range transport.snapshot() {
		if m.ChatID == -2 {
			t.Fatal("failing target should not appear in sends")
		}
	}
}

func TestPinnedBroadcast(t *testing.T) {
	transport := newFakeTransport()
	targets := &fakeTargets{ids: []int64{-1}}
	q := notify.NewQueue(transport, targets, zap.NewNop(), time.Millisecond)
	if err := q.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop()

	q.Enqueue(notify.Job{Kind: notify.KindRaidAnnouncement, Text: "pin me", Pin: true})
	waitFor(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return len(transport.pinned) == 1
	})
}

func TestBrandingAttached(t *testing.T) {
	transport := newFakeTransport()
	targets := &fakeTargets{ids: []int64{-1, -2}}
	q := notify.NewQueue(transport, targets, zap.NewNop(), time.Millisecond)
	q.Branding = func(chatID int64) string {
		if chatID == -1 {
			return "brand-photo"
		}
		return ""
	}
	if err := q.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop()

	q.Enqueue(notify.Job{Kind: notify.KindRaidAnnouncement, Text: "styled"})
	waitFor(t, func() bool { return len(transport.snapshot()) == 2 })
	for _, m := range transport.snapshot() {
		switch m.ChatID {
		case -1:
			if m.Media != "brand-photo" {
				t.Fatalf("branded group got %+v", m)
			}
		case -2:
			if m.Media != "" {
				t.Fatalf("plain group got %+v", m)
			}
		}
	}
}

func TestExplicitTargetsOverrideRegistry(t *testing.T) {
	transport := newFakeTransport()
	targets := &fakeTargets{ids: []int64{-1, -2}}
	q := notify.NewQueue(transport, targets, zap.NewNop(), time.Millisecond)
	if err := q.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop()

	q.Enqueue(notify.Job{Kind: notify.KindDailySummary, Text: "just you", Targets: []int64{-2}})
	waitFor(t, func() bool { return len(transport.snapshot()) == 1 })
	if got := transport.snapshot()[0].ChatID; got != -2 {
		t.Fatalf("sent to %d, want -2", got)
	}
}
