package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"remindbot/internal/domain"
)

type fakeReminderStore struct {
	reminders []domain.Reminder
	failDue   bool
	failMark  map[int64]bool
	marked    []int64
}

func (s *fakeReminderStore) CreateReminder(_ context.Context, r domain.Reminder) (int64, error) {
	r.ID = int64(len(s.reminders) + 1)
	s.reminders = append(s.reminders, r)
	return r.ID, nil
}

func (s *fakeReminderStore) DueReminders(_ context.Context, now time.Time, limit int) ([]domain.Reminder, error) {
	if s.failDue {
		return nil, errors.New("store down")
	}
	var due []domain.Reminder
	for _, r := range s.reminders {
		if !r.Sent && !r.RemindAt.After(now) {
			due = append(due, r)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (s *fakeReminderStore) MarkSent(_ context.Context, id int64) error {
	if s.failMark[id] {
		return errors.New("store down")
	}
	for i := range s.reminders {
		if s.reminders[i].ID == id {
			s.reminders[i].Sent = true
			s.marked = append(s.marked, id)
			return nil
		}
	}
	return fmt.Errorf("reminder %d not found", id)
}

type fakeNotifier struct {
	sent    []int64
	texts   []string
	failFor map[int64]bool
}

func (n *fakeNotifier) Notify(_ context.Context, chatID int64, text string, withKeyboard bool) error {
	if n.failFor[chatID] {
		return errors.New("telegram unreachable")
	}
	n.sent = append(n.sent, chatID)
	n.texts = append(n.texts, text)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSweeper(store *fakeReminderStore, n *fakeNotifier, now time.Time, batch int) *Sweeper {
	return New(Config{
		Store:     store,
		Notifier:  n,
		Logger:    testLogger(),
		BatchSize: batch,
		Now:       func() time.Time { return now },
	})
}

func seed(store *fakeReminderStore, userID int64, msg string, at time.Time) int64 {
	id, _ := store.CreateReminder(context.Background(), domain.Reminder{UserID: userID, Message: msg, RemindAt: at})
	return id
}

func TestRun_NoDueReminders(t *testing.T) {
	now := time.Now()
	store := &fakeReminderStore{}
	seed(store, 1, "future", now.Add(time.Hour))
	n := &fakeNotifier{}

	delivered, err := testSweeper(store, n, now, 50).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if delivered != 0 {
		t.Errorf("expected 0 delivered, got %d", delivered)
	}
	if len(n.sent) != 0 {
		t.Error("no dispatch must happen with nothing due")
	}
}

func TestRun_DeliversAndMarksEachSent(t *testing.T) {
	now := time.Now()
	store := &fakeReminderStore{}
	seed(store, 10, "early", now.Add(-2*time.Hour))
	seed(store, 20, "late", now.Add(-time.Hour))
	n := &fakeNotifier{}

	delivered, err := testSweeper(store, n, now, 50).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if delivered != 2 {
		t.Fatalf("expected 2 delivered, got %d", delivered)
	}
	for _, r := range store.reminders {
		if !r.Sent {
			t.Errorf("reminder %d left unsent after successful dispatch", r.ID)
		}
	}
}

func TestRun_AscendingOrder(t *testing.T) {
	now := time.Now()
	store := &fakeReminderStore{}
	// Store accepts them in due order; the sweeper must dispatch earliest-due
	// first.
	seed(store, 1, "first", now.Add(-3*time.Hour))
	seed(store, 2, "second", now.Add(-2*time.Hour))
	seed(store, 3, "third", now.Add(-time.Hour))
	n := &fakeNotifier{}

	if _, err := testSweeper(store, n, now, 50).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(n.sent) != 3 || n.sent[0] != 1 || n.sent[1] != 2 || n.sent[2] != 3 {
		t.Errorf("expected dispatch order [1 2 3], got %v", n.sent)
	}
}

func TestRun_DispatchFailureSkipsAndContinues(t *testing.T) {
	now := time.Now()
	store := &fakeReminderStore{}
	seed(store, 1, "will fail", now.Add(-2*time.Hour))
	seed(store, 2, "will succeed", now.Add(-time.Hour))
	n := &fakeNotifier{failFor: map[int64]bool{1: true}}

	delivered, err := testSweeper(store, n, now, 50).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if delivered != 1 {
		t.Errorf("expected 1 delivered, got %d", delivered)
	}
	if store.reminders[0].Sent {
		t.Error("failed dispatch must leave the reminder unsent for retry")
	}
	if !store.reminders[1].Sent {
		t.Error("the batch must continue past a failed item")
	}
}

func TestRun_RetryOnNextSweep(t *testing.T) {
	now := time.Now()
	store := &fakeReminderStore{}
	seed(store, 1, "flaky", now.Add(-time.Hour))
	n := &fakeNotifier{failFor: map[int64]bool{1: true}}
	s := testSweeper(store, n, now, 50)

	if delivered, _ := s.Run(context.Background()); delivered != 0 {
		t.Fatal("first sweep should deliver nothing")
	}

	// Transport recovers.
	n.failFor = nil
	delivered, err := s.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if delivered != 1 {
		t.Errorf("expected retry to deliver, got %d", delivered)
	}
}

func TestRun_MarkSentFailureDoesNotCountDelivery(t *testing.T) {
	now := time.Now()
	store := &fakeReminderStore{failMark: map[int64]bool{1: true}}
	seed(store, 1, "m", now.Add(-time.Hour))
	n := &fakeNotifier{}

	delivered, err := testSweeper(store, n, now, 50).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if delivered != 0 {
		t.Errorf("an unmarked delivery must not count, got %d", delivered)
	}
}

func TestRun_BatchBound(t *testing.T) {
	now := time.Now()
	store := &fakeReminderStore{}
	for i := 0; i < 5; i++ {
		seed(store, int64(i+1), "m", now.Add(-time.Duration(5-i)*time.Minute))
	}
	n := &fakeNotifier{}

	delivered, err := testSweeper(store, n, now, 2).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if delivered != 2 {
		t.Errorf("expected batch-limited 2, got %d", delivered)
	}
}

func TestRun_StoreFailure(t *testing.T) {
	store := &fakeReminderStore{failDue: true}
	n := &fakeNotifier{}
	if _, err := testSweeper(store, n, time.Now(), 50).Run(context.Background()); err == nil {
		t.Fatal("expected error when the store is unavailable")
	}
}

func TestRun_DeliveryTextEscapesHTML(t *testing.T) {
	now := time.Now()
	store := &fakeReminderStore{}
	seed(store, 1, "check <tag> & co", now.Add(-time.Minute))
	n := &fakeNotifier{}

	if _, err := testSweeper(store, n, now, 50).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(n.texts) != 1 || !strings.Contains(n.texts[0], "&lt;tag&gt; &amp; co") {
		t.Errorf("delivery text must HTML-escape the message, got %q", n.texts)
	}
}
