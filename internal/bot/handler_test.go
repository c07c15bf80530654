package bot

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"remindbot/internal/domain"
)

type fakeBus struct {
	outbound []domain.OutboundMessage
}

func (b *fakeBus) Publish(domain.InboundMessage)                   {}
func (b *fakeBus) Subscribe() <-chan domain.InboundMessage         { return nil }
func (b *fakeBus) SendOutbound(msg domain.OutboundMessage)         { b.outbound = append(b.outbound, msg) }
func (b *fakeBus) OnOutbound(string, func(domain.OutboundMessage)) {}
func (b *fakeBus) Close()                                          {}

type fakeStore struct {
	users     map[int64]domain.User
	states    map[int64]domain.ConversationState
	reminders []domain.Reminder
	nextID    int64

	failEnsure bool
	failLoad   bool
	failSet    bool
	failCreate bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  make(map[int64]domain.User),
		states: make(map[int64]domain.ConversationState),
	}
}

func (s *fakeStore) EnsureUser(_ context.Context, u domain.User) error {
	if s.failEnsure {
		return errors.New("store down")
	}
	s.users[u.ID] = u
	return nil
}

func (s *fakeStore) State(_ context.Context, userID int64) (domain.ConversationState, error) {
	if s.failLoad {
		return domain.ConversationState{}, errors.New("store down")
	}
	if st, ok := s.states[userID]; ok {
		return st, nil
	}
	return domain.ConversationState{UserID: userID, Stage: domain.StageIdle}, nil
}

func (s *fakeStore) SetState(_ context.Context, st domain.ConversationState) error {
	if s.failSet {
		return errors.New("store down")
	}
	s.states[st.UserID] = st
	return nil
}

func (s *fakeStore) CreateReminder(_ context.Context, r domain.Reminder) (int64, error) {
	if s.failCreate {
		return 0, errors.New("store down")
	}
	s.nextID++
	r.ID = s.nextID
	s.reminders = append(s.reminders, r)
	return r.ID, nil
}

func (s *fakeStore) DueReminders(_ context.Context, now time.Time, limit int) ([]domain.Reminder, error) {
	return nil, nil
}

func (s *fakeStore) MarkSent(_ context.Context, id int64) error { return nil }

func newTestHandler(store *fakeStore, b *fakeBus, now func() time.Time) *Handler {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return NewHandler(HandlerConfig{
		Machine:   newTestMachine(),
		Users:     store,
		States:    store,
		Reminders: store,
		Bus:       b,
		Logger:    logger,
		Now:       now,
	})
}

func inbound(text string) domain.InboundMessage {
	return domain.InboundMessage{
		Channel:   "telegram",
		ChatID:    testUser.ID,
		From:      testUser,
		Text:      text,
		Timestamp: testNow,
	}
}

func fixedNow() time.Time { return testNow }

func TestHandle_FullFlowPersistsReminder(t *testing.T) {
	store := newFakeStore()
	b := &fakeBus{}
	h := newTestHandler(store, b, fixedNow)
	ctx := context.Background()

	for _, text := range []string{"/start", DefaultTexts().CreateButton, "Buy milk", "25.03.2026", "09:30"} {
		if err := h.Handle(ctx, inbound(text)); err != nil {
			t.Fatalf("%q: %v", text, err)
		}
	}

	if len(store.reminders) != 1 {
		t.Fatalf("expected 1 stored reminder, got %d", len(store.reminders))
	}
	r := store.reminders[0]
	want := time.Date(2026, 3, 25, 9, 30, 0, 0, time.Local)
	if r.Message != "Buy milk" || !r.RemindAt.Equal(want) {
		t.Errorf("unexpected reminder: %+v", r)
	}
	if st := store.states[testUser.ID]; st.Stage != domain.StageIdle || !st.Draft.Empty() {
		t.Errorf("state must reset to idle after completion, got %+v", st)
	}
	if _, ok := store.users[testUser.ID]; !ok {
		t.Error("user profile must be upserted")
	}
}

func TestHandle_EmptyTextIsNoOp(t *testing.T) {
	store := newFakeStore()
	b := &fakeBus{}
	h := newTestHandler(store, b, fixedNow)

	if err := h.Handle(context.Background(), inbound("   ")); err != nil {
		t.Fatal(err)
	}
	if len(b.outbound) != 0 {
		t.Error("transport noise must not produce replies")
	}
	if len(store.users) != 0 {
		t.Error("transport noise must not touch the store")
	}
}

func TestHandle_SetStateFailureDoesNotAdvance(t *testing.T) {
	store := newFakeStore()
	store.states[testUser.ID] = domain.ConversationState{UserID: testUser.ID, Stage: domain.StageWaitMessage}
	store.failSet = true
	b := &fakeBus{}
	h := newTestHandler(store, b, fixedNow)

	err := h.Handle(context.Background(), inbound("Buy milk"))
	if err == nil {
		t.Fatal("expected error when state persist fails")
	}
	if st := store.states[testUser.ID]; st.Stage != domain.StageWaitMessage {
		t.Errorf("stage must not advance on persist failure, got %s", st.Stage)
	}
	if len(b.outbound) != 1 || b.outbound[0].Text != DefaultTexts().Transient {
		t.Error("expected a generic transient-error reply")
	}
}

func TestHandle_CreateReminderFailureDoesNotAdvance(t *testing.T) {
	store := newFakeStore()
	store.states[testUser.ID] = domain.ConversationState{
		UserID: testUser.ID,
		Stage:  domain.StageWaitTime,
		Draft:  domain.Draft{Message: "Buy milk", Date: "25.03.2026"},
	}
	store.failCreate = true
	b := &fakeBus{}
	h := newTestHandler(store, b, fixedNow)

	err := h.Handle(context.Background(), inbound("09:30"))
	if err == nil {
		t.Fatal("expected error when reminder commit fails")
	}
	if st := store.states[testUser.ID]; st.Stage != domain.StageWaitTime {
		t.Errorf("stage must stay wait_time so the same input can be retried, got %s", st.Stage)
	}
	if len(store.reminders) != 0 {
		t.Error("no reminder must be stored")
	}
}

func TestHandle_LoadStateFailure(t *testing.T) {
	store := newFakeStore()
	store.failLoad = true
	b := &fakeBus{}
	h := newTestHandler(store, b, fixedNow)

	if err := h.Handle(context.Background(), inbound("/start")); err == nil {
		t.Fatal("expected error when state load fails")
	}
	if len(b.outbound) != 1 || b.outbound[0].Text != DefaultTexts().Transient {
		t.Error("expected a transient-error reply")
	}
}

func TestHandle_CommitRecheckRejectsStaleTimestamp(t *testing.T) {
	store := newFakeStore()
	cur := domain.ConversationState{
		UserID: testUser.ID,
		Stage:  domain.StageWaitTime,
		Draft:  domain.Draft{Message: "Buy milk", Date: "25.03.2026"},
	}
	store.states[testUser.ID] = cur
	b := &fakeBus{}

	// The clock jumps past the reminder between validation and commit.
	calls := 0
	jumpyNow := func() time.Time {
		calls++
		if calls == 1 {
			return testNow
		}
		return time.Date(2026, 3, 25, 10, 0, 0, 0, time.Local)
	}
	h := newTestHandler(store, b, jumpyNow)

	if err := h.Handle(context.Background(), inbound("09:30")); err != nil {
		t.Fatal(err)
	}
	if len(store.reminders) != 0 {
		t.Error("stale timestamp must not be committed")
	}
	if st := store.states[testUser.ID]; st.Stage != domain.StageWaitTime || st.Draft != cur.Draft {
		t.Errorf("state must stay in wait_time with the date retained, got %+v", st)
	}
	if len(b.outbound) != 1 || b.outbound[0].Text != DefaultTexts().PastTime {
		t.Error("expected already-past reply")
	}
}

func TestHandle_RepliesCarryChannelAndChat(t *testing.T) {
	store := newFakeStore()
	b := &fakeBus{}
	h := newTestHandler(store, b, fixedNow)

	msg := inbound("/start")
	msg.Channel = "cli"
	msg.ChatID = 777
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(b.outbound) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(b.outbound))
	}
	if b.outbound[0].Channel != "cli" || b.outbound[0].ChatID != 777 {
		t.Errorf("reply must go back to the source chat: %+v", b.outbound[0])
	}
}
