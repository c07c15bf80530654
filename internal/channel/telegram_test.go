package channel

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestSplitMessage_Short(t *testing.T) {
	chunks := splitMessage("short message", 100)
	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestSplitMessage_Long(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "word\n"
	}
	chunks := splitMessage(long, 50)
	if len(chunks) < 2 {
		t.Errorf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 50 {
			t.Errorf("chunk %d too long: %d", i, len(c))
		}
	}
}

func TestAllowed_EmptyListAllowsAll(t *testing.T) {
	if !allowed(nil, 123) {
		t.Error("empty allow list must allow everyone")
	}
}

func TestAllowed_List(t *testing.T) {
	list := []int64{1, 2}
	if !allowed(list, 2) {
		t.Error("listed user must be allowed")
	}
	if allowed(list, 3) {
		t.Error("unlisted user must be rejected")
	}
}

func TestInboundFromUpdate_Message(t *testing.T) {
	u := tgbotapi.Update{Message: &tgbotapi.Message{
		Text: "  hello  ",
		Date: 1750000000,
		Chat: &tgbotapi.Chat{ID: 10},
		From: &tgbotapi.User{ID: 20, UserName: "alice", FirstName: "Alice"},
	}}
	msg, ok := inboundFromUpdate(u)
	if !ok {
		t.Fatal("expected a usable message")
	}
	if msg.Text != "hello" {
		t.Errorf("text must be trimmed, got %q", msg.Text)
	}
	if msg.ChatID != 10 || msg.From.ID != 20 || msg.From.Username != "alice" {
		t.Errorf("unexpected inbound: %+v", msg)
	}
}

func TestInboundFromUpdate_EditedMessage(t *testing.T) {
	u := tgbotapi.Update{EditedMessage: &tgbotapi.Message{
		Text: "edited",
		Chat: &tgbotapi.Chat{ID: 10},
		From: &tgbotapi.User{ID: 20},
	}}
	msg, ok := inboundFromUpdate(u)
	if !ok {
		t.Fatal("edited messages must be treated like messages")
	}
	if msg.Text != "edited" {
		t.Errorf("unexpected text: %q", msg.Text)
	}
}

func TestInboundFromUpdate_Noise(t *testing.T) {
	cases := []tgbotapi.Update{
		{}, // no message at all
		{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}}},                                        // no sender
		{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 1}}},                                        // no chat
		{Message: &tgbotapi.Message{Text: "   ", Chat: &tgbotapi.Chat{ID: 1}, From: &tgbotapi.User{ID: 1}}}, // empty text
	}
	for i, u := range cases {
		if _, ok := inboundFromUpdate(u); ok {
			t.Errorf("case %d: noise must be dropped", i)
		}
	}
}
