package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "github.com/tulikaff659/football-bot/internal/transport"
)

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()
	got := splitTelegramText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("unexpected chunks: %q", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(text, 10, "")
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2: %q", len(got), got)
	}
	if got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("unexpected chunks: %q", got)
	}
}

func TestSplitTelegramTextKeepsTagsWhole(t *testing.T) {
	t.Parallel()
	text := "abcdef<b>x</b>"
	got := splitTelegramText(text, 8, "HTML")
	for _, c := range got {
		if strings.Count(c, "<") != strings.Count(c, ">") {
			t.Fatalf("chunk splits a tag: %q (all %q)", c, got)
		}
	}
	if strings.Join(got, "") != text {
		t.Fatalf("chunks lost text: %q", got)
	}
}

func TestSendWithContextAbandonsHungCall(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := sendWithContext(ctx, func() (*tele.Message, error) {
		<-release
		return &tele.Message{}, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if took := time.Since(start); took > time.Second {
		t.Fatalf("returned after %v", took)
	}
}

func TestSendWithContextReturnsResult(t *testing.T) {
	t.Parallel()
	msg, err := sendWithContext(context.Background(), func() (*tele.Message, error) {
		return &tele.Message{ID: 7}, nil
	})
	if err != nil || msg.ID != 7 {
		t.Fatalf("got %v, %v", msg, err)
	}
}

func TestClassifySendErrorMarksGoneRecipients(t *testing.T) {
	t.Parallel()
	for _, err := range []error{tele.ErrBlockedByUser, tele.ErrUserIsDeactivated, tele.ErrChatNotFound} {
		if got := classifySendError(err); !errors.Is(got, kit.ErrRecipientGone) || !errors.Is(got, err) {
			t.Fatalf("classifySendError(%v) = %v", err, got)
		}
	}
	if got := classifySendError(errors.New("flood")); errors.Is(got, kit.ErrRecipientGone) {
		t.Fatalf("transient error marked as gone")
	}
}
