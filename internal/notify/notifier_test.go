package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSender captures every delivered notification.
type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.titles = append(s.titles, title)
	return nil
}

func (s *recordingSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersEvents(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{"wager_settled"}, testLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, "wager_settled", "settled", "body"))
	require.NoError(t, n.Notify(ctx, "wager_deposited", "deposited", "body"))

	assert.Equal(t, []string{"settled"}, sender.titles)
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Equal(t, []string{"t"}, sender.titles)
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	broken := &recordingSender{name: "broken", err: assert.AnError}
	working := &recordingSender{name: "working"}
	n := NewNotifier([]Sender{broken, working}, nil, testLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, []string{"t"}, working.titles, "healthy sender still delivers")
}

func TestNotifierNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	assert.NoError(t, n.NotifyAll(context.Background(), "t", "m"))
}

func TestRenderTerminalEvents(t *testing.T) {
	cases := []struct {
		event string
		title string
	}{
		{"wager_settled", "Wager settled"},
		{"wager_recovered", "Wager recovered"},
		{"wager_cancelled", "Wager cancelled"},
		{"wager_activated", "Wager activated"},
		{"wager_deposited", "Wager update"},
	}

	for _, tc := range cases {
		t.Run(tc.event, func(t *testing.T) {
			title, message := render(wagerEvent{Event: tc.event, WagerID: "w-1"})
			assert.Equal(t, tc.title, title)
			assert.Contains(t, message, "w-1")
		})
	}
}
