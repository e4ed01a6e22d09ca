package notify

import (
	"context"
	"log/slog"
	"sync"

	"library_circulation/circulation"
)

// LogNotifier only logs; used when no Redis is configured.
type LogNotifier struct{ Log *slog.Logger }

func (n LogNotifier) Notify(ctx context.Context, memberID string, kind circulation.NotificationKind, subject, message string) error {
	l := n.Log
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "notification",
		slog.String("member", memberID),
		slog.String("kind", string(kind)),
		slog.String("subject", subject),
		slog.String("message", message))
	return nil
}

// Sent is one delivered notification as seen by Recorder.
type Sent struct {
	MemberID string
	Kind     circulation.NotificationKind
	Subject  string
	Message  string
}

// Recorder keeps every notification in memory. Safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	// Err, when set, is returned from every Notify call after recording.
	Err error
}

func (r *Recorder) Notify(_ context.Context, memberID string, kind circulation.NotificationKind, subject, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{MemberID: memberID, Kind: kind, Subject: subject, Message: message})
	return r.Err
}

func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Of returns the notifications of one kind.
func (r *Recorder) Of(kind circulation.NotificationKind) []Sent {
	var out []Sent
	for _, s := range r.Sent() {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}
