package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteLoggerRoundTrip(t *testing.T) {
	l, err := NewSQLiteLogger(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteLogger() error = %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	entries := []Entry{
		{Timestamp: base, Source: "cli", CommandID: "build", Rendered: "make build", Workdir: "/src", ExitCode: 0, DurationMs: 120},
		{Timestamp: base.Add(time.Minute), Source: "telegram", ChatID: 42, Username: "ops", CommandID: "deploy", Rendered: `deploy --env "prod"`, ExitCode: 2, DurationMs: 900},
	}
	for _, e := range entries {
		if err := l.Log(ctx, e); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	got, err := l.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent() returned %d entries, want 2", len(got))
	}

	newest := got[0]
	if newest.CommandID != "deploy" || newest.ChatID != 42 || newest.Username != "ops" || newest.ExitCode != 2 {
		t.Errorf("newest = %+v", newest)
	}
	if !newest.Timestamp.Equal(base.Add(time.Minute)) {
		t.Errorf("Timestamp = %v", newest.Timestamp)
	}
	if got[1].Workdir != "/src" || got[1].Rendered != "make build" {
		t.Errorf("oldest = %+v", got[1])
	}
}

func TestRecentLimit(t *testing.T) {
	l, err := NewSQLiteLogger(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := l.Log(ctx, Entry{Source: "cli", CommandID: "c", Rendered: "true"}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := l.Recent(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("Recent(3) returned %d entries", len(got))
	}
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	if err := l.Log(context.Background(), Entry{}); err != nil {
		t.Error(err)
	}
	if got, err := l.Recent(context.Background(), 5); err != nil || got != nil {
		t.Errorf("Recent() = %v, %v", got, err)
	}
}
