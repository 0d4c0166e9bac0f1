package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "ara" {
		t.Errorf("expected Use=%q, got %q", "ara", rootCmd.Use)
	}
	if rootCmd.Short == "" {
		t.Error("expected non-empty Short description")
	}
	if rootCmd.Long == "" {
		t.Error("expected non-empty Long description")
	}
	if !rootCmd.SilenceUsage {
		t.Error("expected SilenceUsage to be set")
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	want := []string{"chat", "ask", "threads", "ingest", "serve", "version"}

	registered := make(map[string]bool)
	for _, sub := range rootCmd.Commands() {
		registered[sub.Name()] = true
	}

	for _, name := range want {
		if !registered[name] {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
}

func TestThreadsSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, sub := range threadsCmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range []string{"list", "show"} {
		if !names[name] {
			t.Errorf("expected threads subcommand %q", name)
		}
	}
}

func TestIngestRequiresThreadFlag(t *testing.T) {
	flag := ingestCmd.Flags().Lookup("thread")
	if flag == nil {
		t.Fatal("expected --thread flag on ingest")
	}
	if len(flag.Annotations[cobra.BashCompOneRequiredFlag]) == 0 {
		t.Error("expected --thread to be marked required")
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{name: "just now", t: now.Add(-10 * time.Second), want: "just now"},
		{name: "minutes", t: now.Add(-5 * time.Minute), want: "5 minutes ago"},
		{name: "hours", t: now.Add(-3 * time.Hour), want: "3 hours ago"},
		{name: "days", t: now.Add(-48 * time.Hour), want: "2 days ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatTime(tt.t); got != tt.want {
				t.Errorf("formatTime() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("old timestamps use absolute format", func(t *testing.T) {
		old := time.Date(2024, 3, 15, 9, 30, 0, 0, time.Local)
		got := formatTime(old)
		if !strings.HasPrefix(got, "2024-03-15") {
			t.Errorf("formatTime() = %q, want absolute date", got)
		}
	})
}
