package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arahq/ara/internal/thread"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Inspect stored conversations",
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, newest first",
	RunE:  runThreadsList,
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Print the full history of one conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runThreadsShow,
}

func init() {
	threadsCmd.AddCommand(threadsListCmd)
	threadsCmd.AddCommand(threadsShowCmd)
	rootCmd.AddCommand(threadsCmd)
}

func runThreadsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	threads, err := a.threads.List(ctx, 100, 0)
	if err != nil {
		return fmt.Errorf("listing threads: %w", err)
	}
	if len(threads) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}

	for _, t := range threads {
		title := t.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %-43s %3d messages  %s\n", t.ID, title, t.MessageCount, formatTime(t.UpdatedAt))
	}
	return nil
}

func runThreadsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	threadID := args[0]
	t, err := a.threads.Get(ctx, threadID)
	if err != nil {
		return fmt.Errorf("loading thread: %w", err)
	}
	messages, err := a.threads.Load(ctx, threadID)
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}

	fmt.Printf("Thread: %s\n", t.ID)
	fmt.Printf("Title: %s\n", t.Title)
	fmt.Printf("Updated: %s\n", formatTime(t.UpdatedAt))
	fmt.Printf("Messages: %d\n\n", len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case thread.RoleUser:
			fmt.Printf("you> %s\n\n", msg.Content)
		case thread.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				for _, call := range msg.ToolCalls {
					fmt.Printf("ara> [called %s]\n", call.Name)
				}
			}
			if msg.Content != "" {
				fmt.Printf("ara> %s\n\n", msg.Content)
			}
		case thread.RoleTool:
			// Tool payloads are model-facing; keep the transcript readable.
		}
	}
	return nil
}

// formatTime renders timestamps relative for recent activity.
func formatTime(t time.Time) string {
	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02 15:04")
	}
}
