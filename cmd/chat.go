package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/arahq/ara/internal/engine"
)

var chatThreadID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation. The conversation is persisted and
can be resumed later with --thread.

Commands inside the session:
  /new    start a fresh thread
  /id     print the current thread ID
  /exit   leave the session`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatThreadID, "thread", "", "resume an existing thread by ID")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	threadID := chatThreadID
	if threadID == "" {
		threadID = uuid.NewString()
		fmt.Printf("Started thread %s\n", threadID)
	} else {
		fmt.Printf("Resuming thread %s\n", threadID)
	}
	fmt.Println("Type /exit to leave, /new for a fresh thread, /id for the thread ID.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("\nyou> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch input {
		case "/exit", "/quit":
			return nil
		case "/new":
			threadID = uuid.NewString()
			fmt.Printf("Started thread %s\n", threadID)
			continue
		case "/id":
			fmt.Println(threadID)
			continue
		}

		fmt.Print("ara> ")
		_, err := a.engine.SubmitStream(ctx, threadID, input, printEvents)
		fmt.Println()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

// printEvents renders streaming output: deltas inline, tool activity as
// bracketed markers.
func printEvents(ev engine.Event) {
	switch ev.Type {
	case engine.EventDelta:
		fmt.Print(ev.Delta)
	case engine.EventToolCall:
		fmt.Printf("\n[calling %s...]\n", ev.Tool)
	case engine.EventToolResult:
		fmt.Printf("[%s done]\n", ev.Tool)
	}
}
