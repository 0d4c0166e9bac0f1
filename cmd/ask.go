package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var askThreadID string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askThreadID, "thread", "", "ask within an existing thread")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	threadID := askThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	turn, err := a.engine.Submit(ctx, threadID, strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("asking: %w", err)
	}

	fmt.Println(turn[len(turn)-1].Content)
	return nil
}
