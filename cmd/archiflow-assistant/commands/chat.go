package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/Attafii/Archiflow-sub001/pkg/archiflow/assistant"
	"github.com/Attafii/Archiflow-sub001/pkg/archiflow/assistant/history"
)

// newChatCmd creates the `archiflow-assistant chat` command.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the assistant",
		Long: `Send a single message or start an interactive session (no
arguments). Conversation history is persisted per session.

Examples:
  archiflow-assistant chat "Which invoices are overdue?"
  archiflow-assistant chat --json "Estimate the cost of 200 bricks"
  archiflow-assistant chat  # interactive mode`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().Bool("json", false, "expect structured JSON output from the model")
	cmd.Flags().String("session", "default", "conversation session id")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	client, err := assistant.New(cfg.Client, nil, logger)
	if err != nil {
		return err
	}

	store, err := history.NewStore(cfg.History.Path, logger)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer store.Close()

	structured, _ := cmd.Flags().GetBool("json")
	session, _ := cmd.Flags().GetString("session")
	ctx := cmd.Context()

	if len(args) > 0 {
		return sendOne(ctx, client, store, session, args[0], structured, cfg.Client.MaxWindow)
	}
	return runInteractive(ctx, client, store, session, structured, cfg)
}

// sendOne sends a single message within the stored session and prints the
// reply.
func sendOne(ctx context.Context, client *assistant.Client, store *history.Store, session, message string, structured bool, window int) error {
	conv, err := store.Load(ctx, session, window)
	if err != nil {
		return err
	}

	userMsg := assistant.NewMessage(assistant.RoleUser, message)
	conv.Append(userMsg)

	result, err := send(ctx, client, conv, structured)
	if err != nil {
		var gerr *assistant.GatewayError
		if errors.As(err, &gerr) && gerr.Kind == assistant.KindParse && gerr.Raw != "" {
			// The model ignored the JSON-only instruction; show the raw
			// text instead of failing.
			fmt.Println(gerr.Raw)
			return nil
		}
		return err
	}

	if err := store.Append(ctx, session, userMsg); err != nil {
		return err
	}
	if err := store.Append(ctx, session, assistant.NewMessage(assistant.RoleAssistant, result.Content)); err != nil {
		return err
	}

	fmt.Println(result.Content)
	return nil
}

// runInteractive starts a readline REPL. Typing indicators come from the
// gateway's event bus.
func runInteractive(ctx context.Context, client *assistant.Client, store *history.Store, session string, structured bool, cfg *assistant.Config) error {
	rl, err := readline.New("you> ")
	if err != nil {
		return fmt.Errorf("starting readline: %w", err)
	}
	defer rl.Close()

	unsubscribe := client.Bus().Subscribe(func(event assistant.Event) {
		switch event.Type {
		case assistant.EventTypingStarted:
			fmt.Print("assistant is typing...\r")
		case assistant.EventTypingFinished:
			fmt.Print("                       \r")
		}
	})
	defer unsubscribe()

	fmt.Printf("%s — interactive mode. /clear resets the session, /quit exits.\n", cfg.Name)

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF on Ctrl-D, readline.ErrInterrupt on Ctrl-C
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "/quit", line == "/exit":
			return nil
		case line == "/clear":
			if err := store.Clear(ctx, session); err != nil {
				fmt.Printf("error: %v\n", err)
			} else {
				fmt.Println("session cleared")
			}
			continue
		}

		if err := sendOne(ctx, client, store, session, line, structured, cfg.Client.MaxWindow); err != nil {
			// Terminal gateway errors are shown, not fatal: the user can
			// keep chatting (the gateway already did all retrying).
			fmt.Printf("assistant error: %v\n", err)
		}
	}
}

func send(ctx context.Context, client *assistant.Client, conv *assistant.Conversation, structured bool) (*assistant.CompletionResult, error) {
	if structured {
		return client.SendJSON(ctx, conv)
	}
	return client.Send(ctx, conv)
}
