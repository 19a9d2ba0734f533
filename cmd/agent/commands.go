// commands.go contains the cobra command definitions: run (single-shot),
// chat (interactive REPL), and chats (lifecycle management).
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/app"
	"github.com/haasonsaas/nexus/internal/config"
)

func loadConfig(path string) (*config.Config, error) {
	path = resolveConfigPath(path)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return config.LoadBytes(nil)
		}
		return nil, err
	}
	return config.Load(path)
}

// buildRunCmd creates the "run" command: one message in, one answer out,
// against a named (or freshly generated) chat.
func buildRunCmd(configPath *string) *cobra.Command {
	var chatID string

	cmd := &cobra.Command{
		Use:   "run [message]",
		Short: "Run a single message through the agent and print its answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := app.Bootstrap(cfg)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}

			if chatID == "" {
				chatID = uuid.NewString()
			}
			session, err := a.OpenSession(chatID, "run")
			if err != nil {
				return fmt.Errorf("open session: %w", err)
			}

			result, err := session.Turn(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.FinalAnswer)
			return nil
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "Chat ID to run against (default: a fresh one-off ID)")
	return cmd
}

// buildChatCmd creates the "chat" command: an interactive REPL over stdin
// against a persistent chat.
func buildChatCmd(configPath *string) *cobra.Command {
	var chatID, title string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := app.Bootstrap(cfg)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}

			if chatID == "" {
				chatID = uuid.NewString()
			}
			session, err := a.OpenSession(chatID, title)
			if err != nil {
				return fmt.Errorf("open session: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chat %s (type /exit to quit)\n", chatID)
			return runChatLoop(cmd.Context(), session, cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().StringVar(&chatID, "chat", "", "Chat ID to resume (default: a fresh one)")
	cmd.Flags().StringVar(&title, "title", "", "Title to use if this chat does not already exist")
	return cmd
}

func runChatLoop(ctx context.Context, session *app.Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			return nil
		}

		result, err := session.Turn(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, result.FinalAnswer)
	}
}

// buildChatsCmd creates the "chats" command group for listing and deleting
// persisted chats.
func buildChatsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Manage persisted chats",
	}
	cmd.AddCommand(buildChatsListCmd(configPath), buildChatsDeleteCmd(configPath))
	return cmd
}

func buildChatsListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every persisted chat, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := app.Bootstrap(cfg)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			chats, err := a.Chats.ListChats()
			if err != nil {
				return fmt.Errorf("list chats: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, c := range chats {
				fmt.Fprintf(out, "%s\t%s\t%s\n", c.ID, c.UpdatedAt.Format("2006-01-02 15:04:05"), c.Title)
			}
			return nil
		},
	}
}

func buildChatsDeleteCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [chat-id]",
		Short: "Delete a persisted chat's history, scratchpad, and metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a, err := app.Bootstrap(cfg)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			return a.Chats.DeleteChat(args[0])
		},
	}
}
