package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/grillo/pkg/backend"
	"github.com/go-go-golems/grillo/pkg/backend/gemini"
	"github.com/go-go-golems/grillo/pkg/backend/openai"
	"github.com/go-go-golems/grillo/pkg/chat"
	"github.com/go-go-golems/grillo/pkg/config"
	"github.com/go-go-golems/grillo/pkg/events"
	"github.com/go-go-golems/grillo/pkg/prompt"
	"github.com/go-go-golems/grillo/pkg/session"
	"github.com/go-go-golems/grillo/pkg/store/sqlite"
)

var settings *config.Settings

var rootCmd = &cobra.Command{
	Use:   "grillo",
	Short: "grillo is a terminal chat assistant with persistent conversations",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		settings, err = config.Load()
		if err != nil {
			return err
		}

		level, err := zerolog.ParseLevel(settings.LogLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

		return nil
	},
}

func openStore(notifier *events.Notifier) (*sqlite.Store, error) {
	if dir := filepath.Dir(settings.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create database directory %s", dir)
		}
	}

	options := []sqlite.StoreOption{}
	if notifier != nil {
		options = append(options, sqlite.WithNotifier(notifier))
	}
	return sqlite.New(settings.DBPath, options...)
}

func buildGenerator(ctx context.Context) (backend.Generator, error) {
	switch settings.Provider {
	case config.ProviderOpenAI:
		options := []openai.GeneratorOption{}
		if settings.Model != "" {
			options = append(options, openai.WithModel(settings.Model))
		}
		return openai.New(settings.APIKey, options...), nil
	case config.ProviderGemini:
		options := []gemini.GeneratorOption{}
		if settings.Model != "" {
			options = append(options, gemini.WithModel(settings.Model))
		}
		return gemini.New(ctx, settings.APIKey, options...)
	default:
		return nil, errors.Errorf("unknown provider %s", settings.Provider)
	}
}

func renderMarkdown(text string) string {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return text
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return text
	}

	out, err := renderer.Render(text)
	if err != nil {
		return text
	}
	return out
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		notifier := events.NewNotifier()
		defer func() {
			_ = notifier.Close()
		}()

		s, err := openStore(notifier)
		if err != nil {
			return err
		}
		defer func() {
			_ = s.Close()
		}()

		generator, err := buildGenerator(ctx)
		if err != nil {
			return err
		}

		manager := session.NewManager(s, generator,
			session.WithNotifier(notifier),
			session.WithPromptBuilder(prompt.NewBuilder(prompt.WithMaxMessages(settings.MaxContextMessages))),
		)

		conversationID, _ := cmd.Flags().GetInt64("conversation")
		if conversationID != 0 {
			conv, err := manager.LoadConversation(ctx, conversationID)
			if err != nil {
				return err
			}
			fmt.Printf("Resuming %q\n", conv.Title)

			history, err := manager.Messages(ctx)
			if err != nil {
				return err
			}
			for _, msg := range history {
				fmt.Println(msg.View())
			}
		}

		messages, err := manager.WatchMessages(ctx)
		if err != nil {
			return err
		}

		eg, ctx := errgroup.WithContext(ctx)

		// Print assistant replies as snapshots of the live message stream
		// arrive.
		eg.Go(func() error {
			seen := -1
			for {
				select {
				case <-ctx.Done():
					return nil
				case msgs, ok := <-messages:
					if !ok {
						return nil
					}
					if seen < 0 {
						// The first snapshot is history we already printed.
						seen = len(msgs)
						continue
					}
					if seen > len(msgs) {
						seen = 0
					}
					for _, msg := range msgs[seen:] {
						if msg.Sender == chat.SenderAssistant {
							fmt.Print(renderMarkdown(msg.Text))
						}
					}
					seen = len(msgs)
				}
			}
		})

		eg.Go(func() error {
			defer cancel()

			scanner := bufio.NewScanner(os.Stdin)
			fmt.Println("Type a message, or /quit to exit.")
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}

				line := strings.TrimSpace(scanner.Text())
				if line == "/quit" || line == "/exit" {
					return nil
				}

				if err := manager.SendMessage(ctx, line, nil); err != nil {
					log.Error().Err(err).Msg("failed to send message")
					continue
				}
				if lastErr := manager.LastError(); lastErr != "" {
					fmt.Fprintf(os.Stderr, "error: %s\n", lastErr)
					manager.ClearError()
				}
			}
		})

		return eg.Wait()
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(nil)
		if err != nil {
			return err
		}
		defer func() {
			_ = s.Close()
		}()

		conversations, err := s.ListConversations(cmd.Context())
		if err != nil {
			return err
		}

		for _, conv := range conversations {
			fmt.Printf("%5d  %-35s  %s\n",
				conv.ID, conv.Title, conv.LastMessageAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation and all of its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid conversation id %s", args[0])
		}

		s, err := openStore(nil)
		if err != nil {
			return err
		}
		defer func() {
			_ = s.Close()
		}()

		if err := s.DeleteConversation(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Deleted conversation %d\n", id)
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid conversation id %s", args[0])
		}

		s, err := openStore(nil)
		if err != nil {
			return err
		}
		defer func() {
			_ = s.Close()
		}()

		conv, err := s.GetConversation(cmd.Context(), id)
		if err != nil {
			return err
		}
		conv.Title = args[1]
		return s.UpdateConversation(cmd.Context(), conv)
	},
}

func main() {
	rootCmd.AddCommand(chatCmd, listCmd, deleteCmd, renameCmd)
	chatCmd.Flags().Int64("conversation", 0, "resume an existing conversation by id")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
