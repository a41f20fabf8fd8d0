package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vaihtoaktivaattori/portal/internal/config"
	"github.com/vaihtoaktivaattori/portal/internal/i18n"
	"github.com/vaihtoaktivaattori/portal/pkg/chatstream"
)

func newChatCmd() *cobra.Command {
	var (
		system      string
		tools       []string
		vectorStore string
	)

	cmd := &cobra.Command{
		Use:   "chat [question]",
		Short: "Ask the exchange assistant; without a question starts an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := toolsState(tools, vectorStore)
			if err != nil {
				return err
			}

			s := &chatSession{
				client: chatstream.NewClient(config.GetChatAPIBase()).
					SetToken(config.GetClientToken()).
					SetTimeout(config.GetChatTimeout()),
				conv:    chatstream.NewConversation(),
				tools:   state,
				catalog: i18n.Default(),
				lang:    config.GetChatLanguage(),
				out:     cmd.OutOrStdout(),
			}
			if system != "" {
				s.conv.SetSystemPrompt(system)
			}

			if len(args) > 0 {
				return s.ask(cmd.Context(), strings.Join(args, " "))
			}
			return s.repl(cmd.Context(), cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&system, "system", "", "extra instructions for the assistant")
	cmd.Flags().StringSliceVar(&tools, "tool", nil, "enable a tool: file_search, web_search, code_interpreter")
	cmd.Flags().StringVar(&vectorStore, "vector-store", "", "document collection for file_search")
	return cmd
}

func toolsState(names []string, vectorStore string) (chatstream.ToolsState, error) {
	var state chatstream.ToolsState
	for _, name := range names {
		switch strings.TrimSpace(name) {
		case "file_search":
			state.FileSearchEnabled = true
		case "web_search":
			state.WebSearchEnabled = true
		case "code_interpreter":
			state.CodeInterpreterEnabled = true
		default:
			return state, fmt.Errorf("unknown tool %q", name)
		}
	}
	if vectorStore != "" {
		state.VectorStore = &chatstream.VectorStore{ID: vectorStore}
	}
	return state, nil
}

type chatSession struct {
	client  *chatstream.Client
	conv    *chatstream.Conversation
	tools   chatstream.ToolsState
	catalog *i18n.Catalog
	lang    string
	out     io.Writer
}

func (s *chatSession) repl(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(s.out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/quit", "/exit":
			return nil
		default:
			// failed turns stay in the transcript, the session goes on
			if err := s.ask(ctx, line); errors.Is(err, chatstream.ErrAborted) {
				return nil
			}
		}
		fmt.Fprint(s.out, "> ")
	}
	return scanner.Err()
}

// ask streams one answer to out as it arrives.
func (s *chatSession) ask(ctx context.Context, question string) error {
	_, call := s.conv.Ask(ctx, s.client, question, s.tools, nil, chatstream.Callbacks{
		OnChunk: func(ev chatstream.StreamEvent) {
			switch ev.Kind {
			case chatstream.KindTextDelta:
				fmt.Fprint(s.out, ev.Content)
			case chatstream.KindToolCall:
				fmt.Fprintf(s.out, "[%s %s]\n", ev.Name, ev.Status)
			}
		},
	})

	err := call.Wait()
	fmt.Fprintln(s.out)
	if err != nil {
		fmt.Fprintln(s.out, s.catalog.ChatError(s.lang, err))
	}
	return err
}
