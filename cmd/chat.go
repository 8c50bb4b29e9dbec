package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/internal/conversation"
	"github.com/xkilldash9x/formrelay/internal/observability"
	"github.com/xkilldash9x/formrelay/internal/server"
	"github.com/xkilldash9x/formrelay/internal/service"
)

func newChatCmd(a *app) *cobra.Command {
	var requester string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the form bot on the console",
		Long: "Runs the chat dialogue on stdin/stdout. Send a form link, then /weight and /run.\n" +
			"Type exit or press Ctrl+D to leave; a running fill is awaited first.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := a.components(cmd, service.Options{Browser: true})
			if err != nil {
				return err
			}
			defer components.Shutdown()

			// Background fills reply while the prompt loop writes.
			w := &lockedWriter{w: out(cmd)}
			notifier := conversation.NotifierFunc(func(_ context.Context, _ string, text string) error {
				_, err := fmt.Fprintf(w, "%s\n\n", text)
				return err
			})
			handler, err := conversation.NewHandler(components.Service, conversation.NewMemoryStateStore(), notifier,
				a.cfg.Form().LinkPattern, observability.GetLogger())
			if err != nil {
				return err
			}
			defer handler.Stop()

			ctx := cmd.Context()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			if err := handler.Handle(ctx, requester, conversation.CmdStart); err != nil {
				return err
			}
			for {
				fmt.Fprint(w, "> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					break
				}
				if err := handler.Handle(ctx, requester, line); err != nil {
					return err
				}
			}
			handler.Wait()
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&requester, "requester", defaultOwner, "requester id; also the owner of the stored schema")
	cmd.Flags().Bool("headless", true, "run the browser headless")
	bindFlag(cmd, "headless", "browser.headless")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat dialogue over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			components, err := a.components(cmd, service.Options{Browser: true})
			if err != nil {
				return err
			}
			defer components.Shutdown()

			mailbox := server.NewMailbox(100)
			handler, err := conversation.NewHandler(components.Service, conversation.NewMemoryStateStore(), mailbox,
				a.cfg.Form().LinkPattern, logger)
			if err != nil {
				return err
			}
			defer handler.Stop()

			srv := server.New(a.cfg.Server(), handler, mailbox, logger)
			err = srv.ListenAndServe(cmd.Context())
			logger.Info("Server stopped; canceling running fills.")
			return err
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	cmd.Flags().Int("concurrency", 0, "maximum simultaneous browser pages")
	bindFlag(cmd, "addr", "server.addr")
	bindFlag(cmd, "concurrency", "browser.concurrency")
	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	var requester string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP chat API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := server.IssueToken(a.cfg.Server().JWTSecret, requester, ttl)
			if err != nil {
				return fmt.Errorf("failed to issue token (set FORMRELAY_JWT_SECRET): %w", err)
			}
			observability.GetLogger().Debug("Token issued.", zap.String("requester_id", requester), zap.Duration("ttl", ttl))
			fmt.Fprintln(out(cmd), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&requester, "requester", "", "requester id the token is issued to")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("requester")
	return cmd
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
