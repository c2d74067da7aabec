package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"lendingdesk/internal/apperr"
	"lendingdesk/internal/auth"
	"lendingdesk/internal/store"
)

func newLibrarianCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "librarian",
		Short: "Manage librarian accounts",
	}
	cmd.AddCommand(newLibrarianCreateCommand())
	return cmd
}

func newLibrarianCreateCommand() *cobra.Command {
	var req auth.RegisterRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a librarian; the password is read from the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd, int(os.Stdin.Fd()), "Password: ")
			if err != nil {
				return err
			}
			req.Password = password

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := store.Open(cmd.Context(), cfg.DatabaseURL, store.Options{MaxOpenConns: 2})
			if err != nil {
				return err
			}
			defer db.Close()

			svc := auth.NewService(db, logger, auth.NewLimiter(rate.Inf, 0))
			lib, err := svc.Register(cmd.Context(), req)
			if err != nil {
				for field, msg := range apperr.FieldsOf(err) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", field, msg)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created librarian %s (%s) tenant %s\n", lib.Username, lib.ID, lib.Tenant())
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Username, "username", "", "login name")
	cmd.Flags().StringVar(&req.Email, "email", "", "contact email")
	cmd.Flags().StringVar(&req.SchemaName, "schema", "", "tenant schema; also the leading host label")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// readPassword reads without echo when fd is a terminal, or a single line from piped input.
func readPassword(cmd *cobra.Command, fd int, prompt string) (string, error) {
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
