/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cerebro-dash/apiserver/config"
	"github.com/cerebro-dash/apiserver/internal/db"
	"github.com/cerebro-dash/apiserver/internal/services"
	"github.com/cerebro-dash/apiserver/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	accountPassword string
	accountEmail    string
	accountGMLevel  int
	accountRealm    int
)

// accountCmd groups game account administration.
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage game accounts",
	Long: `Manage game accounts directly in the auth database. Passwords are read
from --password, or prompted for when stdin is a terminal.`,
}

var accountCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a game account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd, accountPassword)
		if err != nil {
			return err
		}
		return withAccountService(cmd.Context(), func(svc *services.AccountService) error {
			created, err := svc.Create(cmd.Context(), args[0], password, accountEmail)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created account %s (id %d)\n", created.Username, created.ID)
			return nil
		})
	},
}

var accountPasswdCmd = &cobra.Command{
	Use:   "passwd <account-id>",
	Short: "Reset a game account's password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		password, err := readPassword(cmd, accountPassword)
		if err != nil {
			return err
		}
		return withAccountService(cmd.Context(), func(svc *services.AccountService) error {
			if err := svc.ChangePassword(cmd.Context(), id, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password changed for account %d\n", id)
			return nil
		})
	},
}

var accountGMCmd = &cobra.Command{
	Use:   "gm <account-id>",
	Short: "Set a game account's GM level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withAccountService(cmd.Context(), func(svc *services.AccountService) error {
			if err := svc.SetGMLevel(cmd.Context(), id, accountGMLevel, accountRealm); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %d gm level set to %d\n", id, accountGMLevel)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountCreateCmd, accountPasswdCmd, accountGMCmd)

	accountCmd.PersistentFlags().StringVar(&accountPassword, "password", "", "account password (prompted when empty)")
	accountCreateCmd.Flags().StringVar(&accountEmail, "email", "", "contact email")
	accountGMCmd.Flags().IntVar(&accountGMLevel, "level", 0, "gm level, 0 to 3")
	accountGMCmd.Flags().IntVar(&accountRealm, "realm", services.AllRealms, "realm id, -1 for all realms")
}

// withAccountService runs fn against the auth database. Change events are
// not published from the CLI.
func withAccountService(ctx context.Context, fn func(*services.AccountService) error) error {
	cfg := config.LoadConfig()
	authDB, err := db.OpenAuth(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open auth database: %w", err)
	}
	defer authDB.Close()

	repo := store.NewAccountRepository(authDB, cfg.AuthDB.CharactersDB)
	return fn(services.NewAccountService(repo, nil, cfg.StoreTimeout, nil))
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid account id %q", raw)
	}
	return id, nil
}

// readPassword returns flagValue when set. Otherwise it prompts without echo
// on a terminal, or reads one line from piped stdin.
func readPassword(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("no password given")
	}
	return strings.TrimRight(line, "\r\n"), nil
}
