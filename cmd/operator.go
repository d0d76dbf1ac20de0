/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/cerebro-dash/apiserver/config"
	"github.com/cerebro-dash/apiserver/internal/db"
	"github.com/cerebro-dash/apiserver/internal/services"
	"github.com/cerebro-dash/apiserver/internal/store"
	"github.com/spf13/cobra"
)

var operatorPassword string

// operatorCmd manages dashboard logins.
var operatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Manage dashboard operators",
}

var operatorCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a dashboard operator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd, operatorPassword)
		if err != nil {
			return err
		}
		return withOperatorService(cmd.Context(), func(svc *services.OperatorService) error {
			op, err := svc.Create(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created operator %s (id %d)\n", op.Username, op.ID)
			return nil
		})
	},
}

var operatorPasswdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "Reset an operator's password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd, operatorPassword)
		if err != nil {
			return err
		}
		return withOperatorService(cmd.Context(), func(svc *services.OperatorService) error {
			if err := svc.SetPassword(cmd.Context(), args[0], password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password changed for operator %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(operatorCmd)
	operatorCmd.AddCommand(operatorCreateCmd, operatorPasswdCmd)
	operatorCmd.PersistentFlags().StringVar(&operatorPassword, "password", "", "operator password (prompted when empty)")
}

func withOperatorService(ctx context.Context, fn func(*services.OperatorService) error) error {
	cfg := config.LoadConfig()
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer conn.Close()

	return fn(services.NewOperatorService(store.NewOperatorRepository(conn)))
}
