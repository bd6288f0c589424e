package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gatekeeper-core/internal/auth"
)

// readSecret returns flagValue, or the first line of in when fromStdin is set.
func readSecret(in io.Reader, flagValue string, fromStdin bool) (string, error) {
	if !fromStdin {
		if flagValue == "" {
			return "", errors.New("password is required (--password or --password-stdin)")
		}
		return flagValue, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password on stdin")
	}
	return line, nil
}

func (a *app) newLoginCmd() *cobra.Command {
	var (
		username  string
		password  string
		fromStdin bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in as an operator and save the token",
		Long: `Exchanges operator credentials for an access token and stores it in
the gatectl config file for later commands. Only needed when the server has
JWT enabled.`,
		Example: `  echo "$PASS" | gatectl login --username alice --password-stdin`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := readSecret(cmd.InOrStdin(), password, fromStdin)
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			tok, err := c.Login(cmd.Context(), username, secret)
			if err != nil {
				return err
			}
			path, err := a.saveToken(tok.AccessToken)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Logged in as %s (%s); token valid until %s, saved to %s\n",
				username, tok.Role, tok.ExpiresAt.Local().Format("15:04:05"), path)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&username, "username", "u", "", "operator name")
	f.StringVarP(&password, "password", "p", "", "operator password")
	f.BoolVar(&fromStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// newHashPasswordCmd prints an Argon2id hash for security.operators in the
// server config. It needs no server.
func newHashPasswordCmd(out io.Writer) *cobra.Command {
	var (
		password  string
		fromStdin bool
	)
	cmd := &cobra.Command{
		Use:     "hash-password",
		Short:   "Hash an operator password for the server config",
		Example: `  gatectl hash-password --password-stdin < pass.txt`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := readSecret(cmd.InOrStdin(), password, fromStdin)
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, hash)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password to hash")
	cmd.Flags().BoolVar(&fromStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}
