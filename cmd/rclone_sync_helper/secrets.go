package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fgeck/rclone-sync-helper/internal/services/secrets"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Store secrets in the OS keyring",
	Long: `Store the rclone config password or the Telegram bot token in the OS
keyring under the job's keyring_service. Job files never hold secrets.

Users:
  ` + secrets.UserRcloneConfig + `       rclone config password (passed as ` + secrets.RcloneConfigPassEnv + `)
  ` + secrets.UserTelegramToken + `  Telegram bot token`,
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <service> <user>",
	Short: "Store a secret read from the terminal or stdin",
	Args:  cobra.ExactArgs(2),
	RunE:  setSecret,
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete <service> <user>",
	Short: "Remove a secret",
	Args:  cobra.ExactArgs(2),
	RunE:  deleteSecret,
}

func init() {
	secretsCmd.AddCommand(secretsSetCmd)
	secretsCmd.AddCommand(secretsDeleteCmd)
}

func checkSecretUser(user string) error {
	if !secrets.ValidUser(user) {
		return fmt.Errorf("unknown user %q (use %s or %s)", user, secrets.UserRcloneConfig, secrets.UserTelegramToken)
	}
	return nil
}

func setSecret(cmd *cobra.Command, args []string) error {
	service, user := args[0], args[1]
	if err := checkSecretUser(user); err != nil {
		return err
	}

	secret, err := readSecret(fmt.Sprintf("Secret for %s/%s: ", service, user))
	if err != nil {
		return err
	}
	if secret == "" {
		return fmt.Errorf("empty secret")
	}

	if err := secrets.New(log.Logger).Set(service, user, secret); err != nil {
		return err
	}
	fmt.Printf("Stored %s in keyring service %s\n", user, service)
	return nil
}

func deleteSecret(cmd *cobra.Command, args []string) error {
	service, user := args[0], args[1]
	if err := checkSecretUser(user); err != nil {
		return err
	}
	if err := secrets.New(log.Logger).Delete(service, user); err != nil {
		return err
	}
	fmt.Printf("Removed %s from keyring service %s\n", user, service)
	return nil
}

// readSecret prompts without echo on a terminal and reads one line otherwise.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading secret from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}
