package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// authCmd manages the model API key.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the model API key",
	Long: `Stores the API key in the system keyring.

INSIGHT_API_KEY and OPENAI_API_KEY take precedence over the keyring when set.`,
}

var authSetCmd = &cobra.Command{
	Use:   "set [key]",
	Short: "Save the API key to the keyring",
	Long:  `Saves the key given as argument, or prompts for it without echo.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuthSet,
}

var authDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the API key from the keyring",
	RunE:  runAuthDelete,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the API key comes from",
	RunE:  runAuthStatus,
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	var key string
	if len(args) > 0 {
		key = args[0]
	} else {
		var err error
		key, err = promptKey(cmd.ErrOrStderr(), os.Stdin)
		if err != nil {
			return err
		}
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("empty key")
	}
	if err := credentials().Store(key); err != nil {
		return fmt.Errorf("saving key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "API key saved.")
	return nil
}

// promptKey reads a key from in, hiding input when it is a terminal.
func promptKey(prompt io.Writer, in *os.File) (string, error) {
	fmt.Fprint(prompt, "API key: ")
	if fd := int(in.Fd()); term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading key: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading key: %w", err)
	}
	return line, nil
}

func runAuthDelete(cmd *cobra.Command, args []string) error {
	if err := credentials().Forget(); err != nil {
		return fmt.Errorf("removing key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "API key removed.")
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	key, source, err := credentials().LookupWithSource()
	if err != nil {
		return fmt.Errorf("looking up key: %w", err)
	}
	if key == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "No API key configured. Run `insight auth set`.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "API key %s (from %s)\n", maskKey(key), source)
	return nil
}

// maskKey keeps the first and last four characters of long keys.
func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
