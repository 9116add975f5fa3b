package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sharpmind/trainer-hub/internal/interface/http/handlers"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [key]",
	Short: "Print the bcrypt hash of an API key for HTTP_API_KEY_HASHES",
	Long:  "Hashes the key given as argument, or the first line of stdin when no argument is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := readKey(cmd, args)
		if err != nil {
			return err
		}
		hash, err := handlers.HashAPIKey(key)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func readKey(cmd *cobra.Command, args []string) (string, error) {
	var key string
	if len(args) == 1 {
		key = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read key from stdin: %w", err)
		}
		key = line
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("key must not be empty")
	}
	return key, nil
}
