package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"horse.fit/bookimport/internal/auth"
)

func runToken(args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	token := fs.String("token", "", "Hash this token instead of generating a new one")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if err := writeToken(os.Stdout, strings.TrimSpace(*token)); err != nil {
		fmt.Fprintf(os.Stderr, "Token generation failed: %v\n", err)
		return 1
	}
	return 0
}

func writeToken(w io.Writer, token string) error {
	if token == "" {
		generated, err := auth.GenerateToken()
		if err != nil {
			return err
		}
		token = generated
	}

	hash, err := auth.HashToken(token)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "token=%s\n", token)
	fmt.Fprintf(w, "ADMIN_TOKEN_HASH=%s\n", hash)
	return nil
}
