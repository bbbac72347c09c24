package main

import (
	"errors"

	"github.com/spf13/cobra"
)

// argsBetween accepts min..max positional args; max < 0 means unbounded.
func argsBetween(min, max int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < min || (max >= 0 && len(args) > max) {
			return errors.New(message)
		}
		return nil
	}
}

func requireAtLeastArgs(min int, message string) cobra.PositionalArgs {
	return argsBetween(min, -1, message)
}

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return argsBetween(count, count, message)
}
