package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ChrisMcGann/speclust/cmd/speclust/cmd"
	"github.com/ChrisMcGann/speclust/pkg/core"
	"github.com/ChrisMcGann/speclust/pkg/reader"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var validationErr *core.ValidationError
	var ioErr *cmd.IOError
	switch {
	case errors.Is(err, reader.ErrUnsupportedFileType):
		return 4
	case errors.As(err, &ioErr),
		errors.Is(err, os.ErrNotExist),
		errors.Is(err, os.ErrPermission):
		return 3
	case errors.As(err, &validationErr):
		return 2
	default:
		return 2
	}
}
