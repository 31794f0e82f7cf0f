package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"paprika/commands"
	"paprika/core"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx)
	interrupted := ctx.Err() != nil
	stop()

	if err == nil {
		return
	}
	code := core.ExitCodeForError(err)
	if interrupted && errors.Is(err, context.Canceled) {
		code = core.ExitCodeSIGINT
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(code)
}
