package transactor

import (
	"context"
	"fmt"
	"io"
)

// WithTransactor manages transactor lifecycle with automatic cleanup.
//
// This helper creates a transactor over in and out, starts it, executes the
// callback function, and then stops and closes it.
//
// If the callback returns an error, it is returned to the caller.
// If Close fails, a warning is logged but does not override the callback's error.
//
// Example usage:
//
//	err := transactor.WithTransactor(ctx, os.Stdin, os.Stdout, transactor.Echo(),
//	    func(t *transactor.Transactor) error {
//	        reply, err := t.Call(ctx, map[string]any{"x": 1})
//	        if err != nil {
//	            return err
//	        }
//	        fmt.Println(reply)
//	        return nil
//	    },
//	    transactor.WithLogger(log),
//	)
func WithTransactor(
	ctx context.Context,
	in io.Reader,
	out io.Writer,
	h Handler,
	fn func(*Transactor) error,
	opts ...Option,
) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	t, err := newTransactor(in, out, h, options)
	if err != nil {
		return fmt.Errorf("failed to create transactor: %w", err)
	}

	if err := t.Start(ctx); err != nil {
		return fmt.Errorf("failed to start transactor: %w", err)
	}

	defer func() {
		t.Stop()

		if closeErr := t.Close(); closeErr != nil {
			log.Warn("failed to close transactor", "error", closeErr)
		}
	}()

	return fn(t)
}
