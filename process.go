package transactor

import (
	"context"
	"fmt"

	"github.com/wagiedev/transactor-go/internal/subprocess"
)

// StartProcess spawns name with args and starts a transactor over the child's
// standard input and output. The child's stderr goes to the WithStderr
// callback.
//
// Close on the returned transactor also terminates the child. The child is
// killed if ctx is cancelled.
func StartProcess(ctx context.Context, name string, args []string, h Handler, opts ...Option) (*Transactor, error) {
	options := applyOptions(opts)
	options.Defaults()

	proc := subprocess.New(options.Logger, name, args, options)
	if err := proc.Start(ctx); err != nil {
		return nil, err
	}

	t, err := newTransactor(proc.Stdout(), proc.Stdin(), h, options)
	if err != nil {
		_ = proc.Close()

		return nil, err
	}

	t.process = proc

	if err := t.Start(ctx); err != nil {
		_ = proc.Close()

		return nil, fmt.Errorf("start transactor: %w", err)
	}

	return t, nil
}
