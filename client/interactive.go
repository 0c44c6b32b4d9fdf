package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
)

const Prompt = "Enter expression (e.g., '9 + 8') or Ctrl+C to exit: "

// Interact sends each non-empty line of in as one request and prints the
// reply to out. It returns when in is exhausted, ctx is done or the server
// closes the connection.
func Interact(ctx context.Context, conn Conn, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		s := bufio.NewScanner(in)
		for s.Scan() {
			select {
			case lines <- s.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- s.Err()
	}()

	for {
		fmt.Fprint(out, Prompt)
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = l
		}
		if line == "" {
			continue
		}

		fmt.Fprintf(out, "Sending: '%s'\n", line)
		reply, err := conn.Exchange(ctx, line)
		if errors.Is(err, ErrServerClosed) {
			fmt.Fprintln(out, "Server closed the connection.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Server replied: %s\n\n", reply)
	}
}
