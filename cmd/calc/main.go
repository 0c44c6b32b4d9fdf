package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"socketcalc/client"
	"socketcalc/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("calc", flag.ContinueOnError)
	var (
		ws          = fs.Bool("ws", false, "connect over WebSocket instead of TCP")
		total       = fs.Int("load", 0, "send this many requests and exit (0 starts the prompt)")
		concurrency = fs.Int("concurrency", 10, "connections used by -load")
		expr        = fs.String("expr", "2 + 2", "expression sent by -load")
		expect      = fs.String("expect", "", "reply every -load request must get (empty accepts any)")
	)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: calc [flags] <host> <port>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	host, port, err := config.ParseEndpoint(fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		fs.Usage()
		return 1
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *total > 0 {
		res, err := client.RunLoad(ctx, client.LoadConfig{
			Addr:        addr,
			WebSocket:   *ws,
			Expression:  *expr,
			Expect:      *expect,
			Total:       *total,
			Concurrency: *concurrency,
		})
		slog.InfoContext(ctx, "load complete",
			"success", res.Success, "failure", res.Failure, "duration", res.Duration)
		if err != nil {
			slog.ErrorContext(ctx, "load failed", "err", err)
			return 1
		}
		return 0
	}

	fmt.Printf("Attempting to connect to %s...\n", addr)
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := client.Dial(dialCtx, addr, *ws)
	cancel()
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			fmt.Fprintf(os.Stderr, "Connection refused. Is the server running at %s?\n", addr)
		} else {
			fmt.Fprintln(os.Stderr, "An error occurred:", err)
		}
		return 1
	}
	fmt.Println("Successfully connected to the server.")
	defer func() {
		fmt.Println("Closing client socket.")
		_ = conn.Close()
	}()

	if err := client.Interact(ctx, conn, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "An error occurred:", err)
		return 1
	}
	if ctx.Err() != nil {
		fmt.Println("Client is shutting down.")
	}
	return 0
}
