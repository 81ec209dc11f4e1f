// Command helixctl is a thin client for the control socket: it sends
// one line, prints the reply, and exits. It never talks to the
// supervisor directly, only through the same wire protocol any other
// embedder would use.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/helix-host/helix/adapter"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs := flag.NewFlagSet("helixctl", flag.ContinueOnError)
	socketPath := fs.String("socket", envOr("HELIX_SOCKET", "/run/helix/control.sock"), "control socket path")
	timeout := fs.Duration("timeout", 5*time.Second, "dial and round-trip timeout")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: helixctl [flags] <command> [args...]\n\ncommands: status, version, list, info <name>, install <path>, enable <name>, start <name>, stop <name>, disable <name>, uninstall <name>\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return 2
	}

	reply, err := sendCommand(*socketPath, *timeout, strings.Join(args, " "))
	if err != nil {
		fmt.Fprintln(os.Stderr, "helixctl:", err)
		return 1
	}
	fmt.Println(reply)
	if strings.HasPrefix(reply, "ERR") {
		return 1
	}
	return 0
}

func sendCommand(socketPath string, timeout time.Duration, line string) (string, error) {
	dialer := &adapter.UnixNetworkAdapter{}
	conn, err := dialer.Dial(socketPath)
	if err != nil {
		return "", fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	conn.SetDeadline(deadline)

	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return "", fmt.Errorf("writing command: %w", err)
	}
	reply, err := io.ReadAll(conn)
	if err != nil && len(reply) == 0 {
		return "", fmt.Errorf("reading reply: %w", err)
	}
	return strings.TrimRight(string(reply), "\r\n"), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
