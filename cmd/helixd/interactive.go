package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/helix-host/helix/internal/registry"
	"github.com/helix-host/helix/internal/supervisor"
)

// runInteractive is grounded on the original daemon's legacy interactive
// CLI mode: it accepts the control socket's verbs except install and
// version, plus quit/exit, directly on stdin, useful when running helixd
// attached to a terminal without a separate helixctl invocation.
func runInteractive(ctx context.Context, sup *supervisor.Supervisor) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("helix interactive mode. Commands: status, list, info <name>, enable <name>, start <name>, stop <name>, disable <name>, uninstall <name>, quit")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]
		switch cmd {
		case "quit", "exit":
			return
		case "status":
			entries := sup.List()
			running := 0
			for _, e := range entries {
				if e.State == registry.Running {
					running++
				}
			}
			fmt.Printf("modules=%d running=%d\n", len(entries), running)
		case "list":
			for _, e := range sup.List() {
				fmt.Printf("%s %s\n", e.Name, e.State)
			}
		case "info":
			if len(args) != 1 {
				fmt.Println("usage: info <name>")
				continue
			}
			e := sup.Info(args[0])
			if e == nil {
				fmt.Println("not found")
				continue
			}
			fmt.Printf("name=%s version=%s state=%s last_error=%s\n", e.Name, e.Version, e.State, e.LastError)
		case "enable", "start", "stop", "disable", "uninstall":
			if len(args) != 1 {
				fmt.Printf("usage: %s <name>\n", cmd)
				continue
			}
			if err := dispatchLifecycle(ctx, sup, cmd, args[0]); err != nil {
				fmt.Println("ERR", err)
			} else {
				fmt.Println("OK")
			}
		default:
			fmt.Println("unknown command:", cmd)
		}
	}
}

func dispatchLifecycle(ctx context.Context, sup *supervisor.Supervisor, cmd, name string) error {
	switch cmd {
	case "enable":
		return sup.Enable(ctx, name)
	case "start":
		return sup.Start(ctx, name)
	case "stop":
		return sup.Stop(ctx, name)
	case "disable":
		return sup.Disable(ctx, name)
	case "uninstall":
		return sup.Uninstall(ctx, name)
	default:
		return fmt.Errorf("unknown command %s", cmd)
	}
}
