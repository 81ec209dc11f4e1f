// Package ctl implements the control dispatcher (§4.7) and its Unix
// domain socket transport (§6): one newline-terminated command per
// connection, one text reply, connection closed. The listener honors
// systemd-style socket activation (LISTEN_PID/LISTEN_FDS naming this
// process, inherited fd 3) before falling back to binding the given
// path itself.
package ctl

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/valyala/bytebufferpool"

	"github.com/helix-host/helix/internal/herror"
	"github.com/helix-host/helix/internal/hlog"
	"github.com/helix-host/helix/internal/registry"
	"github.com/helix-host/helix/internal/supervisor"
	"github.com/helix-host/helix/internal/version"
)

// Server accepts connections on a Unix domain socket and dispatches
// each line to the supervisor.
type Server struct {
	sup  *supervisor.Supervisor
	ln   net.Listener
	log  *hlog.Logger
	path string
}

// Listen binds (or inherits, via socket activation) the control socket
// at path.
func Listen(path string) (net.Listener, error) {
	if ln, ok := activatedListener(); ok {
		return ln, nil
	}
	os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ctl: listen on %s: %w", path, err)
	}
	os.Chmod(path, 0o666)
	return ln, nil
}

// activatedListener returns a listener built from an inherited fd 3 when
// LISTEN_PID names this process and LISTEN_FDS is at least 1.
func activatedListener() (net.Listener, bool) {
	pidStr := os.Getenv("LISTEN_PID")
	fdsStr := os.Getenv("LISTEN_FDS")
	if pidStr == "" || fdsStr == "" {
		return nil, false
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid != os.Getpid() {
		return nil, false
	}
	nfds, err := strconv.Atoi(fdsStr)
	if err != nil || nfds < 1 {
		return nil, false
	}
	const firstSocketFD = 3
	f := os.NewFile(uintptr(firstSocketFD), "helix-activated-socket")
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, false
	}
	return ln, true
}

// NewServer wraps an already-bound listener.
func NewServer(sup *supervisor.Supervisor, ln net.Listener) *Server {
	return &Server{sup: sup, ln: ln, log: hlog.New("ctl", nil)}
}

// Serve accepts connections until ctx is canceled or the listener closes.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return
	}
	reply := s.dispatch(ctx, strings.TrimRight(line, "\r\n"))

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.WriteString(reply)
	buf.WriteByte('\n')
	conn.Write(buf.B)
}

// dispatch parses one command line and invokes the matching supervisor
// method, per the grammar in §4.7.
func (s *Server) dispatch(ctx context.Context, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERR empty command"
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "status":
		return s.status()
	case "version":
		return fmt.Sprintf("core=%s\napi=%s", version.Core, version.API)
	case "list":
		return s.list()
	case "info":
		if len(args) != 1 {
			return "ERR usage: info <name>"
		}
		return s.info(args[0])
	case "install":
		if len(args) != 1 {
			return "ERR usage: install <path>"
		}
		return okOrErr(s.sup.Install(ctx, args[0]))
	case "enable":
		if len(args) != 1 {
			return "ERR usage: enable <name>"
		}
		return okOrErr(s.sup.Enable(ctx, args[0]))
	case "start":
		if len(args) != 1 {
			return "ERR usage: start <name>"
		}
		return okOrErr(s.sup.Start(ctx, args[0]))
	case "stop":
		if len(args) != 1 {
			return "ERR usage: stop <name>"
		}
		return okOrErr(s.sup.Stop(ctx, args[0]))
	case "disable":
		if len(args) != 1 {
			return "ERR usage: disable <name>"
		}
		return okOrErr(s.sup.Disable(ctx, args[0]))
	case "uninstall":
		if len(args) != 1 {
			return "ERR usage: uninstall <name>"
		}
		return okOrErr(s.sup.Uninstall(ctx, args[0]))
	default:
		return "ERR unknown command: " + cmd
	}
}

func okOrErr(err error) string {
	if err == nil {
		return "OK"
	}
	return "ERR " + err.Error()
}

func (s *Server) status() string {
	entries := s.sup.List()
	running := 0
	for _, e := range entries {
		if e.State == registry.Running {
			running++
		}
	}
	out := fmt.Sprintf("modules=%d\nrunning=%d", len(entries), running)
	if m := s.sup.Metrics(); m != nil {
		out += fmt.Sprintf("\ninstalls_total=%d\nmodule_errors_total=%d",
			int64(m.CounterTotal("helix_installs_total")),
			int64(m.CounterTotal("helix_module_errors_total")))
	}
	if info, err := host.Info(); err == nil {
		out += fmt.Sprintf("\nhost_uptime=%d", info.Uptime)
	}
	if avg, err := load.Avg(); err == nil {
		out += fmt.Sprintf("\nhost_load1=%.2f", avg.Load1)
	}
	return out
}

func (s *Server) list() string {
	entries := s.sup.List()
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s", e.Name, e.State)
	}
	return b.String()
}

func (s *Server) info(name string) string {
	e := s.sup.Info(name)
	if e == nil {
		return "ERR " + herror.New(herror.NotFound, "module %s is not installed", name).Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "name=%s\n", e.Name)
	fmt.Fprintf(&b, "version=%s\n", e.Version)
	fmt.Fprintf(&b, "state=%s\n", e.State)
	fmt.Fprintf(&b, "install_path=%s\n", e.InstallPath)
	if e.Manifest != nil {
		fmt.Fprintf(&b, "binary_path=%s\n", e.Manifest.BinaryPath)
		fmt.Fprintf(&b, "description=%s\n", e.Manifest.Description)
	}
	fmt.Fprintf(&b, "last_error=%s", e.LastError)
	return b.String()
}
