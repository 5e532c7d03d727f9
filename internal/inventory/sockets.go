package inventory

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"
	"github.com/rs/zerolog"

	"github.com/edvin/devtunnel/internal/platform"
)

// tcpListen is the kernel's TCP_LISTEN state in /proc/net/tcp.
const tcpListen = 0x0A

// Socket is a listening TCP port and the process that owns it.
type Socket struct {
	Port    int    `json:"port"`
	PID     int    `json:"pid"`
	Process string `json:"process"`
	Cwd     string `json:"cwd,omitempty"`
}

// SocketInspector lists the host's listening TCP sockets.
type SocketInspector interface {
	Listening(ctx context.Context) (map[int]Socket, error)
}

// NewSocketInspector picks the /proc reader on Linux and lsof elsewhere.
func NewSocketInspector(procPath string, runner platform.CommandRunner, logger zerolog.Logger) SocketInspector {
	if runtime.GOOS == "linux" {
		p, err := NewProcInspector(procPath)
		if err == nil {
			return p
		}
		logger.Warn().Err(err).Str("proc_path", procPath).Msg("procfs unavailable, falling back to lsof")
	}
	return NewLsofInspector(runner)
}

// ProcInspector reads listening sockets from /proc.
type ProcInspector struct {
	fs procfs.FS
}

// NewProcInspector reads from the proc filesystem mounted at procPath.
func NewProcInspector(procPath string) (*ProcInspector, error) {
	fs, err := procfs.NewFS(procPath)
	if err != nil {
		return nil, err
	}
	return &ProcInspector{fs: fs}, nil
}

func (p *ProcInspector) Listening(ctx context.Context) (map[int]Socket, error) {
	inodes := make(map[uint64]int)

	tcp, err := p.fs.NetTCP()
	if err != nil {
		return nil, fmt.Errorf("read net/tcp: %w", err)
	}
	for _, line := range tcp {
		if line.St == tcpListen {
			inodes[line.Inode] = int(line.LocalPort)
		}
	}
	// IPv6 may be disabled; an IPv4-only host is fine.
	if tcp6, err := p.fs.NetTCP6(); err == nil {
		for _, line := range tcp6 {
			if line.St == tcpListen {
				inodes[line.Inode] = int(line.LocalPort)
			}
		}
	}

	sockets := make(map[int]Socket, len(inodes))
	for _, port := range inodes {
		sockets[port] = Socket{Port: port}
	}

	procs, err := p.fs.AllProcs()
	if err != nil {
		return sockets, fmt.Errorf("list processes: %w", err)
	}
	for _, proc := range procs {
		if ctx.Err() != nil {
			return sockets, ctx.Err()
		}
		// Processes owned by other users are unreadable; skip them.
		targets, err := proc.FileDescriptorTargets()
		if err != nil {
			continue
		}
		for _, t := range targets {
			inode, ok := socketInode(t)
			if !ok {
				continue
			}
			port, ok := inodes[inode]
			if !ok || sockets[port].PID != 0 {
				continue
			}
			s := Socket{Port: port, PID: proc.PID}
			s.Process, _ = proc.Comm()
			s.Cwd, _ = proc.Cwd()
			sockets[port] = s
		}
	}
	return sockets, nil
}

// socketInode parses an fd target of the form "socket:[12345]".
func socketInode(target string) (uint64, bool) {
	rest, ok := strings.CutPrefix(target, "socket:[")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSuffix(rest, "]"), 10, 64)
	return n, err == nil
}

// LsofInspector lists listening sockets by running lsof.
type LsofInspector struct {
	runner platform.CommandRunner
}

func NewLsofInspector(runner platform.CommandRunner) *LsofInspector {
	return &LsofInspector{runner: runner}
}

func (l *LsofInspector) Listening(ctx context.Context) (map[int]Socket, error) {
	out, err := l.runner.Run(ctx, "lsof", "-nP", "-iTCP", "-sTCP:LISTEN", "-Fpcn")
	// lsof exits 1 when nothing matches.
	if err != nil && len(bytes.TrimSpace(out)) == 0 {
		return map[int]Socket{}, nil
	}
	sockets := parseLsofListen(out)
	for port, s := range sockets {
		if ctx.Err() != nil {
			return sockets, ctx.Err()
		}
		cwdOut, err := l.runner.Run(ctx, "lsof", "-a", "-p", strconv.Itoa(s.PID), "-d", "cwd", "-Fn")
		if err != nil {
			continue
		}
		s.Cwd = parseLsofCwd(cwdOut)
		sockets[port] = s
	}
	return sockets, nil
}

// parseLsofListen parses `lsof -F pcn` field output. Each process block
// starts with p<pid>, then c<command>, then one n<addr:port> per socket.
func parseLsofListen(out []byte) map[int]Socket {
	sockets := make(map[int]Socket)
	var pid int
	var command string

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		val := line[1:]
		switch line[0] {
		case 'p':
			pid, _ = strconv.Atoi(val)
			command = ""
		case 'c':
			command = val
		case 'n':
			idx := strings.LastIndex(val, ":")
			if idx < 0 {
				continue
			}
			port, err := strconv.Atoi(val[idx+1:])
			if err != nil {
				continue
			}
			if _, seen := sockets[port]; !seen {
				sockets[port] = Socket{Port: port, PID: pid, Process: command}
			}
		}
	}
	return sockets
}

func parseLsofCwd(out []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "n") {
			return line[1:]
		}
	}
	return ""
}
