package ipc

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"shellsense/internal/protocol"
	"shellsense/internal/transport"
)

// Hook timeouts. The shell integration calls Send from a prompt hook, so
// both are clamped to a range that can never make the terminal feel slow.
const (
	DefaultConnectTimeout = 15 * time.Millisecond
	DefaultWriteTimeout   = 15 * time.Millisecond

	MinConnectTimeout = 10 * time.Millisecond
	MaxConnectTimeout = 50 * time.Millisecond
)

// EnvConnectTimeoutMs overrides the hook connect timeout, in milliseconds.
const EnvConnectTimeoutMs = "SHELLSENSE_CONNECT_TIMEOUT_MS"

// EnvNoRecord disables recording entirely when set to "1".
const EnvNoRecord = "SHELLSENSE_NO_RECORD"

// HookSender sends log_command events with fire-and-forget semantics: it
// connects, writes one line, and closes without reading the response.
// Every error is swallowed so the prompt hook never blocks or complains.
type HookSender struct {
	transport      *transport.Unix
	connectTimeout time.Duration
	writeTimeout   time.Duration
}

// NewHookSender creates a sender for the given socket path.
func NewHookSender(socketPath string) *HookSender {
	s := &HookSender{
		transport:      transport.NewUnix(socketPath),
		connectTimeout: DefaultConnectTimeout,
		writeTimeout:   DefaultWriteTimeout,
	}

	if env := os.Getenv(EnvConnectTimeoutMs); env != "" {
		if ms, err := strconv.Atoi(env); err == nil {
			s.SetConnectTimeout(time.Duration(ms) * time.Millisecond)
		}
	}
	return s
}

// SetConnectTimeout sets the connect timeout, clamped to the valid range.
func (s *HookSender) SetConnectTimeout(d time.Duration) {
	if d < MinConnectTimeout {
		d = MinConnectTimeout
	}
	if d > MaxConnectTimeout {
		d = MaxConnectTimeout
	}
	s.connectTimeout = d
}

// Send attempts to deliver one command event. Returns whether the event
// was written; a false return is not an error the caller should surface.
func (s *HookSender) Send(command, cwd string, exitCode int, duration float64) bool {
	if command == "" {
		return false
	}
	if os.Getenv(EnvNoRecord) == "1" {
		return true
	}

	conn, err := s.transport.Dial(s.connectTimeout)
	if err != nil {
		return false
	}
	defer conn.Close()

	data, err := json.Marshal(protocol.LogCommandData{
		Command:  command,
		CWD:      cwd,
		ExitCode: exitCode,
		Duration: duration,
	})
	if err != nil {
		return false
	}
	req := protocol.Request{Type: protocol.TypeLogCommand, Data: data}
	line, err := json.Marshal(&req)
	if err != nil {
		return false
	}
	line = append(line, '\n')

	if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return false
	}
	_, err = conn.Write(line)
	return err == nil
}
