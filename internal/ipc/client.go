// Package ipc provides the client side of the shellsense socket protocol.
// It wraps request/response framing with typed convenience methods and the
// timeouts the shell integration depends on.
package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"shellsense/internal/config"
	"shellsense/internal/protocol"
	"shellsense/internal/store"
	"shellsense/internal/suggest"
	"shellsense/internal/transport"
)

// DefaultDialTimeout bounds connecting to the daemon socket.
const DefaultDialTimeout = 500 * time.Millisecond

// DefaultRequestTimeout bounds one request/response round trip.
const DefaultRequestTimeout = 3 * time.Second

// maxResponseBytes bounds a single response line.
const maxResponseBytes = 4 << 20

// Client is a connection to the daemon. It is not safe for concurrent use;
// the protocol serializes one request/response pair at a time per
// connection.
type Client struct {
	conn           net.Conn
	reader         *bufio.Scanner
	requestTimeout time.Duration
}

// Dial connects to the daemon socket for the given paths.
func Dial(paths *config.Paths) (*Client, error) {
	if paths == nil {
		paths = config.DefaultPaths()
	}
	return DialSocket(paths.SocketFile())
}

// DialSocket connects to a specific socket path.
func DialSocket(socketPath string) (*Client, error) {
	t := transport.NewUnix(socketPath)
	conn, err := t.Dial(DefaultDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxResponseBytes)

	return &Client{
		conn:           conn,
		reader:         scanner,
		requestTimeout: DefaultRequestTimeout,
	}, nil
}

// SetRequestTimeout overrides the round-trip timeout.
func (c *Client) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		c.requestTimeout = d
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// roundTrip sends one request and reads one response line.
func (c *Client) roundTrip(reqType string, payload any) (*protocol.Response, error) {
	req := protocol.Request{Type: reqType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		req.Data = data
	}

	line, err := json.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	line = append(line, '\n')

	deadline := time.Now().Add(c.requestTimeout)
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(line); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	if !c.reader.Scan() {
		if err := c.reader.Err(); err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return nil, fmt.Errorf("connection closed by daemon")
	}

	var resp protocol.Response
	if err := json.Unmarshal(c.reader.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Status != protocol.StatusOK {
		return &resp, fmt.Errorf("daemon error: %s", resp.Message)
	}
	return &resp, nil
}

// Ping checks daemon liveness.
func (c *Client) Ping() error {
	_, err := c.roundTrip(protocol.TypePing, nil)
	return err
}

// LogCommand records an executed command and returns its record id. A zero
// id with nil error means the command was dropped by the privacy policy.
func (c *Client) LogCommand(command, cwd string, exitCode int, duration float64) (int64, error) {
	resp, err := c.roundTrip(protocol.TypeLogCommand, protocol.LogCommandData{
		Command:  command,
		CWD:      cwd,
		ExitCode: exitCode,
		Duration: duration,
	})
	if err != nil {
		return 0, err
	}
	if resp.ID == nil {
		return 0, nil
	}
	return *resp.ID, nil
}

// Suggest returns ranked completions for a partial command line.
func (c *Client) Suggest(partial, cwd string) ([]suggest.Candidate, error) {
	resp, err := c.roundTrip(protocol.TypeSuggest, protocol.SuggestData{
		Partial: partial,
		CWD:     cwd,
	})
	if err != nil {
		return nil, err
	}
	return resp.Suggestions, nil
}

// History returns recent commands, or full-text search hits when search is
// non-empty.
func (c *Client) History(limit int, search string) ([]store.CommandRecord, error) {
	resp, err := c.roundTrip(protocol.TypeGetHistory, protocol.GetHistoryData{
		Limit:  limit,
		Search: search,
	})
	if err != nil {
		return nil, err
	}
	return resp.History, nil
}

// Analytics returns a summary of the stored history.
func (c *Client) Analytics() (*store.Analytics, error) {
	resp, err := c.roundTrip(protocol.TypeGetAnalytics, nil)
	if err != nil {
		return nil, err
	}
	return resp.Analytics, nil
}

// GetConfig returns the value of a dotted config key.
func (c *Client) GetConfig(key string) (any, error) {
	resp, err := c.roundTrip(protocol.TypeGetConfig, protocol.ConfigData{Key: key})
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// SetConfig updates a dotted config key on the running daemon.
func (c *Client) SetConfig(key, value string) error {
	_, err := c.roundTrip(protocol.TypeSetConfig, protocol.ConfigData{Key: key, Value: value})
	return err
}

// Explain asks the daemon to describe a command.
func (c *Client) Explain(command string) (string, error) {
	resp, err := c.roundTrip(protocol.TypeExplainCommand, protocol.ExplainData{Command: command})
	if err != nil {
		return "", err
	}
	return resp.Explanation, nil
}

// Prune removes history older than before; a zero time applies the
// configured retention window. Returns how many records were removed.
func (c *Client) Prune(before time.Time) (int64, error) {
	var d protocol.PruneData
	if !before.IsZero() {
		d.BeforeUnixMs = before.UnixMilli()
	}
	resp, err := c.roundTrip(protocol.TypePrune, d)
	if err != nil {
		return 0, err
	}
	if resp.Pruned == nil {
		return 0, nil
	}
	return *resp.Pruned, nil
}
