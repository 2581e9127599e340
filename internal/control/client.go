package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client sends control commands to a running mend daemon.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the daemon socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    10 * time.Second,
	}
}

// SetTimeout sets the per-command timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Send delivers a command to the daemon and waits for its response.
func (c *Client) Send(cmd Command) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon (is it running?): %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	decoder := json.NewDecoder(conn)
	var resp Response
	if err := decoder.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &resp, nil
}

// Status requests the daemon's current healing status.
func (c *Client) Status() (*Response, error) {
	return c.Send(Command{
		Type:      CmdStatus,
		Timestamp: time.Now(),
	})
}

// Pause disables healing for the given duration.
func (c *Client) Pause(d time.Duration) (*Response, error) {
	return c.Send(Command{
		Type:      CmdPause,
		Duration:  d.String(),
		Timestamp: time.Now(),
	})
}

// Resume re-enables healing after a pause or kill switch.
func (c *Client) Resume() (*Response, error) {
	return c.Send(Command{
		Type:      CmdResume,
		Timestamp: time.Now(),
	})
}

// Heal queues an incident for healing. force retries incidents that have
// exhausted automatic attempts and are marked failed.
func (c *Client) Heal(incidentID string, force bool) (*Response, error) {
	return c.Send(Command{
		Type:       CmdHeal,
		IncidentID: incidentID,
		Force:      force,
		Timestamp:  time.Now(),
	})
}
