package client

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/tangthinker/foldersnap/internal/backup"
	"github.com/tangthinker/foldersnap/internal/ipc"
)

// Client talks to a running daemon. Each command uses its own connection.
type Client struct {
	addr    string
	timeout time.Duration
}

// NewClient creates a new Unix domain socket client
func NewClient(addr string) *Client {
	return &Client{addr: addr, timeout: 5 * time.Second}
}

// SendCommand sends a command to the daemon and returns the response
func (c *Client) SendCommand(cmd *ipc.Command) (*ipc.Response, error) {
	conn, err := net.DialTimeout("unix", c.addr, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.timeout))

	if err := ipc.WriteCommand(conn, cmd); err != nil {
		return nil, err
	}
	resp, err := ipc.ReadResponse(conn)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.New(resp.Error)
	}
	return resp, nil
}

// Status returns the daemon's current status
func (c *Client) Status() (backup.Status, error) {
	var status backup.Status
	resp, err := c.SendCommand(ipc.NewCommand(ipc.CmdStatus))
	if err != nil {
		return status, err
	}
	err = resp.Decode(&status)
	return status, err
}

// Stop asks the daemon to stop its run
func (c *Client) Stop() error {
	_, err := c.SendCommand(ipc.NewCommand(ipc.CmdStop))
	return err
}
