package ipc

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"strings"
	"time"

	"gavel/internal/services"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// call invokes the named RPC. Server errors cross the socket as strings, so
// the two contention sentinels are rebuilt here for callers to branch on;
// everything else surfaces as received.
func (c *Client) call(method string, req, resp any) error {
	err := c.client.Call(method, req, resp)
	if err == nil {
		return nil
	}
	msg := err.Error()
	for _, marker := range []error{services.ErrLockContention, services.ErrStalled} {
		if rest, ok := strings.CutPrefix(msg, marker.Error()); ok {
			return fmt.Errorf("%w%s", marker, rest)
		}
	}
	return err
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.call("Gavel.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Gavel.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Gavel.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Add registers a hearing for processing.
func (c *Client) Add(req AddRequest) (*AddResponse, error) {
	var resp AddResponse
	if err := c.call("Gavel.Add", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List returns hearings optionally filtered by stage or stall state.
func (c *Client) List(stages []string, stalledOnly bool) (*ListResponse, error) {
	var resp ListResponse
	req := ListRequest{Stages: stages, StalledOnly: stalledOnly}
	if err := c.call("Gavel.List", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Search returns hearings matching the query.
func (c *Client) Search(query string) (*SearchResponse, error) {
	var resp SearchResponse
	if err := c.call("Gavel.Search", SearchRequest{Query: query}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Describe returns a single hearing with execution detail.
func (c *Client) Describe(id int64) (*DescribeResponse, error) {
	var resp DescribeResponse
	if err := c.call("Gavel.Describe", DescribeRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Advance asks the pipeline to run the named stage for a hearing.
func (c *Client) Advance(id int64, target string) (*AdvanceResponse, error) {
	var resp AdvanceResponse
	req := AdvanceRequest{ID: id, Target: target}
	if err := c.call("Gavel.Advance", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Approve records operator approval for a transcribed hearing.
func (c *Client) Approve(id int64) (*ApproveResponse, error) {
	var resp ApproveResponse
	if err := c.call("Gavel.Approve", ApproveRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel cancels the in-flight attempt for a hearing.
func (c *Client) Cancel(id int64) (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.call("Gavel.Cancel", CancelRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reset clears stall state or rewinds a hearing to an earlier stage.
func (c *Client) Reset(req ResetRequest) (*ResetResponse, error) {
	var resp ResetResponse
	if err := c.call("Gavel.Reset", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Remove deletes a hearing and its attempt history.
func (c *Client) Remove(id int64) (*RemoveResponse, error) {
	var resp RemoveResponse
	if err := c.call("Gavel.Remove", RemoveRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Attempts returns the attempt history for a hearing.
func (c *Client) Attempts(id int64) (*AttemptsResponse, error) {
	var resp AttemptsResponse
	if err := c.call("Gavel.Attempts", AttemptsRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call("Gavel.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HearingsHealth returns aggregate pipeline counts.
func (c *Client) HearingsHealth() (*HearingsHealthResponse, error) {
	var resp HearingsHealthResponse
	if err := c.call("Gavel.HearingsHealth", HearingsHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.call("Gavel.DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call("Gavel.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
