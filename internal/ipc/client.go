package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

const dialTimeout = 2 * time.Second

// Client talks to a running daemon. It is not safe to share across
// goroutines that Close it independently.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to the daemon socket.
func Dial(socket string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socket, dialTimeout)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: jsonrpc.NewClient(conn)}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	if c == nil || c.rpc == nil {
		return nil
	}
	return c.rpc.Close()
}

// invoke calls method and decodes daemon errors back into services markers.
func invoke[Resp any](c *Client, method string, req any) (*Resp, error) {
	resp := new(Resp)
	if err := c.rpc.Call(ServiceName+"."+method, req, resp); err != nil {
		return nil, decodeError(err)
	}
	return resp, nil
}

// Stop halts the daemon's poller.
func (c *Client) Stop() (*StopResponse, error) {
	return invoke[StopResponse](c, "Stop", StopRequest{})
}

// Status returns daemon and poller state.
func (c *Client) Status() (*StatusResponse, error) {
	return invoke[StatusResponse](c, "Status", StatusRequest{})
}

// JobList lists jobs, optionally filtered by status names.
func (c *Client) JobList(statuses []string) (*JobListResponse, error) {
	return invoke[JobListResponse](c, "JobList", JobListRequest{Statuses: statuses})
}

// JobShow returns one job and, when withEvents is set, its audit log.
func (c *Client) JobShow(id string, withEvents bool) (*JobShowResponse, error) {
	return invoke[JobShowResponse](c, "JobShow", JobShowRequest{ID: id, WithEvents: withEvents})
}

// Advance runs the detector for one job inside the daemon.
func (c *Client) Advance(id string) (*AdvanceResponse, error) {
	return invoke[AdvanceResponse](c, "Advance", AdvanceRequest{ID: id})
}

// Trigger wakes the poller for one job, or for all jobs when id is empty.
func (c *Client) Trigger(id string) (*TriggerResponse, error) {
	return invoke[TriggerResponse](c, "Trigger", TriggerRequest{ID: id})
}
