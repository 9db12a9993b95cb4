package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
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

// Ping checks that the daemon answers on the socket.
func (c *Client) Ping() (*PingResponse, error) {
	var resp PingResponse
	if err := c.client.Call("Squeeze.Ping", PingRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Squeeze.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Squeeze.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Squeeze.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pause suspends one stage, or all stages with an empty name.
func (c *Client) Pause(stageName string) (*PauseResponse, error) {
	var resp PauseResponse
	if err := c.client.Call("Squeeze.Pause", PauseRequest{Stage: stageName}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Resume reverses Pause with the same stage semantics.
func (c *Client) Resume(stageName string) (*ResumeResponse, error) {
	var resp ResumeResponse
	if err := c.client.Call("Squeeze.Resume", ResumeRequest{Stage: stageName}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns queue items optionally filtered by statuses.
func (c *Client) QueueList(statuses []string) (*QueueListResponse, error) {
	var resp QueueListResponse
	req := QueueListRequest{Statuses: statuses}
	if err := c.client.Call("Squeeze.QueueList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueDescribe returns details for a single queue item.
func (c *Client) QueueDescribe(id int64) (*QueueDescribeResponse, error) {
	var resp QueueDescribeResponse
	req := QueueDescribeRequest{ID: id}
	if err := c.client.Call("Squeeze.QueueDescribe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enqueue adds a file to the queue by path.
func (c *Client) Enqueue(path string) (*EnqueueResponse, error) {
	var resp EnqueueResponse
	req := EnqueueRequest{Path: path}
	if err := c.client.Call("Squeeze.Enqueue", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Requeue retries failed items; an empty id list retries all of them.
func (c *Client) Requeue(ids []int64) (*RequeueResponse, error) {
	var resp RequeueResponse
	req := RequeueRequest{IDs: ids}
	if err := c.client.Call("Squeeze.Requeue", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClear removes all items that are not currently processing.
func (c *Client) QueueClear() (*QueueClearResponse, error) {
	var resp QueueClearResponse
	if err := c.client.Call("Squeeze.QueueClear", QueueClearRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClearCompleted removes only encoded items from the queue.
func (c *Client) QueueClearCompleted() (*QueueClearCompletedResponse, error) {
	var resp QueueClearCompletedResponse
	if err := c.client.Call("Squeeze.QueueClearCompleted", QueueClearCompletedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClearFailed removes failed items from the queue.
func (c *Client) QueueClearFailed() (*QueueClearFailedResponse, error) {
	var resp QueueClearFailedResponse
	if err := c.client.Call("Squeeze.QueueClearFailed", QueueClearFailedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Failures lists failure records, unresolved or per item.
func (c *Client) Failures(itemID int64) (*FailuresResponse, error) {
	var resp FailuresResponse
	req := FailuresRequest{ItemID: itemID}
	if err := c.client.Call("Squeeze.Failures", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FailureShow fetches one failure record by id.
func (c *Client) FailureShow(id int64) (*FailureShowResponse, error) {
	var resp FailureShowResponse
	req := FailureShowRequest{ID: id}
	if err := c.client.Call("Squeeze.FailureShow", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueHealth returns aggregate queue counts.
func (c *Client) QueueHealth() (*QueueHealthResponse, error) {
	var resp QueueHealthResponse
	if err := c.client.Call("Squeeze.QueueHealth", QueueHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.client.Call("Squeeze.DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Squeeze.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EventsTail returns pipeline events from the daemon.
func (c *Client) EventsTail(req EventsTailRequest) (*EventsTailResponse, error) {
	var resp EventsTailResponse
	if err := c.client.Call("Squeeze.EventsTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
