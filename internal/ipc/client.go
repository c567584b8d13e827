package ipc

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"podscribe/internal/daemon"
)

const dialTimeout = 5 * time.Second

// Client talks to a running daemon over its control socket.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to the daemon's control socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", socketPath, err)
	}
	return &Client{rpc: jsonrpc.NewClient(conn)}, nil
}

func (c *Client) Close() error {
	return c.rpc.Close()
}

func (c *Client) call(method string, args, reply any) error {
	return c.rpc.Call(ServiceName+"."+method, args, reply)
}

func (c *Client) Status() (daemon.Status, error) {
	var reply StatusReply
	if err := c.call("Status", Empty{}, &reply); err != nil {
		return daemon.Status{}, err
	}
	return reply.Daemon, nil
}

func (c *Client) ListQueue(statuses ...string) ([]QueueItem, error) {
	var reply ListQueueReply
	if err := c.call("ListQueue", ListQueueArgs{Statuses: statuses}, &reply); err != nil {
		return nil, err
	}
	return reply.Items, nil
}

func (c *Client) ListEpisodes() ([]Episode, error) {
	var reply ListEpisodesReply
	if err := c.call("ListEpisodes", Empty{}, &reply); err != nil {
		return nil, err
	}
	return reply.Episodes, nil
}

func (c *Client) AddEpisode(args AddEpisodeArgs) (AddEpisodeReply, error) {
	var reply AddEpisodeReply
	err := c.call("AddEpisode", args, &reply)
	return reply, err
}

func (c *Client) Enqueue(episodeID int64, priority int) error {
	return c.call("Enqueue", EnqueueArgs{EpisodeID: episodeID, Priority: priority}, &Empty{})
}

func (c *Client) RequeueDiarization(episodeID int64, priority int) error {
	return c.call("RequeueDiarization", RequeueArgs{EpisodeID: episodeID, Priority: priority}, &Empty{})
}

func (c *Client) RetryFailed(itemIDs ...int64) (int64, error) {
	var reply CountReply
	if err := c.call("RetryFailed", RetryArgs{ItemIDs: itemIDs}, &reply); err != nil {
		return 0, err
	}
	return reply.Count, nil
}

func (c *Client) Clear(scope string) (int64, error) {
	var reply CountReply
	if err := c.call("Clear", ClearArgs{Scope: scope}, &reply); err != nil {
		return 0, err
	}
	return reply.Count, nil
}

func (c *Client) Remove(itemID int64) error {
	return c.call("Remove", RemoveArgs{ItemID: itemID}, &Empty{})
}

func (c *Client) StartWorker() error {
	return c.call("Start", Empty{}, &Empty{})
}

func (c *Client) StopWorker() error {
	return c.call("Stop", Empty{}, &Empty{})
}

func (c *Client) Cancel() error {
	return c.call("Cancel", Empty{}, &Empty{})
}

func (c *Client) TestNotification() error {
	return c.call("TestNotification", Empty{}, &Empty{})
}
