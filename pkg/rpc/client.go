package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a thin stub for TaskRunnerService, used by cmd/taskrunner's
// `submit` subcommand to reach a gateway started elsewhere.
type Client struct {
	conn *grpc.ClientConn
}

func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	resp := new(SubmitResponse)
	if err := c.conn.Invoke(ctx, "/taskrunner.TaskRunnerService/Submit", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Wait(ctx context.Context, req *WaitRequest) (*WaitResponse, error) {
	resp := new(WaitResponse)
	if err := c.conn.Invoke(ctx, "/taskrunner.TaskRunnerService/Wait", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Info(ctx context.Context, req *InfoRequest) (*InfoResponse, error) {
	resp := new(InfoResponse)
	if err := c.conn.Invoke(ctx, "/taskrunner.TaskRunnerService/Info", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
