package grpcserver

import (
	"context"

	"shiftstore/internal/pipeline"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls shiftstore.v1.Focus on a remote server.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Submit queues req remotely and returns the run id.
func (c *Client) Submit(ctx context.Context, req pipeline.Request) (string, error) {
	in, err := toStruct(req)
	if err != nil {
		return "", err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, submitMethod, in, out); err != nil {
		return "", err
	}
	return out.GetFields()["id"].GetStringValue(), nil
}

// GetRun fetches the stored record and meta of a run.
func (c *Client) GetRun(ctx context.Context, id string) (map[string]any, error) {
	in, err := structpb.NewStruct(map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getRunMethod, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
