package agentconfig

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// GetAgentConfigMethod is the unary RPC served by the platform API. Requests
// and responses are google.protobuf.Struct values.
const GetAgentConfigMethod = "/lexiq.agents.v1.AgentConfigService/GetAgentConfig"

// GRPCClient is a Lookup backed by the platform's agent config service
type GRPCClient struct {
	conn *grpc.ClientConn
}

var _ Lookup = (*GRPCClient)(nil)

// NewGRPCClient creates a client for target. Extra options are appended
// after the transport and keepalive defaults.
func NewGRPCClient(target string, tlsEnabled bool, opts ...grpc.DialOption) (*GRPCClient, error) {
	creds := insecure.NewCredentials()
	if tlsEnabled {
		creds = credentials.NewClientTLSFromCert(nil, "")
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("agentconfig: dial %s: %w", target, err)
	}
	return &GRPCClient{conn: conn}, nil
}

// GetAgentConfig implements Lookup
func (c *GRPCClient) GetAgentConfig(ctx context.Context, organizationID, agentID string) (*AgentConfig, error) {
	req, err := structpb.NewStruct(map[string]any{
		"organizationId": organizationID,
		"agentId":        agentID,
	})
	if err != nil {
		return nil, fmt.Errorf("agentconfig: build request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, GetAgentConfigMethod, req, resp); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("agentconfig: get agent config: %w", err)
	}

	return &AgentConfig{Greeting: resp.GetFields()["greeting"].GetStringValue()}, nil
}

// Ping reports an error when the connection is failing or shut down
func (c *GRPCClient) Ping(_ context.Context) error {
	switch state := c.conn.GetState(); state {
	case connectivity.TransientFailure, connectivity.Shutdown:
		return fmt.Errorf("agentconfig: grpc connection %s", state)
	case connectivity.Idle:
		c.conn.Connect()
	}
	return nil
}

// Close closes the underlying connection
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}
