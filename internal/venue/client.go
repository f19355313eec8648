package venue

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/cosmos/cosmos-sdk/types/query"
	stakingtypes "github.com/cosmos/cosmos-sdk/x/staking/types"
	"github.com/gogo/protobuf/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"

	"github.com/stakeward/scl/internal/logger"
	"github.com/stakeward/scl/internal/types"
)

var (
	ErrInvalidConnection = errors.New("connection is invalid")
	ErrConnectionFailed  = errors.New("connection establishment failed")
	ErrRPCRequestFailed  = errors.New("RPC request failed")
	ErrInvalidResponse   = errors.New("response data is invalid")
)

var venueLogger = logger.GetForComponent("venue_client")

// JSON-RPC structures for abci_query calls against the node RPC endpoint.

// JSONRPCRequest defines the structure of a JSON-RPC request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  ABCIQueryParams `json:"params"`
}

// ABCIQueryParams defines the parameters for the "abci_query" method.
type ABCIQueryParams struct {
	Path   string `json:"path"`
	Data   string `json:"data"` // Hex-encoded string
	Height string `json:"height,omitempty"`
	Prove  bool   `json:"prove,omitempty"`
}

// JSONRPCResponse defines the structure of a JSON-RPC response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  ABCIQueryResult `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// ABCIQueryResult defines the structure of the "result" field for "abci_query".
type ABCIQueryResult struct {
	Response struct {
		Log    string `json:"log"`
		Key    string `json:"key"`   // Base64 encoded
		Value  string `json:"value"` // Base64 encoded
		Height string `json:"height"`
		Code   uint32 `json:"code"`
	} `json:"response"`
}

// JSONRPCError defines the structure of a JSON-RPC error.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// Client queries the staking venue over a persistent gRPC connection, with
// the node's JSON-RPC endpoint as the abci_query path for per-address
// delegation state.
type Client struct {
	grpcConn    *grpc.ClientConn
	queryClient stakingtypes.QueryClient
	rpcEndpoint string
	httpClient  http.Client
}

// NewClient wraps an established gRPC connection and the node RPC endpoint.
func NewClient(grpcConn *grpc.ClientConn, rpcEndpoint string) (*Client, error) {
	if grpcConn == nil {
		return nil, errors.Join(ErrInvalidConnection, errors.New("gRPC connection cannot be nil"))
	}
	if rpcEndpoint == "" {
		return nil, errors.Join(ErrInvalidConnection, errors.New("RPC endpoint cannot be empty"))
	}
	if state := grpcConn.GetState(); state == connectivity.Shutdown {
		return nil, errors.Join(ErrInvalidConnection, errors.New("gRPC connection is shutdown"))
	}

	client := &Client{
		grpcConn:    grpcConn,
		queryClient: stakingtypes.NewQueryClient(grpcConn),
		rpcEndpoint: rpcEndpoint,
		httpClient:  http.Client{Timeout: 20 * time.Second},
	}

	venueLogger.Info().Str("rpcEndpoint", rpcEndpoint).Msg("Venue client initialized")
	return client, nil
}

// SharesPerUnitValue derives the venue's shares-per-unit-value ratio from the
// venue address's delegations: total delegation shares over total bonded
// tokens. A venue with no delegations is undiluted and reports a ratio of one.
func (c *Client) SharesPerUnitValue(ctx context.Context, venueAddress string) (sdkmath.LegacyDec, error) {
	if venueAddress == "" {
		return sdkmath.LegacyDec{}, errors.Join(ErrRPCRequestFailed, errors.New("venue address cannot be empty"))
	}

	grpcRequest := &stakingtypes.QueryDelegatorDelegationsRequest{
		DelegatorAddr: venueAddress,
	}
	protoBytes, err := proto.Marshal(grpcRequest)
	if err != nil {
		return sdkmath.LegacyDec{}, errors.Join(ErrRPCRequestFailed, fmt.Errorf("failed to marshal request: %w", err))
	}

	valueBytes, err := c.executeABCIQuery(ctx, "/cosmos.staking.v1beta1.Query/DelegatorDelegations", protoBytes)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}

	var grpcResponse stakingtypes.QueryDelegatorDelegationsResponse
	if err := proto.Unmarshal(valueBytes, &grpcResponse); err != nil {
		return sdkmath.LegacyDec{}, errors.Join(ErrInvalidResponse, fmt.Errorf("failed to unmarshal response: %w", err))
	}

	totalShares := sdkmath.LegacyZeroDec()
	totalTokens := sdkmath.ZeroInt()
	for _, delegation := range grpcResponse.DelegationResponses {
		if delegation.Delegation.Shares.IsNil() || delegation.Balance.Amount.IsNil() {
			return sdkmath.LegacyDec{}, errors.Join(ErrInvalidResponse, errors.New("delegation response has nil amounts"))
		}
		totalShares = totalShares.Add(delegation.Delegation.Shares)
		totalTokens = totalTokens.Add(delegation.Balance.Amount)
	}

	if totalTokens.IsZero() {
		venueLogger.Debug().Str("venue", venueAddress).Msg("Venue has no bonded tokens, reporting unit ratio")
		return sdkmath.LegacyOneDec(), nil
	}

	ratio := totalShares.Quo(sdkmath.LegacyNewDecFromInt(totalTokens))
	venueLogger.Debug().
		Str("venue", venueAddress).
		Str("totalShares", totalShares.String()).
		Str("totalTokens", totalTokens.String()).
		Str("ratio", ratio.String()).
		Msg("Fetched venue shares-per-unit-value ratio")
	return ratio, nil
}

// Validators returns the chain's validator set over gRPC, paginating until
// exhausted.
func (c *Client) Validators(ctx context.Context) ([]types.ValidatorView, error) {
	if err := c.ensureConnection(); err != nil {
		venueLogger.Error().Err(err).Msg("Failed to ensure gRPC connection for validator query")
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	views := make([]types.ValidatorView, 0)
	var nextKey []byte
	for {
		queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		response, err := c.queryClient.Validators(queryCtx, &stakingtypes.QueryValidatorsRequest{
			Pagination: &query.PageRequest{Key: nextKey},
		})
		cancel()
		if err != nil {
			return nil, errors.Join(ErrRPCRequestFailed, fmt.Errorf("failed to query validators: %w", err))
		}

		for _, validator := range response.Validators {
			if validator.Tokens.IsNil() {
				return nil, errors.Join(ErrInvalidResponse, fmt.Errorf("validator %s has nil token amount", validator.OperatorAddress))
			}
			views = append(views, types.ValidatorView{
				Operator:  validator.OperatorAddress,
				Jailed:    validator.Jailed,
				Delegated: validator.Tokens,
			})
		}

		if response.Pagination == nil || len(response.Pagination.NextKey) == 0 {
			break
		}
		nextKey = response.Pagination.NextKey
	}

	venueLogger.Debug().Int("validatorCount", len(views)).Msg("Fetched validator set")
	return views, nil
}

// executeABCIQuery runs a proto-encoded query through the node's JSON-RPC
// abci_query method and returns the decoded response value.
func (c *Client) executeABCIQuery(ctx context.Context, abciPath string, protoBytes []byte) ([]byte, error) {
	jsonRPCReq := JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "abci_query",
		Params: ABCIQueryParams{
			Path: abciPath,
			Data: hex.EncodeToString(protoBytes),
		},
	}
	jsonData, err := json.Marshal(jsonRPCReq)
	if err != nil {
		return nil, errors.Join(ErrRPCRequestFailed, fmt.Errorf("failed to marshal JSON-RPC request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcEndpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, errors.Join(ErrRPCRequestFailed, fmt.Errorf("failed to create HTTP request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		venueLogger.Error().Err(err).Str("endpoint", c.rpcEndpoint).Msg("Failed to execute HTTP request")
		return nil, errors.Join(ErrRPCRequestFailed, fmt.Errorf("failed to execute HTTP request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Join(ErrRPCRequestFailed, fmt.Errorf("HTTP request failed with status: %d %s", resp.StatusCode, resp.Status))
	}

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Join(ErrRPCRequestFailed, fmt.Errorf("failed to read response body: %w", err))
	}

	var jsonRPCResp JSONRPCResponse
	if err := json.Unmarshal(respBodyBytes, &jsonRPCResp); err != nil {
		venueLogger.Error().Err(err).Str("body", string(respBodyBytes)).Msg("Failed to unmarshal JSON-RPC response")
		return nil, errors.Join(ErrInvalidResponse, fmt.Errorf("failed to unmarshal JSON-RPC response: %w", err))
	}
	if jsonRPCResp.Error != nil {
		return nil, errors.Join(ErrRPCRequestFailed, fmt.Errorf("RPC error (code %d): %s", jsonRPCResp.Error.Code, jsonRPCResp.Error.Message))
	}
	if jsonRPCResp.Result.Response.Code != 0 {
		return nil, errors.Join(ErrRPCRequestFailed, fmt.Errorf("ABCI error (code %d): %s", jsonRPCResp.Result.Response.Code, jsonRPCResp.Result.Response.Log))
	}
	if jsonRPCResp.Result.Response.Value == "" {
		return nil, errors.Join(ErrInvalidResponse, errors.New("response value is empty"))
	}

	decodedValueBytes, err := base64.StdEncoding.DecodeString(jsonRPCResp.Result.Response.Value)
	if err != nil {
		return nil, errors.Join(ErrInvalidResponse, fmt.Errorf("failed to decode response value: %w", err))
	}
	return decodedValueBytes, nil
}

func (c *Client) ensureConnection() error {
	if c.grpcConn == nil {
		return errors.New("gRPC connection is nil")
	}
	state := c.grpcConn.GetState()
	if state == connectivity.TransientFailure || state == connectivity.Shutdown {
		return fmt.Errorf("gRPC connection is not usable: %s", state)
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c.grpcConn == nil {
		return nil
	}
	if err := c.grpcConn.Close(); err != nil {
		return fmt.Errorf("failed to close gRPC connection: %w", err)
	}
	return nil
}
