package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "eth_blockNumber", []interface{}{})
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}

	var num hexutil.Uint64
	if err := json.Unmarshal(result, &num); err != nil {
		return 0, fmt.Errorf("unmarshal block number: %w", err)
	}
	return uint64(num), nil
}

func (c *Client) GetLogs(ctx context.Context, filter LogFilter) ([]*Log, error) {
	result, err := c.call(ctx, "eth_getLogs", []interface{}{filter})
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs(%s..%s): %w", filter.FromBlock, filter.ToBlock, err)
	}

	var logs []*Log
	if err := json.Unmarshal(result, &logs); err != nil {
		return nil, fmt.Errorf("unmarshal logs: %w", err)
	}

	return logs, nil
}

// Call executes a read-only contract call at the given block.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte, block uint64) ([]byte, error) {
	msg := CallMsg{To: to.Hex(), Data: hexutil.Encode(data)}
	result, err := c.call(ctx, "eth_call", []interface{}{msg, FormatBlock(block)})
	if err != nil {
		return nil, fmt.Errorf("eth_call(%s@%d): %w", to.Hex(), block, err)
	}

	var out hexutil.Bytes
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("unmarshal call result: %w", err)
	}
	return out, nil
}

func (c *Client) GetStorageAt(ctx context.Context, addr common.Address, slot common.Hash, block uint64) (common.Hash, error) {
	result, err := c.call(ctx, "eth_getStorageAt", []interface{}{addr.Hex(), slot.Hex(), FormatBlock(block)})
	if err != nil {
		return common.Hash{}, fmt.Errorf("eth_getStorageAt(%s,%s@%d): %w", addr.Hex(), slot.Hex(), block, err)
	}

	var out hexutil.Bytes
	if err := json.Unmarshal(result, &out); err != nil {
		return common.Hash{}, fmt.Errorf("unmarshal storage word: %w", err)
	}
	return common.BytesToHash(out), nil
}

func (c *Client) GetCode(ctx context.Context, addr common.Address, block uint64) ([]byte, error) {
	result, err := c.call(ctx, "eth_getCode", []interface{}{addr.Hex(), FormatBlock(block)})
	if err != nil {
		return nil, fmt.Errorf("eth_getCode(%s@%d): %w", addr.Hex(), block, err)
	}

	var out hexutil.Bytes
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("unmarshal code: %w", err)
	}
	return out, nil
}

// FormatBlock renders a block number as a JSON-RPC quantity.
func FormatBlock(block uint64) string {
	return hexutil.EncodeUint64(block)
}

// ParseQuantity parses a JSON-RPC hex quantity such as a log's blockNumber.
func ParseQuantity(value string) (uint64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty hex value")
	}
	if value == "0x" {
		return 0, nil
	}
	n, err := hexutil.DecodeUint64(value)
	if err != nil {
		return 0, fmt.Errorf("parse hex %q: %w", value, err)
	}
	return n, nil
}
