package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pinto-org/beanstalk-snapshot/internal/chain/evm/rpc"
)

// Provider is implemented by a ledger client. Reads are never taken at "latest".
type Provider interface {
	// Name returns the provider label, e.g. "arbitrum".
	Name() string

	// FilterLogs returns logs matching q in provider order.
	FilterLogs(ctx context.Context, q LogQuery) ([]Log, error)

	// CallContract executes a read-only call at block.
	CallContract(ctx context.Context, to common.Address, data []byte, block uint64) ([]byte, error)

	// StorageAt reads one raw storage word at block.
	StorageAt(ctx context.Context, addr common.Address, slot common.Hash, block uint64) (common.Hash, error)

	// HasCode reports whether addr has code at block.
	HasCode(ctx context.Context, addr common.Address, block uint64) (bool, error)
}

// LogQuery selects logs emitted by Address whose first topic is one of Topics,
// within the inclusive block range [FromBlock, ToBlock].
type LogQuery struct {
	Address   common.Address
	Topics    []common.Hash
	FromBlock uint64
	ToBlock   uint64
}

// Log is a raw event log.
type Log struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
	TxHash      common.Hash
	Index       uint
}

// RPCProvider adapts the JSON-RPC client to Provider.
type RPCProvider struct {
	client *rpc.Client
}

var _ Provider = (*RPCProvider)(nil)

func NewRPCProvider(client *rpc.Client) *RPCProvider {
	return &RPCProvider{client: client}
}

func (p *RPCProvider) Name() string {
	return p.client.Provider()
}

// Head returns the latest block number the endpoint has seen.
func (p *RPCProvider) Head(ctx context.Context) (uint64, error) {
	return p.client.BlockNumber(ctx)
}

func (p *RPCProvider) FilterLogs(ctx context.Context, q LogQuery) ([]Log, error) {
	filter := rpc.LogFilter{
		FromBlock: rpc.FormatBlock(q.FromBlock),
		ToBlock:   rpc.FormatBlock(q.ToBlock),
		Address:   []string{q.Address.Hex()},
	}
	if len(q.Topics) > 0 {
		topic0 := make([]string, len(q.Topics))
		for i, topic := range q.Topics {
			topic0[i] = topic.Hex()
		}
		filter.Topics = [][]string{topic0}
	}

	raw, err := p.client.GetLogs(ctx, filter)
	if err != nil {
		return nil, err
	}

	logs := make([]Log, 0, len(raw))
	for _, l := range raw {
		if l == nil || l.Removed {
			continue
		}
		converted, err := convertLog(l)
		if err != nil {
			return nil, err
		}
		logs = append(logs, converted)
	}
	return logs, nil
}

func convertLog(l *rpc.Log) (Log, error) {
	data, err := hexutil.Decode(l.Data)
	if err != nil && l.Data != "0x" && l.Data != "" {
		return Log{}, fmt.Errorf("decode log data in tx %s: %w", l.TransactionHash, err)
	}
	block, err := rpc.ParseQuantity(l.BlockNumber)
	if err != nil {
		return Log{}, fmt.Errorf("log block number in tx %s: %w", l.TransactionHash, err)
	}
	var index uint64
	if l.LogIndex != "" {
		if index, err = rpc.ParseQuantity(l.LogIndex); err != nil {
			return Log{}, fmt.Errorf("log index in tx %s: %w", l.TransactionHash, err)
		}
	}

	topics := make([]common.Hash, len(l.Topics))
	for i, topic := range l.Topics {
		topics[i] = common.HexToHash(topic)
	}
	return Log{
		Address:     common.HexToAddress(l.Address),
		Topics:      topics,
		Data:        data,
		BlockNumber: block,
		TxHash:      common.HexToHash(l.TransactionHash),
		Index:       uint(index),
	}, nil
}

func (p *RPCProvider) CallContract(ctx context.Context, to common.Address, data []byte, block uint64) ([]byte, error) {
	return p.client.Call(ctx, to, data, block)
}

func (p *RPCProvider) StorageAt(ctx context.Context, addr common.Address, slot common.Hash, block uint64) (common.Hash, error) {
	return p.client.GetStorageAt(ctx, addr, slot, block)
}

func (p *RPCProvider) HasCode(ctx context.Context, addr common.Address, block uint64) (bool, error) {
	code, err := p.client.GetCode(ctx, addr, block)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}
