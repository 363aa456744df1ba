package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract binds an ABI to a deployed address on one provider.
type Contract struct {
	Name     string
	Address  common.Address
	ABI      abi.ABI
	provider Provider
}

func NewContract(name string, address common.Address, abiJSON string, provider Provider) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse %s abi: %w", name, err)
	}
	return &Contract{
		Name:     name,
		Address:  address,
		ABI:      parsed,
		provider: provider,
	}, nil
}

func (c *Contract) Provider() Provider {
	return c.provider
}

// EventQuery builds a LogQuery for the named events of this contract. The
// block range is filled in by the scanner.
func (c *Contract) EventQuery(events ...string) (LogQuery, error) {
	q := LogQuery{Address: c.Address}
	for _, name := range events {
		ev, ok := c.ABI.Events[name]
		if !ok {
			return LogQuery{}, fmt.Errorf("%s: unknown event %q", c.Name, name)
		}
		q.Topics = append(q.Topics, ev.ID)
	}
	return q, nil
}

// Call packs method(args...), executes it at block and unpacks the outputs.
func (c *Contract) Call(ctx context.Context, block uint64, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: pack: %w", c.Name, method, err)
	}
	out, err := c.provider.CallContract(ctx, c.Address, data, block)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", c.Name, method, err)
	}
	values, err := c.ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: unpack: %w", c.Name, method, err)
	}
	return values, nil
}

// DecodedEvent is a log with its arguments unpacked by name.
type DecodedEvent struct {
	Name   string
	Fields map[string]interface{}
	Log    Log
}

// Decode unpacks indexed and non-indexed arguments of l.
func (c *Contract) Decode(l Log) (DecodedEvent, error) {
	if len(l.Topics) == 0 {
		return DecodedEvent{}, fmt.Errorf("%s: anonymous log in tx %s", c.Name, l.TxHash.Hex())
	}
	ev, err := c.ABI.EventByID(l.Topics[0])
	if err != nil {
		return DecodedEvent{}, fmt.Errorf("%s: %w", c.Name, err)
	}

	fields := make(map[string]interface{}, len(ev.Inputs))
	if len(ev.Inputs.NonIndexed()) > 0 {
		if err := c.ABI.UnpackIntoMap(fields, ev.Name, l.Data); err != nil {
			return DecodedEvent{}, fmt.Errorf("%s.%s: unpack data: %w", c.Name, ev.Name, err)
		}
	}

	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(fields, indexed, l.Topics[1:]); err != nil {
			return DecodedEvent{}, fmt.Errorf("%s.%s: parse topics: %w", c.Name, ev.Name, err)
		}
	}

	return DecodedEvent{Name: ev.Name, Fields: fields, Log: l}, nil
}
