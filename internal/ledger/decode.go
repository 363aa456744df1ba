package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Shape names, per canonical role, the argument names an event may carry the
// role under. Contract versions disagree on names ("account" vs "owner",
// "fid" vs "id"), so each role lists alternatives in preference order.
type Shape struct {
	Accounts [][]string
	IDs      [][]string
	Owner    []string
	Receiver []string
}

// Record is the canonical form every event is normalized to.
type Record struct {
	Event    string
	Block    uint64
	Accounts []common.Address
	IDs      []*big.Int
	Owner    common.Address
	Receiver common.Address
}

// Decoder normalizes decoded events according to per-event shapes.
type Decoder struct {
	shapes map[string]Shape
}

func NewDecoder(shapes map[string]Shape) *Decoder {
	return &Decoder{shapes: shapes}
}

// Normalize converts ev into a Record. Events without a registered shape are rejected.
func (d *Decoder) Normalize(ev DecodedEvent) (Record, error) {
	shape, ok := d.shapes[ev.Name]
	if !ok {
		return Record{}, fmt.Errorf("no shape registered for event %s", ev.Name)
	}

	rec := Record{Event: ev.Name, Block: ev.Log.BlockNumber}
	for _, names := range shape.Accounts {
		value, name, ok := lookup(ev.Fields, names)
		if !ok {
			return Record{}, fmt.Errorf("%s: missing account field %v", ev.Name, names)
		}
		addrs, err := toAddresses(value)
		if err != nil {
			return Record{}, fmt.Errorf("%s.%s: %w", ev.Name, name, err)
		}
		rec.Accounts = append(rec.Accounts, addrs...)
	}
	for _, names := range shape.IDs {
		value, name, ok := lookup(ev.Fields, names)
		if !ok {
			return Record{}, fmt.Errorf("%s: missing id field %v", ev.Name, names)
		}
		ids, err := toInts(value)
		if err != nil {
			return Record{}, fmt.Errorf("%s.%s: %w", ev.Name, name, err)
		}
		rec.IDs = append(rec.IDs, ids...)
	}
	if len(shape.Owner) > 0 {
		value, name, ok := lookup(ev.Fields, shape.Owner)
		if !ok {
			return Record{}, fmt.Errorf("%s: missing owner field %v", ev.Name, shape.Owner)
		}
		owner, err := toAddress(value)
		if err != nil {
			return Record{}, fmt.Errorf("%s.%s: %w", ev.Name, name, err)
		}
		rec.Owner = owner
	}
	if len(shape.Receiver) > 0 {
		value, name, ok := lookup(ev.Fields, shape.Receiver)
		if !ok {
			return Record{}, fmt.Errorf("%s: missing receiver field %v", ev.Name, shape.Receiver)
		}
		receiver, err := toAddress(value)
		if err != nil {
			return Record{}, fmt.Errorf("%s.%s: %w", ev.Name, name, err)
		}
		rec.Receiver = receiver
		rec.Accounts = append(rec.Accounts, receiver)
	}
	return rec, nil
}

func lookup(fields map[string]interface{}, names []string) (interface{}, string, bool) {
	for _, name := range names {
		if v, ok := fields[name]; ok {
			return v, name, true
		}
	}
	return nil, "", false
}

func toAddress(v interface{}) (common.Address, error) {
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case string:
		if !common.IsHexAddress(a) {
			return common.Address{}, fmt.Errorf("invalid address %q", a)
		}
		return common.HexToAddress(a), nil
	default:
		return common.Address{}, fmt.Errorf("unexpected address type %T", v)
	}
}

func toAddresses(v interface{}) ([]common.Address, error) {
	if list, ok := v.([]common.Address); ok {
		return list, nil
	}
	addr, err := toAddress(v)
	if err != nil {
		return nil, err
	}
	return []common.Address{addr}, nil
}

func toInts(v interface{}) ([]*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return []*big.Int{n}, nil
	case []*big.Int:
		return n, nil
	case uint8:
		return []*big.Int{new(big.Int).SetUint64(uint64(n))}, nil
	case uint16:
		return []*big.Int{new(big.Int).SetUint64(uint64(n))}, nil
	case uint32:
		return []*big.Int{new(big.Int).SetUint64(uint64(n))}, nil
	case uint64:
		return []*big.Int{new(big.Int).SetUint64(n)}, nil
	default:
		return nil, fmt.Errorf("unexpected integer type %T", v)
	}
}
