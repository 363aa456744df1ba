package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Layout is a solc storageLayout document.
type Layout struct {
	Storage []LayoutEntry       `json:"storage"`
	Types   map[string]TypeInfo `json:"types"`
}

type LayoutEntry struct {
	Label  string `json:"label"`
	Offset int    `json:"offset"`
	Slot   string `json:"slot"`
	Type   string `json:"type"`
}

type TypeInfo struct {
	Encoding      string        `json:"encoding"`
	Label         string        `json:"label"`
	NumberOfBytes string        `json:"numberOfBytes"`
	Key           string        `json:"key,omitempty"`
	Value         string        `json:"value,omitempty"`
	Base          string        `json:"base,omitempty"`
	Members       []LayoutEntry `json:"members,omitempty"`
}

// LoadLayout reads a storage layout file.
func LoadLayout(path string) (*Layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read storage layout: %w", err)
	}
	var layout Layout
	if err := json.Unmarshal(raw, &layout); err != nil {
		return nil, fmt.Errorf("parse storage layout %s: %w", path, err)
	}
	return &layout, nil
}

// Location is a resolved position in storage: a slot, a byte offset inside
// the slot (from the low-order end) and the type stored there.
type Location struct {
	Slot   *big.Int
	Offset int
	Type   string
	layout *Layout
}

// Var resolves a dotted path such as "s.sys.fert.fertilizer" starting at a
// top-level variable.
func (l *Layout) Var(path string) (Location, error) {
	parts := strings.Split(path, ".")
	var root *LayoutEntry
	for i := range l.Storage {
		if l.Storage[i].Label == parts[0] {
			root = &l.Storage[i]
			break
		}
	}
	if root == nil {
		return Location{}, fmt.Errorf("storage variable %q not found", parts[0])
	}

	slot, ok := new(big.Int).SetString(root.Slot, 10)
	if !ok {
		return Location{}, fmt.Errorf("storage variable %q: bad slot %q", root.Label, root.Slot)
	}
	loc := Location{Slot: slot, Offset: root.Offset, Type: root.Type, layout: l}
	for _, member := range parts[1:] {
		next, err := loc.Field(member)
		if err != nil {
			return Location{}, fmt.Errorf("resolve %s: %w", path, err)
		}
		loc = next
	}
	return loc, nil
}

func (loc Location) info() (TypeInfo, error) {
	info, ok := loc.layout.Types[loc.Type]
	if !ok {
		return TypeInfo{}, fmt.Errorf("type %q not in layout", loc.Type)
	}
	return info, nil
}

// Field descends into a struct member.
func (loc Location) Field(name string) (Location, error) {
	info, err := loc.info()
	if err != nil {
		return Location{}, err
	}
	if info.Encoding != "inplace" || len(info.Members) == 0 {
		return Location{}, fmt.Errorf("%s is not a struct", info.Label)
	}
	for _, m := range info.Members {
		if m.Label != name {
			continue
		}
		rel, ok := new(big.Int).SetString(m.Slot, 10)
		if !ok {
			return Location{}, fmt.Errorf("member %s: bad slot %q", name, m.Slot)
		}
		return Location{
			Slot:   new(big.Int).Add(loc.Slot, rel),
			Offset: m.Offset,
			Type:   m.Type,
			layout: loc.layout,
		}, nil
	}
	return Location{}, fmt.Errorf("member %q not found in %s", name, info.Label)
}

// Key descends into a mapping with a value-type key (integers, addresses).
func (loc Location) Key(key *big.Int) (Location, error) {
	info, err := loc.info()
	if err != nil {
		return Location{}, err
	}
	if info.Encoding != "mapping" {
		return Location{}, fmt.Errorf("%s is not a mapping", info.Label)
	}
	if key.Sign() < 0 {
		return Location{}, fmt.Errorf("negative mapping key %s", key)
	}
	hashed := crypto.Keccak256Hash(
		common.LeftPadBytes(key.Bytes(), 32),
		common.LeftPadBytes(loc.Slot.Bytes(), 32),
	)
	return Location{
		Slot:   hashed.Big(),
		Offset: 0,
		Type:   info.Value,
		layout: loc.layout,
	}, nil
}

// Hash returns the slot as a storage key.
func (loc Location) Hash() common.Hash {
	return common.BigToHash(loc.Slot)
}

// Decode extracts the value stored at this location from its slot's word.
func (loc Location) Decode(word common.Hash) (*big.Int, error) {
	info, err := loc.info()
	if err != nil {
		return nil, err
	}
	size, err := strconv.Atoi(info.NumberOfBytes)
	if err != nil || size <= 0 || size > 32 {
		return nil, fmt.Errorf("%s: unsupported size %q", info.Label, info.NumberOfBytes)
	}
	if loc.Offset+size > 32 {
		return nil, fmt.Errorf("%s: offset %d overflows slot", info.Label, loc.Offset)
	}
	end := 32 - loc.Offset
	return new(big.Int).SetBytes(word[end-size : end]), nil
}

// ReadUint reads the unsigned integer stored at loc in addr's storage at block.
func ReadUint(ctx context.Context, p Provider, addr common.Address, loc Location, block uint64) (*big.Int, error) {
	word, err := p.StorageAt(ctx, addr, loc.Hash(), block)
	if err != nil {
		return nil, err
	}
	return loc.Decode(word)
}
