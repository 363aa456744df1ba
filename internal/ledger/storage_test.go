package ledger

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLayout = `{
	"storage": [
		{"label":"owner","offset":0,"slot":"0","type":"t_address"},
		{"label":"s","offset":0,"slot":"3","type":"t_struct(AppStorage)1_storage"}
	],
	"types": {
		"t_address": {"encoding":"inplace","label":"address","numberOfBytes":"20"},
		"t_uint128": {"encoding":"inplace","label":"uint128","numberOfBytes":"16"},
		"t_uint256": {"encoding":"inplace","label":"uint256","numberOfBytes":"32"},
		"t_mapping(t_uint128,t_uint256)": {"encoding":"mapping","key":"t_uint128","label":"mapping(uint128 => uint256)","numberOfBytes":"32","value":"t_uint256"},
		"t_struct(AppStorage)1_storage": {"encoding":"inplace","label":"struct AppStorage","numberOfBytes":"160","members":[
			{"label":"paused","offset":0,"slot":"0","type":"t_uint128"},
			{"label":"sys","offset":0,"slot":"2","type":"t_struct(System)2_storage"}
		]},
		"t_struct(System)2_storage": {"encoding":"inplace","label":"struct System","numberOfBytes":"96","members":[
			{"label":"activeFertilizer","offset":0,"slot":"0","type":"t_uint128"},
			{"label":"fertFirst","offset":16,"slot":"0","type":"t_uint128"},
			{"label":"fertilizer","offset":0,"slot":"1","type":"t_mapping(t_uint128,t_uint256)"}
		]}
	}
}`

type storageStub struct {
	words map[common.Hash]common.Hash
}

func (s *storageStub) Name() string { return "stub" }
func (s *storageStub) FilterLogs(context.Context, LogQuery) ([]Log, error) {
	return nil, nil
}
func (s *storageStub) CallContract(context.Context, common.Address, []byte, uint64) ([]byte, error) {
	return nil, nil
}
func (s *storageStub) StorageAt(_ context.Context, _ common.Address, slot common.Hash, _ uint64) (common.Hash, error) {
	return s.words[slot], nil
}
func (s *storageStub) HasCode(context.Context, common.Address, uint64) (bool, error) {
	return false, nil
}

func parseTestLayout(t *testing.T) *Layout {
	t.Helper()
	var l Layout
	require.NoError(t, json.Unmarshal([]byte(testLayout), &l))
	return &l
}

func TestLayout_ResolveNestedStruct(t *testing.T) {
	l := parseTestLayout(t)

	loc, err := l.Var("s.sys.fertFirst")
	require.NoError(t, err)
	assert.Equal(t, int64(5), loc.Slot.Int64())
	assert.Equal(t, 16, loc.Offset)

	_, err = l.Var("s.sys.missing")
	assert.Error(t, err)
	_, err = l.Var("nope")
	assert.Error(t, err)
	_, err = l.Var("owner.field")
	assert.Error(t, err)
}

func TestLayout_MappingKeySlot(t *testing.T) {
	l := parseTestLayout(t)

	m, err := l.Var("s.sys.fertilizer")
	require.NoError(t, err)
	assert.Equal(t, int64(6), m.Slot.Int64())

	entry, err := m.Key(big.NewInt(9))
	require.NoError(t, err)
	want := crypto.Keccak256Hash(
		common.LeftPadBytes([]byte{9}, 32),
		common.LeftPadBytes([]byte{6}, 32),
	)
	assert.Equal(t, want, entry.Hash())
	assert.Equal(t, "t_uint256", entry.Type)

	_, err = entry.Key(big.NewInt(1))
	assert.Error(t, err, "uint256 is not a mapping")
}

func TestLocation_DecodePackedSlot(t *testing.T) {
	l := parseTestLayout(t)

	var word common.Hash
	// low 16 bytes: activeFertilizer = 7, high 16 bytes: fertFirst = 3
	word[31] = 7
	word[15] = 3

	active, err := l.Var("s.sys.activeFertilizer")
	require.NoError(t, err)
	first, err := l.Var("s.sys.fertFirst")
	require.NoError(t, err)

	v, err := active.Decode(word)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v.Int64())

	v, err = first.Decode(word)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.Int64())
}

func TestReadUint(t *testing.T) {
	l := parseTestLayout(t)
	m, err := l.Var("s.sys.fertilizer")
	require.NoError(t, err)
	entry, err := m.Key(big.NewInt(2))
	require.NoError(t, err)

	stub := &storageStub{words: map[common.Hash]common.Hash{
		entry.Hash(): common.BigToHash(big.NewInt(1234)),
	}}
	v, err := ReadUint(context.Background(), stub, common.Address{}, entry, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), v.Int64())
}
