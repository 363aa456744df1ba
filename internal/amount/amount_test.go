package amount

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmount_JSONRoundTripUpTo2Pow128(t *testing.T) {
	two128 := new(big.Int).Lsh(big.NewInt(1), 128)
	values := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(1_000_000),
		new(big.Int).Sub(two128, big.NewInt(1)),
		two128,
		new(big.Int).Add(two128, big.NewInt(12345)),
	}

	for _, v := range values {
		a, err := FromBig(v)
		require.NoError(t, err)

		raw, err := json.Marshal(a)
		require.NoError(t, err)
		assert.Equal(t, `"`+v.String()+`"`, string(raw))

		var back Amount
		require.NoError(t, json.Unmarshal(raw, &back))
		assert.Equal(t, 0, back.Big().Cmp(v), "value %s", v)
	}
}

func TestAmount_UnmarshalAcceptsHexAndNumbers(t *testing.T) {
	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`"0x236"`), &a))
	assert.Equal(t, "566", a.String())

	require.NoError(t, json.Unmarshal([]byte(`42`), &a))
	assert.Equal(t, "42", a.String())

	require.NoError(t, json.Unmarshal([]byte(`null`), &a))
	assert.True(t, a.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"-5"`), &a))
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &a))
}

func TestAmount_MapRoundTrip(t *testing.T) {
	in := map[string]Amount{"0xabc": New(5), "0xdef": New(3)}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"0xabc":"5","0xdef":"3"}`, string(raw))

	var out map[string]Amount
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)
}

func TestFromBig_Rejects(t *testing.T) {
	_, err := FromBig(big.NewInt(-1))
	assert.Error(t, err)

	_, err = FromBig(new(big.Int).Lsh(big.NewInt(1), 256))
	assert.Error(t, err)
}

func TestSumAndDeficit(t *testing.T) {
	total := Sum(map[string]Amount{"a": New(5), "c": New(3)})
	assert.Equal(t, "8", total.String())

	assert.Equal(t, int64(1), Deficit(big.NewInt(9), total).Int64())
	assert.Equal(t, int64(-2), Deficit(big.NewInt(6), total).Int64())

	_, underflow := New(3).Sub(New(5))
	assert.True(t, underflow)
}

func TestAdd_ReportsOverflow(t *testing.T) {
	max, err := FromBig(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)))
	require.NoError(t, err)

	sum, err := max.Add(Zero)
	require.NoError(t, err)
	assert.Equal(t, max, sum)

	_, err = max.Add(New(1))
	assert.ErrorIs(t, err, ErrOverflow)

	sum, err = New(2).Add(New(3))
	require.NoError(t, err)
	assert.Equal(t, "5", sum.String())
}

func TestSum_DoesNotWrap(t *testing.T) {
	max, err := FromBig(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)))
	require.NoError(t, err)

	total := Sum(map[string]Amount{"a": max, "b": New(1)})
	assert.Equal(t, 0, total.Cmp(new(big.Int).Lsh(big.NewInt(1), 256)))
}
