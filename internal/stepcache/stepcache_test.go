package stepcache

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/pinto-org/beanstalk-snapshot/internal/amount"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, string) {
	t.Helper()
	root := t.TempDir()
	return New(filepath.Join(root, "cache"), filepath.Join(root, "reseed"), 20921737, nil), root
}

func TestOnce_ComputesOnlyOnce(t *testing.T) {
	c, _ := newTestCache(t)
	counter := 0
	compute := func(context.Context) (int, error) {
		counter++
		return counter, nil
	}

	first, err := Once(context.Background(), c, "x", compute)
	require.NoError(t, err)
	second, err := Once(context.Background(), c, "x", compute)
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 1, counter)
}

func TestOnce_SurvivesNewCacheInstance(t *testing.T) {
	c, root := newTestCache(t)
	_, err := Once(context.Background(), c, "wallets", func(context.Context) ([]string, error) {
		return []string{"0xa", "0xb"}, nil
	})
	require.NoError(t, err)

	restarted := New(filepath.Join(root, "cache"), filepath.Join(root, "reseed"), 20921737, nil)
	got, err := Once(context.Background(), restarted, "wallets", func(context.Context) ([]string, error) {
		t.Fatal("compute must not run for a cached step")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"0xa", "0xb"}, got)
}

func TestOnce_FailureIsNotCached(t *testing.T) {
	c, _ := newTestCache(t)
	boom := errors.New("rpc down")

	_, err := Once(context.Background(), c, "balances", func(context.Context) (map[string]amount.Amount, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	ok, err := c.Has("balances")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := Once(context.Background(), c, "balances", func(context.Context) (map[string]amount.Amount, error) {
		return map[string]amount.Amount{"0xa": amount.New(7)}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "7", got["0xa"].String())
}

func TestOnce_LargeIntegersRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	huge := new(big.Int).Lsh(big.NewInt(1), 128)
	huge.Add(huge, big.NewInt(99))
	value, err := amount.FromBig(huge)
	require.NoError(t, err)

	compute := func(context.Context) (map[string]amount.Amount, error) {
		return map[string]amount.Amount{"0xa": value}, nil
	}
	miss, err := Once(context.Background(), c, "big", compute)
	require.NoError(t, err)
	hit, err := Once(context.Background(), c, "big", compute)
	require.NoError(t, err)

	assert.Equal(t, miss, hit)
	assert.Equal(t, huge.String(), hit["0xa"].String())

	raw, err := os.ReadFile(c.Path("big"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"`+huge.String()+`"`)
}

func TestRequire(t *testing.T) {
	c, _ := newTestCache(t)
	_, err := Require[[]string](c, "migrations")
	require.ErrorIs(t, err, ErrMissingDependency)

	_, err = Once(context.Background(), c, "migrations", func(context.Context) ([]string, error) {
		return []string{"0xowner"}, nil
	})
	require.NoError(t, err)

	got, err := Require[[]string](c, "migrations")
	require.NoError(t, err)
	assert.Equal(t, []string{"0xowner"}, got)
}

func TestLoadFixtures(t *testing.T) {
	c, root := newTestCache(t)
	dir := filepath.Join(root, "reseed")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "contract-accounts20921737.json"),
		[]byte(`["0xAAA","0xbbb"]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unripe-bean20921737.csv"),
		[]byte("account,balance\n0xAAA,100\n0xbbb, 340282366920938463463374607431768211456\n0xAAA,5\n\n"), 0o644))

	var contracts []string
	require.NoError(t, c.LoadFixtureJSON("contract-accounts", &contracts))
	assert.Equal(t, []string{"0xAAA", "0xbbb"}, contracts)

	balances, err := c.LoadFixtureCSV("unripe-bean")
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "105", balances["0xAAA"].String())
	assert.Equal(t, "340282366920938463463374607431768211456", balances["0xbbb"].String())

	_, err = c.LoadFixtureCSV("missing")
	assert.Error(t, err)
}

func TestLoadFixtureCSV_RepeatedKeysOverflow(t *testing.T) {
	c, root := newTestCache(t)
	dir := filepath.Join(root, "reseed")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unripe-lp20921737.csv"),
		[]byte("account,balance\n0xAAA,"+max.String()+"\n0xAAA,1\n"), 0o644))

	_, err := c.LoadFixtureCSV("unripe-lp")
	assert.ErrorIs(t, err, amount.ErrOverflow)
	assert.ErrorContains(t, err, "line 3")
}
