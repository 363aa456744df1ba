package assetstest

import (
	"os"
	"path/filepath"
	"testing"
)

// BeanstalkLayout is a reduced Beanstalk storage layout containing
// s.sys.fert.fertilizer.
const BeanstalkLayout = `{
  "storage": [{"label": "s", "offset": 0, "slot": "0", "type": "t_struct(AppStorage)1"}],
  "types": {
    "t_struct(AppStorage)1": {"encoding": "inplace", "label": "struct AppStorage", "numberOfBytes": "96", "members": [
      {"label": "paused", "offset": 0, "slot": "0", "type": "t_uint256"},
      {"label": "sys", "offset": 0, "slot": "1", "type": "t_struct(System)2"}]},
    "t_struct(System)2": {"encoding": "inplace", "label": "struct System", "numberOfBytes": "64", "members": [
      {"label": "fert", "offset": 0, "slot": "0", "type": "t_struct(Fert)3"}]},
    "t_struct(Fert)3": {"encoding": "inplace", "label": "struct Fert", "numberOfBytes": "64", "members": [
      {"label": "activeFertilizer", "offset": 0, "slot": "0", "type": "t_uint128"},
      {"label": "fertilizer", "offset": 0, "slot": "1", "type": "t_mapping(t_uint128,t_uint128)"}]},
    "t_mapping(t_uint128,t_uint128)": {"encoding": "mapping", "key": "t_uint128", "label": "mapping(uint128 => uint128)", "numberOfBytes": "32", "value": "t_uint128"},
    "t_uint128": {"encoding": "inplace", "label": "uint128", "numberOfBytes": "16"},
    "t_uint256": {"encoding": "inplace", "label": "uint256", "numberOfBytes": "32"}
  }
}`

// WriteLayout writes content as name under the harness layout dir.
func (h *Harness) WriteLayout(t *testing.T, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(h.Env.LayoutDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(h.Env.LayoutDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
