package upstream

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testTemplate = `{
	"previousblockhash": "00000000000000000002f39baabb00ffe5db1a2c4b4f4d21995c1a5b4a8d3c9e",
	"version": 536870912,
	"bits": "17034219",
	"curtime": 1714000000,
	"height": 840000,
	"coinbasevalue": 312500000,
	"transactions": [
		{"data": "aa", "txid": "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"},
		{"data": "bb", "txid": "9b0fc92260312ce44e74ef369f5c66bbb85848f2eddd5a7a1cde251e54ccfdd5"},
		{"data": "cc", "txid": "999e1c837c76a1b7fbb7e57baf87b309960f5ffefbf2a9b95dd890602272f644"}
	]
}`

func newTestRPC(t *testing.T, handler http.HandlerFunc) *BitcoinRPC {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultBitcoinRPCConfig()
	cfg.URL = srv.URL
	cfg.Username = "user"
	cfg.Password = "pass"
	cfg.PayoutScript = "76a914000000000000000000000000000000000000000088ac"
	return NewBitcoinRPC(cfg)
}

func TestFetchTemplate(t *testing.T) {
	rpc := newTestRPC(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "user", user)
		require.Equal(t, "pass", pass)

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "getblocktemplate", req["method"])

		_, _ = w.Write([]byte(`{"result":` + testTemplate + `,"error":null}`))
	})

	tpl, err := rpc.Fetch(context.Background())
	require.NoError(t, err)

	require.Equal(t, "20000000", tpl.Version)
	require.Equal(t, "17034219", tpl.NBits)
	require.Equal(t, "66299080", tpl.NTime)
	require.Equal(t, int64(840000), tpl.Height)
	require.True(t, tpl.Clean)

	// prevhash 按 4 字节字序重排，整体不等于原哈希
	require.Len(t, tpl.PrevHash, 64)
	require.NotEqual(t, "00000000000000000002f39baabb00ffe5db1a2c4b4f4d21995c1a5b4a8d3c9e", tpl.PrevHash)

	// 3 笔交易：分支第 0 层是首笔 txid（小端），共 2 层
	require.Len(t, tpl.MerkleBranch, 2)
	require.Equal(t,
		"3ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4a",
		tpl.MerkleBranch[0])

	// coinbase 两段中间是 extranonce 占位
	c1, err := hex.DecodeString(tpl.Coinb1)
	require.NoError(t, err)
	require.Equal(t, byte(0x01), c1[0], "tx version")
	c2, err := hex.DecodeString(tpl.Coinb2)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, c2[len(c2)-4:], "locktime")

	// scriptSig 长度 = coinb1 声明长度字节之后的内容 + extranonce + coinb2 开头到 sequence
	const prefixLen = 4 + 1 + 32 + 4 // version + input count + prevout
	scriptLen := int(c1[prefixLen])
	require.Equal(t, scriptLen, len(c1)-prefixLen-1+8, "extranonce placeholder must fill the declared script length")
}

func TestFetchRPCError(t *testing.T) {
	rpc := newTestRPC(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":null,"error":{"code":-32601,"message":"Method not found"}}`))
	})

	_, err := rpc.Fetch(context.Background())
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "Method not found"))
}

func TestFetchEmptyBlock(t *testing.T) {
	rpc := newTestRPC(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":{
			"previousblockhash":"00000000000000000002f39baabb00ffe5db1a2c4b4f4d21995c1a5b4a8d3c9e",
			"version":536870912,"bits":"17034219","curtime":1714000000,"height":1,
			"coinbasevalue":5000000000,"transactions":[]},"error":null}`))
	})

	tpl, err := rpc.Fetch(context.Background())
	require.NoError(t, err)
	require.Empty(t, tpl.MerkleBranch)
}

func TestEncodeHeight(t *testing.T) {
	tests := []struct {
		height int64
		want   string
	}{
		{1, "0101"},
		{127, "017f"},
		{128, "028000"}, // 最高位为 1 需补零
		{840000, "0340d10c"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, hex.EncodeToString(encodeHeight(tt.height)), "height %d", tt.height)
	}
}

func TestSyntheticSource(t *testing.T) {
	src := NewSynthetic(2, 100)

	t1, err := src.Fetch(context.Background())
	require.NoError(t, err)
	t2, err := src.Fetch(context.Background())
	require.NoError(t, err)

	require.Equal(t, int64(101), t1.Height)
	require.Equal(t, int64(102), t2.Height)
	require.NotEqual(t, t1.PrevHash, t2.PrevHash)
	require.Equal(t, float64(2), t1.Difficulty)
	require.NotEqual(t, t1.Checksum(), t2.Checksum())
}
