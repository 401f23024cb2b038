package upstream

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/stratumd/app/stratumd/internal/job"
)

// BitcoinRPCConfig bitcoind 模板源配置
type BitcoinRPCConfig struct {
	// URL RPC 地址，如 http://127.0.0.1:8332
	URL string `mapstructure:"url" json:"url" yaml:"url" validate:"omitempty,url"`
	// Username RPC 用户名
	Username string `mapstructure:"username" json:"username" yaml:"username"`
	// Password RPC 密码
	Password string `mapstructure:"password" json:"password" yaml:"password"`
	// Timeout 单次请求超时
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
	// PayoutScript coinbase 产出脚本（十六进制）
	PayoutScript string `mapstructure:"payout_script" json:"payout_script" yaml:"payout_script" validate:"omitempty,hexadecimal"`
	// CoinbaseTag 写进 coinbase scriptSig 的矿池标签
	CoinbaseTag string `mapstructure:"coinbase_tag" json:"coinbase_tag" yaml:"coinbase_tag"`
	// ExtranonceSize extranonce1+extranonce2 占位总字节数
	ExtranonceSize int `mapstructure:"extranonce_size" json:"extranonce_size" yaml:"extranonce_size"`
	// ShareDifficulty 下发给矿工的份额难度
	ShareDifficulty float64 `mapstructure:"share_difficulty" json:"share_difficulty" yaml:"share_difficulty"`
}

// DefaultBitcoinRPCConfig 默认配置
func DefaultBitcoinRPCConfig() *BitcoinRPCConfig {
	return &BitcoinRPCConfig{
		URL:             "http://127.0.0.1:8332",
		Timeout:         10 * time.Second,
		CoinbaseTag:     "/stratumd/",
		ExtranonceSize:  8,
		ShareDifficulty: 1,
	}
}

// BitcoinRPC 通过 getblocktemplate 拉取模板
type BitcoinRPC struct {
	cfg    *BitcoinRPCConfig
	client *http.Client
}

// NewBitcoinRPC 创建 bitcoind 模板源
func NewBitcoinRPC(cfg *BitcoinRPCConfig) *BitcoinRPC {
	if cfg == nil {
		cfg = DefaultBitcoinRPCConfig()
	}
	return &BitcoinRPC{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type rpcRequest struct {
	ID     int           `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// blockTemplate getblocktemplate 响应（仅取用到的字段）
type blockTemplate struct {
	PreviousBlockHash string `json:"previousblockhash"`
	Version           int32  `json:"version"`
	Bits              string `json:"bits"`
	CurTime           int64  `json:"curtime"`
	Height            int64  `json:"height"`
	CoinbaseValue     int64  `json:"coinbasevalue"`
	Transactions      []struct {
		Data string `json:"data"`
		TxID string `json:"txid"`
	} `json:"transactions"`
}

// Fetch 拉取模板并转换为任务模板
func (b *BitcoinRPC) Fetch(ctx context.Context) (*job.Template, error) {
	var tpl blockTemplate
	err := b.call(ctx, "getblocktemplate", []interface{}{
		map[string]interface{}{"rules": []string{"segwit"}},
	}, &tpl)
	if err != nil {
		return nil, err
	}
	return b.toTemplate(&tpl)
}

func (b *BitcoinRPC) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(&rpcRequest{ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build rpc request")
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.Username != "" {
		req.SetBasicAuth(b.cfg.Username, b.cfg.Password)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "rpc %s", method)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read rpc response")
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return errors.Wrapf(err, "decode rpc response (status %d)", resp.StatusCode)
	}
	if rpcResp.Error != nil {
		return errors.Newf("rpc %s failed: %d %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// toTemplate 把 getblocktemplate 结果转换为挖矿模板：
// 构造 coinbase 并在 extranonce 占位处一分为二，计算 coinbase 的默克尔分支
func (b *BitcoinRPC) toTemplate(tpl *blockTemplate) (*job.Template, error) {
	coinb1, coinb2, err := b.buildCoinbase(tpl)
	if err != nil {
		return nil, err
	}

	txids := make([]string, 0, len(tpl.Transactions))
	for _, tx := range tpl.Transactions {
		txids = append(txids, tx.TxID)
	}
	branch, err := merkleBranch(txids)
	if err != nil {
		return nil, err
	}

	return &job.Template{
		PrevHash:     swapPrevHash(tpl.PreviousBlockHash),
		Coinb1:       hex.EncodeToString(coinb1),
		Coinb2:       hex.EncodeToString(coinb2),
		MerkleBranch: branch,
		Version:      fmt.Sprintf("%08x", uint32(tpl.Version)),
		NBits:        tpl.Bits,
		NTime:        fmt.Sprintf("%08x", tpl.CurTime),
		Difficulty:   b.cfg.ShareDifficulty,
		Height:       tpl.Height,
		Clean:        true,
	}, nil
}

// buildCoinbase 构造 coinbase 交易并返回 extranonce 占位前后两段
// scriptSig = BIP34 高度 + 矿池标签 + extranonce 占位
func (b *BitcoinRPC) buildCoinbase(tpl *blockTemplate) ([]byte, []byte, error) {
	payoutScript, err := hex.DecodeString(b.cfg.PayoutScript)
	if err != nil {
		return nil, nil, errors.Wrap(err, "decode payout script")
	}

	heightPush := encodeHeight(tpl.Height)
	tag := []byte(b.cfg.CoinbaseTag)
	scriptLen := len(heightPush) + len(tag) + b.cfg.ExtranonceSize
	if scriptLen > 100 {
		return nil, nil, errors.Newf("coinbase scriptSig too long: %d bytes", scriptLen)
	}

	var c1 bytes.Buffer
	c1.Write([]byte{0x01, 0x00, 0x00, 0x00}) // version
	c1.WriteByte(0x01)                       // input count
	c1.Write(make([]byte, 32))               // null prevout hash
	c1.Write([]byte{0xff, 0xff, 0xff, 0xff}) // prevout index
	c1.WriteByte(byte(scriptLen))
	c1.Write(heightPush)
	c1.Write(tag)
	// extranonce1 + extranonce2 由矿工在此处填充

	var c2 bytes.Buffer
	c2.Write([]byte{0xff, 0xff, 0xff, 0xff}) // sequence
	c2.WriteByte(0x01)                       // output count
	var value [8]byte
	binary.LittleEndian.PutUint64(value[:], uint64(tpl.CoinbaseValue))
	c2.Write(value[:])
	c2.WriteByte(byte(len(payoutScript)))
	c2.Write(payoutScript)
	c2.Write([]byte{0x00, 0x00, 0x00, 0x00}) // locktime

	return c1.Bytes(), c2.Bytes(), nil
}

// encodeHeight BIP34 高度编码：最小长度小端整数前加长度字节
func encodeHeight(height int64) []byte {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], uint64(height))

	n := 1
	for i := 7; i > 0; i-- {
		if le[i] != 0 {
			n = i + 1
			break
		}
	}
	// 最高位为 1 时补零字节，避免被解释为负数
	if le[n-1]&0x80 != 0 {
		n++
	}

	out := make([]byte, 0, n+1)
	out = append(out, byte(n))
	out = append(out, le[:n]...)
	return out
}

// swapPrevHash 把 RPC 的大端哈希转换为 notify 使用的 4 字节字序
func swapPrevHash(h string) string {
	raw, err := hex.DecodeString(h)
	if err != nil || len(raw) != 32 {
		return h
	}

	// 先整体反转为小端，再按 4 字节一组反转
	for i, j := 0, 31; i < j; i, j = i+1, j-1 {
		raw[i], raw[j] = raw[j], raw[i]
	}
	out := make([]byte, 32)
	for i := 0; i < 32; i += 4 {
		out[i], out[i+1], out[i+2], out[i+3] = raw[i+3], raw[i+2], raw[i+1], raw[i]
	}
	return hex.EncodeToString(out)
}

// merkleBranch 计算 coinbase 位置的默克尔分支
// 输入为 RPC 字序（大端）的 txid，输出为小端十六进制
func merkleBranch(txids []string) ([]string, error) {
	level := make([][]byte, 0, len(txids))
	for _, id := range txids {
		raw, err := hex.DecodeString(id)
		if err != nil || len(raw) != 32 {
			return nil, errors.Newf("bad txid: %s", id)
		}
		for i, j := 0, 31; i < j; i, j = i+1, j-1 {
			raw[i], raw[j] = raw[j], raw[i]
		}
		level = append(level, raw)
	}

	branch := make([]string, 0, 8)
	for len(level) > 0 {
		branch = append(branch, hex.EncodeToString(level[0]))

		// coinbase 占位在每层的第 0 位，两两合并后上移一层
		if len(level) == 1 {
			break
		}
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 1; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, doubleSHA256(level[i], level[i+1]))
			} else {
				next = append(next, doubleSHA256(level[i], level[i]))
			}
		}
		level = next
	}
	return branch, nil
}

func doubleSHA256(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	first := h.Sum(nil)
	second := sha256.Sum256(first)
	return second[:]
}
