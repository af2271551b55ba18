package router

import "math/big"

// bigG is the Oakley Group 2 generator, g=2.
var bigG = big.NewInt(2)

func mustParseHexBig(hex string) *big.Int {
	n, ok := new(big.Int).SetString(hex, 16)
	if !ok {
		panic("router: invalid hex constant")
	}
	return n
}

func bytesToBig(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

func modExp(base, exp, mod *big.Int) *big.Int {
	return new(big.Int).Exp(base, exp, mod)
}

// bigToFixedBytes writes n into out, left-padded with zero bytes, truncating
// silently from the left if n somehow needs more than len(out) bytes (it
// never should for values reduced mod the 2048-bit Oakley prime).
func bigToFixedBytes(n *big.Int, out []byte) {
	raw := n.Bytes()
	if len(raw) >= len(out) {
		copy(out, raw[len(raw)-len(out):])
		return
	}
	offset := len(out) - len(raw)
	for i := range out {
		if i < offset {
			out[i] = 0
		} else {
			out[i] = raw[i-offset]
		}
	}
}
