package corpus

import (
	"encoding/binary"

	"github.com/dimakogan/tiptoe-simplepir/pirerr"
)

// Magic is prepended to every document's packed byte stream before
// symbol-packing, so a reconstructed row can be told apart from an
// all-zero padding row or a row corrupted by decode failure. "TIPT" in
// ASCII.
const Magic uint32 = 0x54_49_50_54

const magicLen = 4

// SymbolBits is the number of bits packed per Z_p symbol: floor(log2(p)),
// the largest power of two that still fits losslessly in [0,p).
func SymbolBits(p uint64) int {
	bits := 0
	for (uint64(1) << (bits + 1)) <= p {
		bits++
	}
	return bits
}

// PackedLen returns R' = ceil((magicLen+R)*8 / bits), the number of Z_p
// symbols needed to hold the magic-prefixed document.
func PackedLen(r int, p uint64) int {
	bits := SymbolBits(p)
	totalBits := (magicLen + r) * 8
	return (totalBits + bits - 1) / bits
}

// Pack prepends Magic to doc and packs the resulting bytes into width-R'
// Z_p symbols at `bits` bits each, zero-padding the final partial symbol.
func Pack(doc []byte, r int, p uint64) []uint64 {
	bits := SymbolBits(p)
	buf := make([]byte, magicLen+r)
	binary.BigEndian.PutUint32(buf[:magicLen], Magic)
	copy(buf[magicLen:], doc)

	out := make([]uint64, PackedLen(r, p))
	var acc uint64
	var accBits int
	symIdx := 0
	for _, b := range buf {
		acc = acc<<8 | uint64(b)
		accBits += 8
		for accBits >= bits {
			accBits -= bits
			out[symIdx] = (acc >> accBits) & ((1 << bits) - 1)
			symIdx++
		}
	}
	if accBits > 0 && symIdx < len(out) {
		out[symIdx] = (acc << (bits - accBits)) & ((1 << bits) - 1)
	}
	return out
}

// Unpack reverses Pack, returning the original r-byte document. It returns
// a DecodeFailure error if the magic prefix is absent, which the caller
// (the tiptoe protocol) treats as "no match" rather than a transport
// failure.
func Unpack(symbols []uint64, r int, p uint64) ([]byte, error) {
	const op = "corpus.Unpack"
	bits := SymbolBits(p)
	total := magicLen + r
	buf := make([]byte, 0, total)

	var acc uint64
	var accBits int
	for _, sym := range symbols {
		acc = acc<<bits | (sym & ((1 << bits) - 1))
		accBits += bits
		for accBits >= 8 && len(buf) < total {
			accBits -= 8
			buf = append(buf, byte(acc>>accBits))
		}
	}
	for len(buf) < total {
		buf = append(buf, 0)
	}

	if binary.BigEndian.Uint32(buf[:magicLen]) != Magic {
		return nil, pirerr.New(pirerr.DecodeFailure, op, "missing magic prefix")
	}
	return buf[magicLen:total], nil
}
