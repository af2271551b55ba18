package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/md5"
	"encoding/binary"
	"io"

	"github.com/samber/oops"
)

// BlockSize is the AES/CBC block size and the alignment every post-MAC
// region must satisfy before encryption, per spec.md §3 and §4.A.
const BlockSize = aes.BlockSize // 16

// HeaderPrefixSize is the combined length of the MAC and IV fields that
// precede the encrypted region in every datagram.
const HeaderPrefixSize = 32

// PaddingNeeded returns how many padding bytes must be appended so that n
// (the total length of the post-MAC region, i.e. IV+flag+time+body) becomes
// a multiple of BlockSize. Returns 0 when already aligned, per spec.md §8.
func PaddingNeeded(n int) int {
	rem := n % BlockSize
	if rem == 0 {
		return 0
	}
	return BlockSize - rem
}

// AppendRandomPadding appends PaddingNeeded(len(buf)) uniformly random bytes
// to buf and returns the result. Padding must be random, not zero, per
// spec.md §4.A.
func AppendRandomPadding(buf []byte, rnd io.Reader) ([]byte, error) {
	n := PaddingNeeded(len(buf))
	if n == 0 {
		return buf, nil
	}
	pad := make([]byte, n)
	if _, err := io.ReadFull(rnd, pad); err != nil {
		return nil, oops.
			Code("invariant_violation").
			In("envelope").
			Wrap(err)
	}
	return append(buf, pad...), nil
}

// Seal encrypts and authenticates a datagram in place. buf must already
// contain HeaderPrefixSize placeholder bytes at [0:32] followed by the
// complete cleartext header-tail-and-body at [32:], whose length is a
// multiple of BlockSize (see PaddingNeeded/AppendRandomPadding). On success
// buf[0:16] holds the MAC and buf[16:32] holds the freshly chosen IV.
func Seal(buf []byte, keys Keys, rnd io.Reader) error {
	if len(buf) < HeaderPrefixSize {
		return oops.
			Code("invariant_violation").
			In("envelope").
			Errorf("buffer shorter than header prefix")
	}
	body := buf[HeaderPrefixSize:]
	if len(body)%BlockSize != 0 {
		return oops.
			Code("invariant_violation").
			In("envelope").
			With("length", len(body)).
			Errorf("post-MAC region is not a multiple of %d bytes", BlockSize)
	}

	var iv [BlockSize]byte
	if _, err := io.ReadFull(rnd, iv[:]); err != nil {
		return oops.Code("invariant_violation").In("envelope").Wrap(err)
	}

	block, err := aes.NewCipher(keys.AES[:])
	if err != nil {
		return oops.Code("invariant_violation").In("envelope").Wrap(err)
	}
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(body, body)

	mac := computeMAC(body, iv[:], keys.MAC)
	copy(buf[0:16], mac[:])
	copy(buf[16:32], iv[:])
	return nil
}

// Open verifies and decrypts a datagram in place under keys, returning the
// decrypted post-MAC region (buf[32:]). A MAC mismatch is spec.md §7 class
// 2 and must be handled by the caller as a silent drop, not an error log.
func Open(buf []byte, keys Keys) ([]byte, error) {
	if len(buf) < HeaderPrefixSize {
		return nil, oops.
			Code("framing_error").
			In("envelope").
			Errorf("datagram shorter than header prefix")
	}
	body := buf[HeaderPrefixSize:]
	if len(body)%BlockSize != 0 {
		return nil, oops.
			Code("framing_error").
			In("envelope").
			With("length", len(body)).
			Errorf("post-MAC region is not a multiple of %d bytes", BlockSize)
	}

	iv := buf[16:32]
	want := computeMAC(body, iv, keys.MAC)
	if !hmac.Equal(want[:], buf[0:16]) {
		return nil, oops.
			Code("mac_failure").
			In("envelope").
			Errorf("HMAC-MD5 mismatch")
	}

	block, err := aes.NewCipher(keys.AES[:])
	if err != nil {
		return nil, oops.Code("invariant_violation").In("envelope").Wrap(err)
	}
	ivCopy := append([]byte(nil), iv...)
	cipher.NewCBCDecrypter(block, ivCopy).CryptBlocks(body, body)
	return body, nil
}

// computeMAC implements the I2P-specific HMAC-MD5 construction:
// HMAC_MD5(encryptedBody || iv || u16_be(len(encryptedBody)), macKey). The
// full 32-byte MAC key is fed to MD5-HMAC unmodified, per spec.md §4.B.
func computeMAC(encryptedBody, iv []byte, macKey [KeySize]byte) [16]byte {
	h := hmac.New(md5.New, macKey[:])
	h.Write(encryptedBody)
	h.Write(iv)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(encryptedBody)))
	h.Write(lenBuf[:])

	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}
