package utils

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// HashingCopy copies src to dst and returns the hex MD5 of the copied bytes
// together with their count.
func HashingCopy(dst io.Writer, src io.Reader) (string, int64, error) {
	h := md5.New()
	n, err := io.Copy(io.MultiWriter(dst, h), src)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// SHA256Digest returns the hex SHA-256 of everything read from r.
func SHA256Digest(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SVR4Sum computes the System V "sum" checksum used by Solaris pkgmap: the
// byte sum folded twice into 16 bits.
func SVR4Sum(r io.Reader) (uint32, int64, error) {
	var total uint64
	var n int64
	buf := make([]byte, 32*1024)
	for {
		m, err := r.Read(buf)
		for _, b := range buf[:m] {
			total += uint64(b)
		}
		n += int64(m)
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, n, err
		}
	}
	folded := (total & 0xffff) + ((total >> 16) & 0xffff)
	folded = (folded & 0xffff) + (folded >> 16)
	return uint32(folded), n, nil
}
