package bits

// IntN returns the signed two's complement interpretation of the n-bit
// unsigned integer x.
func IntN(x uint64, n uint) int64 {
	signBitMask := uint64(1) << (n - 1)
	if x&signBitMask != 0 {
		// sign extend.
		return int64(x | ^uint64(0)<<n)
	}
	return int64(x)
}
