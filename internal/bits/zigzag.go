package bits

// EncodeZigZag encodes x as a ZigZag encoded integer and returns it.
//
// Examples of decoded values on the left and ZigZag encoded values on the
// right:
//
//	 0 => 0
//	-1 => 1
//	 1 => 2
//	-2 => 3
//	 2 => 4
//	-3 => 5
//	 3 => 6
func EncodeZigZag(x int32) uint32 {
	return uint32(x<<1) ^ uint32(x>>31)
}

// DecodeZigZag decodes a ZigZag encoded integer and returns it.
//
// Examples of ZigZag encoded values on the left and decoded values on the
// right:
//
//	0 =>  0
//	1 => -1
//	2 =>  1
//	3 => -2
//	4 =>  2
//	5 => -3
//	6 =>  3
func DecodeZigZag(x uint32) int32 {
	return int32(x>>1) ^ -int32(x&1)
}
