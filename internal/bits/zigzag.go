package bits

// ZigZag decodes a zigzag-mapped unsigned Rice residual back to its signed
// value.
//
//	0 =>  0
//	1 => -1
//	2 =>  1
//	3 => -2
//	4 =>  2
func ZigZag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}
