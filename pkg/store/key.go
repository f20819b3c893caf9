package store

// EdgeKey packs a call-graph arc into a single key, caller in the high half.
func EdgeKey(from, to uint32) Key {
	return Key(from)<<32 | Key(to)
}

// SplitEdgeKey is the inverse of EdgeKey.
func SplitEdgeKey(k Key) (from, to uint32) {
	return uint32(k >> 32), uint32(k)
}
