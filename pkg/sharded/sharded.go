// Package sharded provides string-keyed concurrent collections that split
// their contents across independently locked shards to reduce contention
// under many writers.
package sharded

import (
	"hash/maphash"
)

// numShards must be a power of two so the shard index can be derived with a
// bit mask instead of a modulo.
const numShards = 32

var shardSeed = maphash.MakeSeed()

func shardIndex(key string) int {
	return int(maphash.String(shardSeed, key) & (numShards - 1))
}
