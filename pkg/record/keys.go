package record

import "fmt"

// Persisted key layout, scoped per owning identity:
//
//	cache:<identity>          snapshot of synced entities
//	cache:<identity>:meta     CacheMetadata
//	cache:<identity>:pending  pending mutation queue

func SnapshotKey(identity string) []byte {
	return []byte(fmt.Sprintf("cache:%s", identity))
}

func MetaKey(identity string) []byte {
	return []byte(fmt.Sprintf("cache:%s:meta", identity))
}

func PendingKey(identity string) []byte {
	return []byte(fmt.Sprintf("cache:%s:pending", identity))
}
