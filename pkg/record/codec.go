package record

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Persisted payloads are msgpack. Decode errors are returned as-is; callers
// treat them as cache-miss, never as fatal.

func EncodeSnapshot(entities []Entity) ([]byte, error) {
	return msgpack.Marshal(entities)
}

func DecodeSnapshot(data []byte) ([]Entity, error) {
	var entities []Entity
	if err := msgpack.Unmarshal(data, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

func EncodeMutations(muts []PendingMutation) ([]byte, error) {
	return msgpack.Marshal(muts)
}

func DecodeMutations(data []byte) ([]PendingMutation, error) {
	var muts []PendingMutation
	if err := msgpack.Unmarshal(data, &muts); err != nil {
		return nil, err
	}
	return muts, nil
}

func EncodeMetadata(meta CacheMetadata) ([]byte, error) {
	return msgpack.Marshal(&meta)
}

func DecodeMetadata(data []byte) (CacheMetadata, error) {
	var meta CacheMetadata
	if err := msgpack.Unmarshal(data, &meta); err != nil {
		return CacheMetadata{}, err
	}
	return meta, nil
}
