package partition

import "hash/fnv"

// Count is the fixed number of routing buckets used by transports without native key hashing.
// Never changes after initial deployment: changing it reshuffles key-to-bucket assignments.
const Count = 256

// Key returns the log partition key for an entity of a collection.
// By default all entities of a collection share one key, which keeps a total order
// per collection. With byEntity the entity id is appended: better write parallelism,
// but ordering only holds per entity.
func Key(collection, entityID string, byEntity bool) string {
	if byEntity && entityID != "" {
		return collection + "/" + entityID
	}
	return collection
}

// Bucket returns the routing bucket for a partition key.
// Stable and deterministic: same key always maps to the same bucket (FNV-32a).
func Bucket(partitionKey string) int {
	h := fnv.New32a()
	h.Write([]byte(partitionKey))
	return int(h.Sum32() % Count)
}
