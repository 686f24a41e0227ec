package interfaces

// CacheStatus tells where served data came from; sent as the Cache-Status header
type CacheStatus string

const (
	// CacheStatusHit is served from memory
	CacheStatusHit CacheStatus = "hit"
	// CacheStatusStore is read back from the persistent store
	CacheStatusStore CacheStatus = "store"
	// CacheStatusDerived is converted from another currency without a network fetch
	CacheStatusDerived CacheStatus = "derived"
	// CacheStatusMiss required a network fetch
	CacheStatusMiss CacheStatus = "miss"
)

func (cs CacheStatus) String() string {
	return string(cs)
}
