package validators

var (
	CollectionExists = collectionExists
	EnsureCollection = ensureCollection
)
