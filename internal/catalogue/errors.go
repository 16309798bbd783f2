package catalogue

import "errors"

var (
	// ErrCatalogueCorrupt means the durable catalogue file could not be parsed.
	ErrCatalogueCorrupt = errors.New("catalogue file is corrupt")
	// ErrKeyNotFound means no entry exists for the requested key.
	ErrKeyNotFound = errors.New("meme key not found")
	// ErrCategoryNotFound means the requested category does not exist.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrKeyExists means the key is already registered in the target scope.
	ErrKeyExists = errors.New("meme key already exists")
	// ErrAssetMissing means the referenced asset is not present in the store.
	ErrAssetMissing = errors.New("asset missing from store")
	// ErrInvalidKey means a key, category name or asset reference fails validation.
	ErrInvalidKey = errors.New("invalid meme key")
)
