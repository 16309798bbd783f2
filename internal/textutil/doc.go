// Package textutil provides text helpers shared by the catalogue, lookup and
// ingestion code.
//
// The primary use cases are:
//   - Normalizing human-typed meme keys and category names
//   - Case-insensitive substring matching for search
//   - Turning keys into filesystem-safe tokens for asset file names
//
// Case handling goes through golang.org/x/text/cases so keys in any script
// normalize the same way.
package textutil
