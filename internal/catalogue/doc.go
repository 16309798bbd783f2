// Package catalogue owns the meme registry: the ordered mapping from
// human-readable keys (optionally grouped into categories) to audio asset
// references, and its durable JSON file.
//
// Registry serves lookups from an immutable snapshot swapped atomically on
// every change, so readers never block behind writers. Mutations (Put,
// Replace, Rename) take an in-process mutex plus an advisory file lock,
// re-read the durable file, apply the change and rewrite the whole file
// atomically. Watch keeps the snapshot in step with edits made outside the
// process, such as the CLI or a text editor.
//
// The persisted format is either flat ({"key": "file.ogg"}) or nested
// ({"category": {"key": "file.ogg"}}); mixed files are accepted. Keys are
// lower-cased and whitespace-collapsed; asset references are bare file
// names. Normalize applies those rules once at load.
package catalogue
