// Package ingest turns uploaded audio into registered memes.
//
// An ingestion reserves its key, waits for the requester's audio reply
// through a timed Subscriptions table, downloads the bytes to a scratch file
// in the asset directory, transcodes them to a uniquely named voice asset and
// registers that asset in the catalogue. Every exit path removes the scratch
// file and releases the reservation; an asset is only registered once its
// file is complete. Transitions are recorded in the history store.
package ingest
