// Package lookup implements the three read paths over the catalogue: exact
// key playback, category menus and substring search.
//
// Every call works on one immutable catalogue snapshot, so a menu or a
// search result never mixes two catalogue versions. Playback checks the
// asset store at call time and distinguishes a missing file from an unknown
// key.
package lookup
