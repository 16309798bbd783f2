// Package logs reads the daemon's log file for `memebox logs`.
//
// Last returns the trailing lines with bounded memory, Since reads forward
// from a byte offset, and Follow polls for appended lines until its context
// ends. A file that shrinks below the saved offset is treated as rotated and
// read again from the start.
package logs
