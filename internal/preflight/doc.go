// Package preflight provides readiness checks for the filesystem paths,
// binaries and public endpoint memebox depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before starting the bot and refuses to start
//     when a check fails.
//   - The CLI "memebox deps" command prints every result, including the
//     asset endpoint probe.
package preflight
