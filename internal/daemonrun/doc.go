// Package daemonrun assembles the memebox runtime from configuration: it
// opens the asset store, catalogue and history database, connects to
// Telegram, and hands the wired components to package daemon.
package daemonrun
