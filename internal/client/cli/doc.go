// Package cli implements the filevault command line: one command per
// invocation, talking to the server through internal/client and keeping the
// login in the local session database.
package cli
