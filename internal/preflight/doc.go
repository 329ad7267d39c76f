// Package preflight provides readiness checks for the filesystem paths tailor
// depends on.
//
// The daemon runs RunAll at startup and logs each result; the CLI "tailor
// status" command renders the same results when the daemon is offline. A
// failed check never stops the daemon: the detector surfaces the resulting
// I/O errors per job.
package preflight
