// Package logs reads the daemon log file for `tailor logs`.
//
// Last returns the final lines of the file with bounded memory, ReadFrom
// resumes at a byte offset, and Follow streams appended lines until the
// context ends. Follow wakes on fsnotify write events and falls back to a
// short poll when the directory cannot be watched. A shrinking file is treated
// as rotated and read again from the start.
package logs
