// Package diskspace queries free filesystem space before a pyramid
// level is written, per spec.md §7's DiskFull error kind. Only the
// linux build knows how to ask the kernel; elsewhere the check is
// skipped rather than guessed at.
package diskspace
