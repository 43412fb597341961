// Package cmd implements the command-line interface of sandclock.
//
// The package is organized into several subpackages:
//
//   - simulate: Simulates clients that go silent and reports detection delays
//   - perf: Benchmarks touch and remove on an in-process clock
//   - util: Shared flags, configuration (.env files, SANDCLOCK_* variables) and help formatting
//
// See sandclock -help for a list of all commands.
package cmd
