// Package main hosts the dock CLI entrypoint and command graph.
//
// The Cobra-based command tree covers configuration scaffolding, session
// history inspection, manual decode runs, external tool checks, and
// notification testing. It centralizes configuration resolution so
// subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
