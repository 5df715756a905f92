// Package main hosts the tunedrop CLI entrypoint and command graph.
//
// The Cobra command tree pairs with the companion app and sends files
// (send), manages saved devices (devices), runs a local stand-in for the app
// (emulate), scaffolds configuration (config) and reports environment health
// (doctor). It centralizes configuration resolution and logging setup so
// subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: new behavior belongs in the internal packages and is
// surfaced here through commands or flags.
package main
