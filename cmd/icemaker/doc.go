// Package main hosts the icemaker CLI entrypoint and command graph.
//
// The Cobra-based command tree covers ingesting scraped records, running the
// verification and promotion pipeline, reconciling entries into the
// downstream consumer, and administering the directory (demote, rename,
// merge). It centralizes configuration resolution and structured logging
// setup so subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
