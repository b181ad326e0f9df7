// Package learnloop is a coding agent with a feedback loop: an LLM-driven
// control loop executes tasks step by step under human tool approval, every
// step is recorded as an immutable observation, and an asynchronous pipeline
// clusters the record to find which approaches correlate with good outcomes.
// Discovered strategy scores flow back into the next prompt as advisory
// hints.
//
// The library packages live under pkg/; cmd/learnloop is the CLI.
package learnloop
