// Package cli implements the meetscribe commands: serve runs the agent and
// its HTTP API, record runs one foreground session and writes the transcript,
// doctor checks prerequisites.
package cli
