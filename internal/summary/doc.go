// Package summary produces a meeting summary from a finished transcript
// through an Anthropic-style messages API.
package summary
