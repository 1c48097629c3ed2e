// Package app wires configuration, logging, metrics and the shared
// collaborators into a session manager.
package app
