// Package semantic interprets raw header blocks the way the client consumes them.
package semantic
