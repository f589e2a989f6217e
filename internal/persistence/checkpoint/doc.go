// Package checkpoint persists journal reader checkpoints per consumer in a
// bbolt file, with a short lived in-memory layer in front of it.
package checkpoint
