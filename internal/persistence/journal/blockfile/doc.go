// Package blockfile provides storage handles for journal files: a locked
// read-write File, a memory mapped read-only Mapped view, an in-memory Memory
// buffer and an adapter for any io.ReaderAt.
package blockfile
