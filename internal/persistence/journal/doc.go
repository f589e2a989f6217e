// Package journal reads and writes an append-only journal made of fixed size
// blocks.
//
// Every block ends with an 8 byte little-endian checksum of its payload, chained
// to the checksum of the block before it. A writer that restarts after an
// unclean shutdown seals its first block with the seed XORed by ResetXor; readers
// report that boundary as KindReset and drop the unfinished tail in front of it.
//
// Records are packed back to back across block payloads and a single record
// must fit in one block payload. A Checkpoint taken from a Reader lets a new
// Reader resume at the same record without scanning from the start.
package journal
