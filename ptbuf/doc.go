package ptbuf

/*

# Append-only byte arena for dictionary tries

A Buffer is the arena a patricia-trie dictionary lives in. Positions are byte
offsets into the arena and stand in for pointers; nothing in the arena is
garbage collected, so reclaiming space means writing a fresh arena (see the
gc package).

The arena follows the same "functional primitives" style as the node codec:

- explicit big-endian field layouts
- position arithmetic on a single byte slice
- a fixed capacity chosen up front

## Writes

Bytes are appended at the tail. Bytes below the tail may be overwritten in
place with the Put* helpers, but never beyond it.

Fields whose value is not known when they are written (an array's node count,
a children position whose array has not been emitted yet) use the two-phase
API:

	h, err := buf.Reserve(2)   // zero-filled placeholder, cursor advances
	...                        // write everything the value depends on
	err = buf.Patch(h, count)  // fill the placeholder

Patch rejects values that do not fit the reserved width, so a placeholder can
never be silently truncated.

*/
