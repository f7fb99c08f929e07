package blockmap

import "encoding/binary"

// footerSize is the trailing generation footer appended to every
// block-map page body.4 "Torn-write protection."
const footerSize = 8

// StampGeneration writes generation both at the start of body and in
// a trailing footer, generalizing trie/stacktrie.go's hash-then-commit
// discipline (a node's hash is always finalized before Commit persists
// it) into "compute generation, write body, write footer, only then
// mark resident-clean": the footer is the very last thing written, so
// a page torn mid-write is caught by a header/footer mismatch on the
// next read rather than silently accepted as valid.
func StampGeneration(body []byte, generation uint64) []byte {
	out := make([]byte, len(body)+footerSize)
	binary.BigEndian.PutUint64(out[:8], generation)
	copy(out[8:], body)
	binary.BigEndian.PutUint64(out[len(out)-footerSize:], generation)
	return out
}

// CheckGeneration reports whether body's leading and trailing
// generation stamps agree, and returns the body with both stamps
// stripped. A mismatch means the page was torn by a crash mid-write
// and must be treated as bad: re-formatted during normal operation,
// or re-read during rebuild.
func CheckGeneration(body []byte) (payload []byte, generation uint64, ok bool) {
	if len(body) < 16 {
 return nil, 0, false
	}
	head := binary.BigEndian.Uint64(body[:8])
	tail := binary.BigEndian.Uint64(body[len(body)-footerSize:])
	if head != tail {
 return nil, 0, false
	}
	return body[8 : len(body)-footerSize], head, true
}
