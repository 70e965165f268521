package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier such as "prj_3f2a...". The prefix marks
// the entity kind (prj, phs, tsk, att, bib, cnv, msg, usr) and is omitted
// from the result when empty.
func NewID(prefix string) string {
	raw := make([]byte, 16)
	_, _ = rand.Read(raw)
	id := hex.EncodeToString(raw)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
