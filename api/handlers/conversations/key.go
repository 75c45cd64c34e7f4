package conversations

import (
	"github.com/tesipedia/tesipedia-api/models"
)

// Derive computes the stable conversation id for a new message. A client
// supplied id wins, public threads are keyed by the visitor's public id, and
// direct chat uses the participant pair so the key is the same regardless of
// who initiates.
func Derive(pinned string, ident models.ResolvedIdentity) string {
	if pinned != "" {
		return pinned
	}
	if ident.IsPublic {
		if ident.Sender.IsAnonymous() {
			return ident.Sender.ID
		}
		return ident.Receiver.ID
	}
	return PairKey(ident.Sender.ID, ident.Receiver.ID)
}

// PairKey joins two participant ids in lexicographic order. PairKey(a, b) and
// PairKey(b, a) always produce the same key.
func PairKey(a, b string) string {
	if a < b {
		return a + "_" + b
	}
	return b + "_" + a
}

// fallbackKey recomputes the conversation id for legacy rows that were stored
// without one. Public rows fall back to the sender id, direct rows to the
// participant pair. Returns false when no key can be derived.
func fallbackKey(m models.Message) (string, bool) {
	if m.IsPublic {
		if m.Sender == "" {
			return "", false
		}
		return m.Sender, true
	}
	if m.Sender == "" || m.Receiver == "" {
		return "", false
	}
	return PairKey(m.Sender, m.Receiver), true
}
