package pin

import (
	"fmt"

	"github.com/ipfs/go-cid"
)

// pinKey builds the "pin.<mode-letter>.<cid>" key the original store
// uses: a flat namespace keyed by mode and CID text, not a nested
// bucket layout, so a single-key existence check tells you whether a
// CID is pinned under that specific mode.
func pinKey(c cid.Cid, m Mode) []byte {
	return []byte(fmt.Sprintf("pin.%c.%s", m.letter(), c.String()))
}

// parsePinKey reverses pinKey, used while scanning the keyspace for
// List.
func parsePinKey(key []byte) (cid.Cid, Mode, error) {
	if len(key) < 7 || key[0] != 'p' || key[1] != 'i' || key[2] != 'n' || key[3] != '.' {
		return cid.Undef, 0, fmt.Errorf("pin: invalid pin key %q", key)
	}
	mode, ok := modeFromLetter(key[4])
	if !ok {
		return cid.Undef, 0, fmt.Errorf("pin: invalid pin mode byte %q", key[4])
	}
	if key[5] != '.' {
		return cid.Undef, 0, fmt.Errorf("pin: invalid pin key %q", key)
	}
	c, err := cid.Decode(string(key[6:]))
	if err != nil {
		return cid.Undef, 0, fmt.Errorf("pin: invalid pin key cid: %w", err)
	}
	return c, mode, nil
}

// keyPrefix is the common prefix shared by every pin key, used to
// scope iteration when listing.
var keyPrefix = []byte("pin.")
