package midifile

import (
	"bytes"

	"github.com/jscyril/golang_midi_player/api"
)

// HeaderSize is the number of leading bytes Identify looks at.
const HeaderSize = 32

var (
	musMagic     = []byte("MUS\x1a")
	hmiSongMagic = []byte("HMI-MIDISONG")
	hmpMagic     = []byte("HMIMIDIP")
	smfMagic     = []byte("MThd")
)

// MUSHeaderSearch returns the offset of the MUS magic within the first
// HeaderSize bytes, or -1. Some archives pad MUS lumps, so the magic is
// not required to start at byte 0.
func MUSHeaderSearch(head []byte) int {
	if len(head) > HeaderSize {
		head = head[:HeaderSize]
	}
	return bytes.Index(head, musMagic)
}

// Identify classifies a music resource header. Rules are tried in the
// order MUS, HMI, XMI, MIDI and only exact magic matches count.
func Identify(head []byte) api.ContainerType {
	if len(head) > HeaderSize {
		head = head[:HeaderSize]
	}
	switch {
	case MUSHeaderSearch(head) >= 0:
		return api.ContainerMUS
	case bytes.HasPrefix(head, hmiSongMagic), bytes.HasPrefix(head, hmpMagic):
		return api.ContainerHMI
	case isXMI(head):
		return api.ContainerXMI
	case bytes.HasPrefix(head, smfMagic):
		return api.ContainerMIDI
	default:
		return api.ContainerNotMidi
	}
}

func isXMI(head []byte) bool {
	if len(head) < 12 {
		return false
	}
	id0, id2 := string(head[0:4]), string(head[8:12])
	if id0 == "FORM" && id2 == "XDIR" {
		return true
	}
	return (id0 == "CAT " || id0 == "FORM") && id2 == "XMID"
}
