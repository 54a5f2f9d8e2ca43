package gain

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
)

// Tag keys checked in order; track gain wins over album gain.
var replayGainKeys = []string{"replaygain_track_gain", "replaygain_album_gain"}

// ReadReplayGain returns the linear replay gain factor stored in the tags
// of the file at path, or 1 when the file carries none.
func ReadReplayGain(path string) (float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 1, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		// Untagged files simply have no replay gain
		return 1, nil
	}
	return FromTags(metadata.Raw()), nil
}

// FromTags extracts replay gain from raw tag values. Vorbis comments store
// plain strings; ID3 stores TXXX frames with a description.
func FromTags(raw map[string]interface{}) float64 {
	found := make(map[string]string)
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			found[strings.ToLower(key)] = v
		case *tag.Comm:
			found[strings.ToLower(v.Description)] = v.Text
		}
	}
	for _, key := range replayGainKeys {
		if text, ok := found[key]; ok {
			if db, err := ParseDecibels(text); err == nil {
				return DecibelsToFactor(db)
			}
		}
	}
	return 1
}

// ParseDecibels parses values such as "-6.48 dB" or "+1.2".
func ParseDecibels(text string) (float64, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(strings.TrimSuffix(text, "dB"), "db")
	text = strings.TrimSpace(strings.TrimPrefix(text, "+"))
	db, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("parse replay gain %q: %w", text, err)
	}
	return db, nil
}

// DecibelsToFactor converts a gain in dB to a linear amplitude factor.
func DecibelsToFactor(db float64) float64 {
	return math.Pow(10, db/20)
}
