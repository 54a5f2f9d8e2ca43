package api

import "time"

// ContainerType is the MIDI-family container a music resource was sniffed as.
type ContainerType int

const (
	ContainerNotMidi ContainerType = iota
	ContainerMUS
	ContainerHMI
	ContainerXMI
	ContainerMIDI
)

func (c ContainerType) String() string {
	switch c {
	case ContainerMUS:
		return "MUS"
	case ContainerHMI:
		return "HMI"
	case ContainerXMI:
		return "XMI"
	case ContainerMIDI:
		return "MIDI"
	default:
		return "NotMidi"
	}
}

// IsMidi reports whether the container carries MIDI-like event data.
func (c ContainerType) IsMidi() bool {
	return c != ContainerNotMidi
}

// Song is a playable music resource known to the library.
type Song struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Artist     string        `json:"artist"`
	Album      string        `json:"album"`
	Duration   time.Duration `json:"duration"`
	FilePath   string        `json:"file_path"`
	Container  ContainerType `json:"container"`
	ReplayGain float64       `json:"replay_gain"`
	CreatedAt  time.Time     `json:"created_at"`
}

// TransportState is the lifecycle state of a MIDI transport.
type TransportState int

const (
	TransportClosed TransportState = iota
	TransportOpen
	TransportPrepared
	TransportStreaming
	TransportPaused
	TransportStopped
)

func (s TransportState) String() string {
	switch s {
	case TransportOpen:
		return "open"
	case TransportPrepared:
		return "prepared"
	case TransportStreaming:
		return "streaming"
	case TransportPaused:
		return "paused"
	case TransportStopped:
		return "stopped"
	default:
		return "closed"
	}
}

// StreamFormat describes the samples a synthesis source produces.
// A negative Channels value marks 16-bit fixed-point samples; positive
// values mark 32-bit float samples. BufferSize is in bytes; zero means the
// source plays through its own output path.
type StreamFormat struct {
	Channels   int `json:"channels"`
	SampleRate int `json:"sample_rate"`
	BufferSize int `json:"buffer_size"`
}

// IsFloat reports whether the source produces floating-point samples.
func (f StreamFormat) IsFloat() bool {
	return f.Channels > 0
}

// NumChannels returns the channel count regardless of sample encoding.
func (f StreamFormat) NumChannels() int {
	if f.Channels < 0 {
		return -f.Channels
	}
	return f.Channels
}

// Technology classifies a MIDI output device.
type Technology int

const (
	TechMIDIPort Technology = iota + 1
	TechSynth
	TechSquareSynth
	TechFMSynth
	TechMapper
	TechWavetable
	TechSoftwareSynth
)

func (t Technology) String() string {
	switch t {
	case TechMIDIPort:
		return "MIDIPORT"
	case TechSynth:
		return "SYNTH"
	case TechSquareSynth:
		return "SQSYNTH"
	case TechFMSynth:
		return "FMSYNTH"
	case TechMapper:
		return "MAPPER"
	case TechWavetable:
		return "WAVETABLE"
	case TechSoftwareSynth:
		return "SWSYNTH"
	default:
		return "UNKNOWN"
	}
}

// DeviceInfo describes a selectable MIDI output device.
type DeviceInfo struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	Backend    string     `json:"backend"`
	Technology Technology `json:"technology"`
}

type PlaybackStatus int

const (
	StatusStopped PlaybackStatus = iota
	StatusPlaying
	StatusPaused
)

type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatAll
	RepeatOne
)

// PlaybackState is a snapshot of the player as seen by the UI.
type PlaybackState struct {
	CurrentSong    *Song
	Status         PlaybackStatus
	Transport      TransportState
	Backend        string
	Position       time.Duration
	Volume         float64
	RelativeVolume float64
	ReplayGain     float64
	Repeat         RepeatMode
	Shuffle        bool
}

type EventType int

const (
	EventSongStarted EventType = iota
	EventSongEnded
	EventPositionUpdate
	EventError
	EventStateChange
	EventSettingChanged
)

type AudioEvent struct {
	Type    EventType
	Payload interface{}
}

type CommandType int

const (
	CmdPlay CommandType = iota
	CmdPause
	CmdResume
	CmdStop
	CmdVolume
	CmdRelativeVolume
	CmdSeek
	CmdSetting
)

type AudioCommand struct {
	Type    CommandType
	Payload interface{}
}

// Setting is a key/value change routed to the active backend.
type Setting struct {
	Key   string
	Value interface{}
}

// Player is the control surface the UI and CLI drive.
type Player interface {
	Play(song *Song) error
	Pause() error
	Resume() error
	Stop() error
	Seek(position time.Duration) error
	SetVolume(level float64) error
	SetRelativeVolume(factor float64) error
	ChangeSetting(key string, value interface{}) error
	GetState() *PlaybackState
	Stats() string
}
