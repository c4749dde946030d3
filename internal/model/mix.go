package model

// ChannelMix is one input channel's mix settings (§3). Defaults per spec
// §4.3: unity fader, no EQ cut, compressor/gate off, routing pgm=true,
// auxes 0, pan centered.
type ChannelMix struct {
	ChannelID  string     `json:"channelId"`
	Gain       float64    `json:"gain"`
	Pan        float64    `json:"pan"`  // -1..1, 0 = centered
	Fader      float64    `json:"fader"`
	Mute       bool       `json:"mute"`
	Solo       bool       `json:"solo"`
	PFL        bool       `json:"pfl"`
	EQ         EQSettings `json:"eq"`
	Gate       GateSettings `json:"gate"`
	Compressor CompressorSettings `json:"compressor"`
	// BusRouting maps bus name (pgm, tb, aux1..aux4) to linear gain in
	// [0,1]; absence means not routed to that bus.
	BusRouting map[string]float64 `json:"busRouting"`
}

// DefaultChannelMix returns a new channel at the defaults named in §4.3.
func DefaultChannelMix(channelID string) ChannelMix {
	return ChannelMix{
		ChannelID: channelID,
		Gain:      1.0,
		Pan:       0,
		Fader:     1.0,
		BusRouting: map[string]float64{
			"pgm": 1.0,
		},
	}
}

// EQSettings models a 3-band EQ; each band's Gain is in dB, clamped per §4.2
// remote-control ranges (±12dB) at the bus handler layer, not here.
type EQSettings struct {
	LowGain  float64 `json:"lowGain"`
	MidGain  float64 `json:"midGain"`
	HighGain float64 `json:"highGain"`
	MidFreq  float64 `json:"midFreq"` // Hz, decade-banded per §4.2
}

// GateSettings models a noise gate.
type GateSettings struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"` // dB
	Attack    float64 `json:"attack"`    // ms
	Release   float64 `json:"release"`   // ms
}

// CompressorSettings models a dynamics compressor.
type CompressorSettings struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"` // dB
	Ratio     float64 `json:"ratio"`     // 1..20
	Attack    float64 `json:"attack"`    // ms
	Release   float64 `json:"release"`  // ms
}

// MasterMix is the room's master bus settings.
type MasterMix struct {
	Gain  float64 `json:"gain"`
	Fader float64 `json:"fader"`
	Mute  bool    `json:"mute"`
}

// DefaultMasterMix returns the master block at unity.
func DefaultMasterMix() MasterMix {
	return MasterMix{Gain: 1.0, Fader: 1.0}
}

// MixStateBlob is the exact shape persisted into Room.MixStateJSON (§6): it
// must round-trip through JSON unchanged, which is why it is a plain value
// type distinct from mixcoordinator's lock-guarded RoomMixState.
type MixStateBlob struct {
	Channels    map[string]ChannelMix `json:"channels"`
	Master      MasterMix             `json:"master"`
	SoloMode    bool                  `json:"soloMode"`
	LastUpdated int64                 `json:"lastUpdated"` // unix millis
}
