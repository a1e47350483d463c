package audio

// Provider is the sample source a host audio backend pulls from, kept
// narrow so a terminal or headless backend can mute/solo channels for
// debugging without depending on the rest of the APU's internals.
type Provider interface {
	// Samples returns up to count interleaved stereo frames (2*count
	// int16 values), zero-padded if fewer are buffered.
	Samples(count int) []int16

	ToggleChannel(channel int)
	SoloChannel(channel int)
	ChannelStatus() (ch1, ch2, ch3, ch4 bool)
}

var _ Provider = (*APU)(nil)
