package audio

// cpuFrequency is the DMG's CPU clock, used to derive the host downsampling
// ratio in New. Reference: https://gbdev.io/pandocs/Audio_details.html.
const cpuFrequency = 4194304

// cyclesPerStep is the frame sequencer's tick period: it runs at 512Hz, so
// 4194304Hz / 512Hz = 8192 T-cycles between steps.
const cyclesPerStep = 8192

// waveRAMSize is the size of CH3's wave pattern RAM in bytes (32 4-bit samples).
const waveRAMSize = 16
