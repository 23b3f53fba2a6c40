// Package opus moves Opus audio between ffmpeg and a Discord voice connection.
//
// Audio travels in a minimal framing: concatenated length-prefixed frames
// ([uint16 LE length][opus bytes]) with no header. Encode produces that
// framing from any input ffmpeg understands, FrameReader reads it back, and
// Stream feeds the frames to a voice connection's send channel.
package opus
