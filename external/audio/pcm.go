package audio

import "encoding/binary"

const (
	frameSizeMs     = 60
	samplesPerFrame = 48000 * frameSizeMs / 1000
)

func encodePCM(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
