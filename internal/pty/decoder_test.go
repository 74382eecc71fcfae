package pty

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecoderASCII(t *testing.T) {
	var d Decoder
	assert.Equal(t, "hello", d.Decode([]byte("hello")))
	assert.Equal(t, 0, d.Pending())
}

func TestDecoderSplitTwoByte(t *testing.T) {
	var d Decoder
	// é = 0xC3 0xA9
	assert.Equal(t, "", d.Decode([]byte{0xC3}))
	assert.Equal(t, 1, d.Pending())
	assert.Equal(t, "é", d.Decode([]byte{0xA9}))
	assert.Equal(t, 0, d.Pending())
}

func TestDecoderSplitThreeByte(t *testing.T) {
	var d Decoder
	// € = 0xE2 0x82 0xAC, split at every position
	assert.Equal(t, "", d.Decode([]byte{0xE2}))
	assert.Equal(t, "", d.Decode([]byte{0x82}))
	assert.Equal(t, "€", d.Decode([]byte{0xAC}))
}

func TestDecoderSplitFourByte(t *testing.T) {
	var d Decoder
	emoji := []byte("🎨") // 4 bytes
	out := d.Decode(emoji[:2])
	out += d.Decode(emoji[2:])
	assert.Equal(t, "🎨", out)
}

func TestDecoderSplitMatchesWholeRead(t *testing.T) {
	input := []byte("ls -la 日本語 → ✓ done\n")

	for split := 0; split <= len(input); split++ {
		var d Decoder
		got := d.Decode(input[:split]) + d.Decode(input[split:])
		assert.Equal(t, string(input), got, "split at %d", split)
	}
}

func TestDecoderInvalidByte(t *testing.T) {
	var d Decoder
	out := d.Decode([]byte{'a', 0xFF, 'b'})
	assert.Equal(t, "a�b", out)
	assert.Equal(t, 0, d.Pending())
}

func TestDecoderStrayContinuation(t *testing.T) {
	var d Decoder
	out := d.Decode([]byte{0x82, 'x'})
	assert.Equal(t, "�x", out)
}

func TestDecoderTruncatedSequenceFollowedByASCII(t *testing.T) {
	var d Decoder
	// Truncated € followed by data that can never complete it.
	out := d.Decode([]byte{0xE2, 0x82, 'A'})
	assert.Contains(t, out, "A")
	assert.Contains(t, out, "�")
	assert.Equal(t, 0, d.Pending())
}

func TestDecoderEmptyChunk(t *testing.T) {
	var d Decoder
	assert.Equal(t, "", d.Decode(nil))
	assert.Equal(t, "", d.Decode([]byte{}))
}
