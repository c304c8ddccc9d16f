package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = "data: {\"type\":\"log\",\"message\":\"Загрузка карточки\"}\n\n" +
	"event: progress\ndata:{\"type\":\"log\",\"message\":\"Генерация заголовка\"}\n\n" +
	"data: {\"type\":\"result\",\"payload\":{\"new_title\":\"Платье летнее\"}}\n\n" +
	"data: [DONE]\n\n"

func frameStrings(frames []Frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, string(f))
	}
	return out
}

func TestDecoder_SingleChunk(t *testing.T) {
	d := NewDecoder()
	frames := d.Feed([]byte(sampleStream))

	assert.Equal(t, []string{
		`{"type":"log","message":"Загрузка карточки"}`,
		`{"type":"log","message":"Генерация заголовка"}`,
		`{"type":"result","payload":{"new_title":"Платье летнее"}}`,
	}, frameStrings(frames))
	assert.Equal(t, 0, d.Pending())
}

func TestDecoder_ByteAtATime(t *testing.T) {
	whole := frameStrings(NewDecoder().Feed([]byte(sampleStream)))

	d := NewDecoder()
	var got []Frame
	for i := 0; i < len(sampleStream); i++ {
		got = append(got, d.Feed([]byte{sampleStream[i]})...)
	}
	assert.Equal(t, whole, frameStrings(got))
}

func TestDecoder_ArbitrarySplits(t *testing.T) {
	whole := frameStrings(NewDecoder().Feed([]byte(sampleStream)))
	data := []byte(sampleStream)

	for size := 1; size <= len(data); size += 7 {
		d := NewDecoder()
		var got []Frame
		for start := 0; start < len(data); start += size {
			end := start + size
			if end > len(data) {
				end = len(data)
			}
			got = append(got, d.Feed(data[start:end])...)
		}
		assert.Equal(t, whole, frameStrings(got), "chunk size %d", size)
	}
}

func TestDecoder_PartialTailBuffered(t *testing.T) {
	d := NewDecoder()

	frames := d.Feed([]byte("data: {\"type\":\"log\",\"mess"))
	assert.Empty(t, frames)
	assert.Positive(t, d.Pending())

	frames = d.Feed([]byte("age\":\"ok\"}\n"))
	assert.Empty(t, frames)

	frames = d.Feed([]byte("\n"))
	require.Len(t, frames, 1)
	assert.Equal(t, `{"type":"log","message":"ok"}`, string(frames[0]))
	assert.Equal(t, 0, d.Pending())
}

func TestDecoder_CRLF(t *testing.T) {
	stream := "data: {\"a\":1}\r\n\r\ndata: {\"b\":2}\r\n\r\n"

	whole := frameStrings(NewDecoder().Feed([]byte(stream)))
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, whole)

	d := NewDecoder()
	var got []Frame
	for i := 0; i < len(stream); i++ {
		got = append(got, d.Feed([]byte{stream[i]})...)
	}
	assert.Equal(t, whole, frameStrings(got))
}

func TestDecoder_SkipsBlocksWithoutPayload(t *testing.T) {
	d := NewDecoder()
	frames := d.Feed([]byte(": keepalive\n\nevent: ping\n\ndata:\n\ndata:   \n\n\n\ndata: [DONE]\n\ndata: {\"x\":1}\n\n"))

	assert.Equal(t, []string{`{"x":1}`}, frameStrings(frames))
}

func TestDecoder_FirstDataLineWins(t *testing.T) {
	d := NewDecoder()
	frames := d.Feed([]byte("data: {\"first\":true}\ndata: {\"second\":true}\n\n"))

	assert.Equal(t, []string{`{"first":true}`}, frameStrings(frames))
}

func TestDecoder_SplitMultiByteRune(t *testing.T) {
	msg := []byte("data: {\"message\":\"Цвет\"}\n\n")
	// split inside the two-byte encoding of "Ц"
	cut := 0
	for i, b := range msg {
		if b >= 0x80 {
			cut = i + 1
			break
		}
	}

	d := NewDecoder()
	frames := d.Feed(msg[:cut])
	assert.Empty(t, frames)
	frames = d.Feed(msg[cut:])
	require.Len(t, frames, 1)
	assert.Equal(t, `{"message":"Цвет"}`, string(frames[0]))
}

func TestDecoder_Reset(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("data: {\"partial\""))
	require.Positive(t, d.Pending())

	d.Reset()
	assert.Equal(t, 0, d.Pending())
	assert.Empty(t, d.Feed([]byte(":1}\n\n")))
}
