package workflow

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/workflow-translator/internal/translate"
)

const sampleStream = "event: ping\n\n" +
	"data: {\"event\":\"workflow_started\",\"data\":{}}\n\n" +
	"data: {\"event\":\"node_finished\",\"data\":{\"outputs\":{\"output\":\"draft\"}}}\n\n" +
	"data: {\"event\":\"workflow_finished\",\"data\":{\"outputs\":{\"output\":\"hola\",\"term\":\"a=b\"}}}\n\n"

func feedAll(t *testing.T, d *Decoder, parts ...string) (map[string]any, bool) {
	t.Helper()
	for _, p := range parts {
		outputs, done, err := d.Feed([]byte(p))
		require.NoError(t, err)
		if done {
			return outputs, true
		}
	}
	return nil, false
}

func TestDecoderSplitPointsAreEquivalent(t *testing.T) {
	t.Parallel()

	want := map[string]any{"output": "hola", "term": "a=b"}
	for i := 0; i <= len(sampleStream); i++ {
		outputs, done := feedAll(t, NewDecoder(0, nil), sampleStream[:i], sampleStream[i:])
		require.True(t, done, "split at %d", i)
		assert.Equal(t, want, outputs, "split at %d", i)
	}
}

func TestDecoderByteAtATime(t *testing.T) {
	t.Parallel()

	parts := strings.Split(sampleStream, "")
	outputs, done := feedAll(t, NewDecoder(0, nil), parts...)
	require.True(t, done)
	assert.Equal(t, "hola", outputs["output"])
}

func TestDecoderIgnoresFramesWithoutDataPrefix(t *testing.T) {
	t.Parallel()

	stream := "event: workflow_finished\n\n" +
		"data:{\"event\":\"workflow_finished\",\"data\":{\"outputs\":{\"output\":\"x\"}}}\n\n" +
		": keepalive\n\n"
	outputs, done := feedAll(t, NewDecoder(0, nil), stream)
	assert.False(t, done)
	assert.Nil(t, outputs)
}

func TestDecoderIgnoresTerminalWithoutOutputsObject(t *testing.T) {
	t.Parallel()

	stream := "data: {\"event\":\"workflow_finished\",\"data\":{\"outputs\":null}}\n\n" +
		"data: {\"event\":\"workflow_finished\",\"data\":{\"outputs\":[1,2]}}\n\n" +
		"data: {\"event\":\"workflow_finished\"}\n\n" +
		"data: [\"not\",\"an\",\"object\"]\n\n"
	_, done := feedAll(t, NewDecoder(0, nil), stream)
	assert.False(t, done)
}

func TestDecoderMalformedJSONFails(t *testing.T) {
	t.Parallel()

	_, _, err := NewDecoder(0, nil).Feed([]byte("data: {\"event\":\n\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode event data")
}

func TestDecoderStopsAtTerminalEvent(t *testing.T) {
	t.Parallel()

	stream := "data: {\"event\":\"workflow_finished\",\"data\":{\"outputs\":{\"output\":\"first\"}}}\n\n" +
		"data: {broken\n\n"
	outputs, err := NewDecoder(0, nil).Decode(strings.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, "first", outputs["output"])
}

func TestDecoderDecodeWithoutTerminalEvent(t *testing.T) {
	t.Parallel()

	_, err := NewDecoder(0, nil).Decode(strings.NewReader("data: {\"event\":\"workflow_started\"}\n\n"))
	require.ErrorIs(t, err, translate.ErrNoTerminalEvent)
}

func TestDecoderDecodeSmallReads(t *testing.T) {
	t.Parallel()

	outputs, err := NewDecoder(0, nil).Decode(iotest.OneByteReader(strings.NewReader(sampleStream)))
	require.NoError(t, err)
	assert.Equal(t, "hola", outputs["output"])
}

func TestDecoderDecodeWrapsReadErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	_, err := NewDecoder(0, nil).Decode(iotest.ErrReader(boom))
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, translate.ErrNoTerminalEvent)
}

func TestDecoderFrameLimit(t *testing.T) {
	t.Parallel()

	d := NewDecoder(16, nil)
	_, _, err := d.Feed([]byte("data: " + strings.Repeat("x", 32)))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDecoderFrameLimitAppliesToPartialFrameOnly(t *testing.T) {
	t.Parallel()

	d := NewDecoder(64, nil)
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("data: {\"event\":\"tick\"}\n\n")
	}
	_, done, err := d.Feed([]byte(b.String()))
	require.NoError(t, err)
	assert.False(t, done)
}
