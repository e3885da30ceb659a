package tail

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpacahq/aesdsocket/frontend/stream"
)

func TestPrinter(t *testing.T) {
	t.Parallel()
	pl := stream.Payload{
		Source: "tcp/10.0.0.1:4242",
		Data:   []byte("abc\n"),
		Time:   time.Date(2026, 10, 3, 9, 5, 7, 0, time.UTC).UnixNano(),
	}

	var plain bytes.Buffer
	require.Nil(t, printer(&plain, false)(pl))
	assert.Equal(t, "abc\n", plain.String())

	var verbose bytes.Buffer
	require.Nil(t, printer(&verbose, true)(pl))
	assert.Contains(t, verbose.String(), " tcp/10.0.0.1:4242 abc\n")
}
