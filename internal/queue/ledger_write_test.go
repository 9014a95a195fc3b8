package queue

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type closeFailer struct {
	bytes.Buffer
	err error
}

func (c *closeFailer) Close() error { return c.err }

func TestWriteRowReportsCloseError(t *testing.T) {
	diskFull := errors.New("no space left on device")
	wc := &closeFailer{err: diskFull}
	err := writeRow(wc, true, []string{"1", "INV-000001"})
	require.ErrorIs(t, err, diskFull)
	require.ErrorContains(t, err, "ledger: close")
	require.Contains(t, wc.String(), "INV-000001")

	wc = &closeFailer{}
	require.NoError(t, writeRow(wc, false, []string{"2", "INV-000002"}))
	require.Equal(t, "2,INV-000002\n", wc.String())
}
