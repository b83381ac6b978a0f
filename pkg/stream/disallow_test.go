package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sysguard/pkg/guard"
	"sysguard/pkg/guard/guardtest"
)

func TestDisallow_WriterFailsImmediately(t *testing.T) {
	var out io.Writer = &bytes.Buffer{}
	d := DisallowWrite(WriterVar("out", &out))

	err := guard.Evaluate(d, func() error {
		_, werr := out.Write([]byte("xyz"))
		require.Error(t, werr)
		assert.EqualError(t, werr, "tried to write 'x' although this is not allowed")
		return nil
	})

	require.Error(t, err)
	assert.True(t, guard.IsAssertion(err))
	assert.EqualError(t, err, "tried to write 'x' although this is not allowed")
}

func TestDisallow_NoWritePasses(t *testing.T) {
	var out io.Writer = &bytes.Buffer{}
	d := DisallowWrite(WriterVar("out", &out))
	require.NoError(t, guard.Evaluate(d, func() error { return nil }))
}

func TestDisallow_DoubleInstallRejected(t *testing.T) {
	var out io.Writer = &bytes.Buffer{}
	d := DisallowWrite(WriterVar("out", &out))
	require.NoError(t, d.Before())
	defer func() { require.NoError(t, d.After()) }()

	assert.EqualError(t, d.Before(), "stream: out already disallowed")
}

func TestDisallow_BodyErrorWins(t *testing.T) {
	var out io.Writer = &bytes.Buffer{}
	d := DisallowWrite(WriterVar("out", &out))
	bodyErr := errors.New("first failure")

	err := guard.Evaluate(d, func() error {
		fmt.Fprint(out, "late")
		return bodyErr
	})
	assert.Same(t, bodyErr, err)
}

func TestDisallow_Stdout(t *testing.T) {
	realOut := fakeStdout(t)
	d := DisallowWrite(StdoutFile)

	err := guard.Evaluate(d, func() error {
		fmt.Print("\nmore")
		return nil
	})

	require.Error(t, err)
	assert.EqualError(t, err, `tried to write '\n' although this is not allowed`)
	assert.Empty(t, realOut())
}

func TestDisallow_DescribesMultibyteAndInvalid(t *testing.T) {
	assert.EqualError(t, violation([]byte("é!")), "tried to write 'é' although this is not allowed")
	assert.EqualError(t, violation([]byte{0xff, 'a'}), `tried to write '\xff' although this is not allowed`)
}

func TestDisallow_Start(t *testing.T) {
	before := os.Stderr
	tb := guardtest.New()
	DisallowWrite(StderrFile).Start(tb)
	fmt.Fprint(os.Stderr, "oops")
	tb.Finish()

	require.Len(t, tb.Errors(), 1)
	assert.Contains(t, tb.Errors()[0], "'o'")
	assert.Same(t, before, os.Stderr)
}
