package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
)

func TestPrinter_PlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Successf("synced %d events", 3)
	p.Warnf("collector slow")
	p.Errorf("flush failed")

	assert.Equal(t, "✔ synced 3 events\n• collector slow\n✘ flush failed\n", buf.String())
}

func TestPrinter_WithColor(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf).WithColor(true)

	p.Infof("hello")

	assert.Equal(t, ColorGray+"• hello"+ColorReset+"\n", buf.String())
}

func TestPrinter_Items(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Section("Snapshot")
	p.CheckItem("readable", "")
	p.FailItem("age", "older than 24h")

	assert.Equal(t, "Snapshot\n  ✔ readable\n  ✘ age: older than 24h\n", buf.String())
}

func TestPrinter_FatalError(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.FatalError(nil)
	assert.Empty(t, buf.String())

	p.FatalError(errors.New("collector unreachable"))
	assert.Equal(t, "╭ Error\n│ collector unreachable\n╵\n", buf.String())
}

func TestPrinter_FatalErrorValidation(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	fieldErrs := criterio.NewFieldErrors("session.syncInterval", errors.New("must be positive"))
	p.FatalError(fmt.Errorf("load config: %w", fieldErrs))

	out := buf.String()
	assert.Contains(t, out, "╭ Validation Error")
	assert.Contains(t, out, "session.syncInterval: ")
	assert.Contains(t, out, "must be positive")
}

func TestCtx(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)
	ctx := NewContext(context.Background(), p)

	assert.Same(t, p, Ctx(ctx))
	assert.NotNil(t, Ctx(context.Background()))
}
