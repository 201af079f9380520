package jsonfile

import (
	"testing"

	"github.com/hay-kot/studytrack/internal/core/ingest"
	"github.com/hay-kot/studytrack/internal/core/ingest/ingesttest"
)

func TestCollector(t *testing.T) {
	ingesttest.Run(t, func(t *testing.T, retention int) ingest.Store {
		return NewCollector(t.TempDir(), retention)
	})
}
