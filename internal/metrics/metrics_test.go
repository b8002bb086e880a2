package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOpenCataloguesGaugeSettable(t *testing.T) {
	OpenCatalogues.Set(3)
	if got := testutil.ToFloat64(OpenCatalogues); got != 3 {
		t.Errorf("OpenCatalogues = %v, want 3", got)
	}
}

func TestArchiveBytesTotalLabeledByBackend(t *testing.T) {
	ArchiveBytesTotal.WithLabelValues("file").Add(128)
	if got := testutil.ToFloat64(ArchiveBytesTotal.WithLabelValues("file")); got != 128 {
		t.Errorf("ArchiveBytesTotal{backend=file} = %v, want 128", got)
	}
}

func TestHandlerReturnsNonNil(t *testing.T) {
	if Handler() == nil {
		t.Error("Handler() = nil, want a promhttp handler")
	}
}
