// Package stream produces decoded device samples from a live serial link
// or a recorded session. Sources push into a small channel and drop on a
// full buffer; the pipeline's own queue is the real elasticity, the
// channel only decouples the read loop from the consumer.
package stream

import (
	"context"

	"github.com/OpenSourceNeuro/Spikeling/internal/wire"
)

// Source is a push producer of decoded samples. The Samples channel is
// closed when the underlying link ends, which the consumer treats as a
// disconnect.
type Source interface {
	Start(ctx context.Context) error
	Samples() <-chan wire.Sample
	Stop() error
	Stats() SourceStats
}

// SourceStats is a snapshot of a source's counters.
type SourceStats struct {
	SamplesDecoded uint64 `json:"samples_decoded"`
	SamplesDropped uint64 `json:"samples_dropped"`
	BytesRead      uint64 `json:"bytes_read"`
	BytesDiscarded uint64 `json:"bytes_discarded"`
	LinesSkipped   uint64 `json:"lines_skipped"`
	Source         string `json:"source"`
	Running        bool   `json:"running"`
}

// channel capacity for all sources; deliberately small, see package doc.
const sampleChanCap = 256
