// Package export implements the bounded streaming export pipeline: content
// negotiation, safeguard-wrapped iteration, incremental encode-and-flush, and
// failure containment once the response body has started transmitting.
package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/merchantd/merchantd/internal/build"
	"github.com/merchantd/merchantd/pkg/logger"
	"github.com/merchantd/merchantd/pkg/storage"
)

const (
	DefaultMaxRecords    = 100000
	DefaultFlushInterval = 100
)

var (
	exportStreamedRecordsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "export_streamed_records_count",
		Help:      "The total number of records streamed by export endpoints.",
	})

	exportOutcomeCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: build.ProjectName,
		Name:      "export_outcome_count",
		Help:      "The total number of export streams finished, by terminal outcome.",
	}, []string{"outcome"})
)

// Outcome is the terminal state of one export stream. A stream reaches
// exactly one outcome and never resumes afterwards.
type Outcome int

const (
	// OutcomeCompleted means the source was drained and the epilogue written.
	OutcomeCompleted Outcome = iota

	// OutcomeCancelledClean means the client went away mid-stream. No
	// sentinel is written and no error is reported.
	OutcomeCancelledClean

	// OutcomeFailedWithSentinel means a mid-stream failure was reported to
	// the client as a final framed sentinel record.
	OutcomeFailedWithSentinel

	// OutcomeFailedSilently means the failure could not be reported because
	// the transport itself was unusable.
	OutcomeFailedSilently
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelledClean:
		return "cancelled_clean"
	case OutcomeFailedWithSentinel:
		return "failed_with_sentinel"
	case OutcomeFailedSilently:
		return "failed_silently"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Safeguards bound a single export stream.
type Safeguards struct {
	// MaxRecords caps how many records one stream may emit before it fails
	// with ErrRecordLimitExceeded.
	MaxRecords int

	// FlushInterval is how many records are written between sink flushes.
	// The sink is always flushed once more at stream end.
	FlushInterval int
}

func DefaultSafeguards() Safeguards {
	return Safeguards{
		MaxRecords:    DefaultMaxRecords,
		FlushInterval: DefaultFlushInterval,
	}
}

// sentinelRecord is the final framed record written on a mid-stream failure.
// Because the status code has already been sent, it is the only way left to
// tell the client the stream is incomplete.
type sentinelRecord struct {
	Error           bool   `json:"error"`
	RecordsStreamed int    `json:"records_streamed"`
	Message         string `json:"message"`
}

// Stream drains iter through enc into sink, one record at a time, under the
// given safeguards. It returns the number of records delivered and the
// stream's terminal outcome. Cancellation is not an error: the returned error
// is nil and the outcome is OutcomeCancelledClean. Any other mid-stream
// failure is reported to the client as a best-effort sentinel record and
// returned to the caller.
func Stream[T any](ctx context.Context, iter storage.Iterator[T], enc FrameEncoder, sink FlushWriter, safeguards Safeguards, log logger.Logger) (int, Outcome, error) {
	if safeguards.FlushInterval <= 0 {
		safeguards.FlushInterval = 1
	}

	guarded := NewGuardedIterator(iter, safeguards.MaxRecords)
	defer guarded.Stop()

	streamed := 0

	fail := func(cause error) (int, Outcome, error) {
		outcome := writeSentinel(enc, sink, streamed, cause)
		exportOutcomeCounter.WithLabelValues(outcome.String()).Inc()
		log.ErrorWithContext(ctx, "export stream failed",
			zap.Int("records_streamed", streamed),
			zap.String("outcome", outcome.String()),
			zap.Error(cause),
		)
		return streamed, outcome, cause
	}

	if err := enc.Begin(); err != nil {
		return fail(err)
	}

	for {
		record, err := guarded.Next(ctx)
		if err != nil {
			if errors.Is(err, storage.ErrIteratorDone) {
				break
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.InfoWithContext(ctx, "export cancelled by client",
					zap.Int("records_streamed", streamed),
				)
				exportOutcomeCounter.WithLabelValues(OutcomeCancelledClean.String()).Inc()
				return streamed, OutcomeCancelledClean, nil
			}
			return fail(err)
		}

		if err := enc.Encode(record); err != nil {
			return fail(err)
		}
		streamed++
		exportStreamedRecordsCounter.Inc()

		if streamed%safeguards.FlushInterval == 0 {
			if err := sink.Flush(); err != nil {
				return fail(err)
			}
		}
	}

	if err := enc.End(); err != nil {
		exportOutcomeCounter.WithLabelValues(OutcomeFailedSilently.String()).Inc()
		return streamed, OutcomeFailedSilently, err
	}
	if err := sink.Flush(); err != nil {
		exportOutcomeCounter.WithLabelValues(OutcomeFailedSilently.String()).Inc()
		return streamed, OutcomeFailedSilently, err
	}

	exportOutcomeCounter.WithLabelValues(OutcomeCompleted.String()).Inc()
	return streamed, OutcomeCompleted, nil
}

// writeSentinel reports a mid-stream failure to the client on a best-effort
// basis. If the sentinel itself cannot be written the transport is assumed
// unrecoverable and the stream gives up silently.
func writeSentinel(enc FrameEncoder, sink FlushWriter, streamed int, cause error) Outcome {
	msg := "export failed"
	if errors.Is(cause, ErrRecordLimitExceeded) {
		msg = ErrRecordLimitExceeded.Error()
	}

	sentinel := sentinelRecord{
		Error:           true,
		RecordsStreamed: streamed,
		Message:         msg,
	}

	if err := enc.Encode(sentinel); err != nil {
		return OutcomeFailedSilently
	}
	if err := enc.End(); err != nil {
		return OutcomeFailedSilently
	}
	if err := sink.Flush(); err != nil {
		return OutcomeFailedSilently
	}

	return OutcomeFailedWithSentinel
}
