package helpers

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/varscope/internal/filter"
	"github.com/coral-mesh/varscope/internal/traversal"
)

// RecordSink collects the rows of records that pass the filter.
type RecordSink struct {
	Rows []RecordRow

	filter *filter.Filter
	logger zerolog.Logger
}

// NewRecordSink returns a sink filtering with f, which may be nil.
func NewRecordSink(f *filter.Filter, logger zerolog.Logger) *RecordSink {
	return &RecordSink{filter: f, logger: logger}
}

// Consumer returns the traversal consumer feeding the sink.
func (s *RecordSink) Consumer() traversal.Consumer {
	collect := func(r traversal.Record) traversal.Result {
		s.Rows = append(s.Rows, NewRecordRow(r))
		return traversal.Continue
	}
	return s.filter.Wrap(collect, func(err error) {
		s.logger.Warn().Err(err).Msg("Filter evaluation failed")
	})
}

// Reset drops collected rows.
func (s *RecordSink) Reset() { s.Rows = s.Rows[:0] }

// Write formats the collected rows.
func (s *RecordSink) Write(w io.Writer, format OutputFormat) error {
	formatter, err := NewFormatter(format)
	if err != nil {
		return err
	}
	rows := s.Rows
	if rows == nil {
		rows = []RecordRow{}
	}
	return formatter.Format(rows, w)
}
