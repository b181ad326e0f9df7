package obslog

import (
	"context"
	"os"
	"time"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/apache/arrow/go/v13/parquet"
	"github.com/apache/arrow/go/v13/parquet/pqarrow"

	"github.com/introspectai/learnloop/pkg/errors"
)

var exportSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.BinaryTypes.String},
	{Name: "task_id", Type: arrow.BinaryTypes.String},
	{Name: "step_index", Type: arrow.PrimitiveTypes.Int64},
	{Name: "timestamp", Type: arrow.BinaryTypes.String},
	{Name: "plan_text", Type: arrow.BinaryTypes.String},
	{Name: "tool_name", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "success", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "duration_ms", Type: arrow.PrimitiveTypes.Int64},
	{Name: "diff_size", Type: arrow.PrimitiveTypes.Int64},
}, nil)

// ExportParquet writes the filtered log to a Parquet file for offline
// analysis. The export is a read-only projection; the log itself remains the
// source of truth.
func (l *Log) ExportParquet(ctx context.Context, path string, filter Filter) (int, error) {
	builder := array.NewRecordBuilder(memory.DefaultAllocator, exportSchema)
	defer builder.Release()

	ids := builder.Field(0).(*array.StringBuilder)
	taskIDs := builder.Field(1).(*array.StringBuilder)
	stepIndexes := builder.Field(2).(*array.Int64Builder)
	timestamps := builder.Field(3).(*array.StringBuilder)
	plans := builder.Field(4).(*array.StringBuilder)
	toolNames := builder.Field(5).(*array.StringBuilder)
	successes := builder.Field(6).(*array.BooleanBuilder)
	durations := builder.Field(7).(*array.Int64Builder)
	diffSizes := builder.Field(8).(*array.Int64Builder)

	n := 0
	for obs, err := range l.Observations(ctx, filter) {
		if err != nil {
			return 0, err
		}
		ids.Append(obs.ID)
		taskIDs.Append(obs.TaskID)
		stepIndexes.Append(int64(obs.StepIndex))
		timestamps.Append(obs.Timestamp.UTC().Format(time.RFC3339Nano))
		plans.Append(obs.PlanText)
		if obs.ToolCall != nil {
			toolNames.Append(obs.ToolCall.Name)
		} else {
			toolNames.AppendNull()
		}
		successes.Append(obs.Success)
		durations.Append(obs.DurationMs)
		diffSizes.Append(int64(obs.DiffSize))
		n++
	}

	record := builder.NewRecord()
	defer record.Release()

	table := array.NewTableFromRecords(exportSchema, []arrow.Record{record})
	defer table.Release()

	f, err := os.Create(path)
	if err != nil {
		return 0, errors.WithFields(
			errors.Wrap(err, errors.StorageWriteFailed, "failed to create export file"),
			errors.Fields{"path": path},
		)
	}
	defer f.Close()

	if err := pqarrow.WriteTable(table, f, 1024, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps()); err != nil {
		return 0, errors.WithFields(
			errors.Wrap(err, errors.StorageWriteFailed, "failed to write parquet export"),
			errors.Fields{"path": path},
		)
	}
	return n, nil
}
