// Package export renders stored events as spreadsheets and iCalendar documents.
package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"orgcal/internal/model"
)

var roomColumns = []string{
	"ID", "Title", "Date", "Start", "End", "Minutes", "Status", "Owner", "Series", "Rule",
}

// WriteRoomWorkbook writes a room's events to an xlsx workbook: one sheet listing every
// event in local time and a summary sheet counting events by status.
func WriteRoomWorkbook(w io.Writer, room model.Room, events []model.Event, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	sheet := newSheetWriter()

	if err := sheet.AddSheet(room.Name); err != nil {
		return err
	}
	if err := sheet.WriteHeader(roomColumns); err != nil {
		return err
	}

	counts := make(map[model.Status]int)
	for _, e := range events {
		start, end := e.Start.In(loc), e.End.In(loc)
		counts[e.Status]++
		row := []any{
			e.ID,
			e.Title,
			start.Format("2006-01-02"),
			start.Format("15:04"),
			end.Format("15:04"),
			int(e.Duration().Minutes()),
			string(e.Status),
			e.OwnerName,
			e.SeriesID,
			e.RecurrenceRule,
		}
		if err := sheet.WriteRow(row); err != nil {
			return fmt.Errorf("write event %d: %w", e.ID, err)
		}
	}

	if err := sheet.AddSheet("Summary"); err != nil {
		return err
	}
	if err := sheet.WriteHeader([]string{"Status", "Events"}); err != nil {
		return err
	}
	for _, st := range []model.Status{
		model.StatusDraft, model.StatusPendingReview, model.StatusApproved,
		model.StatusPublished, model.StatusRejected, model.StatusCancelled,
	} {
		if err := sheet.WriteRow([]any{string(st), counts[st]}); err != nil {
			return err
		}
	}
	if err := sheet.WriteRow([]any{"total", len(events)}); err != nil {
		return err
	}

	return sheet.Save(w)
}

// TableSource provides raw table contents for a full dump.
type TableSource interface {
	GetTableData(ctx context.Context, tableName string) ([]map[string]any, []string, error)
}

// WriteTables dumps each named table to its own sheet.
func WriteTables(ctx context.Context, w io.Writer, src TableSource, tables []string) error {
	sheet := newSheetWriter()

	for _, table := range tables {
		data, columns, err := src.GetTableData(ctx, table)
		if err != nil {
			return fmt.Errorf("read table %s: %w", table, err)
		}
		if err := sheet.AddSheet(table); err != nil {
			return err
		}
		if err := sheet.WriteHeader(columns); err != nil {
			return err
		}
		for _, row := range data {
			values := make([]any, len(columns))
			for i, col := range columns {
				values[i] = cellValue(row[col])
			}
			if err := sheet.WriteRow(values); err != nil {
				return fmt.Errorf("write %s row: %w", table, err)
			}
		}
	}

	return sheet.Save(w)
}

func cellValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case nil:
		return ""
	}
	return v
}
