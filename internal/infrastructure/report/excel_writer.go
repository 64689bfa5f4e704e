package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/infrastructure/storage"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	summarySheet   = "Summary"
	decisionsSheet = "Decisions"
)

var decisionHeader = []interface{}{"Sequence", "Approver", "Verdict", "Comment", "Decided At"}

// ExcelWriter renders a finalized request and its decision ledger to an xlsx workbook
type ExcelWriter struct {
	storage port.FileStorage
	logger  *zap.Logger
}

// NewExcelWriter creates a report writer that saves workbooks through storage
func NewExcelWriter(fileStorage port.FileStorage, logger *zap.Logger) *ExcelWriter {
	return &ExcelWriter{
		storage: fileStorage,
		logger:  logger,
	}
}

// WriteFinalized writes <request_id>.xlsx and returns its full path.
// Rewriting the same request replaces the previous workbook.
func (w *ExcelWriter) WriteFinalized(ctx context.Context, notice *port.FinalizedNotice) (string, error) {
	name := storage.SanitizeName(notice.Request.ID)
	if name == "" {
		return "", fmt.Errorf("request id %q is not usable as a file name", notice.Request.ID)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return "", fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(decisionsSheet); err != nil {
		return "", fmt.Errorf("failed to add sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return "", fmt.Errorf("failed to create style: %w", err)
	}

	if err := w.fillSummary(f, notice, bold); err != nil {
		return "", fmt.Errorf("failed to fill summary: %w", err)
	}
	if err := w.fillDecisions(f, notice, bold); err != nil {
		return "", fmt.Errorf("failed to fill decisions: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", fmt.Errorf("failed to render workbook: %w", err)
	}

	path := name + ".xlsx"
	if err := w.storage.Save(ctx, path, buf.Bytes()); err != nil {
		return "", err
	}

	fullPath := w.storage.GetFullPath(path)
	w.logger.Debug("Decision report saved",
		zap.String("request_id", notice.Request.ID),
		zap.String("path", fullPath),
		zap.Int("decisions", len(notice.Decisions)))
	return fullPath, nil
}

func (w *ExcelWriter) fillSummary(f *excelize.File, notice *port.FinalizedNotice, labelStyle int) error {
	req := notice.Request
	rows := [][2]interface{}{
		{"Request ID", req.ID},
		{"Requestor", req.RequestorID},
	}
	if notice.Requestor != nil {
		rows = append(rows, [2]interface{}{"Requestor Name", notice.Requestor.Name})
	}
	rows = append(rows,
		[2]interface{}{"Amount", float64(req.AmountCents) / 100},
		[2]interface{}{"Currency", req.Currency},
		[2]interface{}{"Category", req.Category},
		[2]interface{}{"Description", req.Description},
		[2]interface{}{"Final Status", notice.FinalStatus.String()},
		[2]interface{}{"Finalized At", notice.FinalizedAt.UTC().Format(time.RFC3339)},
	)

	if rule := notice.Rule; rule != nil {
		rows = append(rows,
			[2]interface{}{"Approvers", strings.Join(rule.Approvers, ", ")},
			[2]interface{}{"Compulsory Approvers", strings.Join(rule.CompulsoryApprovers, ", ")},
			[2]interface{}{"Sequential", rule.Sequential},
			[2]interface{}{"Percentage Required", rule.PercentageRequired},
			[2]interface{}{"Manager", rule.ManagerID},
		)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &[]interface{}{row[0], row[1]}); err != nil {
			return err
		}
	}

	last, err := excelize.CoordinatesToCellName(1, len(rows))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(summarySheet, "A1", last, labelStyle); err != nil {
		return err
	}
	return f.SetColWidth(summarySheet, "A", "B", 24)
}

func (w *ExcelWriter) fillDecisions(f *excelize.File, notice *port.FinalizedNotice, headerStyle int) error {
	if err := f.SetSheetRow(decisionsSheet, "A1", &decisionHeader); err != nil {
		return err
	}
	if err := f.SetCellStyle(decisionsSheet, "A1", "E1", headerStyle); err != nil {
		return err
	}

	for i, d := range notice.Decisions {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			d.Sequence,
			d.ApproverID,
			d.Verdict.String(),
			d.Comment,
			d.DecidedAt.UTC().Format(time.RFC3339),
		}
		if err := f.SetSheetRow(decisionsSheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(decisionsSheet, "A", "E", 20)
}

var _ port.ReportWriter = (*ExcelWriter)(nil)
