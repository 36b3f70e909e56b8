package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"salatiso-escalation/internal/domain"

	"github.com/xuri/excelize/v2"
)

// EscalationExportHeader 升级事件报表导出表头
var EscalationExportHeader = []string{
	"Event ID",
	"Incident ID",
	"Title",
	"Context",
	"Severity",
	"Status",
	"Current Level",
	"Created By",
	"Current Owner",
	"Responders",
	"Created At",
	"Escalated At",
	"Resolved At",
}

// ExportEscalations 导出升级事件报表（xlsx）
func (h *EscalationHandler) ExportEscalations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := tenantIDFromReq(w, r)
	if !ok {
		return
	}

	filters, _, _ := parseListQuery(r)
	// 报表不分页，单次导出上限 100 条（与列表查询的页大小上限一致）
	events, _, err := h.escalationService.ListEscalations(ctx, tenantID, filters, 1, 100)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	data, err := GenerateEscalationExport(events)
	if err != nil {
		h.logger.Error("Failed to generate escalation export")
		writeJSON(w, http.StatusOK, Fail("failed to generate export"))
		return
	}

	filename := fmt.Sprintf("escalations-%s.xlsx", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GenerateEscalationExport 生成升级事件报表 Excel 文件
// data 为空时只生成表头
func GenerateEscalationExport(events []*domain.EscalationEvent) ([]byte, error) {
	f := excelize.NewFile()
	// 注意：这里不 defer Close()，WriteToBuffer 需要文件保持打开

	sheetName := "Escalations"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	// 写表头
	for col, header := range EscalationExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to build header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	// 写数据行
	for rowIdx, event := range events {
		values := []any{
			event.EventID,
			event.IncidentID,
			event.Title,
			string(event.Context),
			string(event.Severity),
			string(event.Status),
			string(event.CurrentLevel),
			event.CreatedBy,
			event.CurrentOwner,
			len(event.Responders),
			event.CreatedAt.Format(time.RFC3339),
			formatTimePtr(event.EscalatedAt),
			formatTimePtr(event.ResolvedAt),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to build data cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write excel buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
