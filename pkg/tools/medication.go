package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GD25Workhome/gd25-biz-agent/pkg/repository"
)

// ============================================================================
// MEDICATION TOOLS
// ============================================================================

// RecordMedicationTool records one medication intake.
type RecordMedicationTool struct {
	repo repository.MedicationRepository
}

func NewRecordMedicationTool(repo repository.MedicationRepository) *RecordMedicationTool {
	return &RecordMedicationTool{repo: repo}
}

func (t *RecordMedicationTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "record_medication",
		Description: "记录药品服用信息。需要药品名称、剂量和剂量单位；不提供用药时间则使用当前时间。",
		Parameters: []ToolParameter{
			{Name: "medication_name", Type: "string", Description: "药品名称", Required: true},
			{Name: "dosage", Type: "integer", Description: "每次服用剂量", Required: true},
			{Name: "dosage_unit", Type: "string", Description: "剂量单位（如：片、粒、ml、mg等）", Required: true},
			{Name: "medication_time", Type: "string", Description: "用药时间（可选，格式：YYYY-MM-DD 或 YYYY-MM-DD HH:MM 或 YYYY-MM-DD HH:MM:SS）"},
			{Name: "notes", Type: "string", Description: "备注（可选）"},
		},
	}
}

func (t *RecordMedicationTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	tokenID := TokenIDFromContext(ctx)
	if tokenID == "" {
		return failure(errMissingToken), nil
	}

	name, ok := stringArg(args, "medication_name")
	if !ok {
		return failure("错误：缺少药品名称参数。"), nil
	}
	dosage, ok := intArg(args, "dosage")
	if !ok {
		return failure("错误：缺少剂量参数。"), nil
	}
	unit, ok := stringArg(args, "dosage_unit")
	if !ok {
		return failure("错误：缺少剂量单位参数。"), nil
	}

	medicationTime := time.Now()
	medicationTimeStr, hasTime := stringArg(args, "medication_time")
	if hasTime {
		parsed, ok := parseDateTime(medicationTimeStr)
		if !ok {
			return failure("错误：用药时间格式不正确，请使用 YYYY-MM-DD 或 YYYY-MM-DD HH:MM 格式（如：2024-03-15 或 2024-03-15 14:30）"), nil
		}
		medicationTime = parsed
	}

	record := &repository.MedicationRecord{
		UserID:         tokenID,
		MedicationName: name,
		Dosage:         dosage,
		DosageUnit:     unit,
		MedicationTime: medicationTime,
		Notes:          optionalString(args, "notes"),
	}

	err := withBackendRetry(ctx, "record_medication", func() error {
		return t.repo.Create(ctx, record)
	})
	if err != nil {
		slog.Error("Failed to record medication", "user_id", tokenID, "error", err)
		return failure(fmt.Sprintf("错误：记录药品数据失败 - %v", err)), nil
	}

	slog.Info("Recorded medication", "user_id", tokenID, "record_id", record.ID, "medication", name)

	reply := fmt.Sprintf("已记录药品服用：%s，剂量 %d%s", name, dosage, unit)
	if hasTime {
		reply += fmt.Sprintf("，用药时间：%s", medicationTime.Format("2006-01-02 15:04"))
	}
	if record.Notes != "" {
		reply += fmt.Sprintf("。备注：%s", record.Notes)
	}
	return success(reply), nil
}

// QueryMedicationTool lists medication records in a rolling window of at
// most 14 days.
type QueryMedicationTool struct {
	repo repository.MedicationRepository
}

func NewQueryMedicationTool(repo repository.MedicationRepository) *QueryMedicationTool {
	return &QueryMedicationTool{repo: repo}
}

func (t *QueryMedicationTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "query_medication",
		Description: "查询药品服用记录。默认查询最近14天，最多14天；支持指定天数或日期范围。",
		Parameters: []ToolParameter{
			{Name: "days", Type: "integer", Description: "查询天数（默认14天，最大14天）"},
			{Name: "start_date", Type: "string", Description: "开始日期（格式：YYYY-MM-DD，可选）"},
			{Name: "end_date", Type: "string", Description: "结束日期（格式：YYYY-MM-DD，可选，默认为当前日期）"},
		},
	}
}

func (t *QueryMedicationTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	tokenID := TokenIDFromContext(ctx)
	if tokenID == "" {
		return failure(errMissingToken), nil
	}

	start, end, errMsg := resolveQueryWindow(args)
	if errMsg != "" {
		return failure(errMsg), nil
	}

	var records []*repository.MedicationRecord
	err := withBackendRetry(ctx, "query_medication", func() error {
		var qerr error
		records, qerr = t.repo.GetRecent(ctx, tokenID, start, end)
		return qerr
	})
	if err != nil {
		slog.Error("Failed to query medications", "user_id", tokenID, "error", err)
		return failure(fmt.Sprintf("错误：查询药品记录失败 - %v", err)), nil
	}

	if len(records) == 0 {
		return success("您在此时间段内没有药品服用记录。"), nil
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("共找到 %d 条药品服用记录：\n", len(records)))
	for i, record := range records {
		line := fmt.Sprintf("%d. %s - %s，剂量 %d%s",
			i+1, record.MedicationTime.Format("2006-01-02 15:04"),
			record.MedicationName, record.Dosage, record.DosageUnit)
		if record.Notes != "" {
			line += fmt.Sprintf("，备注：%s", record.Notes)
		}
		lines = append(lines, line)
	}

	slog.Info("Queried medication records", "user_id", tokenID, "count", len(records))
	return success(strings.Join(lines, "\n")), nil
}
