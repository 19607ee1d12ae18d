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
// SYMPTOM TOOLS
// ============================================================================

// recoveryStatuses are the accepted values of the recovery_status
// argument.
var recoveryStatuses = []string{"新记录", "老记录", "痊愈"}

// RecordSymptomTool records one symptom entry.
type RecordSymptomTool struct {
	repo repository.SymptomRepository
}

func NewRecordSymptomTool(repo repository.SymptomRepository) *RecordSymptomTool {
	return &RecordSymptomTool{repo: repo}
}

func (t *RecordSymptomTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "record_symptom",
		Description: "记录症状信息。需要症状名和恢复状态；不提供记录时间则使用当前时间。",
		Parameters: []ToolParameter{
			{Name: "symptom_name", Type: "string", Description: "症状名", Required: true},
			{Name: "recovery_status", Type: "string", Description: "恢复状态", Required: true, Enum: recoveryStatuses},
			{Name: "record_time", Type: "string", Description: "记录时间（可选，格式：YYYY-MM-DD 或 YYYY-MM-DD HH:MM 或 YYYY-MM-DD HH:MM:SS）"},
			{Name: "notes", Type: "string", Description: "备注（可选）"},
		},
	}
}

func (t *RecordSymptomTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	tokenID := TokenIDFromContext(ctx)
	if tokenID == "" {
		return failure(errMissingToken), nil
	}

	name, ok := stringArg(args, "symptom_name")
	if !ok {
		return failure("错误：缺少症状名参数。"), nil
	}
	status, ok := stringArg(args, "recovery_status")
	if !ok {
		return failure("错误：缺少恢复状态参数。"), nil
	}

	validStatus := false
	for _, s := range recoveryStatuses {
		if s == status {
			validStatus = true
			break
		}
	}
	if !validStatus {
		return failure(fmt.Sprintf("错误：恢复状态必须是以下值之一：%s", strings.Join(recoveryStatuses, "、"))), nil
	}

	recordTime := time.Now()
	recordTimeStr, hasTime := stringArg(args, "record_time")
	if hasTime {
		parsed, ok := parseDateTime(recordTimeStr)
		if !ok {
			return failure(badTimeFormatMsg), nil
		}
		recordTime = parsed
	}

	record := &repository.SymptomRecord{
		UserID:         tokenID,
		SymptomName:    name,
		RecoveryStatus: status,
		RecordTime:     recordTime,
		Notes:          optionalString(args, "notes"),
	}

	err := withBackendRetry(ctx, "record_symptom", func() error {
		return t.repo.Create(ctx, record)
	})
	if err != nil {
		slog.Error("Failed to record symptom", "user_id", tokenID, "error", err)
		return failure(fmt.Sprintf("错误：记录症状数据失败 - %v", err)), nil
	}

	slog.Info("Recorded symptom", "user_id", tokenID, "record_id", record.ID, "symptom", name)

	reply := fmt.Sprintf("已记录症状：%s，状态：%s", name, status)
	if hasTime {
		reply += fmt.Sprintf("，记录时间：%s", recordTime.Format("2006-01-02 15:04"))
	}
	if record.Notes != "" {
		reply += fmt.Sprintf("。备注：%s", record.Notes)
	}
	return success(reply), nil
}

// QuerySymptomTool lists symptom records in a rolling window of at most
// 14 days.
type QuerySymptomTool struct {
	repo repository.SymptomRepository
}

func NewQuerySymptomTool(repo repository.SymptomRepository) *QuerySymptomTool {
	return &QuerySymptomTool{repo: repo}
}

func (t *QuerySymptomTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "query_symptom",
		Description: "查询症状记录。默认查询最近14天，最多14天；支持指定天数或日期范围。",
		Parameters: []ToolParameter{
			{Name: "days", Type: "integer", Description: "查询天数（默认14天，最大14天）"},
			{Name: "start_date", Type: "string", Description: "开始日期（格式：YYYY-MM-DD，可选）"},
			{Name: "end_date", Type: "string", Description: "结束日期（格式：YYYY-MM-DD，可选，默认为当前日期）"},
		},
	}
}

func (t *QuerySymptomTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	tokenID := TokenIDFromContext(ctx)
	if tokenID == "" {
		return failure(errMissingToken), nil
	}

	start, end, errMsg := resolveQueryWindow(args)
	if errMsg != "" {
		return failure(errMsg), nil
	}

	var records []*repository.SymptomRecord
	err := withBackendRetry(ctx, "query_symptom", func() error {
		var qerr error
		records, qerr = t.repo.GetRecent(ctx, tokenID, start, end)
		return qerr
	})
	if err != nil {
		slog.Error("Failed to query symptoms", "user_id", tokenID, "error", err)
		return failure(fmt.Sprintf("错误：查询症状记录失败 - %v", err)), nil
	}

	if len(records) == 0 {
		return success("您在此时间段内没有症状记录。"), nil
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("共找到 %d 条症状记录：\n", len(records)))
	for i, record := range records {
		line := fmt.Sprintf("%d. %s - %s，状态：%s",
			i+1, record.RecordTime.Format("2006-01-02 15:04"),
			record.SymptomName, record.RecoveryStatus)
		if record.Notes != "" {
			line += fmt.Sprintf("，备注：%s", record.Notes)
		}
		lines = append(lines, line)
	}

	slog.Info("Queried symptom records", "user_id", tokenID, "count", len(records))
	return success(strings.Join(lines, "\n")), nil
}
