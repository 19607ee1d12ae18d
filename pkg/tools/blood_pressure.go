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
// BLOOD PRESSURE TOOLS
// record_blood_pressure / query_blood_pressure / update_blood_pressure.
// Every operation is scoped to the ambient token id; identity never
// arrives through LLM arguments.
// ============================================================================

const badTimeFormatMsg = "错误：记录时间格式不正确，请使用 YYYY-MM-DD 或 YYYY-MM-DD HH:MM 格式（如：2024-03-15 或 2024-03-15 14:30）"

// RecordBloodPressureTool records one blood pressure measurement.
type RecordBloodPressureTool struct {
	repo repository.BloodPressureRepository
}

func NewRecordBloodPressureTool(repo repository.BloodPressureRepository) *RecordBloodPressureTool {
	return &RecordBloodPressureTool{repo: repo}
}

func (t *RecordBloodPressureTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "record_blood_pressure",
		Description: "记录血压数据。支持收缩压、舒张压、心率、备注和记录时间；不提供记录时间则使用当前时间。",
		Parameters: []ToolParameter{
			{Name: "systolic", Type: "integer", Description: "收缩压（mmHg）", Required: true},
			{Name: "diastolic", Type: "integer", Description: "舒张压（mmHg）", Required: true},
			{Name: "heart_rate", Type: "integer", Description: "心率（次/分钟，可选）"},
			{Name: "notes", Type: "string", Description: "备注（可选）"},
			{Name: "record_time", Type: "string", Description: "记录时间（可选，格式：YYYY-MM-DD 或 YYYY-MM-DD HH:MM 或 YYYY-MM-DD HH:MM:SS）"},
		},
	}
}

func (t *RecordBloodPressureTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	tokenID := TokenIDFromContext(ctx)
	if tokenID == "" {
		return failure(errMissingToken), nil
	}

	systolic, ok := intArg(args, "systolic")
	if !ok {
		return failure("错误：缺少收缩压参数。"), nil
	}
	diastolic, ok := intArg(args, "diastolic")
	if !ok {
		return failure("错误：缺少舒张压参数。"), nil
	}

	recordTime := time.Now()
	recordTimeStr, hasRecordTime := stringArg(args, "record_time")
	if hasRecordTime {
		parsed, ok := parseDateTime(recordTimeStr)
		if !ok {
			return failure(badTimeFormatMsg), nil
		}
		recordTime = parsed
	}

	record := &repository.BloodPressureRecord{
		UserID:     tokenID,
		Systolic:   systolic,
		Diastolic:  diastolic,
		Notes:      optionalString(args, "notes"),
		RecordTime: recordTime,
	}
	if hr, ok := intArg(args, "heart_rate"); ok {
		record.HeartRate = &hr
	}

	err := withBackendRetry(ctx, "record_blood_pressure", func() error {
		return t.repo.Create(ctx, record)
	})
	if err != nil {
		slog.Error("Failed to record blood pressure", "user_id", tokenID, "error", err)
		return failure(fmt.Sprintf("错误：记录血压数据失败 - %v", err)), nil
	}

	slog.Info("Recorded blood pressure", "user_id", tokenID, "record_id", record.ID,
		"systolic", systolic, "diastolic", diastolic)

	// Confirmation enumerates every recorded field.
	reply := fmt.Sprintf("已记录血压数据：收缩压 %d mmHg，舒张压 %d mmHg", systolic, diastolic)
	if record.HeartRate != nil {
		reply += fmt.Sprintf("，心率 %d 次/分钟", *record.HeartRate)
	}
	if hasRecordTime {
		reply += fmt.Sprintf("，记录时间：%s", recordTime.Format("2006-01-02 15:04"))
	}
	if record.Notes != "" {
		reply += fmt.Sprintf("。备注：%s", record.Notes)
	}
	return success(reply), nil
}

// QueryBloodPressureTool lists records in a rolling window of at most 14
// days.
type QueryBloodPressureTool struct {
	repo repository.BloodPressureRepository
}

func NewQueryBloodPressureTool(repo repository.BloodPressureRepository) *QueryBloodPressureTool {
	return &QueryBloodPressureTool{repo: repo}
}

func (t *QueryBloodPressureTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "query_blood_pressure",
		Description: "查询血压记录。默认查询最近14天，最多14天；支持指定天数或日期范围。",
		Parameters: []ToolParameter{
			{Name: "days", Type: "integer", Description: "查询天数（默认14天，最大14天）"},
			{Name: "start_date", Type: "string", Description: "开始日期（格式：YYYY-MM-DD，可选）"},
			{Name: "end_date", Type: "string", Description: "结束日期（格式：YYYY-MM-DD，可选，默认为当前日期）"},
		},
	}
}

func (t *QueryBloodPressureTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	tokenID := TokenIDFromContext(ctx)
	if tokenID == "" {
		return failure(errMissingToken), nil
	}

	start, end, errMsg := resolveQueryWindow(args)
	if errMsg != "" {
		return failure(errMsg), nil
	}

	var records []*repository.BloodPressureRecord
	err := withBackendRetry(ctx, "query_blood_pressure", func() error {
		var qerr error
		records, qerr = t.repo.GetRecent(ctx, tokenID, start, end)
		return qerr
	})
	if err != nil {
		slog.Error("Failed to query blood pressure", "user_id", tokenID, "error", err)
		return failure(fmt.Sprintf("错误：查询血压记录失败 - %v", err)), nil
	}

	if len(records) == 0 {
		return success("您在此时间段内没有血压记录。"), nil
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("共找到 %d 条血压记录：\n", len(records)))
	for i, record := range records {
		line := fmt.Sprintf("%d. %s - 收缩压 %d mmHg，舒张压 %d mmHg",
			i+1, record.RecordTime.Format("2006-01-02 15:04"), record.Systolic, record.Diastolic)
		if record.HeartRate != nil {
			line += fmt.Sprintf("，心率 %d 次/分钟", *record.HeartRate)
		}
		if record.Notes != "" {
			line += fmt.Sprintf("，备注：%s", record.Notes)
		}
		lines = append(lines, line)
	}

	slog.Info("Queried blood pressure records", "user_id", tokenID, "count", len(records))
	return success(strings.Join(lines, "\n")), nil
}

// UpdateBloodPressureTool mutates the most recent record for the ambient
// token; ties on record_time break by latest created_at.
type UpdateBloodPressureTool struct {
	repo repository.BloodPressureRepository
}

func NewUpdateBloodPressureTool(repo repository.BloodPressureRepository) *UpdateBloodPressureTool {
	return &UpdateBloodPressureTool{repo: repo}
}

func (t *UpdateBloodPressureTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "update_blood_pressure",
		Description: "更新最新的一条血压记录。只更新提供的字段；没有血压记录时返回提示。",
		Parameters: []ToolParameter{
			{Name: "systolic", Type: "integer", Description: "收缩压（mmHg，可选）"},
			{Name: "diastolic", Type: "integer", Description: "舒张压（mmHg，可选）"},
			{Name: "heart_rate", Type: "integer", Description: "心率（次/分钟，可选）"},
			{Name: "notes", Type: "string", Description: "备注（可选）"},
			{Name: "record_time", Type: "string", Description: "记录时间（可选，格式：YYYY-MM-DD 或 YYYY-MM-DD HH:MM 或 YYYY-MM-DD HH:MM:SS）"},
		},
	}
}

func (t *UpdateBloodPressureTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	tokenID := TokenIDFromContext(ctx)
	if tokenID == "" {
		return failure(errMissingToken), nil
	}

	var recordTime time.Time
	recordTimeStr, hasRecordTime := stringArg(args, "record_time")
	if hasRecordTime {
		parsed, ok := parseDateTime(recordTimeStr)
		if !ok {
			return failure(badTimeFormatMsg), nil
		}
		recordTime = parsed
	}

	latest, err := t.repo.GetLatest(ctx, tokenID)
	if err == repository.ErrNotFound {
		return success("您还没有血压记录，无法更新。请先使用记录血压功能记录您的血压数据。"), nil
	}
	if err != nil {
		slog.Error("Failed to load latest blood pressure record", "user_id", tokenID, "error", err)
		return failure(fmt.Sprintf("错误：更新血压记录失败 - %v", err)), nil
	}

	var updates []string
	if systolic, ok := intArg(args, "systolic"); ok {
		latest.Systolic = systolic
		updates = append(updates, fmt.Sprintf("收缩压 %d mmHg", systolic))
	}
	if diastolic, ok := intArg(args, "diastolic"); ok {
		latest.Diastolic = diastolic
		updates = append(updates, fmt.Sprintf("舒张压 %d mmHg", diastolic))
	}
	if heartRate, ok := intArg(args, "heart_rate"); ok {
		latest.HeartRate = &heartRate
		updates = append(updates, fmt.Sprintf("心率 %d 次/分钟", heartRate))
	}
	if notes, ok := stringArg(args, "notes"); ok {
		latest.Notes = notes
		updates = append(updates, fmt.Sprintf("备注：%s", notes))
	}
	if hasRecordTime {
		latest.RecordTime = recordTime
		updates = append(updates, fmt.Sprintf("记录时间：%s", recordTime.Format("2006-01-02 15:04")))
	}

	if len(updates) == 0 {
		return success("未提供任何更新字段"), nil
	}

	err = withBackendRetry(ctx, "update_blood_pressure", func() error {
		return t.repo.Update(ctx, latest)
	})
	if err != nil {
		slog.Error("Failed to update blood pressure record", "user_id", tokenID, "record_id", latest.ID, "error", err)
		return failure(fmt.Sprintf("错误：更新血压记录失败 - %v", err)), nil
	}

	slog.Info("Updated blood pressure record", "user_id", tokenID, "record_id", latest.ID)
	return success("已更新血压记录：" + strings.Join(updates, "，")), nil
}

// ----------------------------------------------------------------------------
// Shared helpers

func success(content string) ToolResult {
	return ToolResult{Success: true, Content: content}
}

func failure(content string) ToolResult {
	return ToolResult{Success: false, Content: content}
}

func optionalString(args map[string]any, name string) string {
	s, _ := stringArg(args, name)
	return s
}

// resolveQueryWindow parses the days / start_date / end_date arguments of
// a query tool and returns the clamped window. A non-empty error message
// means an argument was unparseable.
func resolveQueryWindow(args map[string]any) (time.Time, time.Time, string) {
	days, hasDays := intArg(args, "days")

	var start, end time.Time
	var hasStart, hasEnd bool

	if s, ok := stringArg(args, "start_date"); ok {
		parsed, pok := parseDateTime(s)
		if !pok {
			return time.Time{}, time.Time{}, "错误：开始日期格式不正确，请使用 YYYY-MM-DD 格式（如：2024-03-01）"
		}
		start, hasStart = parsed, true
	}

	if s, ok := stringArg(args, "end_date"); ok {
		parsed, pok := parseDateTime(s)
		if !pok {
			return time.Time{}, time.Time{}, "错误：结束日期格式不正确，请使用 YYYY-MM-DD 格式（如：2024-03-07）"
		}
		if isDateOnly(s) {
			parsed = endOfDay(parsed)
		}
		end, hasEnd = parsed, true
	}

	windowStart, windowEnd := queryWindow(days, hasDays, start, hasStart, end, hasEnd, time.Now())
	return windowStart, windowEnd, ""
}
