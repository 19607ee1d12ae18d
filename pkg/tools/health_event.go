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
// HEALTH EVENT TOOLS
// Habit check-ins like 少吃盐 / 运动 / 心情放松 / 睡眠良好.
// ============================================================================

// RecordHealthEventTool records one health-habit check-in.
type RecordHealthEventTool struct {
	repo repository.HealthEventRepository
}

func NewRecordHealthEventTool(repo repository.HealthEventRepository) *RecordHealthEventTool {
	return &RecordHealthEventTool{repo: repo}
}

func (t *RecordHealthEventTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "record_health_event",
		Description: "记录健康事件打卡（如：少吃盐、运动、心情放松、睡眠良好）。不提供打卡时间则使用当前时间。",
		Parameters: []ToolParameter{
			{Name: "event_type", Type: "string", Description: "健康事件类型", Required: true},
			{Name: "check_in_time", Type: "string", Description: "打卡时间（可选，格式：YYYY-MM-DD 或 YYYY-MM-DD HH:MM 或 YYYY-MM-DD HH:MM:SS）"},
			{Name: "notes", Type: "string", Description: "备注（可选）"},
		},
	}
}

func (t *RecordHealthEventTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	tokenID := TokenIDFromContext(ctx)
	if tokenID == "" {
		return failure(errMissingToken), nil
	}

	eventType, ok := stringArg(args, "event_type")
	if !ok {
		return failure("错误：缺少健康事件类型参数。"), nil
	}

	checkInTime := time.Now()
	checkInTimeStr, hasTime := stringArg(args, "check_in_time")
	if hasTime {
		parsed, ok := parseDateTime(checkInTimeStr)
		if !ok {
			return failure("错误：打卡时间格式不正确，请使用 YYYY-MM-DD 或 YYYY-MM-DD HH:MM 格式（如：2024-03-15 或 2024-03-15 14:30）"), nil
		}
		checkInTime = parsed
	}

	record := &repository.HealthEventRecord{
		UserID:      tokenID,
		EventType:   eventType,
		CheckInTime: checkInTime,
		Notes:       optionalString(args, "notes"),
	}

	err := withBackendRetry(ctx, "record_health_event", func() error {
		return t.repo.Create(ctx, record)
	})
	if err != nil {
		slog.Error("Failed to record health event", "user_id", tokenID, "error", err)
		return failure(fmt.Sprintf("错误：记录健康事件失败 - %v", err)), nil
	}

	slog.Info("Recorded health event", "user_id", tokenID, "record_id", record.ID, "event_type", eventType)

	reply := fmt.Sprintf("已记录健康事件：%s", eventType)
	if hasTime {
		reply += fmt.Sprintf("，打卡时间：%s", checkInTime.Format("2006-01-02 15:04"))
	}
	if record.Notes != "" {
		reply += fmt.Sprintf("。备注：%s", record.Notes)
	}
	return success(reply), nil
}

// QueryHealthEventTool lists check-ins in a rolling window of at most 14
// days.
type QueryHealthEventTool struct {
	repo repository.HealthEventRepository
}

func NewQueryHealthEventTool(repo repository.HealthEventRepository) *QueryHealthEventTool {
	return &QueryHealthEventTool{repo: repo}
}

func (t *QueryHealthEventTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "query_health_event",
		Description: "查询健康事件打卡记录。默认查询最近14天，最多14天；支持指定天数或日期范围。",
		Parameters: []ToolParameter{
			{Name: "days", Type: "integer", Description: "查询天数（默认14天，最大14天）"},
			{Name: "start_date", Type: "string", Description: "开始日期（格式：YYYY-MM-DD，可选）"},
			{Name: "end_date", Type: "string", Description: "结束日期（格式：YYYY-MM-DD，可选，默认为当前日期）"},
		},
	}
}

func (t *QueryHealthEventTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	tokenID := TokenIDFromContext(ctx)
	if tokenID == "" {
		return failure(errMissingToken), nil
	}

	start, end, errMsg := resolveQueryWindow(args)
	if errMsg != "" {
		return failure(errMsg), nil
	}

	var records []*repository.HealthEventRecord
	err := withBackendRetry(ctx, "query_health_event", func() error {
		var qerr error
		records, qerr = t.repo.GetRecent(ctx, tokenID, start, end)
		return qerr
	})
	if err != nil {
		slog.Error("Failed to query health events", "user_id", tokenID, "error", err)
		return failure(fmt.Sprintf("错误：查询健康事件记录失败 - %v", err)), nil
	}

	if len(records) == 0 {
		return success("您在此时间段内没有健康事件打卡记录。"), nil
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("共找到 %d 条健康事件打卡记录：\n", len(records)))
	for i, record := range records {
		line := fmt.Sprintf("%d. %s - %s",
			i+1, record.CheckInTime.Format("2006-01-02 15:04"), record.EventType)
		if record.Notes != "" {
			line += fmt.Sprintf("，备注：%s", record.Notes)
		}
		lines = append(lines, line)
	}

	slog.Info("Queried health event records", "user_id", tokenID, "count", len(records))
	return success(strings.Join(lines, "\n")), nil
}

// RegisterDomainTools wires every domain tool against the store and
// registers them. Called once during boot.
func RegisterDomainTools(reg *Registry, store *repository.Store) error {
	domainTools := []Tool{
		NewRecordBloodPressureTool(store.BloodPressure),
		NewQueryBloodPressureTool(store.BloodPressure),
		NewUpdateBloodPressureTool(store.BloodPressure),
		NewRecordMedicationTool(store.Medications),
		NewQueryMedicationTool(store.Medications),
		NewRecordSymptomTool(store.Symptoms),
		NewQuerySymptomTool(store.Symptoms),
		NewRecordHealthEventTool(store.HealthEvents),
		NewQueryHealthEventTool(store.HealthEvents),
	}

	for _, tool := range domainTools {
		if err := reg.RegisterTool(tool); err != nil {
			return err
		}
	}
	return nil
}
