package service

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bark-labs/pushover-relay/internal/model"
	"github.com/bark-labs/pushover-relay/internal/storage"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// NoticeLogService pages through and aggregates notice logs.
type NoticeLogService struct {
	store        storage.Store
	recipientSvc *RecipientService
}

// NewNoticeLogService builds the notice log service.
func NewNoticeLogService(store storage.Store, recipientSvc *RecipientService) *NoticeLogService {
	return &NoticeLogService{store: store, recipientSvc: recipientSvc}
}

// Query returns one page of logs matching filter, newest first.
func (s *NoticeLogService) Query(ctx context.Context, filter model.NoticeLogFilter) (*model.NoticeLogPage, error) {
	logs, err := s.filteredLogs(ctx, filter)
	if err != nil {
		return nil, err
	}

	size := filter.PageSize
	switch {
	case size <= 0:
		size = defaultPageSize
	case size > maxPageSize:
		size = maxPageSize
	}
	page := max(filter.Page, 1)

	total := len(logs)
	start := min((page-1)*size, total)
	end := min(start+size, total)

	return &model.NoticeLogPage{
		Data:     logs[start:end],
		Total:    total,
		Pages:    (total + size - 1) / size,
		PageNum:  page,
		PageSize: size,
	}, nil
}

// CountByDate aggregates logs per day, month or year.
func (s *NoticeLogService) CountByDate(ctx context.Context, dateType string, begin, end *time.Time) ([]map[string]any, error) {
	layout := "2006-01-02"
	switch strings.ToLower(dateType) {
	case "year":
		layout = "2006"
	case "month":
		layout = "2006-01"
	}
	return s.countBy(ctx, begin, end, "date", func(l *model.NoticeLog) string {
		return l.CreatedAt.Format(layout)
	})
}

// CountByStatus aggregates by delivery status.
func (s *NoticeLogService) CountByStatus(ctx context.Context, begin, end *time.Time) ([]map[string]any, error) {
	return s.countBy(ctx, begin, end, "status", func(l *model.NoticeLog) string {
		return firstNonEmpty(l.Status, "UNKNOWN")
	})
}

// CountByPriority aggregates by message priority.
func (s *NoticeLogService) CountByPriority(ctx context.Context, begin, end *time.Time) ([]map[string]any, error) {
	return s.countBy(ctx, begin, end, "priority", func(l *model.NoticeLog) string {
		return strconv.Itoa(l.Priority)
	})
}

// CountByRecipient aggregates using recipient names when known.
func (s *NoticeLogService) CountByRecipient(ctx context.Context, begin, end *time.Time) ([]map[string]any, error) {
	names := make(map[string]string)
	if s.recipientSvc != nil {
		if recipients, err := s.recipientSvc.List(ctx); err == nil {
			for _, r := range recipients {
				names[r.UserKey] = r.Name
			}
		}
	}
	return s.countBy(ctx, begin, end, "recipient", func(l *model.NoticeLog) string {
		return firstNonEmpty(names[l.UserKey], maskValue(l.UserKey))
	})
}

func (s *NoticeLogService) countBy(ctx context.Context, begin, end *time.Time, key string, group func(*model.NoticeLog) string) ([]map[string]any, error) {
	logs, err := s.filteredLogs(ctx, model.NoticeLogFilter{BeginTime: begin, EndTime: end})
	if err != nil {
		return nil, err
	}
	counter := make(map[string]int)
	for _, l := range logs {
		counter[group(l)]++
	}
	result := make([]map[string]any, 0, len(counter))
	for k, v := range counter {
		result = append(result, map[string]any{key: k, "count": v})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i][key].(string) < result[j][key].(string)
	})
	return result, nil
}

func (s *NoticeLogService) filteredLogs(ctx context.Context, filter model.NoticeLogFilter) ([]*model.NoticeLog, error) {
	all, err := s.store.ListNoticeLogs(ctx)
	if err != nil {
		return nil, err
	}
	matches := make([]*model.NoticeLog, 0, len(all))
	for _, l := range all {
		if filter.UserKey != "" && l.UserKey != filter.UserKey {
			continue
		}
		if filter.Status != "" && !strings.EqualFold(l.Status, filter.Status) {
			continue
		}
		if filter.Priority != nil && l.Priority != *filter.Priority {
			continue
		}
		if filter.BeginTime != nil && l.CreatedAt.Before(filter.BeginTime.UTC()) {
			continue
		}
		if filter.EndTime != nil && l.CreatedAt.After(filter.EndTime.UTC()) {
			continue
		}
		matches = append(matches, l)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].ID > matches[j].ID
	})
	return matches, nil
}
