package service

import (
	"context"
	"fmt"
	"time"

	"dispatchconsole/internal/model"
	"dispatchconsole/internal/repository"

	"gorm.io/gorm"
)

type CategoryBacklog struct {
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
	Pending      int64  `json:"pending"`
}

type StatisticsResponse struct {
	TimeRangeStartDate time.Time         `json:"time_range_start_date"`
	TimeRangeEndDate   time.Time         `json:"time_range_end_date"`
	RequestsByStatus   map[string]int64  `json:"requests_by_status"`
	RequestsByType     map[string]int64  `json:"requests_by_type"`
	PendingByCategory  []CategoryBacklog `json:"pending_by_category"`
	MachinesApproved   int64             `json:"machines_approved"`
	MachinesAwaiting   int64             `json:"machines_awaiting"`
	ActiveConfigs      int64             `json:"active_sequence_configs"`
}

// StatisticsService summarises approval throughput for the dashboard.
type StatisticsService interface {
	GetStatistics(ctx context.Context, startDate, endDate time.Time) (*StatisticsResponse, error)
}

type statisticsService struct {
	db *gorm.DB
}

func NewStatisticsService(db *gorm.DB) StatisticsService {
	return &statisticsService{db: db}
}

type countRow struct {
	Bucket string
	Count  int64
}

// GetStatistics aggregates requests raised in [startDate, endDate] and the current
// machine and config totals.
func (s *statisticsService) GetStatistics(ctx context.Context, startDate, endDate time.Time) (*StatisticsResponse, error) {
	db := repository.GetDB(ctx, s.db).WithContext(ctx)
	res := &StatisticsResponse{
		TimeRangeStartDate: startDate,
		TimeRangeEndDate:   endDate,
		RequestsByStatus:   map[string]int64{},
		RequestsByType:     map[string]int64{},
		PendingByCategory:  []CategoryBacklog{},
	}

	inRange := func() *gorm.DB {
		return db.Model(&model.ApprovalRequest{}).
			Where("approval_requests.created_at >= ? AND approval_requests.created_at <= ?", startDate, endDate)
	}

	// Requests by status
	var byStatus []countRow
	if err := inRange().Select("status as bucket, COUNT(*) as count").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("failed to count requests by status: %w", err)
	}
	for _, r := range byStatus {
		res.RequestsByStatus[r.Bucket] = r.Count
	}

	// Requests by type
	var byType []countRow
	if err := inRange().Select("approval_type as bucket, COUNT(*) as count").Group("approval_type").Scan(&byType).Error; err != nil {
		return nil, fmt.Errorf("failed to count requests by type: %w", err)
	}
	for _, r := range byType {
		res.RequestsByType[r.Bucket] = r.Count
	}

	// Categories with the largest pending backlog, regardless of range
	if err := db.Model(&model.ApprovalRequest{}).
		Select("categories.id as category_id, categories.name as category_name, COUNT(*) as pending").
		Joins("JOIN machines ON machines.id = approval_requests.machine_id").
		Joins("JOIN sales_orders ON sales_orders.id = machines.so_id").
		Joins("JOIN categories ON categories.id = sales_orders.category_id").
		Where("approval_requests.status = ?", model.ApprovalPending).
		Group("categories.id, categories.name").
		Order("pending DESC").
		Limit(5).
		Scan(&res.PendingByCategory).Error; err != nil {
		return nil, fmt.Errorf("failed to rank pending categories: %w", err)
	}

	if err := db.Model(&model.Machine{}).Where("is_approved = ?", true).Count(&res.MachinesApproved).Error; err != nil {
		return nil, fmt.Errorf("failed to count approved machines: %w", err)
	}
	if err := db.Model(&model.Machine{}).Where("is_approved = ?", false).Count(&res.MachinesAwaiting).Error; err != nil {
		return nil, fmt.Errorf("failed to count unapproved machines: %w", err)
	}
	if err := db.Model(&model.SequenceConfig{}).Where("active = ?", true).Count(&res.ActiveConfigs).Error; err != nil {
		return nil, fmt.Errorf("failed to count sequence configs: %w", err)
	}
	return res, nil
}
