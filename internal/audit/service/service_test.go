package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	auditdomain "github.com/baladiya/wastebilling/internal/audit/domain"
	"github.com/baladiya/wastebilling/internal/audit/repository"
	"github.com/baladiya/wastebilling/internal/auditcontext"
	"github.com/baladiya/wastebilling/internal/clock"
	"github.com/baladiya/wastebilling/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newService(t *testing.T) (*Service, *clock.FakeClock) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`CREATE TABLE audit_logs (
		id BIGINT PRIMARY KEY,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		ip_address TEXT,
		user_agent TEXT,
		created_at TIMESTAMP NOT NULL
	)`).Error)

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	fc := clock.NewFakeClock(time.Date(2025, time.May, 1, 8, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: fc,
		Repo:  repository.Provide(),
	}).(*Service)
	return svc, fc
}

func TestRecordPullsActorFromContext(t *testing.T) {
	svc, _ := newService(t)

	ctx := auditcontext.WithActor(context.Background(), "clerk-7")
	ctx = auditcontext.WithRequestID(ctx, "req-1")
	require.NoError(t, svc.Record(ctx, "", "invoice.waived", "invoice", "42", map[string]any{"reason": "hardship"}))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "clerk-7", entry.Actor)
	assert.Equal(t, "invoice.waived", entry.Action)
	assert.Equal(t, "42", entry.TargetID)
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	assert.Equal(t, "hardship", entry.Metadata["reason"])
}

func TestRecordRejectsEmptyAction(t *testing.T) {
	svc, _ := newService(t)
	err := svc.Record(context.Background(), "clerk-1", "  ", "invoice", "", nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPagesNewestFirst(t *testing.T) {
	svc, fc := newService(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Record(context.Background(), "system", "payment.recorded", "payment", fmt.Sprint(i), nil))
		fc.Advance(time.Minute)
	}

	first, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "4", first.AuditLogs[0].TargetID)
	assert.Equal(t, "3", first.AuditLogs[1].TargetID)

	second, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 2)
	assert.Equal(t, "2", second.AuditLogs[0].TargetID)
	assert.Equal(t, "1", second.AuditLogs[1].TargetID)
}

func TestListRejectsBadToken(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: "not-base64!"},
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}

func TestListRejectsInvertedTimeRange(t *testing.T) {
	svc, fc := newService(t)
	start := fc.Now()
	end := start.Add(-time.Hour)
	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{
		StartAt: &start,
		EndAt:   &end,
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
