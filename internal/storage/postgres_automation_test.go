package storage

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	apperrors "gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
)

func TestPostgresRepo_FindActiveAutomationsByColumn(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := workspaceContext()

	cols := []string{"id", "workspace_id", "column_id", "trigger_type", "message_threshold", "active"}
	rows := sqlmock.NewRows(cols).
		AddRow("auto-1", testWorkspaceID, "col-1", model.TriggerMessageReceived, 1, true)
	mock.ExpectQuery(`SELECT (.+) FROM "automations" WHERE column_id = \$1 AND workspace_id = \$2 AND active = \$3`).
		WithArgs("col-1", testWorkspaceID, true).
		WillReturnRows(rows)

	automations, err := repo.FindActiveAutomationsByColumn(ctx, "col-1")
	assert.NoError(t, err)
	assert.Len(t, automations, 1)
	assert.Equal(t, "auto-1", automations[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ClaimAutomationExecution_FirstClaimWins(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := workspaceContext()
	execution := model.AutomationExecution{
		ID:           "exec-1",
		CardID:       "card-1",
		ColumnID:     "col-1",
		AutomationID: "auto-1",
		TriggerType:  model.TriggerMessageReceived,
	}

	mock.ExpectExec(`INSERT INTO "automation_executions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ClaimAutomationExecution(ctx, execution)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ClaimAutomationExecution_DuplicateMeansAlreadyFired(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := workspaceContext()
	execution := model.AutomationExecution{
		ID:           "exec-2",
		CardID:       "card-1",
		ColumnID:     "col-1",
		AutomationID: "auto-1",
		TriggerType:  model.TriggerMessageReceived,
	}

	mock.ExpectExec(`INSERT INTO "automation_executions"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_automation_executions_guard"})

	err := repo.ClaimAutomationExecution(ctx, execution)
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_FindFunnelSteps_Ordered(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := workspaceContext()

	cols := []string{"id", "workspace_id", "funnel_id", "step_order", "message_type", "content", "delay_seconds"}
	rows := sqlmock.NewRows(cols).
		AddRow("step-1", testWorkspaceID, "funnel-1", 1, model.MessageTypeText, "welcome", 0).
		AddRow("step-2", testWorkspaceID, "funnel-1", 2, model.MessageTypeText, "follow up", 30)
	mock.ExpectQuery(`SELECT (.+) FROM "funnel_steps" WHERE funnel_id = \$1 AND workspace_id = \$2 ORDER BY step_order ASC`).
		WithArgs("funnel-1", testWorkspaceID).
		WillReturnRows(rows)

	steps, err := repo.FindFunnelSteps(ctx, "funnel-1")
	assert.NoError(t, err)
	assert.Len(t, steps, 2)
	assert.Equal(t, 1, steps[0].StepOrder)
	assert.Equal(t, 2, steps[1].StepOrder)
	assert.NoError(t, mock.ExpectationsWereMet())
}
