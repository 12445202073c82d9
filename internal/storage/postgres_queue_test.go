package storage

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	apperrors "gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
)

func TestPostgresRepo_FindActiveQueueMembers_Ordered(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := workspaceContext()

	cols := []string{"id", "queue_id", "user_id", "order_position", "status"}
	rows := sqlmock.NewRows(cols).
		AddRow("qu-1", "queue-1", "user-a", 0, model.QueueUserStatusActive).
		AddRow("qu-2", "queue-1", "user-b", 1, model.QueueUserStatusActive)
	mock.ExpectQuery(`SELECT (.+) FROM "queue_users" WHERE queue_id = \$1 AND status = \$2 ORDER BY order_position ASC`).
		WithArgs("queue-1", model.QueueUserStatusActive).
		WillReturnRows(rows)

	members, err := repo.FindActiveQueueMembers(ctx, "queue-1")
	assert.NoError(t, err)
	assert.Len(t, members, 2)
	assert.Equal(t, "user-a", members[0].UserID)
	assert.Equal(t, "user-b", members[1].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_FindActiveQueueMembers_Empty(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := workspaceContext()

	cols := []string{"id", "queue_id", "user_id", "order_position", "status"}
	mock.ExpectQuery(`SELECT (.+) FROM "queue_users"`).
		WillReturnRows(sqlmock.NewRows(cols))

	members, err := repo.FindActiveQueueMembers(ctx, "queue-empty")
	assert.NoError(t, err)
	assert.NotNil(t, members)
	assert.Empty(t, members)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_AdvanceSequentialIndex_Rotates(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := workspaceContext()

	mock.ExpectQuery(`(?s)UPDATE queues.*RETURNING last_assigned_user_index`).
		WithArgs(3, AnyTime{}, "queue-1", testWorkspaceID).
		WillReturnRows(sqlmock.NewRows([]string{"last_assigned_user_index"}).AddRow(2))

	idx, err := repo.AdvanceSequentialIndex(ctx, "queue-1", 3)
	assert.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_AdvanceSequentialIndex_RejectsEmptyPool(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := workspaceContext()

	_, err := repo.AdvanceSequentialIndex(ctx, "queue-1", 0)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_AdvanceSequentialIndex_QueueMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := workspaceContext()

	mock.ExpectQuery(`(?s)UPDATE queues.*RETURNING last_assigned_user_index`).
		WithArgs(2, AnyTime{}, "queue-missing", testWorkspaceID).
		WillReturnRows(sqlmock.NewRows([]string{"last_assigned_user_index"}))

	_, err := repo.AdvanceSequentialIndex(ctx, "queue-missing", 2)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
