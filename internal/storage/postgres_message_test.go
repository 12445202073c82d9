package storage

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	apperrors "gitlab.com/vantio/api/wa-crm-relay/internal/apperrors"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
	"gitlab.com/vantio/api/wa-crm-relay/pkg/utils"
)

func testMessage() model.Message {
	return model.Message{
		ID:             "msg-1",
		WorkspaceID:    testWorkspaceID,
		ConversationID: "conv-1",
		ExternalID:     "EXT-ABC-1",
		Content:        "hello",
		MessageType:    model.MessageTypeText,
		SenderType:     model.SenderTypeContact,
		Status:         model.MessageStatusReceived,
	}
}

func TestPostgresRepo_SaveMessage_Duplicate(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := workspaceContext()

	mock.ExpectExec(`INSERT INTO "messages"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_messages_external_id"})

	err := repo.SaveMessage(ctx, testMessage())
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_SaveMessageWithTouch_Success(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := workspaceContext()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "messages"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "conversations" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SaveMessageWithTouch(ctx, testMessage())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_SaveMessageWithTouch_DuplicateRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := workspaceContext()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "messages"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_messages_external_id"})
	mock.ExpectRollback()

	err := repo.SaveMessageWithTouch(ctx, testMessage())
	assert.ErrorIs(t, err, apperrors.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ApplyMessageAck_Delivered(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := workspaceContext()
	at := utils.Now()

	mock.ExpectExec(`UPDATE "messages" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ApplyMessageAck(ctx, "EXT-ABC-1", model.MessageStatusDelivered, at, nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ApplyMessageAck_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := workspaceContext()

	mock.ExpectExec(`UPDATE "messages" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ApplyMessageAck(ctx, "EXT-MISSING", model.MessageStatusRead, utils.Now(), nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ReconcileMessageSend_OverwritesExternalID(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := workspaceContext()

	mock.ExpectExec(`UPDATE "messages" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ReconcileMessageSend(ctx, "msg-1", model.MessageStatusSent, "PROVIDER-ID-9", nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_CountInboundMessagesSince(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := workspaceContext()
	since := time.Now().Add(-time.Hour)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "messages"`).
		WithArgs("conv-1", testWorkspaceID, model.SenderTypeContact, since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	count, err := repo.CountInboundMessagesSince(ctx, "conv-1", since)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
