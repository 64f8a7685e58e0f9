//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-chat-engine/pkg/models"
	"github.com/ekaya-inc/ekaya-chat-engine/pkg/testhelpers"
)

func setupChatHistoryTest(t *testing.T) (ChatHistoryRepository, string) {
	t.Helper()
	engineDB := testhelpers.GetEngineDB(t)
	// Unique session per test keeps the shared database isolated.
	return NewChatHistoryRepository(engineDB.DB), uuid.NewString()[:16]
}

func insertTurn(t *testing.T, repo ChatHistoryRepository, sessionID, question, reply string) {
	t.Helper()
	status := models.FinalStatusSuccess
	err := repo.InsertTurn(context.Background(),
		&models.ChatMessage{SessionID: sessionID, CallerID: "admin-1", Role: models.ChatRoleUser, Content: question, ModelName: "qwen-plus"},
		&models.ChatMessage{SessionID: sessionID, CallerID: "admin-1", Role: models.ChatRoleAssistant, Content: reply, FinalStatus: &status},
	)
	require.NoError(t, err)
}

func TestChatHistoryRepository_RecentUserMessages(t *testing.T) {
	repo, sessionID := setupChatHistoryTest(t)
	ctx := context.Background()

	for _, q := range []string{"q1", "q2", "q3", "q4", "q5", "q6"} {
		insertTurn(t, repo, sessionID, q, "reply to "+q)
	}

	messages, err := repo.RecentUserMessages(ctx, sessionID, 4)
	require.NoError(t, err)
	// most recent four, oldest first
	assert.Equal(t, []string{"q3", "q4", "q5", "q6"}, messages)
}

func TestChatHistoryRepository_RecentUserMessages_EmptySession(t *testing.T) {
	repo, sessionID := setupChatHistoryTest(t)

	messages, err := repo.RecentUserMessages(context.Background(), sessionID, 4)
	require.NoError(t, err)
	assert.Empty(t, messages)

	messages, err = repo.RecentUserMessages(context.Background(), sessionID, 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestChatHistoryRepository_ListBySession(t *testing.T) {
	repo, sessionID := setupChatHistoryTest(t)
	ctx := context.Background()

	insertTurn(t, repo, sessionID, "各学院学生人数", "共有2个学院")

	messages, err := repo.ListBySession(ctx, sessionID, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, models.ChatRoleUser, messages[0].Role)
	assert.Equal(t, "各学院学生人数", messages[0].Content)
	assert.Equal(t, "qwen-plus", messages[0].ModelName)
	assert.Nil(t, messages[0].FinalStatus)

	assert.Equal(t, models.ChatRoleAssistant, messages[1].Role)
	require.NotNil(t, messages[1].FinalStatus)
	assert.Equal(t, models.FinalStatusSuccess, *messages[1].FinalStatus)
	assert.Equal(t, "admin-1", messages[1].CallerID)
}
