package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	fwdmock "gitlab.com/vantio/api/wa-crm-relay/internal/forwarder/mock"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
)

func automationJob() AutomationJob {
	return AutomationJob{
		WorkspaceID:    testWorkspaceID,
		ContactID:      "contact-1",
		ConversationID: "conv-1",
	}
}

func openCard() model.PipelineCard {
	return model.PipelineCard{
		ID:          "card-1",
		WorkspaceID: testWorkspaceID,
		ContactID:   "contact-1",
		ColumnID:    "column-1",
		Status:      "open",
		CreatedAt:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func columnAutomation(actions string) model.Automation {
	return model.Automation{
		ID:               "auto-1",
		WorkspaceID:      testWorkspaceID,
		ColumnID:         "column-1",
		TriggerType:      model.TriggerMessageReceived,
		MessageThreshold: 2,
		Actions:          datatypes.JSON(actions),
		Active:           true,
	}
}

// newTestEngine builds an engine without a worker pool so tests can drive
// evaluate synchronously.
func newTestEngine(t *testing.T) (*AutomationEngine, *testRepos, *fwdmock.ClientMock) {
	svc, repos, fwd := newTestService(t)
	engine := &AutomationEngine{svc: svc}
	return engine, repos, fwd
}

func expectCardLookup(repos *testRepos, automations []model.Automation) {
	repos.pipelines.On("FindOpenCardsByContact", mock.Anything, "contact-1").
		Return([]model.PipelineCard{openCard()}, nil)
	repos.automations.On("FindActiveByColumn", mock.Anything, "column-1").
		Return(automations, nil)
}

func TestAutomation_FiresAtMostOnce(t *testing.T) {
	engine, repos, _ := newTestEngine(t)

	expectCardLookup(repos, []model.Automation{columnAutomation(`[{"type":"add_agent"}]`)})
	repos.pipelines.On("ColumnEntryAt", mock.Anything, "card-1", "column-1").Return((*time.Time)(nil), nil)

	// Inbound count grows across evaluations; only the first claim wins.
	counts := []int64{1, 2, 3, 4, 5}
	for _, c := range counts {
		repos.messages.On("CountInboundSince", mock.Anything, "conv-1", mock.Anything).Return(c, nil).Once()
	}
	repos.automations.On("ClaimExecution", mock.Anything, mock.MatchedBy(func(e model.AutomationExecution) bool {
		return e.CardID == "card-1" && e.ColumnID == "column-1" && e.AutomationID == "auto-1"
	})).Return(nil).Once()
	repos.automations.On("ClaimExecution", mock.Anything, mock.Anything).Return(duplicateErr("automation_execution"))
	repos.conversations.On("SetAgentActive", mock.Anything, "conv-1", true).Return(nil)

	for i := 0; i < len(counts); i++ {
		engine.evaluate(automationJob())
	}

	repos.conversations.AssertNumberOfCalls(t, "SetAgentActive", 1)
}

func TestAutomation_BelowThresholdDoesNotClaim(t *testing.T) {
	engine, repos, _ := newTestEngine(t)

	expectCardLookup(repos, []model.Automation{columnAutomation(`[{"type":"add_agent"}]`)})
	repos.pipelines.On("ColumnEntryAt", mock.Anything, "card-1", "column-1").Return((*time.Time)(nil), nil)
	repos.messages.On("CountInboundSince", mock.Anything, "conv-1", mock.Anything).Return(int64(1), nil)

	engine.evaluate(automationJob())

	repos.automations.AssertNotCalled(t, "ClaimExecution", mock.Anything, mock.Anything)
}

func TestAutomation_CountsFromColumnEntryDate(t *testing.T) {
	engine, repos, _ := newTestEngine(t)

	entered := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	expectCardLookup(repos, []model.Automation{columnAutomation(`[{"type":"add_agent"}]`)})
	repos.pipelines.On("ColumnEntryAt", mock.Anything, "card-1", "column-1").Return(&entered, nil)
	repos.messages.On("CountInboundSince", mock.Anything, "conv-1", entered).Return(int64(0), nil)

	engine.evaluate(automationJob())

	repos.messages.AssertCalled(t, "CountInboundSince", mock.Anything, "conv-1", entered)
}

func TestAutomation_FallsBackToCardCreation(t *testing.T) {
	engine, repos, _ := newTestEngine(t)

	expectCardLookup(repos, []model.Automation{columnAutomation(`[{"type":"add_agent"}]`)})
	repos.pipelines.On("ColumnEntryAt", mock.Anything, "card-1", "column-1").Return((*time.Time)(nil), nil)
	repos.messages.On("CountInboundSince", mock.Anything, "conv-1", openCard().CreatedAt).Return(int64(0), nil)

	engine.evaluate(automationJob())

	repos.messages.AssertCalled(t, "CountInboundSince", mock.Anything, "conv-1", openCard().CreatedAt)
}

func TestAutomation_DuplicateTagIsSuccess(t *testing.T) {
	engine, repos, _ := newTestEngine(t)

	expectCardLookup(repos, []model.Automation{columnAutomation(`[{"type":"add_tag","tag":"vip"},{"type":"add_agent"}]`)})
	repos.pipelines.On("ColumnEntryAt", mock.Anything, "card-1", "column-1").Return((*time.Time)(nil), nil)
	repos.messages.On("CountInboundSince", mock.Anything, "conv-1", mock.Anything).Return(int64(3), nil)
	repos.automations.On("ClaimExecution", mock.Anything, mock.Anything).Return(nil)
	repos.contacts.On("AddTag", mock.Anything, mock.MatchedBy(func(tag model.ContactTag) bool {
		return tag.Tag == "vip" && tag.ContactID == "contact-1"
	})).Return(duplicateErr("contact_tag"))
	repos.conversations.On("SetAgentActive", mock.Anything, "conv-1", true).Return(nil)

	engine.evaluate(automationJob())

	// The duplicate tag does not stop the remaining actions.
	repos.conversations.AssertCalled(t, "SetAgentActive", mock.Anything, "conv-1", true)
}

func TestAutomation_FailedActionDoesNotStopTheRest(t *testing.T) {
	engine, repos, _ := newTestEngine(t)

	expectCardLookup(repos, []model.Automation{columnAutomation(`[{"type":"change_column","column_id":"column-2"},{"type":"remove_agent"}]`)})
	repos.pipelines.On("ColumnEntryAt", mock.Anything, "card-1", "column-1").Return((*time.Time)(nil), nil)
	repos.messages.On("CountInboundSince", mock.Anything, "conv-1", mock.Anything).Return(int64(2), nil)
	repos.automations.On("ClaimExecution", mock.Anything, mock.Anything).Return(nil)
	repos.pipelines.On("MoveCard", mock.Anything, "card-1", "column-1", "column-2", "automation:auto-1").
		Return(databaseErr())
	repos.conversations.On("SetAgentActive", mock.Anything, "conv-1", false).Return(nil)

	engine.evaluate(automationJob())

	repos.conversations.AssertCalled(t, "SetAgentActive", mock.Anything, "conv-1", false)
}

func TestAutomation_ChangeColumnMovesCard(t *testing.T) {
	engine, repos, _ := newTestEngine(t)

	expectCardLookup(repos, []model.Automation{columnAutomation(`[{"type":"change_column","column_id":"column-2"}]`)})
	repos.pipelines.On("ColumnEntryAt", mock.Anything, "card-1", "column-1").Return((*time.Time)(nil), nil)
	repos.messages.On("CountInboundSince", mock.Anything, "conv-1", mock.Anything).Return(int64(2), nil)
	repos.automations.On("ClaimExecution", mock.Anything, mock.Anything).Return(nil)
	repos.pipelines.On("MoveCard", mock.Anything, "card-1", "column-1", "column-2", "automation:auto-1").Return(nil)

	engine.evaluate(automationJob())

	repos.pipelines.AssertExpectations(t)
}

func TestAutomation_SendMessageGoesThroughOutboundDispatch(t *testing.T) {
	engine, repos, fwd := newTestEngine(t)

	expectCardLookup(repos, []model.Automation{columnAutomation(`[{"type":"send_message","content":"welcome aboard"}]`)})
	repos.pipelines.On("ColumnEntryAt", mock.Anything, "card-1", "column-1").Return((*time.Time)(nil), nil)
	repos.messages.On("CountInboundSince", mock.Anything, "conv-1", mock.Anything).Return(int64(2), nil)
	repos.automations.On("ClaimExecution", mock.Anything, mock.Anything).Return(nil)

	conversation := &model.Conversation{ID: "conv-1", WorkspaceID: testWorkspaceID, ContactID: "contact-1", ConnectionID: "conn-1"}
	repos.conversations.On("FindByID", mock.Anything, "conv-1").Return(conversation, nil)
	repos.contacts.On("FindByID", mock.Anything, "contact-1").Return(&model.Contact{ID: "contact-1", Phone: "628123456789"}, nil)
	repos.connections.On("FindByID", mock.Anything, "conn-1").Return(testConnection(""), nil)
	repos.settings.On("FindByWorkspace", mock.Anything).Return(testSettings(), nil)

	var sentContent string
	repos.messages.On("SaveWithTouch", mock.Anything, mock.MatchedBy(func(m model.Message) bool {
		sentContent = m.Content
		return m.Status == model.MessageStatusSending
	})).Return(nil)
	fwd.On("SendMessage", mock.Anything, "https://engine.example/hook", mock.MatchedBy(func(r *model.SendRequest) bool {
		return r.Content == "welcome aboard"
	})).Return(&model.SendResponse{Success: true, Key: &model.MessageKey{ID: "PROVIDER-AUTO"}}, nil)
	repos.messages.On("ReconcileSend", mock.Anything, mock.Anything, model.MessageStatusSent, "PROVIDER-AUTO", mock.Anything).Return(nil)

	engine.evaluate(automationJob())

	require.Equal(t, "welcome aboard", sentContent)
	fwd.AssertExpectations(t)
}

func TestAutomation_FunnelStepKeepsDeclaredType(t *testing.T) {
	engine, repos, fwd := newTestEngine(t)

	expectCardLookup(repos, []model.Automation{columnAutomation(`[{"type":"send_funnel","funnel_id":"funnel-1"}]`)})
	repos.pipelines.On("ColumnEntryAt", mock.Anything, "card-1", "column-1").Return((*time.Time)(nil), nil)
	repos.messages.On("CountInboundSince", mock.Anything, "conv-1", mock.Anything).Return(int64(2), nil)
	repos.automations.On("ClaimExecution", mock.Anything, mock.Anything).Return(nil)
	repos.automations.On("FindFunnelSteps", mock.Anything, "funnel-1").Return([]model.FunnelStep{
		{ID: "step-1", FunnelID: "funnel-1", StepOrder: 1, MessageType: model.MessageTypeAudio, FileURL: "https://cdn.example/voice.ogg"},
	}, nil)

	conversation := &model.Conversation{ID: "conv-1", WorkspaceID: testWorkspaceID, ContactID: "contact-1", ConnectionID: "conn-1"}
	repos.conversations.On("FindByID", mock.Anything, "conv-1").Return(conversation, nil)
	repos.contacts.On("FindByID", mock.Anything, "contact-1").Return(&model.Contact{ID: "contact-1", Phone: "628123456789"}, nil)
	repos.connections.On("FindByID", mock.Anything, "conn-1").Return(testConnection(""), nil)
	repos.settings.On("FindByWorkspace", mock.Anything).Return(testSettings(), nil)

	repos.messages.On("SaveWithTouch", mock.Anything, mock.MatchedBy(func(m model.Message) bool {
		return m.MessageType == model.MessageTypeAudio && m.FileURL == "https://cdn.example/voice.ogg"
	})).Return(nil)
	fwd.On("SendMessage", mock.Anything, "https://engine.example/hook", mock.MatchedBy(func(r *model.SendRequest) bool {
		return r.MessageType == model.MessageTypeAudio && r.FileURL == "https://cdn.example/voice.ogg"
	})).Return(&model.SendResponse{Success: true, Key: &model.MessageKey{ID: "PROVIDER-FUNNEL"}}, nil)
	repos.messages.On("ReconcileSend", mock.Anything, mock.Anything, model.MessageStatusSent, "PROVIDER-FUNNEL", mock.Anything).Return(nil)

	engine.evaluate(automationJob())

	fwd.AssertExpectations(t)
}

func TestAutomation_SkipsNonMessageTriggers(t *testing.T) {
	engine, repos, _ := newTestEngine(t)

	other := columnAutomation(`[{"type":"add_agent"}]`)
	other.TriggerType = "card_created"
	expectCardLookup(repos, []model.Automation{other})

	engine.evaluate(automationJob())

	repos.messages.AssertNotCalled(t, "CountInboundSince", mock.Anything, mock.Anything, mock.Anything)
}

func TestAutomation_NoOpenCardsIsANoop(t *testing.T) {
	engine, repos, _ := newTestEngine(t)

	repos.pipelines.On("FindOpenCardsByContact", mock.Anything, "contact-1").
		Return([]model.PipelineCard{}, nil)

	engine.evaluate(automationJob())

	repos.automations.AssertNotCalled(t, "FindActiveByColumn", mock.Anything, mock.Anything)
}
