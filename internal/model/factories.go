package model

import (
	"encoding/json"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/datatypes"

	"gitlab.com/vantio/api/wa-crm-relay/pkg/utils"
)

// RandomJSONB generates random JSON data for testing.
func RandomJSONB() datatypes.JSON {
	jsonData := map[string]interface{}{
		"stub_key": gofakeit.Word(),
		"stub_num": gofakeit.Number(1, 100),
	}
	bytes, _ := json.Marshal(jsonData)
	return datatypes.JSON(bytes)
}

// RandomJSONBMap generates JSON data from a map for testing.
func RandomJSONBMap(data map[string]interface{}) datatypes.JSON {
	bytes, _ := json.Marshal(data)
	return datatypes.JSON(bytes)
}

// init ensures gofakeit is seeded.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// NewContact creates a Contact instance with default fake data.
func NewContact(overrideDefaults ...*Contact) *Contact {
	base := &Contact{
		ID:          gofakeit.UUID(),
		WorkspaceID: "ws_" + gofakeit.LetterN(10),
		Phone:       gofakeit.Numerify("55###########"),
		Name:        gofakeit.Name(),
		ExtraInfo:   RandomJSONB(),
		CreatedAt:   utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour),
		UpdatedAt:   utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.WorkspaceID != "" {
			base.WorkspaceID = ovr.WorkspaceID
		}
		if ovr.Phone != "" {
			base.Phone = ovr.Phone
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if ovr.Avatar != "" {
			base.Avatar = ovr.Avatar
		}
		if ovr.ExtraInfo != nil {
			base.ExtraInfo = ovr.ExtraInfo
		}
	}
	return base
}

// NewConversation creates a Conversation instance with default fake data.
func NewConversation(overrideDefaults ...*Conversation) *Conversation {
	base := &Conversation{
		ID:             gofakeit.UUID(),
		WorkspaceID:    "ws_" + gofakeit.LetterN(10),
		ContactID:      gofakeit.UUID(),
		ConnectionID:   gofakeit.UUID(),
		Status:         ConversationStatusOpen,
		LastActivityAt: utils.Now(),
		CreatedAt:      utils.Now().Add(-time.Duration(gofakeit.Number(1, 100)) * time.Hour),
		UpdatedAt:      utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.WorkspaceID != "" {
			base.WorkspaceID = ovr.WorkspaceID
		}
		if ovr.ContactID != "" {
			base.ContactID = ovr.ContactID
		}
		if ovr.ConnectionID != "" {
			base.ConnectionID = ovr.ConnectionID
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if ovr.AssignedUserID != "" {
			base.AssignedUserID = ovr.AssignedUserID
		}
		if ovr.QueueID != "" {
			base.QueueID = ovr.QueueID
		}
		base.AgentActive = ovr.AgentActive
	}
	return base
}

// NewMessage creates a Message instance with default fake data.
func NewMessage(overrideDefaults ...*Message) *Message {
	base := &Message{
		ID:             gofakeit.UUID(),
		WorkspaceID:    "ws_" + gofakeit.LetterN(10),
		ConversationID: gofakeit.UUID(),
		ExternalID:     gofakeit.LetterN(20),
		Content:        gofakeit.Sentence(6),
		MessageType:    MessageTypeText,
		SenderType:     SenderTypeContact,
		Status:         MessageStatusReceived,
		Metadata:       RandomJSONB(),
		CreatedAt:      utils.Now(),
		UpdatedAt:      utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.WorkspaceID != "" {
			base.WorkspaceID = ovr.WorkspaceID
		}
		if ovr.ConversationID != "" {
			base.ConversationID = ovr.ConversationID
		}
		if ovr.ExternalID != "" {
			base.ExternalID = ovr.ExternalID
		}
		if ovr.Content != "" {
			base.Content = ovr.Content
		}
		if ovr.MessageType != "" {
			base.MessageType = ovr.MessageType
		}
		if ovr.SenderType != "" {
			base.SenderType = ovr.SenderType
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if ovr.FileURL != "" {
			base.FileURL = ovr.FileURL
		}
	}
	return base
}

// NewQueue creates a Queue instance with default fake data.
func NewQueue(overrideDefaults ...*Queue) *Queue {
	base := &Queue{
		ID:               gofakeit.UUID(),
		WorkspaceID:      "ws_" + gofakeit.LetterN(10),
		Name:             gofakeit.JobTitle(),
		DistributionType: DistributionSequential,
		CreatedAt:        utils.Now(),
		UpdatedAt:        utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.WorkspaceID != "" {
			base.WorkspaceID = ovr.WorkspaceID
		}
		if ovr.DistributionType != "" {
			base.DistributionType = ovr.DistributionType
		}
		if ovr.AIAgentID != "" {
			base.AIAgentID = ovr.AIAgentID
		}
		base.LastAssignedUserIndex = ovr.LastAssignedUserIndex
	}
	return base
}

// NewQueueUser creates a QueueUser instance with default fake data.
func NewQueueUser(queueID string, position int) *QueueUser {
	return &QueueUser{
		ID:            gofakeit.UUID(),
		QueueID:       queueID,
		UserID:        gofakeit.UUID(),
		OrderPosition: position,
		Status:        QueueUserStatusActive,
		CreatedAt:     utils.Now(),
	}
}

// NewConnection creates a Connection instance with default fake data.
func NewConnection(overrideDefaults ...*Connection) *Connection {
	base := &Connection{
		ID:           gofakeit.UUID(),
		WorkspaceID:  "ws_" + gofakeit.LetterN(10),
		InstanceName: "inst_" + gofakeit.LetterN(8),
		Provider:     ProviderEvolution,
		BaseURL:      gofakeit.URL(),
		APIKey:       gofakeit.UUID(),
		Status:       "connected",
		CreatedAt:    utils.Now(),
		UpdatedAt:    utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.WorkspaceID != "" {
			base.WorkspaceID = ovr.WorkspaceID
		}
		if ovr.InstanceName != "" {
			base.InstanceName = ovr.InstanceName
		}
		if ovr.QueueID != "" {
			base.QueueID = ovr.QueueID
		}
		if ovr.BaseURL != "" {
			base.BaseURL = ovr.BaseURL
		}
		if ovr.APIKey != "" {
			base.APIKey = ovr.APIKey
		}
	}
	return base
}

// NewWorkspaceSettings creates a WorkspaceSettings instance with default fake data.
func NewWorkspaceSettings(workspaceID string) *WorkspaceSettings {
	return &WorkspaceSettings{
		ID:               gofakeit.UUID(),
		WorkspaceID:      workspaceID,
		EngineWebhookURL: gofakeit.URL(),
		CreatedAt:        utils.Now(),
		UpdatedAt:        utils.Now(),
	}
}

// NewPipelineCard creates a PipelineCard instance with default fake data.
func NewPipelineCard(overrideDefaults ...*PipelineCard) *PipelineCard {
	base := &PipelineCard{
		ID:          gofakeit.UUID(),
		WorkspaceID: "ws_" + gofakeit.LetterN(10),
		ContactID:   gofakeit.UUID(),
		ColumnID:    gofakeit.UUID(),
		Status:      CardStatusOpen,
		CreatedAt:   utils.Now().Add(-time.Duration(gofakeit.Number(1, 48)) * time.Hour),
		UpdatedAt:   utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.WorkspaceID != "" {
			base.WorkspaceID = ovr.WorkspaceID
		}
		if ovr.ContactID != "" {
			base.ContactID = ovr.ContactID
		}
		if ovr.ConversationID != "" {
			base.ConversationID = ovr.ConversationID
		}
		if ovr.ColumnID != "" {
			base.ColumnID = ovr.ColumnID
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if !ovr.CreatedAt.IsZero() {
			base.CreatedAt = ovr.CreatedAt
		}
	}
	return base
}

// NewAutomation creates an Automation instance with default fake data.
func NewAutomation(columnID string, threshold int, actions []AutomationAction) *Automation {
	raw, _ := json.Marshal(actions)
	return &Automation{
		ID:               gofakeit.UUID(),
		WorkspaceID:      "ws_" + gofakeit.LetterN(10),
		ColumnID:         columnID,
		TriggerType:      TriggerMessageReceived,
		MessageThreshold: threshold,
		Actions:          datatypes.JSON(raw),
		Active:           true,
		CreatedAt:        utils.Now(),
		UpdatedAt:        utils.Now(),
	}
}

// NewWebhookPayload creates an inbound message webhook payload for testing.
func NewWebhookPayload(overrideDefaults ...*WebhookPayload) *WebhookPayload {
	base := &WebhookPayload{
		Event:    "MESSAGES_UPSERT",
		Instance: "inst_" + gofakeit.LetterN(8),
		Data: WebhookData{
			Key: MessageKey{
				RemoteJid: gofakeit.Numerify("55###########") + "@s.whatsapp.net",
				FromMe:    false,
				ID:        gofakeit.LetterN(20),
			},
			Message: &WebhookMessage{
				Conversation: gofakeit.Sentence(5),
			},
			PushName:         gofakeit.Name(),
			MessageTimestamp: utils.Now().Unix(),
		},
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.Event != "" {
			base.Event = ovr.Event
		}
		if ovr.Instance != "" {
			base.Instance = ovr.Instance
		}
		if ovr.Data.Key.ID != "" {
			base.Data.Key.ID = ovr.Data.Key.ID
		}
		if ovr.Data.Key.RemoteJid != "" {
			base.Data.Key.RemoteJid = ovr.Data.Key.RemoteJid
		}
		base.Data.Key.FromMe = ovr.Data.Key.FromMe
		if ovr.Data.Message != nil {
			base.Data.Message = ovr.Data.Message
		}
		if ovr.Data.Ack != nil {
			base.Data.Ack = ovr.Data.Ack
			base.Data.Message = nil
		}
		if ovr.Data.Status != "" {
			base.Data.Status = ovr.Data.Status
			base.Data.Message = nil
		}
	}
	return base
}
