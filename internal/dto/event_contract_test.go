package dto_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-messenger/internal/dto"
	"github.com/noah-isme/gema-messenger/internal/models"
)

var contractTime = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func compileSchema(t *testing.T, path string) *jsonschema.Schema {
	t.Helper()
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	compiler.AssertFormat = true
	schema, err := compiler.Compile(path)
	require.NoError(t, err)
	return schema
}

func asJSONValue(t *testing.T, v interface{}) interface{} {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var decoded interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return decoded
}

func sampleMessage() models.Message {
	return models.Message{
		ID:             7,
		ConversationID: 3,
		SenderID:       "alice",
		Kind:           models.MessageText,
		Content:        "see https://example.com",
		CreatedAt:      contractTime,
		LinkPreviews:   datatypes.JSON(`[{"url":"https://example.com","title":"Example"}]`),
		Attachments: []models.MessageAttachment{
			{ID: 1, MessageID: 7, FileName: "notes.pdf", ContentType: "application/pdf", SizeBytes: 2048},
		},
	}
}

func TestNewMessageEventMatchesContract(t *testing.T) {
	schema := compileSchema(t, "testdata/event.schema.json")

	message := dto.NewMessageResponse(sampleMessage())
	require.Len(t, message.LinkPreviews, 1)
	event := dto.NewConversationEvent(dto.EventNewMessage, 3, "alice", dto.NewMessagePayload{Message: message}, contractTime)

	require.NoError(t, schema.Validate(asJSONValue(t, event)))
}

func TestDeletedMessageMustNotCarryContent(t *testing.T) {
	schema := compileSchema(t, "testdata/message.schema.json")

	deletedAt := contractTime.Add(time.Minute)
	message := sampleMessage()
	message.DeletedAt = &deletedAt
	message.Content = ""
	response := dto.NewMessageResponse(message)
	require.Empty(t, response.Attachments)
	require.NoError(t, schema.Validate(asJSONValue(t, response)))

	response.Content = "leaked"
	require.Error(t, schema.Validate(asJSONValue(t, response)))
}

func TestPollEventsMatchContract(t *testing.T) {
	schema := compileSchema(t, "testdata/event.schema.json")

	poll := models.Poll{
		ID:             4,
		ConversationID: 3,
		MessageID:      9,
		CreatorID:      "alice",
		Question:       "Lunch?",
		CreatedAt:      contractTime,
		Options: []models.PollOption{
			{ID: 1, PollID: 4, Text: "Pizza", Position: 0},
			{ID: 2, PollID: 4, Text: "Sushi", Position: 1},
		},
	}
	votes := []models.PollVote{{PollID: 4, UserID: "bob", OptionID: 2}}
	event := dto.NewConversationEvent(dto.EventPollUpdated, 3, "bob", dto.PollPayload{Poll: dto.NewPollResponse(poll, votes)}, contractTime)

	require.NoError(t, schema.Validate(asJSONValue(t, event)))

	broken := asJSONValue(t, event).(map[string]interface{})
	delete(broken["payload"].(map[string]interface{})["poll"].(map[string]interface{}), "options")
	require.Error(t, schema.Validate(broken))
}

func TestEventEnvelopeRejectsUnknownType(t *testing.T) {
	schema := compileSchema(t, "testdata/event.schema.json")

	event := dto.NewConversationEvent("messageExploded", 3, "alice", dto.MessageDeletedPayload{ID: 1}, contractTime)
	require.Error(t, schema.Validate(asJSONValue(t, event)))

	reaction := dto.NewConversationEvent(dto.EventReactionUpdated, 3, "bob", dto.ReactionUpdatedPayload{
		MessageID:        1,
		ReactionsByEmoji: map[string][]string{"👍": {"bob"}},
	}, contractTime)
	require.NoError(t, schema.Validate(asJSONValue(t, reaction)))
}

func TestCommandResultMatchesContract(t *testing.T) {
	schema := compileSchema(t, "testdata/result.schema.json")

	ok := dto.CommandResult{Type: dto.ResultFrameType, RequestID: "r1", OK: true, Data: dto.JoinResult{ConversationID: 3, Typing: []string{}}}
	require.NoError(t, schema.Validate(asJSONValue(t, ok)))

	rejected := dto.CommandResult{Type: dto.ResultFrameType, RequestID: "r2", Code: "notMember", Error: "user is not a member of this conversation"}
	require.NoError(t, schema.Validate(asJSONValue(t, rejected)))

	rejected.Code = ""
	require.Error(t, schema.Validate(asJSONValue(t, rejected)))
}
