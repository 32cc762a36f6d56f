package handler_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-messenger/internal/dto"
)

func TestScheduledLifecycleWithOperatorDispatch(t *testing.T) {
	env := setupAPI(t)
	groupID := env.createGroup(t, "alice", "bob")

	status, resp := env.do(t, "alice", http.MethodPost, "/api/v1/scheduled", dto.ScheduleMessageRequest{
		ConversationID: groupID,
		Content:        "standup in 5",
		ScheduledFor:   apiStart.Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var item dto.ScheduledMessageResponse
	decodeData(t, resp, &item)
	require.Equal(t, "pending", item.Status)

	status, resp = env.doAs(t, "alice", "", http.MethodPost, "/api/v1/ops/scheduled/dispatch", nil)
	require.Equal(t, http.StatusForbidden, status)
	require.False(t, resp.Success)

	env.clock.Advance(time.Hour)
	status, resp = env.doAs(t, "ops", "operator", http.MethodPost, "/api/v1/ops/scheduled/dispatch", nil)
	require.Equal(t, http.StatusOK, status, resp.Message)
	var report struct {
		Sent   int `json:"sent"`
		Failed int `json:"failed"`
	}
	decodeData(t, resp, &report)
	require.Equal(t, 1, report.Sent)
	require.Zero(t, report.Failed)

	status, resp = env.do(t, "alice", http.MethodGet, "/api/v1/scheduled", nil)
	require.Equal(t, http.StatusOK, status)
	var items []dto.ScheduledMessageResponse
	decodeData(t, resp, &items)
	require.Len(t, items, 1)
	require.Equal(t, "sent", items[0].Status)
	require.NotNil(t, items[0].MessageID)

	_, resp = env.do(t, "alice", http.MethodGet, "/api/v1/scheduled?pending=true", nil)
	decodeData(t, resp, &items)
	require.Empty(t, items)

	status, resp = env.do(t, "alice", http.MethodDelete, fmt.Sprintf("/api/v1/scheduled/%d", item.ID), nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "scheduledTerminal", resp.Code)

	_, resp = env.do(t, "bob", http.MethodGet, fmt.Sprintf("/api/v1/conversations/%d/messages", groupID), nil)
	var messages []dto.MessageResponse
	decodeData(t, resp, &messages)
	require.Len(t, messages, 1)
	require.Equal(t, "standup in 5", messages[0].Content)
}

func TestScheduledCancelRules(t *testing.T) {
	env := setupAPI(t)
	groupID := env.createGroup(t, "alice", "bob")

	_, resp := env.do(t, "alice", http.MethodPost, "/api/v1/scheduled", dto.ScheduleMessageRequest{
		ConversationID: groupID,
		Content:        "later",
		ScheduledFor:   apiStart.Add(time.Hour),
	})
	var item dto.ScheduledMessageResponse
	decodeData(t, resp, &item)
	path := fmt.Sprintf("/api/v1/scheduled/%d", item.ID)

	status, resp := env.do(t, "bob", http.MethodDelete, path, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "notOwner", resp.Code)

	status, resp = env.do(t, "alice", http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, status)
	decodeData(t, resp, &item)
	require.Equal(t, "cancelled", item.Status)

	status, resp = env.do(t, "alice", http.MethodPost, "/api/v1/scheduled", dto.ScheduleMessageRequest{
		ConversationID: groupID,
		Content:        "too late",
		ScheduledFor:   apiStart.Add(-time.Minute),
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid", resp.Code)
}
