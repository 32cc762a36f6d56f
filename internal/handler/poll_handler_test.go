package handler_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-messenger/internal/dto"
)

func TestPollCreateVoteAndClose(t *testing.T) {
	env := setupAPI(t)
	groupID := env.createGroup(t, "alice", "bob")

	status, resp := env.do(t, "alice", http.MethodPost, fmt.Sprintf("/api/v1/conversations/%d/polls", groupID), dto.CreatePollRequest{
		Question: "Lunch?",
		Options:  []string{"Pizza", "Sushi"},
	})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var poll dto.PollResponse
	decodeData(t, resp, &poll)
	require.Len(t, poll.Options, 2)
	path := fmt.Sprintf("/api/v1/polls/%d", poll.ID)

	status, resp = env.do(t, "bob", http.MethodPost, path+"/votes", dto.VoteRequest{OptionID: poll.Options[1].ID})
	require.Equal(t, http.StatusOK, status)
	decodeData(t, resp, &poll)
	require.Equal(t, 1, poll.TotalVotes)
	require.Equal(t, 1, poll.Options[1].VoteCount)
	require.Equal(t, []string{"bob"}, poll.Options[1].Voters)

	status, resp = env.do(t, "bob", http.MethodPost, path+"/close", nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "notOwner", resp.Code)

	status, resp = env.do(t, "alice", http.MethodPost, path+"/close", nil)
	require.Equal(t, http.StatusOK, status)
	decodeData(t, resp, &poll)
	require.True(t, poll.Closed)

	status, resp = env.do(t, "bob", http.MethodPost, path+"/votes", dto.VoteRequest{OptionID: poll.Options[0].ID})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "pollClosed", resp.Code)

	status, resp = env.do(t, "carol", http.MethodGet, path, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "notMember", resp.Code)

	status, resp = env.do(t, "alice", http.MethodGet, "/api/v1/polls/404", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "pollNotFound", resp.Code)
}

func TestPollCreateRejectsSingleOption(t *testing.T) {
	env := setupAPI(t)
	groupID := env.createGroup(t, "alice")

	status, resp := env.do(t, "alice", http.MethodPost, fmt.Sprintf("/api/v1/conversations/%d/polls", groupID), dto.CreatePollRequest{
		Question: "Only one?",
		Options:  []string{"Yes"},
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid", resp.Code)
}
