package dto

import (
	"math"
	"sort"
	"time"

	"github.com/noah-isme/gema-messenger/internal/models"
)

// CreatePollRequest creates a poll message in a conversation.
type CreatePollRequest struct {
	Question      string   `json:"question" validate:"required,max=500"`
	Options       []string `json:"options" validate:"required,min=2,max=10,dive,required,max=200"`
	AllowMultiple bool     `json:"allow_multiple"`
	Anonymous     bool     `json:"anonymous"`
}

// VoteRequest toggles a vote for an option.
type VoteRequest struct {
	OptionID uint `json:"option_id" validate:"required"`
}

// PollOptionResponse is an option with its tally.
type PollOptionResponse struct {
	ID         uint     `json:"id"`
	Text       string   `json:"text"`
	VoteCount  int      `json:"vote_count"`
	Percentage float64  `json:"percentage"`
	Voters     []string `json:"voters,omitempty"`
}

// PollResponse is a poll with per-option tallies.
type PollResponse struct {
	ID             uint                 `json:"id"`
	ConversationID uint                 `json:"conversation_id"`
	MessageID      uint                 `json:"message_id"`
	CreatorID      string               `json:"creator_id"`
	Question       string               `json:"question"`
	AllowMultiple  bool                 `json:"allow_multiple"`
	Anonymous      bool                 `json:"anonymous"`
	Closed         bool                 `json:"closed"`
	ClosedAt       *time.Time           `json:"closed_at,omitempty"`
	TotalVotes     int                  `json:"total_votes"`
	Options        []PollOptionResponse `json:"options"`
}

// NewPollResponse tallies votes per option. Voter ids are omitted for anonymous polls.
// Percentages are relative to the total number of votes, rounded to one decimal.
func NewPollResponse(poll models.Poll, votes []models.PollVote) PollResponse {
	counts := make(map[uint]int, len(poll.Options))
	voters := make(map[uint][]string, len(poll.Options))
	for _, vote := range votes {
		counts[vote.OptionID]++
		voters[vote.OptionID] = append(voters[vote.OptionID], vote.UserID)
	}

	options := append([]models.PollOption(nil), poll.Options...)
	sort.SliceStable(options, func(i, j int) bool { return options[i].Position < options[j].Position })

	response := PollResponse{
		ID:             poll.ID,
		ConversationID: poll.ConversationID,
		MessageID:      poll.MessageID,
		CreatorID:      poll.CreatorID,
		Question:       poll.Question,
		AllowMultiple:  poll.AllowMultiple,
		Anonymous:      poll.Anonymous,
		Closed:         poll.IsClosed(),
		ClosedAt:       poll.ClosedAt,
		TotalVotes:     len(votes),
		Options:        make([]PollOptionResponse, 0, len(options)),
	}

	for _, option := range options {
		item := PollOptionResponse{ID: option.ID, Text: option.Text, VoteCount: counts[option.ID]}
		if len(votes) > 0 {
			item.Percentage = math.Round(float64(item.VoteCount)/float64(len(votes))*1000) / 10
		}
		if !poll.Anonymous {
			item.Voters = voters[option.ID]
			sort.Strings(item.Voters)
		}
		response.Options = append(response.Options, item)
	}

	return response
}
