package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-messenger/internal/clock"
	"github.com/noah-isme/gema-messenger/internal/config"
	"github.com/noah-isme/gema-messenger/internal/handler"
	"github.com/noah-isme/gema-messenger/internal/middleware"
	"github.com/noah-isme/gema-messenger/internal/models"
	"github.com/noah-isme/gema-messenger/internal/policy"
	"github.com/noah-isme/gema-messenger/internal/realtime"
	"github.com/noah-isme/gema-messenger/internal/repository"
	"github.com/noah-isme/gema-messenger/internal/router"
	"github.com/noah-isme/gema-messenger/internal/sanitize"
	"github.com/noah-isme/gema-messenger/internal/service"
)

const testSecret = "handler-test-secret"

var apiStart = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

type apiEnv struct {
	app       *fiber.App
	db        *gorm.DB
	clock     *clock.FakeClock
	bus       *realtime.Bus
	messaging service.MessagingService
}

func setupAPI(t *testing.T) *apiEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:api_%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())
	fake := clock.Fake(apiStart)
	bus := realtime.NewBus(logger)

	conversations := repository.NewConversationRepository(db)
	messages := repository.NewMessageRepository(db)
	scheduledRepo := repository.NewScheduledMessageRepository(db)
	engine := repository.NewToggleEngine(db, repository.DefaultPinLimit, fake.Now)
	authorizer := policy.NewAuthorizer(policy.DefaultEditWindow)

	messaging := service.NewMessagingService(conversations, messages, bus, authorizer, sanitize.NewAttachmentValidator(sanitize.DefaultMaxAttachmentMB), validate, fake, logger)
	interactions := service.NewInteractionService(conversations, messages, repository.NewInteractionRepository(db), engine, bus, authorizer, fake, logger)
	polls := service.NewPollService(conversations, repository.NewPollRepository(db), engine, bus, validate, fake, logger)
	scheduled := service.NewScheduledService(conversations, scheduledRepo, validate, fake, logger)
	presence := realtime.NewPresenceTracker(bus, fake, nil, logger)
	typing := realtime.NewTypingCoordinator(bus, fake, realtime.DefaultTypingTTL)
	realtimeService := service.NewRealtimeService(bus, presence, typing, conversations, messaging, interactions, polls, validate, logger)
	dispatcher := service.NewScheduledDispatcher(scheduledRepo, messaging, fake, time.Minute, logger)

	cfg := config.Config{AppName: "messenger-test", AppEnv: "test", JWTSecret: testSecret, MessagesPerSecond: 1000}
	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		DB:                  db,
		ConversationHandler: handler.NewConversationHandler(messaging, interactions, polls, logger),
		MessageHandler:      handler.NewMessageHandler(messaging, interactions, logger),
		PollHandler:         handler.NewPollHandler(polls, logger),
		ScheduledHandler:    handler.NewScheduledHandler(scheduled, dispatcher, logger),
		RealtimeHandler:     handler.NewRealtimeHandler(realtimeService, logger),
	})

	return &apiEnv{app: app, db: db, clock: fake, bus: bus, messaging: messaging}
}

func signToken(t *testing.T, userID, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":      userID,
		"username": strings.ToUpper(userID[:1]) + userID[1:],
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

type apiResponse struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
}

func (e *apiEnv) do(t *testing.T, user, method, path string, body interface{}) (int, apiResponse) {
	t.Helper()
	return e.doAs(t, user, "", method, path, body)
}

func (e *apiEnv) doAs(t *testing.T, user, role, method, path string, body interface{}) (int, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, user, role))
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func decodeData(t *testing.T, payload apiResponse, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(payload.Data, target))
}

func (e *apiEnv) createGroup(t *testing.T, owner string, members ...string) uint {
	t.Helper()
	status, resp := e.do(t, owner, http.MethodPost, "/api/v1/conversations/groups", map[string]interface{}{
		"name":       "team",
		"member_ids": members,
	})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var conversation struct {
		ID uint `json:"id"`
	}
	decodeData(t, resp, &conversation)
	return conversation.ID
}

func (e *apiEnv) sendMessage(t *testing.T, sender string, conversationID uint, content string) uint {
	t.Helper()
	status, resp := e.do(t, sender, http.MethodPost, fmt.Sprintf("/api/v1/conversations/%d/messages", conversationID), map[string]string{"content": content})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var message struct {
		ID uint `json:"id"`
	}
	decodeData(t, resp, &message)
	return message.ID
}

func jsonUnmarshal(raw json.RawMessage, target interface{}) error {
	return json.Unmarshal(raw, target)
}
