package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/cloo-solutions/strom/internal/domain"
	"github.com/cloo-solutions/strom/internal/logger"
	"github.com/cloo-solutions/strom/internal/telemetry"
)

// ConversationRepository persists users and their message history.
type ConversationRepository interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
	CountUserMessages(ctx context.Context, userID string) (int, error)
	StoreMessage(ctx context.Context, msg *domain.Message) error
}

// Retriever assembles context for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts RetrieveOptions) *domain.AssembledContext
}

// AnswerGenerator produces a structured answer from context.
type AnswerGenerator interface {
	Generate(ctx context.Context, query string, ac *domain.AssembledContext, params GenerationParams) domain.StructuredAnswer
}

// ConversationConfig limits and tunes conversations.
type ConversationConfig struct {
	FreeMessageLimit int
	MaxMessageChars  int
	Retrieval        RetrieveOptions
	Generation       GenerationParams
}

// ConversationInput is one user turn. UserID is optional; anonymous turns
// are neither gated nor recorded.
type ConversationInput struct {
	UserID  string
	Email   string
	Name    string
	Message string
}

// ConversationResult is the answer to one turn.
type ConversationResult struct {
	Answer    domain.StructuredAnswer
	MessageID string
}

// ConversationService answers questions against the ingested projects.
type ConversationService struct {
	repo      ConversationRepository
	retriever Retriever
	generator AnswerGenerator
	cfg       ConversationConfig
	log       *logger.Logger
	now       func() time.Time
}

func NewConversationService(
	repo ConversationRepository,
	retriever Retriever,
	generator AnswerGenerator,
	cfg ConversationConfig,
	log *logger.Logger,
) *ConversationService {
	if log == nil {
		log = logger.Nop()
	}
	return &ConversationService{
		repo:      repo,
		retriever: retriever,
		generator: generator,
		cfg:       cfg,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Converse answers one message. Only validation, unknown users and the free
// message limit surface as errors; retrieval and generation degrade instead.
func (s *ConversationService) Converse(ctx context.Context, in ConversationInput) (*ConversationResult, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, domain.ErrEmptyMessage
	}
	if s.cfg.MaxMessageChars > 0 && utf8.RuneCountInString(message) > s.cfg.MaxMessageChars {
		return nil, domain.ErrMessageTooLong
	}

	userID := strings.TrimSpace(in.UserID)
	ctx, span := telemetry.StartSpan(ctx, "ConversationService.Converse", telemetry.SpanAttributes{
		UserID:    userID,
		Operation: "converse",
	})
	defer span.End()

	if userID != "" {
		if err := s.checkAllowance(ctx, userID, in); err != nil {
			if domain.Code(err) == domain.ErrCodeInternalError {
				span.SetError(err)
				telemetry.CaptureError(ctx, err)
			}
			return nil, err
		}
	}

	ac := s.retriever.Retrieve(ctx, message, s.cfg.Retrieval)
	answer := s.generator.Generate(ctx, message, ac, s.cfg.Generation)
	answer.Sources = Restrict(answer, ac.AvailableSources)

	result := &ConversationResult{Answer: answer}
	if userID != "" {
		result.MessageID = s.record(ctx, userID, message, answer)
	}
	return result, nil
}

func (s *ConversationService) checkAllowance(ctx context.Context, userID string, in ConversationInput) error {
	user, err := s.ensureUser(ctx, userID, in)
	if err != nil {
		return err
	}
	if user.Paid || s.cfg.FreeMessageLimit <= 0 {
		return nil
	}

	count, err := s.repo.CountUserMessages(ctx, userID)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to count messages", err)
	}
	if count >= s.cfg.FreeMessageLimit {
		s.log.Info("free message limit reached", "user_id", userID, "count", count)
		return domain.ErrMessageLimitReached
	}
	return nil
}

func (s *ConversationService) ensureUser(ctx context.Context, userID string, in ConversationInput) (*domain.User, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to load user", err)
	}

	email := strings.TrimSpace(in.Email)
	if email == "" {
		return nil, domain.ErrUserNotFound
	}
	user = domain.NewUser(userID, email, strings.TrimSpace(in.Name), s.now())
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUserAlreadyExists) {
			return s.repo.GetUser(ctx, userID)
		}
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to create user", err)
	}
	s.log.Info("user created", "user_id", userID)
	return user, nil
}

func (s *ConversationService) record(ctx context.Context, userID, message string, answer domain.StructuredAnswer) string {
	body, err := json.Marshal(answer)
	if err != nil {
		s.log.Warn("failed to encode answer", "user_id", userID, "error", err)
		return ""
	}
	msg := &domain.Message{
		ID:           uuid.New().String(),
		UserID:       userID,
		UserMessage:  message,
		AgentMessage: string(body),
		CreatedAt:    s.now(),
	}
	if err := s.repo.StoreMessage(ctx, msg); err != nil {
		s.log.Warn("failed to store message", "user_id", userID, "error", fmt.Errorf("store message: %w", err))
		return ""
	}
	return msg.ID
}
