package usecase

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"unifydata-backend/internal/chat/domain"
	"unifydata-backend/internal/chat/repository"
	searchusecase "unifydata-backend/internal/search/usecase"
	"unifydata-backend/pkg/ai"
	"unifydata-backend/pkg/logger"
	"unifydata-backend/pkg/pipelineerr"
	"unifydata-backend/pkg/tokenizer"
)

const (
	// historyWindow bounds how many prior messages accompany a question.
	historyWindow = 10

	// contextLimit and contextMinScore shape retrieval for answering.
	contextLimit    = 5
	contextMinScore = 0.3

	// promptOverhead reserves tokens for the system prompt scaffolding
	// around the context documents.
	promptOverhead = 600

	// minContextTokens is the smallest excerpt worth sending; anything
	// shorter is dropped instead of truncated.
	minContextTokens = 50
)

const noContextAnswer = "I couldn't find any relevant information in your connected data sources to answer that question. " +
	"Try rephrasing, or connect more data sources so I have more to work with."

// Retriever finds context documents for a question.
type Retriever interface {
	Search(ctx context.Context, req searchusecase.Request) ([]searchusecase.Result, error)
}

// Generator produces the grounded answer.
type Generator interface {
	Ask(ctx context.Context, question string, contextDocs []ai.ContextDocument, history []ai.Message) (*ai.Answer, error)
	Model() string
}

// Reply is the outcome of one question.
type Reply struct {
	Message *domain.Message        `json:"message"`
	Sources []searchusecase.Result `json:"sources"`

	// NoContext marks answers produced without any retrieved documents.
	NoContext bool `json:"no_context"`
}

type ChatUsecase interface {
	CreateConversation(ctx context.Context, orgID, userID, title string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, orgID, userID string) ([]*domain.Conversation, error)
	ListMessages(ctx context.Context, orgID, conversationID string) ([]*domain.Message, error)
	Ask(ctx context.Context, orgID, userID, conversationID, question string) (*Reply, error)
}

type chatUsecase struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	retriever     Retriever
	generator     Generator
	inputBudget   int
	log           *logrus.Entry
}

func NewChatUsecase(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	retriever Retriever,
	generator Generator,
) ChatUsecase {
	return &chatUsecase{
		conversations: conversations,
		messages:      messages,
		retriever:     retriever,
		generator:     generator,
		inputBudget:   ai.InputBudget(generator.Model()),
		log:           logger.For("chat"),
	}
}

func (u *chatUsecase) CreateConversation(_ context.Context, orgID, userID, title string) (*domain.Conversation, error) {
	conv := &domain.Conversation{
		OrgID:  orgID,
		UserID: userID,
		Title:  title,
	}
	if err := u.conversations.Create(conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (u *chatUsecase) ListConversations(_ context.Context, orgID, userID string) ([]*domain.Conversation, error) {
	return u.conversations.FindByUser(orgID, userID)
}

func (u *chatUsecase) ListMessages(_ context.Context, orgID, conversationID string) ([]*domain.Message, error) {
	conv, err := u.ownedConversation(orgID, conversationID)
	if err != nil {
		return nil, err
	}
	return u.messages.FindByConversation(conv.ID)
}

// Ask retrieves context for the question, assembles history and context
// within the model's input budget, and persists both sides of the exchange.
// When nothing relevant is retrieved, the model is not called at all.
func (u *chatUsecase) Ask(ctx context.Context, orgID, userID, conversationID, question string) (*Reply, error) {
	conv, err := u.ownedConversation(orgID, conversationID)
	if err != nil {
		return nil, err
	}

	history, err := u.messages.FindRecent(conv.ID, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	userMsg := &domain.Message{
		ConversationID: conv.ID,
		OrgID:          orgID,
		Role:           domain.RoleUser,
		Content:        question,
	}
	if err := u.messages.Create(userMsg); err != nil {
		return nil, fmt.Errorf("persist question: %w", err)
	}

	sources, err := u.retriever.Search(ctx, searchusecase.Request{
		OrgID:    orgID,
		Query:    question,
		Limit:    contextLimit,
		MinScore: contextMinScore,
	})
	if err != nil {
		return nil, err
	}

	var reply *Reply
	if len(sources) == 0 {
		reply, err = u.answerWithoutContext(conv)
	} else {
		reply, err = u.answerWithContext(ctx, conv, question, sources, history)
	}
	if err != nil {
		return nil, err
	}

	u.touchConversation(conv, question)
	return reply, nil
}

// answerWithoutContext records the explicit no-context reply. No model call,
// no cost.
func (u *chatUsecase) answerWithoutContext(conv *domain.Conversation) (*Reply, error) {
	msg := &domain.Message{
		ConversationID: conv.ID,
		OrgID:          conv.OrgID,
		Role:           domain.RoleAssistant,
		Content:        noContextAnswer,
	}
	if err := u.messages.Create(msg); err != nil {
		return nil, fmt.Errorf("persist answer: %w", err)
	}
	u.log.WithError(pipelineerr.ErrNoContext).WithField("conversation_id", conv.ID).
		Info("answered without context")
	return &Reply{Message: msg, NoContext: true}, nil
}

func (u *chatUsecase) answerWithContext(
	ctx context.Context,
	conv *domain.Conversation,
	question string,
	sources []searchusecase.Result,
	history []*domain.Message,
) (*Reply, error) {
	turns := make([]ai.Message, 0, len(history))
	for _, m := range history {
		turns = append(turns, ai.Message{Role: string(m.Role), Content: m.Content})
	}

	contextDocs := u.fitContext(question, sources, turns)

	answer, err := u.generator.Ask(ctx, question, contextDocs, turns)
	if err != nil {
		return nil, err
	}

	docIDs := make([]string, 0, len(contextDocs))
	for i := range contextDocs {
		docIDs = append(docIDs, sources[i].DocumentID)
	}

	msg := &domain.Message{
		ConversationID:    conv.ID,
		OrgID:             conv.OrgID,
		Role:              domain.RoleAssistant,
		Content:           answer.Text,
		SourceDocumentIDs: docIDs,
		Model:             answer.Model,
		InputTokens:       answer.InputTokens,
		OutputTokens:      answer.OutputTokens,
		CostUSD:           answer.CostUSD,
		ResponseTimeMs:    answer.ResponseTime.Milliseconds(),
	}
	if err := u.messages.Create(msg); err != nil {
		return nil, fmt.Errorf("persist answer: %w", err)
	}
	return &Reply{Message: msg, Sources: sources[:len(contextDocs)]}, nil
}

// fitContext converts retrieval results into prompt documents within the
// model's input budget. Sources arrive ranked; when the budget runs out the
// least relevant are truncated first, then dropped entirely.
func (u *chatUsecase) fitContext(question string, sources []searchusecase.Result, history []ai.Message) []ai.ContextDocument {
	budget := u.inputBudget - promptOverhead - tokenizer.Count(question)
	for _, turn := range history {
		budget -= tokenizer.Count(turn.Content)
	}

	docs := make([]ai.ContextDocument, 0, len(sources))
	for _, src := range sources {
		if budget <= minContextTokens {
			break
		}
		content := src.Content
		if need := tokenizer.Count(content); need > budget {
			content = tokenizer.Truncate(content, budget)
			u.log.WithField("document_id", src.DocumentID).
				Debug("context document truncated to fit input budget")
		}
		budget -= tokenizer.Count(content)
		docs = append(docs, ai.ContextDocument{
			Title:      src.Title,
			SourceType: src.SourceType,
			Content:    content,
			URL:        src.URL,
		})
	}
	return docs
}

func (u *chatUsecase) touchConversation(conv *domain.Conversation, question string) {
	if conv.Title == "" {
		conv.Title = domain.TitleFromQuestion(question)
	}
	if err := u.conversations.Update(conv); err != nil {
		u.log.WithError(err).WithField("conversation_id", conv.ID).
			Warn("failed to update conversation")
	}
}

func (u *chatUsecase) ownedConversation(orgID, conversationID string) (*domain.Conversation, error) {
	conv, err := u.conversations.FindByID(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil || conv.OrgID != orgID {
		return nil, fmt.Errorf("%w: conversation %s not found", pipelineerr.ErrAuthentication, conversationID)
	}
	return conv, nil
}
