// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/api"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/logging"
	"github.com/chanon-dev/knowledge-ops-poc-ai/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyInput is returned when there is neither text nor an image.
	ErrEmptyInput = errors.New("message is empty")

	// ErrBusy is returned while another message is being answered.
	ErrBusy = errors.New("still waiting for the previous answer")

	// ErrNoDepartment is returned when no department is selected.
	ErrNoDepartment = errors.New("no department selected")
)

// errorPrefix starts the content of a synthesized failure message.
const errorPrefix = "Sorry, I encountered an error processing your request: "

// =============================================================================
// BACKEND
// =============================================================================

// Backend is the part of the API client the chat flow needs.
type Backend interface {
	Query(ctx context.Context, req model.QueryRequest) (*model.QueryResponse, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
}

// Attachment is an image picked alongside a message.
type Attachment struct {
	Name string
	Data []byte
}

// =============================================================================
// VIEW
// =============================================================================

// View is the state of one active conversation view. It is safe for
// concurrent use: the TUI reads it while a Resolve runs in a command.
type View struct {
	backend Backend
	logger  *zap.Logger
	newID   func() string
	now     func() time.Time

	onConversationCreated func(id string)

	mu             sync.Mutex
	departmentID   string
	conversationID string
	messages       []model.Message
	loading        bool
	epoch          uint64
}

// Option configures a View.
type Option func(*View)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *View) { v.logger = logging.OrNop(l).Named("chat") }
}

// WithConversationCreated registers the callback fired when the server
// assigns an id to a new conversation.
func WithConversationCreated(fn func(id string)) Option {
	return func(v *View) { v.onConversationCreated = fn }
}

// WithIDGenerator overrides local message id generation (tests).
func WithIDGenerator(fn func() string) Option {
	return func(v *View) { v.newID = fn }
}

// NewView creates an empty view bound to a department.
func NewView(backend Backend, departmentID string, opts ...Option) *View {
	v := &View{
		backend:      backend,
		logger:       logging.Nop(),
		newID:        uuid.NewString,
		now:          time.Now,
		departmentID: departmentID,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Messages returns a copy of the visible message sequence.
func (v *View) Messages() []model.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]model.Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// Message returns the message with the given id.
func (v *View) Message(id model.ID) (model.Message, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range v.messages {
		if m.ID == id {
			return m, true
		}
	}
	return model.Message{}, false
}

// Loading reports whether an answer is outstanding.
func (v *View) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

// ConversationID returns the server conversation id, or "" for a new chat.
func (v *View) ConversationID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conversationID
}

// DepartmentID returns the department questions are sent to.
func (v *View) DepartmentID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.departmentID
}

// SetStatus changes the status of a message and reports whether it exists.
// The approval flow calls it after the server confirms a decision.
func (v *View) SetStatus(id model.ID, status model.Status) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.messages {
		if v.messages[i].ID == id {
			v.messages[i].Status = status
			return true
		}
	}
	return false
}

// =============================================================================
// CONVERSATION SWITCHING
// =============================================================================

// NewChat clears the view for a fresh conversation.
func (v *View) NewChat() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resetLocked("")
}

// SetDepartment selects another department, which starts a new chat.
func (v *View) SetDepartment(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.departmentID = id
	v.resetLocked("")
}

// Open replaces the view with the history of conversation id. A failed load
// leaves the conversation empty; it never blocks the view.
func (v *View) Open(ctx context.Context, id string) {
	v.mu.Lock()
	v.resetLocked(id)
	epoch := v.epoch
	v.mu.Unlock()

	if id == "" {
		return
	}

	conv, err := v.backend.GetConversation(ctx, id)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.epoch != epoch {
		return
	}
	if err != nil {
		v.logger.Warn("failed to load conversation", zap.String("conversation_id", id), zap.Error(err))
		return
	}
	msgs := make([]model.Message, len(conv.Messages))
	copy(msgs, conv.Messages)
	v.messages = msgs
	if conv.DepartmentID != "" {
		v.departmentID = conv.DepartmentID.String()
	}
}

func (v *View) resetLocked(conversationID string) {
	v.epoch++
	v.conversationID = conversationID
	v.messages = nil
	v.loading = false
}

// =============================================================================
// SENDING
// =============================================================================

// Exchange is a submitted question waiting for its answer.
type Exchange struct {
	view    *View
	epoch   uint64
	req     model.QueryRequest
	image   *Attachment
	created bool
	done    bool

	// UserMessage is the optimistic message appended by Submit.
	UserMessage model.Message
}

// Outcome is the result of resolving an exchange.
type Outcome struct {
	// Message is the assistant or error message.
	Message model.Message
	// Err is the query error, if any. It is already rendered into Message.
	Err error
	// Stale is true when the view switched conversation before the answer
	// arrived; Message was then not appended.
	Stale bool
	// ConversationCreated is true when this exchange adopted a new id.
	ConversationCreated bool
}

// Submit validates input, appends the user message and marks the view as
// loading. It performs no I/O.
func (v *View) Submit(text string, image *Attachment) (*Exchange, error) {
	text = strings.TrimSpace(text)
	if text == "" && image == nil {
		return nil, ErrEmptyInput
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.loading {
		return nil, ErrBusy
	}
	if v.departmentID == "" {
		return nil, ErrNoDepartment
	}

	user := model.Message{
		ID:             model.ID(v.newID()),
		ConversationID: model.ID(v.conversationID),
		Role:           model.RoleUser,
		Content:        text,
		Status:         model.StatusCompleted,
		CreatedAt:      v.now(),
	}
	v.messages = append(v.messages, user)
	v.loading = true

	return &Exchange{
		view:  v,
		epoch: v.epoch,
		req: model.QueryRequest{
			Text:           text,
			DepartmentID:   v.departmentID,
			ConversationID: v.conversationID,
		},
		image:       image,
		UserMessage: user,
	}, nil
}

// Request returns the query that Resolve will send.
func (e *Exchange) Request() model.QueryRequest {
	return e.req
}

// Resolve sends the query and appends the answer, or a failure message.
// Loading is cleared on every path. Resolving twice is a no-op.
func (e *Exchange) Resolve(ctx context.Context) Outcome {
	v := e.view
	if e.done {
		return Outcome{Stale: true}
	}
	e.done = true
	defer v.finish(e.epoch)

	if e.image != nil {
		v.logger.Info("image attachment is not sent with the query", zap.String("name", e.image.Name))
	}

	resp, err := v.backend.Query(ctx, e.req)

	var out Outcome
	if err != nil {
		v.logger.Warn("query failed", zap.Error(err))
		out = Outcome{Message: v.errorMessage(e.req.ConversationID, err), Err: err}
	} else {
		out = Outcome{Message: v.answerMessage(e.req.ConversationID, resp)}
	}

	v.mu.Lock()
	if v.epoch != e.epoch {
		v.mu.Unlock()
		v.logger.Debug("discarding answer for a conversation that is no longer shown")
		out.Stale = true
		return out
	}
	if err == nil && v.conversationID == "" && resp.ConversationID != "" {
		v.conversationID = resp.ConversationID.String()
		out.ConversationCreated = true
	}
	v.messages = append(v.messages, out.Message)
	cb := v.onConversationCreated
	v.mu.Unlock()

	if out.ConversationCreated && cb != nil {
		cb(resp.ConversationID.String())
	}
	return out
}

func (v *View) finish(epoch uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	// A switch already reset loading for the new conversation.
	if v.epoch == epoch {
		v.loading = false
	}
}

func (v *View) answerMessage(conversationID string, resp *model.QueryResponse) model.Message {
	status := model.StatusCompleted
	if resp.NeedsApproval {
		status = model.StatusPendingApproval
	}
	id := resp.MessageID
	if id.IsZero() {
		id = model.ID(v.newID())
	}
	convID := resp.ConversationID
	if convID.IsZero() {
		convID = model.ID(conversationID)
	}
	return model.Message{
		ID:             id,
		ConversationID: convID,
		Role:           model.RoleAssistant,
		Content:        resp.Answer,
		Status:         status,
		Confidence:     resp.Confidence,
		Sources:        resp.Sources,
		ModelUsed:      resp.ModelUsed,
		LatencyMS:      resp.LatencyMS,
		ApprovalID:     resp.ApprovalID,
		CreatedAt:      v.now(),
	}
}

func (v *View) errorMessage(conversationID string, err error) model.Message {
	return model.Message{
		ID:             model.ID(v.newID()),
		ConversationID: model.ID(conversationID),
		Role:           model.RoleAssistant,
		Content:        fmt.Sprintf("%s%s", errorPrefix, api.ErrorDetail(err)),
		Status:         model.StatusError,
		CreatedAt:      v.now(),
	}
}

// SendMessage runs both phases back to back.
func (v *View) SendMessage(ctx context.Context, text string, image *Attachment) (Outcome, error) {
	ex, err := v.Submit(text, image)
	if err != nil {
		return Outcome{}, err
	}
	return ex.Resolve(ctx), nil
}
