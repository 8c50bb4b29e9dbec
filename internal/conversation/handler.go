package conversation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/api/schemas"
	"github.com/xkilldash9x/formrelay/internal/extractor"
	"github.com/xkilldash9x/formrelay/internal/service"
	"github.com/xkilldash9x/formrelay/internal/weights"
)

// Commands understood by the handler.
const (
	CmdStart  = "/start"
	CmdWeight = "/weight"
	CmdRun    = "/run"
)

// FormService is the part of service.FormService the dialogue drives.
type FormService interface {
	Extract(ctx context.Context, ownerID, link string) (*schemas.Form, *extractor.Report, error)
	Describe(ctx context.Context, ownerID string) (*schemas.Form, error)
	SetWeights(ctx context.Context, ownerID string, questionIndex int, w []int) (*schemas.Form, error)
	ValidateRepetitions(n int) error
	Fill(ctx context.Context, ownerID string, repetitions int) (*service.FillReport, error)
}

var _ FormService = (*service.FormService)(nil)

// Notifier delivers a reply to a requester.
type Notifier interface {
	Notify(ctx context.Context, requesterID, text string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, requesterID, text string) error

func (f NotifierFunc) Notify(ctx context.Context, requesterID, text string) error {
	return f(ctx, requesterID, text)
}

// Handler runs one dialogue per requester. The requester id doubles as the owner id of the
// stored form schema. Messages of one requester are handled one at a time.
type Handler struct {
	forms       FormService
	states      StateStore
	notifier    Notifier
	linkPattern *regexp.Regexp
	logger      *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// jobsCtx outlives the request that started a fill; Stop cancels it.
	jobsCtx    context.Context
	cancelJobs context.CancelFunc
	jobs       sync.WaitGroup
}

// NewHandler creates a Handler. linkPattern recognizes form links inside free text.
func NewHandler(forms FormService, states StateStore, notifier Notifier, linkPattern string, logger *zap.Logger) (*Handler, error) {
	re, err := regexp.Compile(linkPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid form link pattern: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Handler{
		forms:       forms,
		states:      states,
		notifier:    notifier,
		linkPattern: re,
		logger:      logger.Named("conversation"),
		locks:       make(map[string]*sync.Mutex),
		jobsCtx:     ctx,
		cancelJobs:  cancel,
	}, nil
}

// Handle processes one message from requesterID. Replies are sent through the Notifier; the
// returned error only reports state store or notifier failures.
func (h *Handler) Handle(ctx context.Context, requesterID, text string) error {
	unlock := h.lockRequester(requesterID)
	defer unlock()

	text = strings.TrimSpace(text)
	session, err := h.states.Get(ctx, requesterID)
	if err != nil {
		return fmt.Errorf("failed to load dialogue state: %w", err)
	}
	log := h.logger.With(zap.String("requester_id", requesterID), zap.String("state", string(session.State)))
	log.Debug("Handling message.")

	if session.State == StateRunning {
		return h.reply(ctx, requesterID, msgBusy)
	}

	switch {
	case text == CmdStart:
		return h.transition(ctx, requesterID, Session{State: StateIdle}, msgGreeting)
	case h.linkPattern.MatchString(text):
		return h.handleLink(ctx, requesterID, h.linkPattern.FindString(text))
	case text == CmdWeight:
		return h.handleWeight(ctx, requesterID)
	case text == CmdRun:
		return h.handleRun(ctx, requesterID)
	}

	switch session.State {
	case StateAwaitingQuestion:
		return h.handleQuestionNumber(ctx, requesterID, text)
	case StateAwaitingWeights:
		return h.handleWeights(ctx, requesterID, session, text)
	case StateAwaitingRepetitions:
		return h.handleRepetitions(ctx, requesterID, text)
	}
	return h.reply(ctx, requesterID, msgUnknown)
}

func (h *Handler) handleLink(ctx context.Context, requesterID, link string) error {
	if err := h.transition(ctx, requesterID, Session{State: StateIdle}, msgReading); err != nil {
		return err
	}

	form, report, err := h.forms.Extract(ctx, requesterID, link)
	if err != nil {
		h.logger.Warn("Form extraction failed.", zap.String("requester_id", requesterID), zap.String("link", link), zap.Error(err))
		return h.reply(ctx, requesterID, failureMessage(err))
	}
	if report != nil && len(report.Skipped) > 0 {
		h.logger.Info("Some question blocks were skipped.", zap.String("requester_id", requesterID), zap.Int("skipped", len(report.Skipped)))
	}
	return h.reply(ctx, requesterID, msgFormReceived, describeForm(form), msgNextSteps)
}

func (h *Handler) handleWeight(ctx context.Context, requesterID string) error {
	form, err := h.forms.Describe(ctx, requesterID)
	if err != nil {
		return h.reply(ctx, requesterID, failureMessage(err))
	}
	if len(form.Questions) == 0 {
		return h.reply(ctx, requesterID, msgNoQuestions)
	}
	return h.transition(ctx, requesterID, Session{State: StateAwaitingQuestion}, listQuestions(form))
}

func (h *Handler) handleQuestionNumber(ctx context.Context, requesterID, text string) error {
	idx, err := weights.ParseQuestionNumber(text)
	if err != nil {
		return h.reply(ctx, requesterID, failureMessage(err))
	}
	form, err := h.forms.Describe(ctx, requesterID)
	if err != nil {
		return h.reply(ctx, requesterID, failureMessage(err))
	}
	if idx >= len(form.Questions) {
		return h.reply(ctx, requesterID,
			fmt.Sprintf("There is no question %d; the form has %d. Try again.", idx+1, len(form.Questions)))
	}
	return h.transition(ctx, requesterID, Session{State: StateAwaitingWeights, QuestionIndex: idx}, msgAskWeights)
}

// handleWeights keeps the requester in StateAwaitingWeights after a rejected list so they can
// correct it.
func (h *Handler) handleWeights(ctx context.Context, requesterID string, session Session, text string) error {
	w, err := weights.ParseWeights(text)
	if err == nil {
		_, err = h.forms.SetWeights(ctx, requesterID, session.QuestionIndex, w)
	}
	if err != nil {
		if service.Classify(err) == service.FailureInvalidInput {
			return h.reply(ctx, requesterID, failureMessage(err))
		}
		h.logger.Error("Failed to set weights.", zap.String("requester_id", requesterID), zap.Error(err))
		return h.transition(ctx, requesterID, Session{State: StateIdle}, failureMessage(err))
	}
	return h.transition(ctx, requesterID, Session{State: StateIdle}, weightsSaved(session.QuestionIndex))
}

func (h *Handler) handleRun(ctx context.Context, requesterID string) error {
	if _, err := h.forms.Describe(ctx, requesterID); err != nil {
		return h.reply(ctx, requesterID, failureMessage(err))
	}
	return h.transition(ctx, requesterID, Session{State: StateAwaitingRepetitions}, msgAskRepetitions)
}

func (h *Handler) handleRepetitions(ctx context.Context, requesterID, text string) error {
	n, err := strconv.Atoi(text)
	if err != nil {
		return h.reply(ctx, requesterID, "Please enter a whole number.")
	}
	if err := h.forms.ValidateRepetitions(n); err != nil {
		return h.reply(ctx, requesterID, failureMessage(err))
	}
	if err := h.transition(ctx, requesterID, Session{State: StateRunning}, msgStarting); err != nil {
		return err
	}

	h.jobs.Add(1)
	go h.fill(requesterID, n)
	return nil
}

// fill runs in the background so the requester's message returns immediately.
func (h *Handler) fill(requesterID string, repetitions int) {
	defer h.jobs.Done()
	ctx := h.jobsCtx
	log := h.logger.With(zap.String("requester_id", requesterID), zap.Int("repetitions", repetitions))
	log.Info("Fill started.")

	report, err := h.forms.Fill(ctx, requesterID, repetitions)

	// Delivery and state updates must happen even when the jobs were stopped.
	done := context.WithoutCancel(ctx)
	msg := fillCompleted(repetitions)
	if err != nil {
		completed := 0
		if report != nil {
			completed = report.Completed
		}
		log.Error("Fill failed.", zap.Int("completed", completed), zap.Error(err))
		msg = failureMessage(err)
	} else {
		log.Info("Fill completed.")
	}

	unlock := h.lockRequester(requesterID)
	defer unlock()
	if err := h.transition(done, requesterID, Session{State: StateIdle}, msg); err != nil {
		log.Error("Failed to report fill outcome.", zap.Error(err))
	}
}

// Wait blocks until every background fill has finished.
func (h *Handler) Wait() {
	h.jobs.Wait()
}

// Stop cancels running fills and waits for them to return.
func (h *Handler) Stop() {
	h.cancelJobs()
	h.jobs.Wait()
}

func (h *Handler) transition(ctx context.Context, requesterID string, next Session, messages ...string) error {
	if err := h.states.Put(ctx, requesterID, next); err != nil {
		return fmt.Errorf("failed to store dialogue state: %w", err)
	}
	return h.reply(ctx, requesterID, messages...)
}

func (h *Handler) reply(ctx context.Context, requesterID string, messages ...string) error {
	for _, m := range messages {
		if err := h.notifier.Notify(ctx, requesterID, m); err != nil {
			return fmt.Errorf("failed to deliver reply: %w", err)
		}
	}
	return nil
}

func (h *Handler) lockRequester(requesterID string) func() {
	h.mu.Lock()
	l, ok := h.locks[requesterID]
	if !ok {
		l = &sync.Mutex{}
		h.locks[requesterID] = l
	}
	h.mu.Unlock()

	l.Lock()
	return l.Unlock
}
