package council

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	llmclient "council/internal/llm/client"
	"council/internal/llm/middleware"
)

var (
	ErrMissingInput = errors.New("missing prompt or apiKey")
	// ErrClientGone reports that the session stopped because its client went away.
	ErrClientGone = errors.New("client disconnected")
)

// Messages carried by phase and error events.
const (
	MissingInputMessage = "Missing prompt or apiKey"
	SelectingMessage    = "Convening the Council..."
	SynthesizingMessage = "The Judge is delivering the final verdict..."
)

// Judge generation parameters.
const (
	JudgeTemperature     = 0.5
	JudgeReasoningEffort = "medium"
)

// ClientFunc opens an inference client bound to one session's credential.
// The controller closes it when the session ends.
type ClientFunc func(ctx context.Context, apiKey string) (llmclient.ChatClient, error)

// Input is one session request.
type Input struct {
	// SessionID is optional; a random id is assigned when empty.
	SessionID string
	Prompt    string
	APIKey    string
}

// Result is the outcome of a successful session.
type Result struct {
	SessionID string
	Prompt    string
	Members   []Member
	Evidence  []Entry
	Verdict   string
	Report    string
}

// Controller runs council sessions. One Controller serves any number of
// concurrent sessions; all per-session state lives in Session.
type Controller struct {
	registry *Registry
	clients  ClientFunc
	pacer    Pacer
	logger   *log.Logger
	newID    func() string
}

type Option func(*Controller)

// WithPacer replaces the default one-second delay between stages.
func WithPacer(p Pacer) Option {
	return func(c *Controller) {
		if p != nil {
			c.pacer = p
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(f func() string) Option {
	return func(c *Controller) {
		if f != nil {
			c.newID = f
		}
	}
}

func NewController(reg *Registry, clients ClientFunc, opts ...Option) *Controller {
	c := &Controller{
		registry: reg,
		clients:  clients,
		pacer:    FixedDelay(DefaultStageDelay),
		logger:   log.Default(),
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Registry returns the member table the controller draws from.
func (c *Controller) Registry() *Registry { return c.registry }

// NewSessionID allocates an id for a session about to start.
func (c *Controller) NewSessionID() string { return c.newID() }

// Run executes one session and streams its events to em. Exactly one terminal
// event is emitted unless the client disconnects first, in which case Run
// stops scheduling work and returns an error wrapping ErrClientGone or the
// context error.
func (c *Controller) Run(ctx context.Context, in Input, em Emitter) (*Result, error) {
	id := in.SessionID
	if id == "" {
		id = c.newID()
	}
	r := &run{
		c:    c,
		ctx:  ctx,
		sess: newSession(id, in.Prompt),
		em:   NewOnce(em),
	}
	return r.execute(in)
}

type run struct {
	c    *Controller
	ctx  context.Context
	sess *Session
	em   *Once
}

func (r *run) execute(in Input) (*Result, error) {
	if strings.TrimSpace(in.Prompt) == "" || strings.TrimSpace(in.APIKey) == "" {
		return nil, r.fail(ErrMissingInput, MissingInputMessage)
	}

	if err := r.advance(StateSelecting); err != nil {
		return nil, err
	}
	if err := r.emit(PhaseEvent(PhaseSelecting, SelectingMessage)); err != nil {
		return nil, err
	}
	members := r.c.registry.ListMembersByPriority()
	if err := validateMembers(members); err != nil {
		return nil, r.fail(err, "Council is misconfigured: "+err.Error())
	}
	r.sess.Members = members
	if err := r.emit(MembersSelectedEvent(members)); err != nil {
		return nil, err
	}

	if r.c.clients == nil {
		return nil, r.fail(ErrBadRegistry, "no inference client configured")
	}
	client, err := r.c.clients(r.ctx, in.APIKey)
	if err != nil {
		return nil, r.fail(err, err.Error())
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			r.c.logger.Printf("council: session %s: close client: %v", r.sess.ID, cerr)
		}
	}()

	judge := members[len(members)-1]
	for _, m := range members[:len(members)-1] {
		if err := r.runStage(client, m); err != nil {
			return nil, err
		}
	}
	verdict, err := r.runJudge(client, judge)
	if err != nil {
		return nil, err
	}

	report := ComposeReport(r.sess.Evidence, verdict)
	if err := r.advance(StateComplete); err != nil {
		return nil, err
	}
	if err := r.emit(SynthesisCompleteEvent(report)); err != nil {
		return nil, err
	}
	r.c.logger.Printf("council: session %s complete (%d stages)", r.sess.ID, r.sess.Evidence.Len())
	return &Result{
		SessionID: r.sess.ID,
		Prompt:    in.Prompt,
		Members:   members,
		Evidence:  r.sess.Evidence.Entries(),
		Verdict:   verdict,
		Report:    report,
	}, nil
}

func (r *run) runStage(client llmclient.ChatClient, m Member) error {
	if err := r.ctx.Err(); err != nil {
		return r.abandon(err)
	}
	if err := r.advance(StateStage); err != nil {
		return err
	}
	if err := r.emit(MemberStatusEvent(m.ID, m.Role.Verb())); err != nil {
		return err
	}
	prompt, err := StagePrompt(m.Role, r.sess.Evidence)
	if err != nil {
		return r.fail(err, err.Error())
	}
	text, err := r.call(client, m, llmclient.Request{
		Provider:  m.Provider,
		Model:     m.ID,
		Messages:  llmclient.UserPrompt(prompt),
		MaxTokens: m.AllocatedTokens,
	})
	if err != nil {
		return err
	}
	if err := r.sess.Evidence.Record(m.Role, text); err != nil {
		return r.fail(err, err.Error())
	}
	if err := r.emit(MemberStatusEvent(m.ID, StatusComplete)); err != nil {
		return err
	}
	if err := r.c.pacer.Wait(r.ctx); err != nil {
		return r.abandon(err)
	}
	return nil
}

func (r *run) runJudge(client llmclient.ChatClient, judge Member) (string, error) {
	if err := r.ctx.Err(); err != nil {
		return "", r.abandon(err)
	}
	if err := r.advance(StateSynthesizing); err != nil {
		return "", err
	}
	if err := r.emit(PhaseEvent(PhaseSynthesizing, SynthesizingMessage)); err != nil {
		return "", err
	}
	if err := r.emit(MemberStatusEvent(judge.ID, judge.Role.Verb())); err != nil {
		return "", err
	}
	verdict, err := r.call(client, judge, llmclient.Request{
		Provider:        judge.Provider,
		Model:           judge.ID,
		Messages:        llmclient.UserPrompt(BuildFinalPrompt(r.sess.Evidence, judge)),
		MaxTokens:       judge.AllocatedTokens,
		Temperature:     llmclient.Float(JudgeTemperature),
		ReasoningEffort: JudgeReasoningEffort,
	})
	if err != nil {
		return "", err
	}
	if err := r.emit(MemberStatusEvent(judge.ID, StatusComplete)); err != nil {
		return "", err
	}
	return verdict, nil
}

// call performs one stage's inference. Failures end the session.
func (r *run) call(client llmclient.ChatClient, m Member, req llmclient.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", r.fail(err, err.Error())
	}
	start := time.Now()
	resp, err := client.Complete(middleware.WithStage(r.ctx, string(m.Role)), req)
	if err != nil {
		if r.ctx.Err() != nil {
			return "", r.abandon(r.ctx.Err())
		}
		r.c.logger.Printf("council: session %s: %s (%s) failed: %v", r.sess.ID, m.Role, m.ID, err)
		return "", r.fail(fmt.Errorf("%s: %w", m.Role, err), err.Error())
	}
	r.c.logger.Printf("council: session %s: %s (%s) answered in %s", r.sess.ID, m.Role, m.ID, time.Since(start).Round(time.Millisecond))
	return resp.Content, nil
}

func (r *run) advance(to State) error {
	if err := r.sess.transition(to); err != nil {
		return r.fail(err, err.Error())
	}
	return nil
}

// emit writes ev. A write failure means the client is gone.
func (r *run) emit(ev Event) error {
	if err := r.em.Emit(r.ctx, ev); err != nil {
		return r.abandon(fmt.Errorf("%w: %v", ErrClientGone, err))
	}
	return nil
}

// fail moves the session to the error state and emits the one terminal error
// event. It returns err for the caller to propagate.
func (r *run) fail(err error, message string) error {
	_ = r.sess.transition(StateError)
	if r.ctx.Err() != nil {
		return r.abandon(r.ctx.Err())
	}
	if eerr := r.em.Emit(r.ctx, ErrorEvent(message)); eerr != nil && !errors.Is(eerr, ErrStreamClosed) {
		r.c.logger.Printf("council: session %s: deliver error event: %v", r.sess.ID, eerr)
	}
	return err
}

// abandon ends the session silently; the client is no longer listening.
func (r *run) abandon(err error) error {
	from := r.sess.state
	_ = r.sess.transition(StateError)
	r.c.logger.Printf("council: session %s abandoned in %s: %v", r.sess.ID, from, err)
	if errors.Is(err, ErrClientGone) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrClientGone, err)
}
