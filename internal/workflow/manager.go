package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"scriptlab/internal/advisory"
	"scriptlab/internal/assets"
	"scriptlab/internal/logging"
	"scriptlab/internal/media"
	"scriptlab/internal/notifications"
	"scriptlab/internal/plan"
	"scriptlab/internal/planner"
	"scriptlab/internal/services"
	"scriptlab/internal/store"
)

// PlanGenerator produces a plan for a brief.
type PlanGenerator interface {
	Generate(ctx context.Context, brief planner.Brief) (planner.Result, error)
}

// Advisor runs one advisory turn.
type Advisor interface {
	Turn(ctx context.Context, in advisory.TurnInput, emit func(advisory.Event) error) (advisory.TurnResult, error)
}

// Summary is a list entry for a stored workflow.
type Summary struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Status    store.Status `json:"status"`
	Revision  int64        `json:"revision"`
	UpdatedAt time.Time    `json:"updated_at"`
}

const (
	defaultChatLimit = 100
	notifyTimeout    = 15 * time.Second
	maxTitleLength   = 80
)

// Manager creates, loads, and caches sessions.
type Manager struct {
	store     *store.Store
	planner   PlanGenerator
	advisor   Advisor
	generator media.Generator
	logger    *slog.Logger
	hub       *Broadcaster

	sem         *semaphore.Weighted
	aspectRatio string
	releaser    assets.ReferenceReleaser
	chatLimit   int
	notifier    notifications.Service

	mu       sync.Mutex
	sessions map[string]*Session
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSemaphore caps provider calls across every session.
func WithSemaphore(sem *semaphore.Weighted) ManagerOption {
	return func(m *Manager) {
		m.sem = sem
	}
}

// WithAspectRatio sets the aspect ratio sent with generation requests.
func WithAspectRatio(ratio string) ManagerOption {
	return func(m *Manager) {
		m.aspectRatio = ratio
	}
}

// WithReleaser sets how temporary references are released once consumed.
func WithReleaser(r assets.ReferenceReleaser) ManagerOption {
	return func(m *Manager) {
		m.releaser = r
	}
}

// WithChatLimit caps the stored chat history per session.
func WithChatLimit(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.chatLimit = n
		}
	}
}

// WithNotifier publishes plan and bulk generation milestones.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithBroadcaster shares a broadcaster with other components.
func WithBroadcaster(b *Broadcaster) ManagerOption {
	return func(m *Manager) {
		if b != nil {
			m.hub = b
		}
	}
}

// NewManager constructs a session manager.
func NewManager(st *store.Store, plans PlanGenerator, advisor Advisor, generator media.Generator, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     st,
		planner:   plans,
		advisor:   advisor,
		generator: generator,
		logger:    logging.NewNop(),
		chatLimit: defaultChatLimit,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "workflow")
	if m.hub == nil {
		m.hub = NewBroadcaster(0, m.logger)
	}
	return m
}

// notify publishes in the background; delivery failures are only logged.
func (m *Manager) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		if err := m.notifier.Publish(ctx, event, payload); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, m.logger), "notification failed", "notification_failed",
				logging.String("event", string(event)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "milestone was not delivered"),
			)
		}
	}()
}

// Broadcaster returns the change feed.
func (m *Manager) Broadcaster() *Broadcaster {
	return m.hub
}

// Create stores a new draft session for brief. Plan generation is a separate
// step so callers can run it in the background.
func (m *Manager) Create(ctx context.Context, accountID string, brief planner.Brief) (*Session, error) {
	if err := brief.Validate(); err != nil {
		return nil, err
	}
	briefJSON, err := json.Marshal(brief)
	if err != nil {
		return nil, fmt.Errorf("encode brief: %w", err)
	}
	record := &store.Workflow{
		AccountID: accountID,
		Title:     titleFor(brief),
		Status:    store.StatusDraft,
		BriefJSON: briefJSON,
	}
	if err := m.store.CreateWorkflow(ctx, record); err != nil {
		return nil, err
	}
	creator, err := m.Creator(ctx, accountID)
	if err != nil {
		return nil, err
	}
	s := newSession(m, *record, creator)
	s.brief = brief

	m.mu.Lock()
	m.sessions[record.ID] = s
	m.mu.Unlock()

	logging.WithContext(services.WithWorkflowID(ctx, record.ID), m.logger).Info("workflow created",
		logging.String("title", record.Title),
		logging.String("format", brief.Format),
	)
	return s, nil
}

// Open returns the live session for id, loading it from the store when it is
// not cached. Sessions owned by another account are reported as not found.
func (m *Manager) Open(ctx context.Context, accountID, id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		if s.AccountID() != accountID {
			return nil, services.Wrap(services.ErrNotFound, "workflow", "open", "unknown workflow "+id, nil)
		}
		return s, nil
	}

	record, err := m.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.AccountID != accountID {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "open", "unknown workflow "+id, nil)
	}
	creator, err := m.Creator(ctx, accountID)
	if err != nil {
		return nil, err
	}
	loaded := newSession(m, *record, creator)
	if err := loaded.restore(record); err != nil {
		return nil, services.Wrap(services.ErrValidation, "workflow", "open", "stored workflow is unreadable", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// A concurrent Open may have won the race; keep the first session so all
	// writers share one registry.
	if existing, ok := m.sessions[id]; ok {
		return existing, nil
	}
	m.sessions[id] = loaded
	return loaded, nil
}

// List returns the account's workflows, most recently updated first.
func (m *Manager) List(ctx context.Context, accountID string, limit int) ([]Summary, error) {
	records, err := m.store.ListWorkflows(ctx, accountID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(records))
	for _, r := range records {
		out = append(out, Summary{
			ID:        r.ID,
			Title:     r.Title,
			Status:    r.Status,
			Revision:  r.Revision,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return out, nil
}

// Delete removes a workflow and evicts its session.
func (m *Manager) Delete(ctx context.Context, accountID, id string) error {
	if _, err := m.Open(ctx, accountID, id); err != nil {
		return err
	}
	if err := m.store.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Creator returns the account's creator assets. Accounts without a stored
// record have none.
func (m *Manager) Creator(ctx context.Context, accountID string) (assets.CreatorAssets, error) {
	var creator assets.CreatorAssets
	acct, err := m.store.GetAccount(ctx, accountID)
	if errors.Is(err, services.ErrNotFound) {
		return creator, nil
	}
	if err != nil {
		return creator, err
	}
	if len(acct.CreatorJSON) > 0 {
		if err := json.Unmarshal(acct.CreatorJSON, &creator); err != nil {
			return creator, fmt.Errorf("decode creator assets: %w", err)
		}
	}
	return creator, nil
}

// SetCreator stores the account's creator assets and updates live sessions of
// that account.
func (m *Manager) SetCreator(ctx context.Context, accountID string, creator assets.CreatorAssets) (assets.CreatorAssets, error) {
	if creator.Face != nil {
		if err := normalizeCreatorRef(creator.Face, assets.ReferenceCreatorFace); err != nil {
			return assets.CreatorAssets{}, err
		}
	}
	if creator.Voice != nil {
		if err := normalizeCreatorRef(creator.Voice, assets.ReferenceCreatorVoice); err != nil {
			return assets.CreatorAssets{}, err
		}
	}
	acct, err := m.store.GetAccount(ctx, accountID)
	if errors.Is(err, services.ErrNotFound) {
		acct, err = &store.Account{ID: accountID}, nil
	}
	if err != nil {
		return assets.CreatorAssets{}, err
	}
	if acct.CreatorJSON, err = json.Marshal(creator); err != nil {
		return assets.CreatorAssets{}, fmt.Errorf("encode creator assets: %w", err)
	}
	if err := m.store.UpdateAccount(ctx, acct); err != nil {
		return assets.CreatorAssets{}, err
	}

	m.mu.Lock()
	for _, s := range m.sessions {
		if s.AccountID() == accountID {
			s.setCreator(creator)
		}
	}
	m.mu.Unlock()
	return creator, nil
}

func normalizeCreatorRef(ref *assets.Reference, kind assets.ReferenceKind) error {
	if strings.TrimSpace(ref.URL) == "" {
		return services.Wrap(services.ErrValidation, "workflow", "creator assets", string(kind)+" requires a url", nil)
	}
	ref.Kind = kind
	ref.Temporary = false
	ref.Medium = plan.MediumImage
	if kind == assets.ReferenceCreatorVoice {
		ref.Medium = plan.MediumAudio
	}
	if ref.ID == "" {
		ref.ID = string(kind)
	}
	return nil
}

func titleFor(brief planner.Brief) string {
	title := []rune(strings.Join(strings.Fields(brief.Idea), " "))
	if len(title) <= maxTitleLength {
		return string(title)
	}
	head := string(title[:maxTitleLength])
	if cut := strings.LastIndex(head, " "); cut > 0 {
		head = head[:cut]
	}
	return head + "..."
}
