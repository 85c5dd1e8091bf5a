package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/helios/pkg/governance"
	"mercator-hq/helios/pkg/syncx"
)

const maxNameLength = 256

// Persister receives every committed policy mutation.
type Persister interface {
	Save(ctx context.Context, p *governance.Policy) error
	Delete(ctx context.Context, id string) error
}

// Loader supplies the initial policy set.
type Loader interface {
	LoadAll(ctx context.Context) ([]*governance.Policy, error)
}

// Draft holds the caller-supplied fields of a new policy.
type Draft struct {
	Name                 string                `json:"name"`
	Description          string                `json:"description,omitempty"`
	Type                 governance.PolicyType `json:"policy_type"`
	RiskClass            governance.RiskClass  `json:"risk_class,omitempty"`
	ComplianceFrameworks []string              `json:"compliance_frameworks,omitempty"`
	Rules                []governance.Rule     `json:"rules,omitempty"`
	Metadata             governance.Metadata   `json:"metadata,omitempty"`
	Owner                string                `json:"owner,omitempty"`
}

// Patch holds a field-level update. Nil fields are left unchanged. Metadata
// is merged into the existing bag; a nil value removes that key.
type Patch struct {
	Name                 *string                `json:"name,omitempty"`
	Description          *string                `json:"description,omitempty"`
	Type                 *governance.PolicyType `json:"policy_type,omitempty"`
	RiskClass            *governance.RiskClass  `json:"risk_class,omitempty"`
	ComplianceFrameworks *[]string              `json:"compliance_frameworks,omitempty"`
	Rules                *[]governance.Rule     `json:"rules,omitempty"`
	Metadata             governance.Metadata    `json:"metadata,omitempty"`
	Owner                *string                `json:"owner,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Type == nil && p.RiskClass == nil &&
		p.ComplianceFrameworks == nil && p.Rules == nil && len(p.Metadata) == 0 && p.Owner == nil
}

// Store is the in-memory owner of all policies.
//
// Reads (Get, List) take a shared lock and return deep copies, so callers
// may modify what they receive. Writes to one policy id are serialized by a
// per-id lock, and each write reaches the Persister before it becomes
// visible: if persisting fails the mutation is discarded and a
// *governance.PersistenceError is returned.
//
// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	policies map[string]*governance.Policy

	locks     *syncx.KeyedMutex
	persister Persister
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPersister writes every committed mutation through p.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		policies: make(map[string]*governance.Policy),
		locks:    syncx.NewKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default().With("component", "policy.store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the store contents with the policies returned by l.
// Entries that fail validation are skipped and logged.
func (s *Store) Load(ctx context.Context, l Loader) error {
	loaded, err := l.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	policies := make(map[string]*governance.Policy, len(loaded))
	for _, p := range loaded {
		if p == nil {
			continue
		}
		p = p.Clone()
		if p.RiskClass == "" {
			p.RiskClass = governance.RiskStandard
		}
		if err := validateStored(p); err != nil {
			s.logger.Warn("skipping invalid stored policy", "policy_id", p.ID, "error", err)
			continue
		}
		policies[p.ID] = p
	}

	s.mu.Lock()
	s.policies = policies
	s.mu.Unlock()

	s.logger.Info("policies loaded", "count", len(policies), "skipped", len(loaded)-len(policies))
	return nil
}

// Create validates d and stores a new DRAFT policy at version 1.
func (s *Store) Create(ctx context.Context, d Draft) (*governance.Policy, error) {
	now := s.now()
	p := &governance.Policy{
		ID:                   uuid.New().String(),
		Name:                 strings.TrimSpace(d.Name),
		Description:          d.Description,
		Type:                 d.Type,
		Status:               governance.StatusDraft,
		RiskClass:            d.RiskClass,
		ComplianceFrameworks: governance.NormalizeFrameworks(d.ComplianceFrameworks),
		Rules:                normalizeRules(d.Rules),
		Metadata:             d.Metadata.Clone(),
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
		Owner:                strings.TrimSpace(d.Owner),
	}
	if p.RiskClass == "" {
		p.RiskClass = governance.RiskStandard
	}
	if err := validateFields(p); err != nil {
		return nil, err
	}

	if err := s.persist(ctx, p); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.policies[p.ID] = p
	s.mu.Unlock()

	s.logger.Debug("policy created", "policy_id", p.ID, "name", p.Name)
	return p.Clone(), nil
}

// Transition moves policy id to target if the status table allows it,
// bumping the version and updatedAt. A disallowed move returns
// *governance.InvalidStateTransitionError and leaves the policy unchanged;
// an unknown id returns *governance.NotFoundError.
func (s *Store) Transition(ctx context.Context, id string, target governance.PolicyStatus) (*governance.Policy, error) {
	if !target.Valid() {
		return nil, governance.NewValidationError("status", "unknown status %q", target)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if !governance.CanTransition(cur.Status, target) {
		return nil, governance.NewInvalidTransitionError("policy", id, cur.Status, target)
	}

	next := cur.Clone()
	next.Status = target
	next.Version++
	next.UpdatedAt = s.now()

	if err := s.commit(ctx, next); err != nil {
		return nil, err
	}

	s.logger.Info("policy transitioned",
		"policy_id", id,
		"from", cur.Status,
		"to", target,
		"version", next.Version,
	)
	return next.Clone(), nil
}

// Update applies a field-level patch. Status is never touched. ARCHIVED
// policies are read-only.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (*governance.Policy, error) {
	if patch.Empty() {
		return nil, governance.NewValidationError("patch", "no fields to update")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if cur.Status.Terminal() {
		return nil, governance.NewInvalidTransitionError("policy", id, cur.Status, cur.Status)
	}

	next := cur.Clone()
	applyPatch(next, patch)
	if err := validateFields(next); err != nil {
		return nil, err
	}
	next.Version++
	next.UpdatedAt = s.now()

	if err := s.commit(ctx, next); err != nil {
		return nil, err
	}

	s.logger.Debug("policy updated", "policy_id", id, "version", next.Version)
	return next.Clone(), nil
}

// Delete removes a DRAFT or ARCHIVED policy and returns its last state.
func (s *Store) Delete(ctx context.Context, id string) (*governance.Policy, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if cur.Status != governance.StatusDraft && cur.Status != governance.StatusArchived {
		return nil, governance.NewInvalidTransitionError("policy", id, cur.Status, "DELETED")
	}

	if s.persister != nil {
		if err := s.persister.Delete(ctx, id); err != nil {
			return nil, wrapPersistence("delete", err)
		}
	}

	s.mu.Lock()
	delete(s.policies, id)
	s.mu.Unlock()

	s.logger.Info("policy deleted", "policy_id", id)
	return cur.Clone(), nil
}

// Get returns a copy of policy id.
func (s *Store) Get(id string) (*governance.Policy, error) {
	p, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// Exists reports whether id is a known policy.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.policies[id]
	return ok
}

// List returns copies of the policies matching f, ordered by creation time.
func (s *Store) List(f Filter) []*governance.Policy {
	m := newMatcher(f)

	s.mu.RLock()
	out := make([]*governance.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		if m.match(p) {
			out = append(out, p.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CountByStatus returns the number of policies in each status.
func (s *Store) CountByStatus() map[governance.PolicyStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[governance.PolicyStatus]int, len(governance.Statuses))
	for _, p := range s.policies {
		counts[p.Status]++
	}
	return counts
}

func (s *Store) lookup(id string) (*governance.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, governance.NewNotFoundError("policy", id)
	}
	return p, nil
}

// commit persists next and publishes it. Callers hold the id lock.
func (s *Store) commit(ctx context.Context, next *governance.Policy) error {
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.mu.Lock()
	s.policies[next.ID] = next
	s.mu.Unlock()
	return nil
}

func (s *Store) persist(ctx context.Context, p *governance.Policy) error {
	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, p); err != nil {
		s.logger.Error("failed to persist policy", "policy_id", p.ID, "error", err)
		return wrapPersistence("save", err)
	}
	return nil
}

func wrapPersistence(op string, err error) error {
	var pe *governance.PersistenceError
	if errors.As(err, &pe) {
		return pe
	}
	return governance.NewPersistenceError("unknown", op, err)
}

func applyPatch(p *governance.Policy, patch Patch) {
	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Type != nil {
		p.Type = *patch.Type
	}
	if patch.RiskClass != nil {
		p.RiskClass = *patch.RiskClass
	}
	if patch.ComplianceFrameworks != nil {
		p.ComplianceFrameworks = governance.NormalizeFrameworks(*patch.ComplianceFrameworks)
	}
	if patch.Rules != nil {
		p.Rules = normalizeRules(*patch.Rules)
	}
	if len(patch.Metadata) > 0 {
		p.Metadata = p.Metadata.Merge(patch.Metadata)
	}
	if patch.Owner != nil {
		p.Owner = strings.TrimSpace(*patch.Owner)
	}
}

// normalizeRules copies rules and assigns positional ids to rules without one.
func normalizeRules(in []governance.Rule) []governance.Rule {
	if len(in) == 0 {
		return nil
	}
	out := make([]governance.Rule, len(in))
	for i, r := range in {
		out[i] = governance.Rule{ID: strings.TrimSpace(r.ID), Kind: strings.TrimSpace(r.Kind), Params: r.Params.Clone()}
		if out[i].ID == "" {
			out[i].ID = fmt.Sprintf("rule-%d", i+1)
		}
	}
	return out
}

func validateFields(p *governance.Policy) error {
	if p.Name == "" {
		return governance.NewValidationError("name", "name is required")
	}
	if len(p.Name) > maxNameLength {
		return governance.NewValidationError("name", "name exceeds %d characters", maxNameLength)
	}
	if p.Type == "" {
		return governance.NewValidationError("policy_type", "policy type is required")
	}
	if !p.Type.Valid() {
		return governance.NewValidationError("policy_type", "unknown policy type %q", p.Type)
	}
	if !p.RiskClass.Valid() {
		return governance.NewValidationError("risk_class", "unknown risk class %q", p.RiskClass)
	}
	seen := make(map[string]struct{}, len(p.Rules))
	for i, r := range p.Rules {
		if r.Kind == "" {
			return governance.NewValidationError(fmt.Sprintf("rules[%d].kind", i), "rule kind is required")
		}
		if _, dup := seen[r.ID]; dup {
			return governance.NewValidationError(fmt.Sprintf("rules[%d].id", i), "duplicate rule id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
		if err := r.Params.Validate(); err != nil {
			return err
		}
	}
	return p.Metadata.Validate()
}

func validateStored(p *governance.Policy) error {
	if p.ID == "" {
		return governance.NewValidationError("id", "id is required")
	}
	if !p.Status.Valid() {
		return governance.NewValidationError("status", "unknown status %q", p.Status)
	}
	if p.Version < 1 {
		return governance.NewValidationError("version", "version must be positive")
	}
	return validateFields(p)
}
