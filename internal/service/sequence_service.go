package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dispatchconsole/internal/apperror"
	"dispatchconsole/internal/logger"
	"dispatchconsole/internal/metrics"
	"dispatchconsole/internal/model"
	"dispatchconsole/internal/repository"
	"dispatchconsole/internal/sequence"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type GenerateSequenceRequest struct {
	CategoryID    string  `json:"category_id" binding:"required"`
	SubcategoryID *string `json:"subcategory_id"`
}

type GeneratedSequenceResponse struct {
	Sequence       string `json:"sequence"`
	SequenceNumber int    `json:"sequence_number"`
	ConfigID       string `json:"config_id"`
	// Fallback is true when a subcategory was given but the category-wide config served it.
	Fallback bool `json:"fallback"`
}

type ValidateSequenceRequest struct {
	Sequence      string  `json:"sequence" binding:"required"`
	CategoryID    string  `json:"category_id" binding:"required"`
	SubcategoryID *string `json:"subcategory_id"`
}

type SequenceValidationResponse struct {
	Valid    bool   `json:"valid"`
	Scheme   string `json:"scheme,omitempty"`
	ConfigID string `json:"config_id,omitempty"`
	// Historical is true when only an inactive config accepts the sequence.
	Historical bool `json:"historical"`
}

type CreateSequenceConfigRequest struct {
	CategoryID     string  `json:"category_id" binding:"required"`
	SubcategoryID  *string `json:"subcategory_id"`
	Prefix         string  `json:"prefix" binding:"required"`
	Template       string  `json:"template" binding:"required"`
	StartingNumber *int    `json:"starting_number"`
}

type UpdateSequenceConfigRequest struct {
	Prefix         *string `json:"prefix"`
	Template       *string `json:"template"`
	StartingNumber *int    `json:"starting_number"`
	Active         *bool   `json:"active"`
	// UpdateExisting re-renders every machine sequence in the config's scope under the new template.
	UpdateExisting bool `json:"update_existing"`
}

type ResetSequenceRequest struct {
	StartingNumber int `json:"starting_number" binding:"min=1"`
}

type SequenceConfigResponse struct {
	ID              string  `json:"id"`
	CategoryID      string  `json:"category_id"`
	CategoryName    string  `json:"category_name"`
	SubcategoryID   *string `json:"subcategory_id"`
	SubcategoryName string  `json:"subcategory_name,omitempty"`
	Prefix          string  `json:"prefix"`
	Template        string  `json:"template"`
	CurrentCounter  int     `json:"current_counter"`
	StartingNumber  int     `json:"starting_number"`
	Active          bool    `json:"active"`
	Preview         string  `json:"preview,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type UpdateSequenceConfigResponse struct {
	Config       SequenceConfigResponse `json:"config"`
	Revalidation *RevalidationReport    `json:"revalidation,omitempty"`
}

type ResetSequenceResponse struct {
	Config  SequenceConfigResponse `json:"config"`
	Warning string                 `json:"warning,omitempty"`
}

type DeleteSequenceConfigResponse struct {
	ID string `json:"id"`
	// Deleted is true for a hard delete; otherwise the config was only disabled because
	// machines still reference it.
	Deleted  bool `json:"deleted"`
	Disabled bool `json:"disabled"`
}

// UnresolvedSequence is a machine whose sequence could not be re-rendered or validated.
type UnresolvedSequence struct {
	MachineID string `json:"machine_id"`
	Sequence  string `json:"sequence"`
	Reason    string `json:"reason"`
}

// RevalidationReport summarises a batch re-render of existing sequences.
type RevalidationReport struct {
	ConfigID   string               `json:"config_id"`
	Updated    int                  `json:"updated"`
	Unchanged  int                  `json:"unchanged"`
	Unresolved []UnresolvedSequence `json:"unresolved"`
}

// CheckReport lists machines whose sequence no longer validates against a config.
type CheckReport struct {
	ConfigID string               `json:"config_id"`
	Checked  int                  `json:"checked"`
	Invalid  []UnresolvedSequence `json:"invalid"`
}

// Scope addresses the config a sequence is drawn from.
type Scope struct {
	CategoryID    uuid.UUID
	SubcategoryID *uuid.UUID
}

// Issued is one number drawn from a config.
type Issued struct {
	Sequence string
	Number   int
	ConfigID uuid.UUID
	Fallback bool
}

// --- Interface ---

type SequenceService interface {
	GenerateSequence(ctx context.Context, req GenerateSequenceRequest) (*GeneratedSequenceResponse, error)
	ValidateSequence(ctx context.Context, req ValidateSequenceRequest) (*SequenceValidationResponse, error)
	CreateConfig(ctx context.Context, userID string, req CreateSequenceConfigRequest) (*SequenceConfigResponse, error)
	UpdateConfig(ctx context.Context, userID, id string, req UpdateSequenceConfigRequest) (*UpdateSequenceConfigResponse, error)
	// ResetSequence makes StartingNumber the next number issued. The stored counter
	// becomes StartingNumber-1, the last number considered issued.
	ResetSequence(ctx context.Context, userID, id string, req ResetSequenceRequest) (*ResetSequenceResponse, error)
	DeleteConfig(ctx context.Context, userID, id string) (*DeleteSequenceConfigResponse, error)
	ListConfigs(ctx context.Context, categoryID string, includeInactive bool) ([]SequenceConfigResponse, error)
	GetConfig(ctx context.Context, id string) (*SequenceConfigResponse, error)

	// ResolveConfig returns the active config for scope: the exact subcategory config when
	// there is one, else the category-wide config. fallback reports the latter case.
	ResolveConfig(ctx context.Context, scope Scope) (cfg *model.SequenceConfig, fallback bool, err error)
	// Next draws the next number for scope and renders it. It joins a transaction in ctx.
	Next(ctx context.Context, scope Scope) (*Issued, error)
	// Check validates candidate for scope against active, then inactive, configs.
	Check(ctx context.Context, scope Scope, candidate string) (*SequenceValidationResponse, error)
	RevalidateExisting(ctx context.Context, configID uuid.UUID, previousTemplate string) (*RevalidationReport, error)
	CheckSequences(ctx context.Context, configID uuid.UUID) (*CheckReport, error)
}

// --- Implementation ---

type sequenceService struct {
	configRepo   repository.SequenceConfigRepository
	categoryRepo repository.CategoryRepository
	machineRepo  repository.MachineRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
}

func NewSequenceService(
	configRepo repository.SequenceConfigRepository,
	categoryRepo repository.CategoryRepository,
	machineRepo repository.MachineRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) SequenceService {
	return &sequenceService{
		configRepo:   configRepo,
		categoryRepo: categoryRepo,
		machineRepo:  machineRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
	}
}

func (s *sequenceService) parseScope(categoryID string, subcategoryID *string) (Scope, error) {
	cat, err := parseID(categoryID, "category_id")
	if err != nil {
		return Scope{}, err
	}
	sub, err := parseOptionalID(subcategoryID, "subcategory_id")
	if err != nil {
		return Scope{}, err
	}
	return Scope{CategoryID: cat, SubcategoryID: sub}, nil
}

// names loads the display names a sequence in scope is rendered with.
func (s *sequenceService) names(ctx context.Context, scope Scope) (sequence.Names, error) {
	category, err := s.categoryRepo.FindByID(ctx, scope.CategoryID)
	if err != nil {
		return sequence.Names{}, notFoundOr(err, "category")
	}
	names := sequence.Names{Category: category.Name}
	if scope.SubcategoryID != nil {
		sub, err := s.categoryRepo.FindSubcategory(ctx, *scope.SubcategoryID)
		if err != nil {
			return sequence.Names{}, notFoundOr(err, "subcategory")
		}
		if sub.CategoryID != scope.CategoryID {
			return sequence.Names{}, apperror.Validation("subcategory does not belong to category")
		}
		names.Subcategory = sub.Name
	}
	return names, nil
}

func (s *sequenceService) ResolveConfig(ctx context.Context, scope Scope) (*model.SequenceConfig, bool, error) {
	if scope.SubcategoryID != nil {
		cfg, err := s.configRepo.FindActive(ctx, scope.CategoryID, scope.SubcategoryID)
		if err == nil {
			return cfg, false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("failed to resolve sequence config: %w", err)
		}
	}

	cfg, err := s.configRepo.FindActive(ctx, scope.CategoryID, nil)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, apperror.NoSequenceConfig("no active sequence config for this category")
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve sequence config: %w", err)
	}
	return cfg, scope.SubcategoryID != nil, nil
}

func (s *sequenceService) Next(ctx context.Context, scope Scope) (*Issued, error) {
	var issued *Issued
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		names, err := s.names(txCtx, scope)
		if err != nil {
			return err
		}
		cfg, fallback, err := s.ResolveConfig(txCtx, scope)
		if err != nil {
			return err
		}

		number, err := s.configRepo.IncrementCounter(txCtx, cfg.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NoSequenceConfig("sequence config was disabled")
		}
		if err != nil {
			return fmt.Errorf("failed to increment sequence counter: %w", err)
		}

		names.Prefix = cfg.Prefix
		rendered, err := sequence.Render(cfg.Template, sequence.Values{Names: names, Number: number})
		if err != nil {
			return err
		}
		issued = &Issued{Sequence: rendered, Number: number, ConfigID: cfg.ID, Fallback: fallback}

		resolution := "exact"
		if fallback {
			resolution = "fallback"
		}
		repository.AfterCommit(txCtx, func() {
			metrics.SequencesIssued.WithLabelValues(resolution).Inc()
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

func (s *sequenceService) GenerateSequence(ctx context.Context, req GenerateSequenceRequest) (*GeneratedSequenceResponse, error) {
	scope, err := s.parseScope(req.CategoryID, req.SubcategoryID)
	if err != nil {
		return nil, err
	}
	issued, err := s.Next(ctx, scope)
	if err != nil {
		return nil, err
	}
	return &GeneratedSequenceResponse{
		Sequence:       issued.Sequence,
		SequenceNumber: issued.Number,
		ConfigID:       issued.ConfigID.String(),
		Fallback:       issued.Fallback,
	}, nil
}

func (s *sequenceService) ValidateSequence(ctx context.Context, req ValidateSequenceRequest) (*SequenceValidationResponse, error) {
	scope, err := s.parseScope(req.CategoryID, req.SubcategoryID)
	if err != nil {
		return nil, err
	}
	return s.Check(ctx, scope, req.Sequence)
}

// candidateConfigs orders the configs a sequence in scope may have been drawn from:
// active before inactive, subcategory-specific before category-wide.
func (s *sequenceService) candidateConfigs(ctx context.Context, scope Scope) ([]model.SequenceConfig, error) {
	all, err := s.configRepo.List(ctx, &scope.CategoryID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list sequence configs: %w", err)
	}

	var exactActive, wideActive, exactInactive, wideInactive []model.SequenceConfig
	for _, cfg := range all {
		exact := scope.SubcategoryID != nil && cfg.SubcategoryID != nil && *cfg.SubcategoryID == *scope.SubcategoryID
		wide := cfg.SubcategoryID == nil
		switch {
		case exact && cfg.Active:
			exactActive = append(exactActive, cfg)
		case wide && cfg.Active:
			wideActive = append(wideActive, cfg)
		case exact:
			exactInactive = append(exactInactive, cfg)
		case wide:
			wideInactive = append(wideInactive, cfg)
		}
	}

	out := append(exactActive, wideActive...)
	out = append(out, exactInactive...)
	return append(out, wideInactive...), nil
}

func (s *sequenceService) Check(ctx context.Context, scope Scope, candidate string) (*SequenceValidationResponse, error) {
	names, err := s.names(ctx, scope)
	if err != nil {
		return nil, err
	}
	configs, err := s.candidateConfigs(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, apperror.NoSequenceConfig("no sequence config for this category")
	}

	for _, cfg := range configs {
		n := names
		n.Prefix = cfg.Prefix
		if scheme, ok := sequence.MatchedScheme(candidate, cfg.Template, n); ok {
			return &SequenceValidationResponse{
				Valid:      true,
				Scheme:     scheme.String(),
				ConfigID:   cfg.ID.String(),
				Historical: !cfg.Active,
			}, nil
		}
	}
	return &SequenceValidationResponse{Valid: false}, nil
}

func (s *sequenceService) CreateConfig(ctx context.Context, userID string, req CreateSequenceConfigRequest) (*SequenceConfigResponse, error) {
	scope, err := s.parseScope(req.CategoryID, req.SubcategoryID)
	if err != nil {
		return nil, err
	}
	actor, err := parseOptionalID(&userID, "user id")
	if err != nil {
		return nil, err
	}

	prefix := strings.TrimSpace(req.Prefix)
	if err := sequence.ValidatePrefix(prefix); err != nil {
		return nil, err
	}
	template := strings.TrimSpace(req.Template)
	if err := sequence.ValidateTemplate(template); err != nil {
		return nil, err
	}
	starting := 1
	if req.StartingNumber != nil {
		starting = *req.StartingNumber
	}
	if starting < 1 {
		return nil, apperror.Validation("starting_number must be at least 1")
	}

	cfg := &model.SequenceConfig{
		CategoryID:     scope.CategoryID,
		SubcategoryID:  scope.SubcategoryID,
		Prefix:         prefix,
		Template:       template,
		StartingNumber: starting,
		CurrentCounter: starting - 1,
		CreatedBy:      actor,
	}
	cfg.MarkActive(true)

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.names(txCtx, scope); err != nil {
			return err
		}
		if _, err := s.configRepo.FindActive(txCtx, scope.CategoryID, scope.SubcategoryID); err == nil {
			return apperror.Conflict("an active sequence config already exists for this scope")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check existing config: %w", err)
		}

		if err := s.configRepo.Create(txCtx, cfg); err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("an active sequence config already exists for this scope")
			}
			return fmt.Errorf("failed to create sequence config: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionCreateSequenceConfig, cfg.ID.String(), model.ScopeKey(cfg.CategoryID, cfg.SubcategoryID), map[string]interface{}{
			"prefix":          cfg.Prefix,
			"template":        cfg.Template,
			"starting_number": cfg.StartingNumber,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetConfig(ctx, cfg.ID.String())
}

func (s *sequenceService) UpdateConfig(ctx context.Context, userID, id string, req UpdateSequenceConfigRequest) (*UpdateSequenceConfigResponse, error) {
	configID, err := parseID(id, "sequence config id")
	if err != nil {
		return nil, err
	}
	actor, err := parseOptionalID(&userID, "user id")
	if err != nil {
		return nil, err
	}

	var report *RevalidationReport
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		cfg, err := s.configRepo.FindByID(txCtx, configID)
		if err != nil {
			return notFoundOr(err, "sequence config")
		}
		previousTemplate := cfg.Template
		changes := map[string]interface{}{}

		if req.Prefix != nil {
			prefix := strings.TrimSpace(*req.Prefix)
			if err := sequence.ValidatePrefix(prefix); err != nil {
				return err
			}
			cfg.Prefix = prefix
			changes["prefix"] = prefix
		}
		if req.Template != nil {
			template := strings.TrimSpace(*req.Template)
			if err := sequence.ValidateTemplate(template); err != nil {
				return err
			}
			cfg.Template = template
			changes["template"] = template
		}
		if req.StartingNumber != nil {
			if *req.StartingNumber < 1 {
				return apperror.Validation("starting_number must be at least 1")
			}
			cfg.StartingNumber = *req.StartingNumber
			changes["starting_number"] = cfg.StartingNumber
		}
		if req.Active != nil && *req.Active != cfg.Active {
			cfg.MarkActive(*req.Active)
			changes["active"] = cfg.Active
		}

		if err := s.configRepo.Update(txCtx, cfg); err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("an active sequence config already exists for this scope")
			}
			return fmt.Errorf("failed to update sequence config: %w", err)
		}
		changes["update_existing"] = req.UpdateExisting
		if err := writeAudit(txCtx, s.auditRepo, actor, model.ActionUpdateSequenceConfig, cfg.ID.String(), model.ScopeKey(cfg.CategoryID, cfg.SubcategoryID), changes); err != nil {
			return err
		}

		if req.UpdateExisting && cfg.Template != previousTemplate {
			report, err = s.RevalidateExisting(txCtx, cfg.ID, previousTemplate)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	return &UpdateSequenceConfigResponse{Config: *resp, Revalidation: report}, nil
}

// ResetSequence sets current_counter to StartingNumber-1 so the next Next call issues
// StartingNumber. Restarting at or below the old counter is allowed and reported in
// Warning, since those numbers may be issued twice.
func (s *sequenceService) ResetSequence(ctx context.Context, userID, id string, req ResetSequenceRequest) (*ResetSequenceResponse, error) {
	configID, err := parseID(id, "sequence config id")
	if err != nil {
		return nil, err
	}
	actor, err := parseOptionalID(&userID, "user id")
	if err != nil {
		return nil, err
	}
	if req.StartingNumber < 1 {
		return nil, apperror.Validation("starting_number must be at least 1")
	}

	var warning string
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		cfg, err := s.configRepo.FindByID(txCtx, configID)
		if err != nil {
			return notFoundOr(err, "sequence config")
		}

		if req.StartingNumber <= cfg.CurrentCounter {
			warning = fmt.Sprintf("numbers %d to %d have already been issued and may be issued again", req.StartingNumber, cfg.CurrentCounter)
		}
		if err := s.configRepo.ResetCounter(txCtx, cfg.ID, req.StartingNumber); err != nil {
			return fmt.Errorf("failed to reset sequence counter: %w", err)
		}

		details := map[string]interface{}{
			"previous_counter": cfg.CurrentCounter,
			"starting_number":  req.StartingNumber,
		}
		if warning != "" {
			details["collision_warning"] = warning
			repository.AfterCommit(txCtx, func() {
				metrics.SequenceCollisionWarnings.Inc()
				logger.Warn("sequence counter reset below issued numbers",
					zap.String("config_id", cfg.ID.String()),
					zap.Int("previous_counter", cfg.CurrentCounter),
					zap.Int("starting_number", req.StartingNumber))
			})
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionResetSequence, cfg.ID.String(), model.ScopeKey(cfg.CategoryID, cfg.SubcategoryID), details)
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ResetSequenceResponse{Config: *resp, Warning: warning}, nil
}

func (s *sequenceService) DeleteConfig(ctx context.Context, userID, id string) (*DeleteSequenceConfigResponse, error) {
	configID, err := parseID(id, "sequence config id")
	if err != nil {
		return nil, err
	}
	actor, err := parseOptionalID(&userID, "user id")
	if err != nil {
		return nil, err
	}

	resp := &DeleteSequenceConfigResponse{ID: configID.String()}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		cfg, err := s.configRepo.FindByID(txCtx, configID)
		if err != nil {
			return notFoundOr(err, "sequence config")
		}
		referenced, err := s.machineRepo.CountBySequenceConfig(txCtx, cfg.ID)
		if err != nil {
			return fmt.Errorf("failed to count machines for config: %w", err)
		}

		if referenced == 0 {
			if err := s.configRepo.Delete(txCtx, cfg.ID); err != nil {
				return fmt.Errorf("failed to delete sequence config: %w", err)
			}
			resp.Deleted = true
			return writeAudit(txCtx, s.auditRepo, actor, model.ActionDeleteSequenceConfig, cfg.ID.String(), model.ScopeKey(cfg.CategoryID, cfg.SubcategoryID), map[string]interface{}{
				"template": cfg.Template,
			})
		}

		cfg.MarkActive(false)
		if err := s.configRepo.Update(txCtx, cfg); err != nil {
			return fmt.Errorf("failed to disable sequence config: %w", err)
		}
		resp.Disabled = true
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionDisableSequenceConfig, cfg.ID.String(), model.ScopeKey(cfg.CategoryID, cfg.SubcategoryID), map[string]interface{}{
			"referenced_machines": referenced,
		})
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *sequenceService) ListConfigs(ctx context.Context, categoryID string, includeInactive bool) ([]SequenceConfigResponse, error) {
	var filter *uuid.UUID
	if categoryID != "" {
		id, err := parseID(categoryID, "category_id")
		if err != nil {
			return nil, err
		}
		filter = &id
	}
	configs, err := s.configRepo.List(ctx, filter, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sequence configs: %w", err)
	}
	res := make([]SequenceConfigResponse, 0, len(configs))
	for _, cfg := range configs {
		res = append(res, toSequenceConfigResponse(cfg))
	}
	return res, nil
}

func (s *sequenceService) GetConfig(ctx context.Context, id string) (*SequenceConfigResponse, error) {
	configID, err := parseID(id, "sequence config id")
	if err != nil {
		return nil, err
	}
	cfg, err := s.configRepo.FindByID(ctx, configID)
	if err != nil {
		return nil, notFoundOr(err, "sequence config")
	}
	resp := toSequenceConfigResponse(*cfg)
	return &resp, nil
}

// scopeMachines lists the machines whose sequences cfg governs. For a category-wide
// config, machines in subcategories with their own active config are excluded.
func (s *sequenceService) scopeMachines(ctx context.Context, cfg *model.SequenceConfig) ([]model.Machine, error) {
	machines, err := s.machineRepo.ListSequencedInScope(ctx, cfg.CategoryID, cfg.SubcategoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list machines in scope: %w", err)
	}
	if cfg.SubcategoryID != nil {
		return machines, nil
	}

	active, err := s.configRepo.List(ctx, &cfg.CategoryID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list sequence configs: %w", err)
	}
	overridden := map[uuid.UUID]bool{}
	for _, c := range active {
		if c.SubcategoryID != nil {
			overridden[*c.SubcategoryID] = true
		}
	}

	out := machines[:0]
	for _, m := range machines {
		if m.SalesOrder != nil && m.SalesOrder.SubcategoryID != nil && overridden[*m.SalesOrder.SubcategoryID] {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func machineNames(m *model.Machine, prefix string) sequence.Names {
	names := sequence.Names{Prefix: prefix}
	if m.SalesOrder == nil {
		return names
	}
	if m.SalesOrder.Category != nil {
		names.Category = m.SalesOrder.Category.Name
	}
	if m.SalesOrder.Subcategory != nil {
		names.Subcategory = m.SalesOrder.Subcategory.Name
	}
	return names
}

// RevalidateExisting re-renders every sequence cfg governs under its current template.
// The counter value is taken from the stored number, else recovered from the sequence
// under previousTemplate. Re-rendering is administrative and does not reopen approval.
func (s *sequenceService) RevalidateExisting(ctx context.Context, configID uuid.UUID, previousTemplate string) (*RevalidationReport, error) {
	report := &RevalidationReport{ConfigID: configID.String(), Unresolved: []UnresolvedSequence{}}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		cfg, err := s.configRepo.FindByID(txCtx, configID)
		if err != nil {
			return notFoundOr(err, "sequence config")
		}
		machines, err := s.scopeMachines(txCtx, cfg)
		if err != nil {
			return err
		}

		for i := range machines {
			m := &machines[i]
			names := machineNames(m, cfg.Prefix)

			number, ok := 0, false
			if m.SequenceNumber != nil {
				number, ok = *m.SequenceNumber, true
			}
			if !ok && previousTemplate != "" {
				number, ok = sequence.ExtractNumber(m.Sequence, previousTemplate, names)
			}
			if !ok {
				number, ok = sequence.ExtractNumber(m.Sequence, cfg.Template, names)
			}
			if !ok {
				report.Unresolved = append(report.Unresolved, UnresolvedSequence{
					MachineID: m.ID.String(), Sequence: m.Sequence, Reason: "number could not be recovered from sequence",
				})
				continue
			}

			rendered, err := sequence.Render(cfg.Template, sequence.Values{Names: names, Number: number})
			if err != nil {
				report.Unresolved = append(report.Unresolved, UnresolvedSequence{
					MachineID: m.ID.String(), Sequence: m.Sequence, Reason: err.Error(),
				})
				continue
			}
			if rendered == m.Sequence {
				report.Unchanged++
				continue
			}
			n := number
			if err := s.machineRepo.SetSequence(txCtx, m.ID, rendered, &n, &cfg.ID); err != nil {
				return fmt.Errorf("failed to update machine sequence: %w", err)
			}
			report.Updated++
		}

		if len(report.Unresolved) > 0 {
			logger.Warn("sequences left unresolved after template change",
				zap.String("config_id", cfg.ID.String()),
				zap.Int("unresolved", len(report.Unresolved)))
		}
		return writeAudit(txCtx, s.auditRepo, nil, model.ActionRerenderSequences, cfg.ID.String(), model.ScopeKey(cfg.CategoryID, cfg.SubcategoryID), map[string]interface{}{
			"previous_template": previousTemplate,
			"template":          cfg.Template,
			"updated":           report.Updated,
			"unchanged":         report.Unchanged,
			"unresolved":        len(report.Unresolved),
		})
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *sequenceService) CheckSequences(ctx context.Context, configID uuid.UUID) (*CheckReport, error) {
	cfg, err := s.configRepo.FindByID(ctx, configID)
	if err != nil {
		return nil, notFoundOr(err, "sequence config")
	}
	machines, err := s.scopeMachines(ctx, cfg)
	if err != nil {
		return nil, err
	}

	report := &CheckReport{ConfigID: cfg.ID.String(), Checked: len(machines), Invalid: []UnresolvedSequence{}}
	for i := range machines {
		m := &machines[i]
		if !sequence.Validate(m.Sequence, cfg.Template, machineNames(m, cfg.Prefix)) {
			report.Invalid = append(report.Invalid, UnresolvedSequence{
				MachineID: m.ID.String(), Sequence: m.Sequence, Reason: "does not match template " + cfg.Template,
			})
		}
	}
	return report, nil
}

// --- Response mappers ---

func toSequenceConfigResponse(cfg model.SequenceConfig) SequenceConfigResponse {
	resp := SequenceConfigResponse{
		ID:             cfg.ID.String(),
		CategoryID:     cfg.CategoryID.String(),
		SubcategoryID:  uuidPtrString(cfg.SubcategoryID),
		Prefix:         cfg.Prefix,
		Template:       cfg.Template,
		CurrentCounter: cfg.CurrentCounter,
		StartingNumber: cfg.StartingNumber,
		Active:         cfg.Active,
		CreatedAt:      cfg.CreatedAt.Format(timeLayout),
		UpdatedAt:      cfg.UpdatedAt.Format(timeLayout),
	}
	names := sequence.Names{Prefix: cfg.Prefix}
	if cfg.Category != nil {
		resp.CategoryName = cfg.Category.Name
		names.Category = cfg.Category.Name
	}
	if cfg.Subcategory != nil {
		resp.SubcategoryName = cfg.Subcategory.Name
		names.Subcategory = cfg.Subcategory.Name
	}
	next := cfg.CurrentCounter + 1
	if next < cfg.StartingNumber {
		next = cfg.StartingNumber
	}
	if preview, err := sequence.Render(cfg.Template, sequence.Values{Names: names, Number: next}); err == nil {
		resp.Preview = preview
	}
	return resp
}
