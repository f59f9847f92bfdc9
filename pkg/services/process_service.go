package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yourmoment/yourmoment/pkg/config"
	"github.com/yourmoment/yourmoment/pkg/models"
)

// ProcessStore is the persistence surface for monitoring processes.
type ProcessStore interface {
	Create(ctx context.Context, proc *models.MonitoringProcess, loginIDs []uuid.UUID, prompts []models.ProcessPrompt) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.MonitoringProcess, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.MonitoringProcess, error)
	CountActiveByUser(ctx context.Context, userID uuid.UUID) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ProcessController starts and stops process pipelines.
type ProcessController interface {
	StartProcess(ctx context.Context, processID uuid.UUID) error
	StopProcess(ctx context.Context, processID uuid.UUID) error
}

// PromptSelection attaches one template to a process with a weight.
type PromptSelection struct {
	PromptTemplateID uuid.UUID `json:"prompt_template_id"`
	Weight           float64   `json:"weight"`
}

// CreateProcessRequest carries everything needed to define a process.
type CreateProcessRequest struct {
	UserID      uuid.UUID `json:"-"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`

	CategoryFilter *int    `json:"category_filter,omitempty"`
	TaskFilter     *int    `json:"task_filter,omitempty"`
	TabFilter      *string `json:"tab_filter,omitempty"`
	SearchFilter   *string `json:"search_filter,omitempty"`
	SortOption     *string `json:"sort_option,omitempty"`

	MaxDurationMinutes int  `json:"max_duration_minutes"`
	GenerateOnly       bool `json:"generate_only"`
	HideComments       bool `json:"hide_comments"`

	LLMProviderID *uuid.UUID        `json:"llm_provider_id,omitempty"`
	LoginIDs      []uuid.UUID       `json:"login_ids"`
	Prompts       []PromptSelection `json:"prompts"`
}

// ProcessService manages monitoring process definitions and delegates the
// running pipeline to the orchestrator.
type ProcessService struct {
	processes  ProcessStore
	logins     LoginStore
	prompts    PromptStore
	providers  ProviderStore
	controller ProcessController
	cfg        config.MonitoringConfig
}

// NewProcessService creates a new ProcessService.
func NewProcessService(processes ProcessStore, logins LoginStore, prompts PromptStore, providers ProviderStore, controller ProcessController, cfg config.MonitoringConfig) *ProcessService {
	return &ProcessService{
		processes:  processes,
		logins:     logins,
		prompts:    prompts,
		providers:  providers,
		controller: controller,
		cfg:        cfg,
	}
}

// CreateProcess validates the definition and stores it in created state.
func (s *ProcessService) CreateProcess(ctx context.Context, req CreateProcessRequest) (*models.MonitoringProcess, error) {
	if req.Name == "" {
		return nil, NewValidationError("name", "required")
	}
	if len(req.LoginIDs) == 0 {
		return nil, NewValidationError("login_ids", "at least one platform login required")
	}
	if len(req.Prompts) == 0 {
		return nil, NewValidationError("prompts", "at least one prompt template required")
	}
	if req.MaxDurationMinutes < 0 {
		return nil, NewValidationError("max_duration_minutes", "must be positive")
	}
	if req.MaxDurationMinutes == 0 {
		req.MaxDurationMinutes = s.cfg.DefaultDurationMin
	}

	active, err := s.processes.CountActiveByUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if active >= s.cfg.MaxConcurrentPerUser {
		return nil, NewValidationError("user",
			fmt.Sprintf("concurrent process limit reached (%d)", s.cfg.MaxConcurrentPerUser))
	}

	for _, loginID := range req.LoginIDs {
		login, err := s.logins.GetByID(ctx, loginID)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		if login.UserID != req.UserID {
			return nil, ErrForbidden
		}
		if !login.IsActive {
			return nil, NewValidationError("login_ids", fmt.Sprintf("login %s is inactive", loginID))
		}
	}

	selections := make([]models.ProcessPrompt, 0, len(req.Prompts))
	for _, sel := range req.Prompts {
		tmpl, err := s.prompts.GetByID(ctx, sel.PromptTemplateID)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		if tmpl.Category == models.PromptCategoryUser && (tmpl.UserID == nil || *tmpl.UserID != req.UserID) {
			return nil, ErrForbidden
		}
		if sel.Weight < 0 {
			return nil, NewValidationError("prompts", "weight must not be negative")
		}
		weight := sel.Weight
		if weight == 0 {
			weight = 1
		}
		selections = append(selections, models.ProcessPrompt{
			PromptTemplateID: sel.PromptTemplateID,
			Weight:           weight,
			IsActive:         true,
		})
	}

	if req.LLMProviderID != nil {
		provider, err := s.providers.GetByID(ctx, *req.LLMProviderID)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		if provider.UserID != req.UserID {
			return nil, ErrForbidden
		}
		if !provider.IsActive {
			return nil, NewValidationError("llm_provider_id", "provider is inactive")
		}
	}

	proc := &models.MonitoringProcess{
		UserID:             req.UserID,
		Name:               req.Name,
		Description:        req.Description,
		CategoryFilter:     req.CategoryFilter,
		TaskFilter:         req.TaskFilter,
		TabFilter:          req.TabFilter,
		SearchFilter:       req.SearchFilter,
		SortOption:         req.SortOption,
		MaxDurationMinutes: req.MaxDurationMinutes,
		GenerateOnly:       req.GenerateOnly,
		HideComments:       req.HideComments,
		LLMProviderID:      req.LLMProviderID,
		Status:             models.ProcessStatusCreated,
		IsActive:           true,
	}
	if err := s.processes.Create(ctx, proc, req.LoginIDs, selections); err != nil {
		return nil, mapStoreErr(err)
	}
	return proc, nil
}

// GetProcess returns one process, enforcing ownership.
func (s *ProcessService) GetProcess(ctx context.Context, userID, id uuid.UUID) (*models.MonitoringProcess, error) {
	proc, err := s.processes.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if proc.UserID != userID {
		return nil, ErrForbidden
	}
	return proc, nil
}

// ListProcesses returns a user's processes.
func (s *ProcessService) ListProcesses(ctx context.Context, userID uuid.UUID) ([]models.MonitoringProcess, error) {
	return s.processes.ListByUser(ctx, userID)
}

// StartProcess launches the pipeline for an owned process.
func (s *ProcessService) StartProcess(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.GetProcess(ctx, userID, id); err != nil {
		return err
	}
	return s.controller.StartProcess(ctx, id)
}

// StopProcess halts an owned process.
func (s *ProcessService) StopProcess(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.GetProcess(ctx, userID, id); err != nil {
		return err
	}
	return s.controller.StopProcess(ctx, id)
}

// DeleteProcess removes a process that is not currently running.
func (s *ProcessService) DeleteProcess(ctx context.Context, userID, id uuid.UUID) error {
	proc, err := s.GetProcess(ctx, userID, id)
	if err != nil {
		return err
	}
	if proc.IsRunning() {
		return NewValidationError("status", "stop the process before deleting it")
	}
	return mapStoreErr(s.processes.Delete(ctx, id))
}
