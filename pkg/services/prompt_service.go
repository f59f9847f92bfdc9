package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yourmoment/yourmoment/pkg/models"
	"github.com/yourmoment/yourmoment/pkg/monitor"
)

// PromptStore is the persistence surface for prompt templates.
type PromptStore interface {
	Create(ctx context.Context, tmpl *models.PromptTemplate) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PromptTemplate, error)
	ListVisibleToUser(ctx context.Context, userID uuid.UUID) ([]models.PromptTemplate, error)
	Update(ctx context.Context, tmpl *models.PromptTemplate) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PromptService manages prompt templates. Built-in SYSTEM templates are
// visible to everyone and immutable; USER templates belong to their creator.
type PromptService struct {
	prompts PromptStore
}

// NewPromptService creates a new PromptService.
func NewPromptService(prompts PromptStore) *PromptService {
	return &PromptService{prompts: prompts}
}

// CreatePrompt validates and stores a user-owned template.
func (s *PromptService) CreatePrompt(ctx context.Context, userID uuid.UUID, name, systemPrompt, userPromptTemplate string) (*models.PromptTemplate, error) {
	if name == "" {
		return nil, NewValidationError("name", "required")
	}
	if userPromptTemplate == "" {
		return nil, NewValidationError("user_prompt_template", "required")
	}
	if unknown := monitor.ValidatePlaceholders(userPromptTemplate); len(unknown) > 0 {
		return nil, NewValidationError("user_prompt_template",
			"unknown placeholders: "+strings.Join(unknown, ", "))
	}

	tmpl := &models.PromptTemplate{
		UserID:             &userID,
		Name:               name,
		Category:           models.PromptCategoryUser,
		SystemPrompt:       systemPrompt,
		UserPromptTemplate: userPromptTemplate,
		IsActive:           true,
	}
	if err := s.prompts.Create(ctx, tmpl); err != nil {
		return nil, mapStoreErr(err)
	}
	return tmpl, nil
}

// GetPrompt returns one template visible to the user.
func (s *PromptService) GetPrompt(ctx context.Context, userID, id uuid.UUID) (*models.PromptTemplate, error) {
	tmpl, err := s.prompts.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if tmpl.Category == models.PromptCategoryUser && (tmpl.UserID == nil || *tmpl.UserID != userID) {
		return nil, ErrForbidden
	}
	return tmpl, nil
}

// ListPrompts returns the SYSTEM templates plus the user's own.
func (s *PromptService) ListPrompts(ctx context.Context, userID uuid.UUID) ([]models.PromptTemplate, error) {
	return s.prompts.ListVisibleToUser(ctx, userID)
}

// UpdatePrompt modifies a user-owned template. SYSTEM templates are
// read-only.
func (s *PromptService) UpdatePrompt(ctx context.Context, userID, id uuid.UUID, name, systemPrompt, userPromptTemplate string) (*models.PromptTemplate, error) {
	tmpl, err := s.GetPrompt(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if tmpl.Category == models.PromptCategorySystem {
		return nil, ErrForbidden
	}
	if unknown := monitor.ValidatePlaceholders(userPromptTemplate); len(unknown) > 0 {
		return nil, NewValidationError("user_prompt_template",
			"unknown placeholders: "+strings.Join(unknown, ", "))
	}

	if name != "" {
		tmpl.Name = name
	}
	tmpl.SystemPrompt = systemPrompt
	tmpl.UserPromptTemplate = userPromptTemplate
	if err := s.prompts.Update(ctx, tmpl); err != nil {
		return nil, mapStoreErr(err)
	}
	return tmpl, nil
}

// DeletePrompt removes a user-owned template.
func (s *PromptService) DeletePrompt(ctx context.Context, userID, id uuid.UUID) error {
	tmpl, err := s.GetPrompt(ctx, userID, id)
	if err != nil {
		return err
	}
	if tmpl.Category == models.PromptCategorySystem {
		return ErrForbidden
	}
	return mapStoreErr(s.prompts.Delete(ctx, id))
}
