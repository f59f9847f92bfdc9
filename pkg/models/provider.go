package models

import (
	"time"

	"github.com/google/uuid"
)

// Supported LLM provider names.
const (
	ProviderOpenAI  = "openai"
	ProviderMistral = "mistral"
)

// ProviderInfo describes a supported provider's defaults.
type ProviderInfo struct {
	DefaultModels []string
	APIKeyPrefix  string
}

// SupportedProviders maps provider names to their defaults. The API key
// prefix is a soft heuristic used for warnings, not validation.
var SupportedProviders = map[string]ProviderInfo{
	ProviderOpenAI: {
		DefaultModels: []string{"gpt-5-nano", "gpt-5", "gpt-4.1"},
		APIKeyPrefix:  "sk-",
	},
	ProviderMistral: {
		DefaultModels: []string{"mistral-small-latest", "magistral-small-latest", "magistral-medium-latest", "mistral-medium-latest"},
		APIKeyPrefix:  "",
	},
}

// LLMProviderConfig is a user's configuration for one LLM provider. The API
// key is stored encrypted.
type LLMProviderConfig struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	UserID          uuid.UUID  `db:"user_id" json:"user_id"`
	ProviderName    string     `db:"provider_name" json:"provider_name"`
	EncryptedAPIKey string     `db:"encrypted_api_key" json:"-"`
	ModelName       string     `db:"model_name" json:"model_name"`
	MaxTokens       *int       `db:"max_tokens" json:"max_tokens,omitempty"`
	Temperature     *float64   `db:"temperature" json:"temperature,omitempty"`
	IsActive        bool       `db:"is_active" json:"is_active"`
	LastUsed        *time.Time `db:"last_used" json:"last_used,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// PromptCategory distinguishes built-in templates from user-owned ones.
type PromptCategory string

// Prompt template categories.
const (
	PromptCategorySystem PromptCategory = "SYSTEM"
	PromptCategoryUser   PromptCategory = "USER"
)

// PromptTemplate is a reusable system+user prompt pair. SYSTEM templates
// have no owner; USER templates belong to a user.
type PromptTemplate struct {
	ID                 uuid.UUID      `db:"id" json:"id"`
	UserID             *uuid.UUID     `db:"user_id" json:"user_id,omitempty"`
	Name               string         `db:"name" json:"name"`
	Category           PromptCategory `db:"category" json:"category"`
	SystemPrompt       string         `db:"system_prompt" json:"system_prompt"`
	UserPromptTemplate string         `db:"user_prompt_template" json:"user_prompt_template"`
	IsActive           bool           `db:"is_active" json:"is_active"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// RecognizedPlaceholders is the fixed set of `{name}` placeholders a user
// prompt template may reference. Values come from the article snapshot.
var RecognizedPlaceholders = map[string]string{
	"article_title":        "Titel des Artikels",
	"article_content":      "Vollständiger Inhalt des Artikels",
	"article_author":       "Name der Autor:in (Pseudonym)",
	"article_category":     "Kategorie des Artikels",
	"article_published_at": "Publikationszeitpunkt",
	"article_url":          "URL des Artikels",
	"platform_username":    "Benutzername des verwendeten Logins",
}
