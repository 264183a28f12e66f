package domain

import (
	"net/http"
	"strings"
)

// DefaultResponseVariable is used when a webhook does not name its response variable.
const DefaultResponseVariable = "webhook_response"

// DefaultWebhookTimeoutSeconds applies when timeout_seconds is unset.
const DefaultWebhookTimeoutSeconds = 10

// Webhook timeouts outside this range are clamped.
const (
	MinWebhookTimeoutSeconds = 1
	MaxWebhookTimeoutSeconds = 30
)

// WebhookMethods are the HTTP methods a function node may use.
var WebhookMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch}

// WebhookConfig describes the HTTP call made by a function node.
type WebhookConfig struct {
	URL              string            `json:"url" yaml:"url" mapstructure:"url"`
	Method           string            `json:"method,omitempty" yaml:"method,omitempty" mapstructure:"method"`
	Headers          map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" mapstructure:"headers"`
	BodyTemplate     string            `json:"body_template,omitempty" yaml:"body_template,omitempty" mapstructure:"body_template"`
	TimeoutSeconds   int               `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty" mapstructure:"timeout_seconds"`
	ResponseVariable string            `json:"response_variable,omitempty" yaml:"response_variable,omitempty" mapstructure:"response_variable"`

	SpeakDuringExecution bool         `json:"speak_during_execution,omitempty" yaml:"speak_during_execution,omitempty" mapstructure:"speak_during_execution"`
	DialogueType         DialogueType `json:"dialogue_type,omitempty" yaml:"dialogue_type,omitempty" mapstructure:"dialogue_type"`
	DialogueText         string       `json:"dialogue_text,omitempty" yaml:"dialogue_text,omitempty" mapstructure:"dialogue_text"`

	// WaitForResult is a pointer so that an absent field keeps the synchronous default.
	WaitForResult      *bool  `json:"wait_for_result,omitempty" yaml:"wait_for_result,omitempty" mapstructure:"wait_for_result"`
	BlockInterruptions bool   `json:"block_interruptions,omitempty" yaml:"block_interruptions,omitempty" mapstructure:"block_interruptions"`
	Goal               string `json:"goal,omitempty" yaml:"goal,omitempty" mapstructure:"goal"`
}

// ResponseVar returns the variable the response is bound to.
func (w WebhookConfig) ResponseVar() string {
	if w.ResponseVariable == "" {
		return DefaultResponseVariable
	}
	return w.ResponseVariable
}

// HTTPMethod returns the upper-cased method, POST when unset.
func (w WebhookConfig) HTTPMethod() string {
	if w.Method == "" {
		return http.MethodPost
	}
	return normalizeMethod(w.Method)
}

// Waits reports whether the session blocks on the webhook result.
func (w WebhookConfig) Waits() bool {
	return w.WaitForResult == nil || *w.WaitForResult
}

// Timeout returns the effective timeout in seconds.
func (w WebhookConfig) Timeout() int {
	return ClampTimeout(w.TimeoutSeconds)
}

// ClampTimeout applies the default and the 1-30 second range.
func ClampTimeout(seconds int) int {
	switch {
	case seconds <= 0:
		return DefaultWebhookTimeoutSeconds
	case seconds > MaxWebhookTimeoutSeconds:
		return MaxWebhookTimeoutSeconds
	}
	return seconds
}

// ValidMethod reports whether m is one of WebhookMethods.
func ValidMethod(m string) bool {
	m = normalizeMethod(m)
	for _, allowed := range WebhookMethods {
		if m == allowed {
			return true
		}
	}
	return false
}

func normalizeMethod(m string) string {
	return strings.ToUpper(strings.TrimSpace(m))
}
