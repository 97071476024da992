package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/unclebandit/wabroadcast-backend/internal/model"
)

// RuleEvaluator gates conditional content on an external check. Contract
// quirk carried over from the validation service: a rule id that does not
// exist fails OPEN (contact passes), while a runtime/network error fails
// CLOSED (contact is skipped).
type RuleEvaluator interface {
	Evaluate(ruleID string, contact model.Contact, variables map[string]string) (bool, error)
}

// ValidationClient talks to the external validation/conditional-content
// service over HTTP.
type ValidationClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewValidationClient(baseURL string) *ValidationClient {
	return &ValidationClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type evaluateRequest struct {
	RuleID    string            `json:"rule_id"`
	Contact   model.Contact     `json:"contact"`
	Variables map[string]string `json:"variables,omitempty"`
}

type evaluateResponse struct {
	Result bool `json:"result"`
}

func (c *ValidationClient) Evaluate(ruleID string, contact model.Contact, variables map[string]string) (bool, error) {
	body, err := json.Marshal(evaluateRequest{RuleID: ruleID, Contact: contact, Variables: variables})
	if err != nil {
		return false, err
	}

	resp, err := c.HTTPClient.Post(c.BaseURL+"/evaluate", "application/json", bytes.NewReader(body))
	if err != nil {
		return false, err // unreachable service: fail closed
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return true, nil // unknown rule: fail open
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("validation service returned %d", resp.StatusCode)
	}

	var out evaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Result, nil
}

var _ RuleEvaluator = (*ValidationClient)(nil)
