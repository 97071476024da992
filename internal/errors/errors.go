package appErrors

import "fmt"

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
    CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
    return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
    return &ErrCampaignNotFound{CampaignID: id}
}

// ErrAudienceNotFound signals a missing or foreign-owned audience reference.
type ErrAudienceNotFound struct {
    AudienceID int
}

func (e *ErrAudienceNotFound) Error() string {
    return fmt.Sprintf("audience with ID %d not found", e.AudienceID)
}

func NewAudienceNotFound(id int) error {
    return &ErrAudienceNotFound{AudienceID: id}
}

// ErrAutomationNotFound signals a missing automated campaign.
type ErrAutomationNotFound struct {
    AutomationID int
}

func (e *ErrAutomationNotFound) Error() string {
    return fmt.Sprintf("automated campaign with ID %d not found", e.AutomationID)
}

func NewAutomationNotFound(id int) error {
    return &ErrAutomationNotFound{AutomationID: id}
}

// ErrEmptyAudience means an audience resolved to zero eligible contacts at
// campaign start. Terminal for that run: the campaign goes to failed and is
// not retried automatically.
type ErrEmptyAudience struct {
    CampaignID int
    AudienceID int
}

func (e *ErrEmptyAudience) Error() string {
    return fmt.Sprintf("audience %d resolved to zero eligible contacts for campaign %d", e.AudienceID, e.CampaignID)
}

func NewEmptyAudience(campaignID, audienceID int) error {
    return &ErrEmptyAudience{CampaignID: campaignID, AudienceID: audienceID}
}

// ErrIllegalTransition means a lifecycle operation was attempted from a status
// it is not permitted in. The operation aborts without mutating state.
type ErrIllegalTransition struct {
    From string
    To   string
}

func (e *ErrIllegalTransition) Error() string {
    return fmt.Sprintf("illegal campaign status transition %s -> %s", e.From, e.To)
}

func NewIllegalTransition(from, to string) error {
    return &ErrIllegalTransition{From: from, To: to}
}

// ErrStepSequenceCorrupt means an automated campaign's stored step orders have
// a gap or duplicate and the sequencer cannot advance safely.
type ErrStepSequenceCorrupt struct {
    CampaignID int
}

func (e *ErrStepSequenceCorrupt) Error() string {
    return fmt.Sprintf("step sequence for automated campaign %d has a gap or duplicate order", e.CampaignID)
}

func NewStepSequenceCorrupt(campaignID int) error {
    return &ErrStepSequenceCorrupt{CampaignID: campaignID}
}
