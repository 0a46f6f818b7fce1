package agents

import (
	"errors"
	"fmt"
)

// ErrMissingCard is returned when an agent is invoked without a card.
// Malformed-but-present input is never an error; it is scored low or flagged.
type ErrMissingCard struct {
	error
}

func NewErrMissingCard(agentID string) *ErrMissingCard {
	return &ErrMissingCard{fmt.Errorf("%s: equipment card is required", agentID)}
}

// ErrMissingResearch is returned when the enrichment agent is invoked without
// a research report.
type ErrMissingResearch struct {
	error
}

func NewErrMissingResearch() *ErrMissingResearch {
	return &ErrMissingResearch{errors.New(enrichmentAgentID + ": research report is required")}
}
