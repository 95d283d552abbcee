package service

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"votechain/contracts"
	"votechain/encryption"
	"votechain/models"
)

// Layouts accepted for election start/end input, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// AdminFlow submits privileged registry changes. The role check is only a
// hint for the caller; the registry enforces the role on every call.
type AdminFlow struct {
	crypto   *encryption.CryptoService
	location *time.Location
}

func NewAdminFlow(cs *encryption.CryptoService, location *time.Location) *AdminFlow {
	if location == nil {
		location = time.Local
	}
	return &AdminFlow{crypto: cs, location: location}
}

func (a *AdminFlow) IsAdmin(ctx context.Context, reg contracts.Registry, account common.Address) (bool, error) {
	return reg.HasRole(ctx, a.crypto.RoleHash(encryption.AdminRole), account)
}

// ParseTime reads user time input. Inputs without a zone use the flow's location.
// Instants before the Unix epoch are rejected.
func (a *AdminFlow) ParseTime(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, models.NewValidationError(field, "required")
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, a.location); err == nil {
			// the registry stores unsigned seconds
			if t.Unix() < 0 {
				return time.Time{}, models.NewValidationError(field, "must not be before 1970-01-01")
			}
			return t, nil
		}
	}
	return time.Time{}, models.NewValidationError(field, "not a valid date and time")
}

// ValidateElection checks the form and returns the on-chain second timestamps.
func (a *AdminFlow) ValidateElection(form models.ElectionForm) (start, end int64, err error) {
	if strings.TrimSpace(form.Position) == "" {
		return 0, 0, models.NewValidationError("position", "required")
	}
	if strings.TrimSpace(form.Region) == "" {
		return 0, 0, models.NewValidationError("region", "required")
	}
	if strings.TrimSpace(form.StartTime) == "" {
		return 0, 0, models.NewValidationError("start_time", "required")
	}
	if strings.TrimSpace(form.EndTime) == "" {
		return 0, 0, models.NewValidationError("end_time", "required")
	}
	startAt, err := a.ParseTime("start_time", form.StartTime)
	if err != nil {
		return 0, 0, err
	}
	endAt, err := a.ParseTime("end_time", form.EndTime)
	if err != nil {
		return 0, 0, err
	}
	if endAt.Before(startAt) {
		return 0, 0, models.NewValidationError("end_time", "must not be before start_time")
	}
	return startAt.Unix(), endAt.Unix(), nil
}

// CreateElection validates, submits and waits for confirmation. The new
// election only shows up after the directory is reloaded.
func (a *AdminFlow) CreateElection(ctx context.Context, reg contracts.Registry, form models.ElectionForm) error {
	start, end, err := a.ValidateElection(form)
	if err != nil {
		return err
	}
	return reg.CreateElection(ctx, strings.TrimSpace(form.Position), strings.TrimSpace(form.Region), start, end)
}

func (a *AdminFlow) AddCandidate(ctx context.Context, reg contracts.Registry, form models.CandidateForm) error {
	if strings.TrimSpace(form.Name) == "" {
		return models.NewValidationError("name", "required")
	}
	if form.Number == 0 {
		return models.NewValidationError("number", "required")
	}
	if strings.TrimSpace(form.Party) == "" {
		return models.NewValidationError("party", "required")
	}
	return reg.AddCandidate(ctx, form.ElectionID, strings.TrimSpace(form.Name), form.Number, strings.TrimSpace(form.Party))
}

// SetVoterRoll publishes the commitment root of the eligible voter list.
func (a *AdminFlow) SetVoterRoll(ctx context.Context, reg contracts.Registry, electionID uint64, root string) error {
	raw, err := hexutil.Decode(strings.TrimSpace(root))
	if err != nil || len(raw) != common.HashLength {
		return models.NewValidationError("root", "must be a 0x-prefixed 32 byte hex value")
	}
	return reg.SetVoterRoll(ctx, electionID, common.BytesToHash(raw))
}
