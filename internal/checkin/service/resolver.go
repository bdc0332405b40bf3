package checkin

import (
	"context"
	"fmt"
	"time"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

const (
	SourceDirect = "direct"
	SourceCombo  = "combo"
)

// EligibleTarget is a target the scanned participant may be marked present for.
type EligibleTarget struct {
	Type   models.TargetType `json:"type"`
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Source string            `json:"source"`
}

func (t EligibleTarget) Ref() models.TargetRef {
	return models.TargetRef{Type: t.Type, ID: t.ID}
}

type Resolution struct {
	Participant *models.User
	Targets     []EligibleTarget
}

type Resolver struct {
	Store  EntitlementStore
	Logger *logger.Logger
	Now    func() time.Time
}

func NewResolver(store EntitlementStore, log *logger.Logger) *Resolver {
	return &Resolver{Store: store, Logger: log, Now: time.Now}
}

// Resolve computes which of the selected targets the participant is entitled
// to. Direct registrations must be for an active target inside its time
// window; combo-derived access only needs the pair to be selected.
func (r *Resolver) Resolve(ctx context.Context, participantID string, selected []models.TargetRef) (*Resolution, error) {
	user, err := r.Store.FindParticipant(ctx, participantID)
	if err != nil {
		return nil, newError(CodeStoreUnavailable, "failed to load participant", err)
	}
	if user == nil {
		return nil, ErrParticipantNotFound
	}
	if !user.IsActive {
		return nil, ErrParticipantInactive
	}
	if !user.IsParticipant() {
		return nil, ErrNotAParticipant
	}

	regs, err := r.Store.ListApprovedRegistrations(ctx, user.ID)
	if err != nil {
		return nil, newError(CodeStoreUnavailable, "failed to load registrations", err)
	}

	var direct []models.TargetRef
	var comboIDs []string
	for _, reg := range regs {
		if reg.PaymentStatus != models.PaymentApproved {
			continue
		}
		switch reg.TargetType {
		case models.TargetEvent, models.TargetWorkshop:
			direct = append(direct, reg.Ref())
		case models.TargetCombo:
			comboIDs = append(comboIDs, reg.TargetID)
		}
	}

	var comboPairs []models.TargetRef
	if len(comboIDs) > 0 {
		items, err := r.Store.ListComboMembership(ctx, comboIDs)
		if err != nil {
			return nil, newError(CodeStoreUnavailable, "failed to load combo membership", err)
		}
		for _, item := range items {
			if item.TargetType.Attendable() {
				comboPairs = append(comboPairs, item.Ref())
			}
		}
	}

	allowed := make(map[string]bool, len(selected))
	for _, ref := range selected {
		allowed[ref.Key()] = true
	}

	direct = filterAllowed(direct, allowed)
	comboPairs = filterAllowed(comboPairs, allowed)

	var provisional []EligibleTarget

	if len(direct) > 0 {
		targets, err := r.loadTargets(ctx, direct)
		if err != nil {
			return nil, newError(CodeStoreUnavailable, "failed to load targets", err)
		}
		now := r.Now()
		for _, ref := range direct {
			target, ok := targets[ref.Key()]
			if !ok {
				r.Logger.Warn("RESOLVER", fmt.Sprintf("Registered %s missing for participant %s", ref.Key(), user.ID))
				continue
			}
			if !target.IsActive {
				r.Logger.Debug("RESOLVER", fmt.Sprintf("Skipping inactive %s for participant %s", ref.Key(), user.ID))
				continue
			}
			if !target.InWindow(now) {
				r.Logger.Debug("RESOLVER", fmt.Sprintf("Skipping %s outside its time window for participant %s", ref.Key(), user.ID))
				continue
			}
			provisional = append(provisional, EligibleTarget{Type: ref.Type, ID: ref.ID, Name: target.Name, Source: SourceDirect})
		}
	}

	if len(comboPairs) > 0 {
		targets, err := r.loadTargets(ctx, comboPairs)
		if err != nil {
			// combo purchase was approved upstream; degrade to placeholder names
			r.Logger.Warn("RESOLVER", fmt.Sprintf("Combo target metadata unavailable for participant %s: %v", user.ID, err))
			targets = nil
		}
		for _, ref := range comboPairs {
			name := placeholderName(ref.Type)
			if target, ok := targets[ref.Key()]; ok {
				name = target.Name
			}
			provisional = append(provisional, EligibleTarget{Type: ref.Type, ID: ref.ID, Name: name, Source: SourceCombo})
		}
	}

	return &Resolution{Participant: user, Targets: dedupe(provisional)}, nil
}

// loadTargets fetches the referenced targets with one query per type.
func (r *Resolver) loadTargets(ctx context.Context, refs []models.TargetRef) (map[string]models.Target, error) {
	idsByType := make(map[models.TargetType][]string)
	for _, ref := range refs {
		idsByType[ref.Type] = append(idsByType[ref.Type], ref.ID)
	}

	out := make(map[string]models.Target, len(refs))
	for _, targetType := range []models.TargetType{models.TargetEvent, models.TargetWorkshop} {
		ids := idsByType[targetType]
		if len(ids) == 0 {
			continue
		}
		targets, err := r.Store.GetTargets(ctx, targetType, ids)
		if err != nil {
			return nil, err
		}
		for _, target := range targets {
			out[target.Ref().Key()] = target
		}
	}
	return out, nil
}

func filterAllowed(refs []models.TargetRef, allowed map[string]bool) []models.TargetRef {
	var out []models.TargetRef
	for _, ref := range refs {
		if allowed[ref.Key()] {
			out = append(out, ref)
		}
	}
	return out
}

func dedupe(targets []EligibleTarget) []EligibleTarget {
	seen := make(map[string]bool, len(targets))
	out := make([]EligibleTarget, 0, len(targets))
	for _, target := range targets {
		key := target.Ref().Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, target)
	}
	return out
}

func placeholderName(t models.TargetType) string {
	if t == models.TargetWorkshop {
		return "Combo workshop"
	}
	return "Combo event"
}
