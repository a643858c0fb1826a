package reports

import (
	"context"
	"errors"

	"github.com/joffchandler/Sentinel-flight-ops/internal/authz"
	"github.com/joffchandler/Sentinel-flight-ops/internal/identity"
	"github.com/joffchandler/Sentinel-flight-ops/internal/orgs"
	"github.com/joffchandler/Sentinel-flight-ops/internal/risk"
	"github.com/rs/zerolog/log"
)

// EvaluationRequest asks for a pre-flight risk check.
type EvaluationRequest struct {
	Location     risk.Area   `json:"location"`
	FlightWindow risk.Window `json:"flightWindow"`
	ProjectTag   string      `json:"projectTag"`
	// Override is applied only if the evaluation decides NO-GO.
	Override *OverrideRequest `json:"override,omitempty"`
}

// Evaluation is a decided and committed risk check.
type Evaluation struct {
	Outcome   risk.Outcome `json:"outcome"`
	Committed *Committed   `json:"reports"`
}

// Evaluator runs risk checks and commits their reports.
type Evaluator struct {
	runner  *risk.Runner
	reports *Service
	orgs    Organisations
}

// NewEvaluator creates an evaluator.
func NewEvaluator(runner *risk.Runner, reports *Service, organisations Organisations) *Evaluator {
	return &Evaluator{runner: runner, reports: reports, orgs: organisations}
}

// thresholds returns the weather limits of the actor's organisation, or the
// defaults for principals without one.
func (e *Evaluator) thresholds(ctx context.Context, actor *identity.Principal) (risk.Thresholds, error) {
	if actor.OrganisationID == "" {
		return risk.DefaultThresholds(), nil
	}
	org, err := e.orgs.Lookup(ctx, actor.OrganisationID)
	if err != nil {
		if errors.Is(err, orgs.ErrOrgNotFound) {
			return risk.DefaultThresholds(), nil
		}
		return risk.Thresholds{}, err
	}
	if org.RiskThresholds.Validate() != nil {
		return risk.DefaultThresholds(), nil
	}
	return org.RiskThresholds, nil
}

// Evaluate runs every provider for the request and commits the report from
// the DECIDED transition. A newer evaluation by the same principal supersedes
// this one (risk.ErrSuperseded); a cancelled ctx abandons it
// (risk.ErrAbandoned). Neither commits anything.
func (e *Evaluator) Evaluate(ctx context.Context, actor *identity.Principal, req EvaluationRequest) (*Evaluation, error) {
	if err := authz.Check(actor, authz.ViewOwnReports, ""); err != nil {
		return nil, err
	}
	if err := req.Location.Validate(); err != nil {
		return nil, err
	}
	if err := req.FlightWindow.Validate(); err != nil {
		return nil, err
	}
	if req.Override != nil {
		if err := req.Override.validate(); err != nil {
			return nil, err
		}
	}

	thresholds, err := e.thresholds(ctx, actor)
	if err != nil {
		return nil, err
	}

	riskReq := risk.Request{
		Area:        req.Location,
		Window:      req.FlightWindow,
		Credentials: actor.Credentials,
		Thresholds:  thresholds,
	}

	var committed *Committed
	outcome, err := e.runner.Run(ctx, actor.ID, riskReq, func(ctx context.Context, outcome risk.Outcome) error {
		override := req.Override
		if override != nil && outcome.Decision != risk.DecisionNoGo {
			log.Info().
				Str("evaluation_id", outcome.EvaluationID).
				Str("decision", string(outcome.Decision)).
				Msg("Ignoring requested override for non NO-GO decision")
			override = nil
		}

		// Once decided the commit runs to completion even if the caller
		// goes away.
		c, err := e.reports.Commit(context.WithoutCancel(ctx), CommitRequest{
			Principal:  actor,
			Outcome:    outcome,
			Location:   req.Location,
			Window:     req.FlightWindow,
			ProjectTag: req.ProjectTag,
			Override:   override,
		})
		if err != nil {
			return err
		}
		committed = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Evaluation{Outcome: outcome, Committed: committed}, nil
}
