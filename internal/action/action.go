// Package action implements the {refresh|verify|send|process|daily|activate}
// action-dispatch contract (spec.md §6): a single entrypoint an external
// scheduler calls on a cron, naming which phase(s) of the pipeline to run.
package action

import (
	"context"
	"fmt"

	"github.com/ignite/automail/internal/pkg/logger"
)

// Name is one of the recognized action names in the dispatch contract.
type Name string

const (
	Refresh  Name = "refresh"
	Verify   Name = "verify"
	Send     Name = "send"
	Process  Name = "process" // verify + send
	Daily    Name = "daily"   // refresh + verify + send
	Activate Name = "activate"
)

// Refresher runs the scheduler's periodic or one-shot pass.
type Refresher interface {
	Refresh(ctx context.Context) error
	Activate(ctx context.Context, automationID string) error
}

// Verifier re-checks due-soon rows.
type Verifier interface {
	Run(ctx context.Context) ([]error, error)
}

// Dispatcher sends due rows.
type Dispatcher interface {
	Run(ctx context.Context) ([]error, error)
}

// Runner dispatches a single Request to the appropriate underlying phase(s).
type Runner struct {
	refresher  Refresher
	verifier   Verifier
	dispatcher Dispatcher
}

// New builds a Runner backed by the three pipeline phases.
func New(refresher Refresher, verifier Verifier, dispatcher Dispatcher) *Runner {
	return &Runner{refresher: refresher, verifier: verifier, dispatcher: dispatcher}
}

// Request is the decoded action-trigger body.
type Request struct {
	Action       Name   `json:"action"`
	AutomationID string `json:"automationId,omitempty"`
}

// Result reports what ran and any non-fatal per-row errors collected along
// the way; a non-nil error returned by Run means a phase could not run at all.
type Result struct {
	Ran              []Name  `json:"ran"`
	VerifyErrors     []error `json:"-"`
	DispatchErrors   []error `json:"-"`
	VerifyErrorCount int     `json:"verify_error_count"`
	SendErrorCount   int     `json:"send_error_count"`
}

// Run executes req, returning once every named phase has completed (or the
// context is cancelled). A phase's own errors are attached to Result rather
// than aborting a later phase in the same request.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	var res Result

	switch req.Action {
	case Refresh:
		if err := r.refresher.Refresh(ctx); err != nil {
			return res, fmt.Errorf("action: refresh: %w", err)
		}
		res.Ran = append(res.Ran, Refresh)

	case Activate:
		if req.AutomationID == "" {
			return res, fmt.Errorf("action: activate requires automationId")
		}
		if err := r.refresher.Activate(ctx, req.AutomationID); err != nil {
			return res, fmt.Errorf("action: activate %s: %w", req.AutomationID, err)
		}
		res.Ran = append(res.Ran, Activate)

	case Verify:
		if err := r.runVerify(ctx, &res); err != nil {
			return res, err
		}

	case Send:
		if err := r.runSend(ctx, &res); err != nil {
			return res, err
		}

	case Process:
		if err := r.runVerify(ctx, &res); err != nil {
			return res, err
		}
		if err := r.runSend(ctx, &res); err != nil {
			return res, err
		}

	case Daily:
		if err := r.refresher.Refresh(ctx); err != nil {
			return res, fmt.Errorf("action: daily refresh: %w", err)
		}
		res.Ran = append(res.Ran, Refresh)
		if err := r.runVerify(ctx, &res); err != nil {
			return res, err
		}
		if err := r.runSend(ctx, &res); err != nil {
			return res, err
		}

	default:
		return res, fmt.Errorf("action: unrecognized action %q", req.Action)
	}

	return res, nil
}

func (r *Runner) runVerify(ctx context.Context, res *Result) error {
	errs, err := r.verifier.Run(ctx)
	if err != nil {
		return fmt.Errorf("action: verify: %w", err)
	}
	for _, e := range errs {
		logger.Warn("action: verify row error", "error", e)
	}
	res.VerifyErrors = errs
	res.VerifyErrorCount = len(errs)
	res.Ran = append(res.Ran, Verify)
	return nil
}

func (r *Runner) runSend(ctx context.Context, res *Result) error {
	errs, err := r.dispatcher.Run(ctx)
	if err != nil {
		return fmt.Errorf("action: send: %w", err)
	}
	for _, e := range errs {
		logger.Warn("action: send row error", "error", e)
	}
	res.DispatchErrors = errs
	res.SendErrorCount = len(errs)
	res.Ran = append(res.Ran, Send)
	return nil
}
