package academic

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/academic-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/academic-enrollment-api/pkg/errors"
)

type requestAction string

const (
	requestActionReview  requestAction = "review"
	requestActionApprove requestAction = "approve"
	requestActionReject  requestAction = "reject"
)

var requestTransitions = map[models.RequestState]map[requestAction]models.RequestState{
	models.RequestStatePending:  {requestActionReview: models.RequestStateInReview},
	models.RequestStateInReview: {requestActionApprove: models.RequestStateApproved, requestActionReject: models.RequestStateRejected},
}

var requestTargets = map[requestAction]models.RequestState{
	requestActionReview:  models.RequestStateInReview,
	requestActionApprove: models.RequestStateApproved,
	requestActionReject:  models.RequestStateRejected,
}

func requestTransition(from models.RequestState, action requestAction) (models.RequestState, bool) {
	to, ok := requestTransitions[from][action]
	return to, ok
}

// checkRequestTransition returns the target state of action or the error that
// describes why the request cannot take it.
func checkRequestTransition(r *models.ChangeRequest, action requestAction) (models.RequestState, error) {
	if to, ok := requestTransition(r.State, action); ok {
		return to, nil
	}
	switch {
	case r.State == models.RequestStateApproved && action == requestActionApprove:
		return "", appErrors.Clonef(appErrors.ErrRequestAlreadyApproved, "request %s already approved", r.ID)
	case r.State == models.RequestStateRejected && action == requestActionReject:
		return "", appErrors.Clonef(appErrors.ErrRequestAlreadyRejected, "request %s already rejected", r.ID)
	}
	msg := fmt.Sprintf("request %s cannot move from %s to %s", r.ID, r.State, requestTargets[action])
	if r.State == models.RequestStatePending && action != requestActionReview {
		return "", appErrors.Wrap(
			appErrors.Clonef(appErrors.ErrRequestNotInReview, "request %s is %s", r.ID, r.State),
			appErrors.ErrInvalidStateTransition.Code, appErrors.ErrInvalidStateTransition.Status, msg)
	}
	return "", appErrors.Clone(appErrors.ErrInvalidStateTransition, msg)
}

// ReviewRequest moves a pending request into review.
func ReviewRequest(r *models.ChangeRequest, reviewer string, now time.Time) error {
	to, err := checkRequestTransition(r, requestActionReview)
	if err != nil {
		return err
	}
	who := reviewer
	at := now
	r.State = to
	r.ReviewedBy = &who
	r.ReviewedAt = &at
	r.Version++
	return nil
}

// ApproveRequest marks an in-review request approved. It does not apply the
// academic change; Operations.ApproveRequest does both.
func ApproveRequest(r *models.ChangeRequest, resolver, comment string, now time.Time) error {
	return resolveRequest(r, requestActionApprove, resolver, comment, now)
}

// RejectRequest marks an in-review request rejected.
func RejectRequest(r *models.ChangeRequest, resolver, comment string, now time.Time) error {
	return resolveRequest(r, requestActionReject, resolver, comment, now)
}

func resolveRequest(r *models.ChangeRequest, action requestAction, resolver, comment string, now time.Time) error {
	to, err := checkRequestTransition(r, action)
	if err != nil {
		return err
	}
	if r.ResolvedAt != nil || r.ResolutionComment != nil {
		return appErrors.Clonef(appErrors.ErrInternal, "request %s resolution already written", r.ID)
	}
	who := resolver
	at := now
	note := strings.TrimSpace(comment)
	r.State = to
	r.ResolvedBy = &who
	r.ResolvedAt = &at
	r.ResolutionComment = &note
	r.Version++
	return nil
}
