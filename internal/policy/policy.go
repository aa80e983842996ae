// Package policy holds the capability table that decides which role may move
// a purchase request through which transition. It is a pure function of
// (role, action, state) and never touches storage.
package policy

import (
	"fmt"

	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/google/uuid"
)

// Action is a workflow operation a caller asks to perform
type Action string

const (
	ActionSubmit          Action = "submit"
	ActionUpdate          Action = "update"
	ActionDelete          Action = "delete"
	ActionApproveL1       Action = "approve_l1"
	ActionRejectL1        Action = "reject_l1"
	ActionApproveL2       Action = "approve_l2"
	ActionRejectL2        Action = "reject_l2"
	ActionOverrideApprove Action = "override_approve"
	ActionOverrideReject  Action = "override_reject"
	ActionCancel          Action = "cancel"
	ActionSubmitProforma  Action = "submit_proforma"
	ActionSubmitReceipt   Action = "submit_receipt"
	ActionDownload        Action = "download"
)

// State is the workflow position derived from status and the level flags
type State string

const (
	StateNone      State = ""
	StatePendingL1 State = "pending_l1"
	StatePendingL2 State = "pending_l2"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"
	StateCancelled State = "cancelled"
)

// StateOf derives the workflow position of a request
func StateOf(r *models.PurchaseRequest) State {
	switch r.Status {
	case models.StatusApproved:
		return StateApproved
	case models.StatusRejected:
		return StateRejected
	case models.StatusCancelled:
		return StateCancelled
	}
	if r.Level1Approved {
		return StatePendingL2
	}
	return StatePendingL1
}

// Reason explains a denied decision
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonPermission Reason = "permission"
	ReasonState      Reason = "state"
)

// Decision is the outcome of a capability check
type Decision struct {
	Allowed bool
	Reason  Reason
	Message string
}

type rule struct {
	roles  []models.Role
	states []State
	// messages overrides the state-conflict message for specific states
	messages map[State]string
}

var anyState = []State{StateNone, StatePendingL1, StatePendingL2, StateApproved, StateRejected, StateCancelled}

var reviewStates = []State{StatePendingL1, StatePendingL2}

var table = map[Action]rule{
	ActionSubmit: {
		roles:  []models.Role{models.RoleStaff, models.RoleAdmin},
		states: []State{StateNone},
	},
	ActionUpdate: {
		roles:    []models.Role{models.RoleStaff},
		states:   []State{StatePendingL1},
		messages: map[State]string{StatePendingL2: "request can no longer be edited once level 1 has approved it"},
	},
	ActionDelete: {
		roles:    []models.Role{models.RoleStaff},
		states:   []State{StatePendingL1},
		messages: map[State]string{StatePendingL2: "request can no longer be deleted once level 1 has approved it"},
	},
	ActionApproveL1: {
		roles:    []models.Role{models.RoleApproverLevel1},
		states:   []State{StatePendingL1},
		messages: map[State]string{StatePendingL2: "level 1 already approved"},
	},
	ActionRejectL1: {
		roles:    []models.Role{models.RoleApproverLevel1},
		states:   []State{StatePendingL1},
		messages: map[State]string{StatePendingL2: "level 1 already approved"},
	},
	ActionApproveL2: {
		roles:    []models.Role{models.RoleApproverLevel2},
		states:   []State{StatePendingL2},
		messages: map[State]string{StatePendingL1: "level 1 not yet approved"},
	},
	ActionRejectL2: {
		roles:    []models.Role{models.RoleApproverLevel2},
		states:   []State{StatePendingL2},
		messages: map[State]string{StatePendingL1: "level 1 not yet approved"},
	},
	ActionOverrideApprove: {
		roles:  []models.Role{models.RoleAdmin},
		states: reviewStates,
	},
	ActionOverrideReject: {
		roles:  []models.Role{models.RoleAdmin},
		states: reviewStates,
	},
	ActionCancel: {
		roles:  []models.Role{models.RoleFinance, models.RoleAdmin},
		states: []State{StatePendingL1, StatePendingL2, StateApproved},
	},
	ActionSubmitProforma: {
		roles:  []models.Role{models.RoleStaff, models.RoleFinance},
		states: reviewStates,
	},
	ActionSubmitReceipt: {
		roles:    []models.Role{models.RoleStaff, models.RoleFinance},
		states:   []State{StateApproved},
		messages: map[State]string{StatePendingL1: "receipt can only be submitted for approved requests", StatePendingL2: "receipt can only be submitted for approved requests"},
	},
	ActionDownload: {
		roles:  []models.Role{models.RoleApproverLevel1, models.RoleApproverLevel2, models.RoleFinance, models.RoleAdmin},
		states: anyState,
	},
}

// Decide evaluates the capability table. Role is checked before state so a
// caller without the capability never learns about the request state.
func Decide(role models.Role, action Action, state State) Decision {
	r, ok := table[action]
	if !ok {
		return Decision{Reason: ReasonPermission, Message: fmt.Sprintf("unknown action %q", action)}
	}

	if !containsRole(r.roles, role) {
		return Decision{
			Reason:  ReasonPermission,
			Message: fmt.Sprintf("role %q may not %s", role, describe(action)),
		}
	}

	if !containsState(r.states, state) {
		msg, ok := r.messages[state]
		if !ok {
			msg = stateMessage(action, state)
		}
		return Decision{Reason: ReasonState, Message: msg}
	}

	return Decision{Allowed: true}
}

// ReviewActions maps an approval level onto its approve and reject actions
func ReviewActions(level models.ApprovalLevel) (approve, reject Action, ok bool) {
	switch level {
	case models.LevelOne:
		return ActionApproveL1, ActionRejectL1, true
	case models.LevelTwo:
		return ActionApproveL2, ActionRejectL2, true
	case models.LevelAdminOverride:
		return ActionOverrideApprove, ActionOverrideReject, true
	}
	return "", "", false
}

// LevelForRole returns the review level a role acts at
func LevelForRole(role models.Role) (models.ApprovalLevel, bool) {
	switch role {
	case models.RoleApproverLevel1:
		return models.LevelOne, true
	case models.RoleApproverLevel2:
		return models.LevelTwo, true
	}
	return "", false
}

// HasActed reports whether the user already left a non-override review on the request
func HasActed(r *models.PurchaseRequest, userID uuid.UUID) bool {
	for _, a := range r.Approvals {
		if a.ApproverID == userID && !a.Level.IsOverride() {
			return true
		}
	}
	return false
}

func actedOn(r *models.PurchaseRequest, userID uuid.UUID) bool {
	for _, a := range r.Approvals {
		if a.ApproverID == userID {
			return true
		}
	}
	return false
}

// CanView reports whether the actor may see the request
func CanView(actor models.Actor, r *models.PurchaseRequest) bool {
	if r.CreatedBy == actor.UserID {
		return true
	}
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleApproverLevel1:
		return StateOf(r) == StatePendingL1 || actedOn(r, actor.UserID)
	case models.RoleApproverLevel2:
		return StateOf(r) == StatePendingL2 || actedOn(r, actor.UserID)
	case models.RoleFinance:
		return r.Status == models.StatusApproved || actedOn(r, actor.UserID)
	}
	return false
}

func containsRole(roles []models.Role, role models.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func containsState(states []State, state State) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

func describe(action Action) string {
	switch action {
	case ActionApproveL1:
		return "approve at level 1"
	case ActionRejectL1:
		return "reject at level 1"
	case ActionApproveL2:
		return "approve at level 2"
	case ActionRejectL2:
		return "reject at level 2"
	case ActionOverrideApprove:
		return "override-approve requests"
	case ActionOverrideReject:
		return "override-reject requests"
	case ActionSubmitProforma:
		return "submit a proforma"
	case ActionSubmitReceipt:
		return "submit a receipt"
	case ActionDownload:
		return "download documents"
	}
	return string(action) + " requests"
}

func stateMessage(action Action, state State) string {
	switch state {
	case StateRejected:
		return "request is already rejected"
	case StateCancelled:
		return "request is already cancelled"
	case StateApproved:
		return "request is already approved"
	}
	return fmt.Sprintf("cannot %s while request is %s", action, state)
}
