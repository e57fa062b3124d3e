package goAccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vealkov/goAccess/internal"
	"github.com/vealkov/goAccess/store"
)

// ActionSpec describes one entry of the closed admin-action catalog.
type ActionSpec struct {
	Name  string
	Label string
	// Critical actions get a confirmation step in consuming UIs.
	Critical bool
	// RequiresReason actions refuse an empty reason string.
	RequiresReason bool
	// NeedsRole and NeedsTrustPolicy mark the parameterized actions.
	NeedsRole        bool
	NeedsTrustPolicy bool
}

// actionCatalog is the closed set of admin actions, in display order.
var actionCatalog = []ActionSpec{
	{Name: actionApprove, Label: "Approve", NeedsRole: true},
	{Name: actionRemoveApprove, Label: "Remove approval", Critical: true},
	{Name: actionBlock, Label: "Block", Critical: true},
	{Name: actionUnblock, Label: "Unblock"},
	{Name: actionRevokeSessions, Label: "Revoke sessions", Critical: true},
	{Name: actionRevokeDevices, Label: "Revoke trusted devices", Critical: true},
	{Name: actionSendCode, Label: "Send login code"},
	{Name: actionSetTrustPolicy, Label: "Set trust policy", NeedsTrustPolicy: true},
	{Name: actionSetRole, Label: "Set role", Critical: true, NeedsRole: true, RequiresReason: true},
	{Name: actionDeleteSoft, Label: "Delete", Critical: true},
	{Name: actionRestore, Label: "Restore"},
	{Name: actionDeleteHard, Label: "Delete permanently", Critical: true, RequiresReason: true},
}

// ActionCatalog returns the admin-action catalog in display order.
func ActionCatalog() []ActionSpec {
	out := make([]ActionSpec, len(actionCatalog))
	copy(out, actionCatalog)
	return out
}

func actionSpec(name string) (ActionSpec, bool) {
	for _, spec := range actionCatalog {
		if spec.Name == name {
			return spec, true
		}
	}
	return ActionSpec{}, false
}

// BulkRequest applies one catalog action to a selection of accounts.
type BulkRequest struct {
	Action    string
	TargetIDs []int64
	// Role parameterizes set_role.
	Role Role
	// TrustPolicy parameterizes set_trust_policy.
	TrustPolicy TrustPolicy
	// Reason is recorded in the audit metadata. Mandatory for delete_hard.
	Reason string
}

// BulkItemResult is the per-target outcome of a bulk action.
type BulkItemResult struct {
	AccountID int64
	Email     string
	OK        bool
	// Code is the machine-readable rejection code for failed items.
	Code  string
	Error string
}

// BulkResult summarizes one bulk-action run.
type BulkResult struct {
	Action   string
	Items    []BulkItemResult
	Applied  int
	Rejected int
}

var errNothingApplied = errors.New("no bulk item applied")

// pendingCode is a login code issued inside the bulk transaction whose
// delivery happens only after commit.
type pendingCode struct {
	email string
	code  string
}

// ApplyBulkAction applies one catalog action to every selected account.
// Item rejections are collected rather than aborting the batch; the
// whole run shares a single transaction that commits when at least one
// item applied, so a run where every item was rejected leaves no trace
// beyond the returned results. A store failure inside any item,
// including a failed audit write, rolls the entire batch back instead:
// no state change may outlive its audit row.
//
// Requires the users.manage permission. Additional per-item rules:
// root-allowlisted targets accept only send_code from a root actor,
// admin targets and the admin role assignment require a root actor,
// no actor may change their own role, and delete_hard is root-only,
// never self-targeted, and must carry a reason.
func (e *Engine) ApplyBulkAction(ctx context.Context, actor *Identity, req BulkRequest) (*BulkResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if !HasPermission(actor.Role, PermUsersManage) {
		return nil, ErrForbidden
	}

	spec, ok := actionSpec(req.Action)
	if !ok {
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, req.Action)
	}
	if len(req.TargetIDs) == 0 {
		return nil, fmt.Errorf("%w: empty selection", ErrValidation)
	}
	if spec.NeedsRole && !req.Role.Storable() {
		return nil, fmt.Errorf("%w: role %q cannot be assigned", ErrValidation, req.Role)
	}
	if spec.NeedsTrustPolicy && !req.TrustPolicy.Valid() {
		return nil, fmt.Errorf("%w: unknown trust policy %q", ErrValidation, req.TrustPolicy)
	}
	if spec.RequiresReason && req.Reason == "" {
		return nil, fmt.Errorf("%w: %s requires a reason", ErrValidation, spec.Name)
	}
	if req.Action == actionDeleteHard && actor.Role != RoleRootAdmin {
		return nil, ErrForbidden
	}

	targets := dedupeIDs(req.TargetIDs)
	result := &BulkResult{Action: req.Action}
	var pending []pendingCode

	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, id := range targets {
			item, itemErr := e.applyBulkItem(ctx, tx, actor, spec, req, id, &pending)
			if itemErr != nil {
				// A store failure mid-item may leave a half-applied
				// mutation; only a full rollback keeps every surviving
				// change audited.
				return itemErr
			}
			result.Items = append(result.Items, item)
			if item.OK {
				result.Applied++
			} else {
				result.Rejected++
			}
		}
		if result.Applied == 0 {
			return errNothingApplied
		}
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, errNothingApplied):
		// Every item was rejected; nothing was persisted.
	default:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	for _, p := range pending {
		if e.sender.SendCode(ctx, p.email, p.code) {
			e.metricInc(MetricCodeSent)
		} else {
			e.metricInc(MetricCodeSendFailed)
			e.log.Warn("admin-sent login code delivery failed")
		}
	}

	for i := 0; i < result.Applied; i++ {
		e.metricInc(MetricBulkItemApplied)
	}
	for i := 0; i < result.Rejected; i++ {
		e.metricInc(MetricBulkItemRejected)
	}
	e.log.Info("bulk action applied", "action", req.Action,
		"actor_id", actor.AccountID, "applied", result.Applied, "rejected", result.Rejected)

	return result, nil
}

// applyBulkItem runs one target. A returned error is a store failure
// after the handler may have mutated state; it aborts the batch so the
// shared transaction cannot commit an unaudited change.
func (e *Engine) applyBulkItem(ctx context.Context, tx *store.Tx, actor *Identity, spec ActionSpec, req BulkRequest, targetID int64, pending *[]pendingCode) (BulkItemResult, error) {
	item := BulkItemResult{AccountID: targetID}

	target, err := tx.AccountByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return rejected(item, "not_found", "account does not exist"), nil
		}
		return item, err
	}
	item.Email = target.Email

	if !actionEligible(spec.Name, target) {
		return rejected(item, "not_eligible",
			fmt.Sprintf("%s does not apply to this account state", spec.Name)), nil
	}
	if code, reason := e.authorizeBulkItem(actor, target, req); code != "" {
		return rejected(item, code, reason), nil
	}

	metadata := map[string]any{}
	if req.Reason != "" {
		metadata["reason"] = req.Reason
	}

	if err := e.runBulkHandler(ctx, tx, req, target, metadata, pending); err != nil {
		return item, err
	}

	// delete_hard nulls the audit target reference afterwards, so the
	// audit row has to exist first.
	if err := e.recordAdminAction(ctx, tx, actor, &target.ID, target.Email, spec.Name, metadata); err != nil {
		return item, err
	}
	if req.Action == actionDeleteHard {
		if err := tx.HardDeleteAccount(ctx, target.ID); err != nil {
			return item, err
		}
	}

	item.OK = true
	return item, nil
}

func rejected(item BulkItemResult, code, reason string) BulkItemResult {
	item.OK = false
	item.Code = code
	item.Error = reason
	return item
}

// authorizeBulkItem enforces the per-item protection rules. An empty
// code means the item is allowed.
func (e *Engine) authorizeBulkItem(actor *Identity, target *Account, req BulkRequest) (code, reason string) {
	actorIsRoot := actor.Role == RoleRootAdmin

	if e.rootAdmins.Contains(target.Email) {
		if req.Action == actionSendCode && actorIsRoot {
			return "", ""
		}
		return "protected", "root admins can only receive a login code, from a root admin"
	}

	if EffectiveRole(target, e.rootAdmins) == RoleAdmin && !actorIsRoot {
		return "forbidden", "only a root admin may act on an admin account"
	}

	switch req.Action {
	case actionApprove:
		if req.Role == RoleAdmin && !actorIsRoot {
			return "forbidden", "only a root admin may assign the admin role"
		}
	case actionSetRole:
		if target.ID == actor.AccountID {
			return "forbidden", "cannot change your own role"
		}
		if req.Role == RoleAdmin && !actorIsRoot {
			return "forbidden", "only a root admin may assign the admin role"
		}
	case actionDeleteHard:
		if target.ID == actor.AccountID {
			return "forbidden", "cannot permanently delete your own account"
		}
	}

	return "", ""
}

// actionEligible reports whether the action applies to the account's
// current state. Eligibility is about state, not about who is asking.
func actionEligible(action string, target *Account) bool {
	if target.IsDeleted {
		return action == actionRestore || action == actionDeleteHard
	}

	switch action {
	case actionApprove:
		return !target.IsApproved
	case actionRemoveApprove:
		return target.IsApproved
	case actionBlock:
		return !target.IsBlocked
	case actionUnblock:
		return target.IsBlocked
	case actionRevokeSessions, actionRevokeDevices, actionSetTrustPolicy, actionSetRole:
		return target.IsApproved
	case actionSendCode:
		return target.IsApproved && !target.IsBlocked
	case actionDeleteSoft, actionDeleteHard:
		return true
	case actionRestore:
		return false
	default:
		return false
	}
}

func (e *Engine) runBulkHandler(ctx context.Context, tx *store.Tx, req BulkRequest, target *Account, metadata map[string]any, pending *[]pendingCode) error {
	switch req.Action {
	case actionApprove:
		// Approval grants a role in the same stroke; a lingering block
		// would contradict the grant.
		metadata["role"] = string(req.Role)
		target.IsApproved = true
		target.IsBlocked = false
		target.Role = req.Role
		return tx.UpdateAccount(ctx, target)

	case actionRemoveApprove:
		target.IsApproved = false
		return tx.UpdateAccount(ctx, target)

	case actionBlock:
		target.IsBlocked = true
		if err := tx.UpdateAccount(ctx, target); err != nil {
			return err
		}
		_, err := tx.BumpTokenVersion(ctx, target.ID)
		return err

	case actionUnblock:
		target.IsBlocked = false
		return tx.UpdateAccount(ctx, target)

	case actionRevokeSessions:
		_, err := tx.BumpTokenVersion(ctx, target.ID)
		return err

	case actionRevokeDevices:
		revoked, err := tx.RevokeDevicesForAccount(ctx, target.ID, time.Now().UTC())
		if err != nil {
			return err
		}
		metadata["revoked"] = revoked
		return nil

	case actionSendCode:
		code, err := internal.NewLoginCode(e.config.Challenge.CodeDigits)
		if err != nil {
			return err
		}
		challenge := &store.Challenge{
			ID:        uuid.NewString(),
			AccountID: target.ID,
			CodeHash:  internal.KeyedHash(code, e.config.Secret.HashKey),
			ExpiresAt: time.Now().UTC().Add(e.config.Challenge.TTL),
		}
		if err := tx.CreateChallenge(ctx, challenge); err != nil {
			return err
		}
		metadata["challenge_id"] = challenge.ID
		*pending = append(*pending, pendingCode{email: target.Email, code: code})
		return nil

	case actionSetTrustPolicy:
		metadata["trust_policy"] = string(req.TrustPolicy)
		target.TrustPolicy = req.TrustPolicy
		return tx.UpdateAccount(ctx, target)

	case actionSetRole:
		metadata["role"] = string(req.Role)
		// The legacy is_admin flag is left alone: it marks allowlist
		// promotions, while role grants live in the role column.
		target.Role = req.Role
		if err := tx.UpdateAccount(ctx, target); err != nil {
			return err
		}
		// A role change invalidates outstanding sessions; the next
		// login carries the new role.
		_, err := tx.BumpTokenVersion(ctx, target.ID)
		return err

	case actionDeleteSoft:
		target.IsDeleted = true
		target.IsBlocked = true
		target.IsApproved = false
		if err := tx.UpdateAccount(ctx, target); err != nil {
			return err
		}
		if _, err := tx.BumpTokenVersion(ctx, target.ID); err != nil {
			return err
		}
		if _, err := tx.RevokeDevicesForAccount(ctx, target.ID, time.Now().UTC()); err != nil {
			return err
		}
		return tx.DeleteChallengesForAccount(ctx, target.ID)

	case actionRestore:
		target.IsDeleted = false
		target.IsBlocked = false
		// Neither approval nor role survives restoration; the account
		// re-enters the pending queue as a viewer.
		target.IsApproved = false
		target.Role = RoleViewer
		return tx.UpdateAccount(ctx, target)

	case actionDeleteHard:
		// Handled after the audit row is written.
		metadata["email"] = target.Email
		return nil

	default:
		return fmt.Errorf("unhandled action %q", req.Action)
	}
}

// AvailableActions returns the catalog actions, in catalog order, that
// the actor could apply to the given account right now.
func (e *Engine) AvailableActions(actor *Identity, target *Account) []string {
	if e == nil || actor == nil || target == nil {
		return nil
	}
	if !HasPermission(actor.Role, PermUsersManage) {
		return nil
	}

	var out []string
	for _, spec := range actionCatalog {
		if !actionEligible(spec.Name, target) {
			continue
		}
		req := BulkRequest{Action: spec.Name}
		if spec.NeedsRole {
			// Authorization is checked against the least privileged
			// assignable role; the caller picks the real one later.
			req.Role = RoleViewer
		}
		if spec.Name == actionDeleteHard && actor.Role != RoleRootAdmin {
			continue
		}
		if code, _ := e.authorizeBulkItem(actor, target, req); code != "" {
			continue
		}
		out = append(out, spec.Name)
	}
	return out
}

// AvailableActionsForSelection returns the union of per-account
// available actions across a selection, in catalog order. An action
// shows up when at least one selected account accepts it; per-item
// rejection at apply time reports the rest.
func (e *Engine) AvailableActionsForSelection(actor *Identity, targets []*Account) []string {
	if e == nil || actor == nil {
		return nil
	}

	seen := map[string]bool{}
	for _, target := range targets {
		for _, name := range e.AvailableActions(actor, target) {
			seen[name] = true
		}
	}

	var out []string
	for _, spec := range actionCatalog {
		if seen[spec.Name] {
			out = append(out, spec.Name)
		}
	}
	return out
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ListAccounts returns accounts for the admin user list. Requires the
// users.manage permission.
func (e *Engine) ListAccounts(ctx context.Context, actor *Identity, filter store.AccountFilter) ([]*Account, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if !HasPermission(actor.Role, PermUsersManage) {
		return nil, ErrForbidden
	}

	accounts, err := e.store.ListAccounts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return accounts, nil
}
