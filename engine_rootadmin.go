package goAccess

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vealkov/goAccess/rootadmin"
	"github.com/vealkov/goAccess/store"
)

// RootAdmins returns the current allowlist. Requires the
// root_admins.manage permission.
func (e *Engine) RootAdmins(actor *Identity) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if !HasPermission(actor.Role, PermRootManage) {
		return nil, ErrForbidden
	}
	return e.rootAdmins.Emails(), nil
}

// UpdateRootAdmins replaces the root-admin allowlist. Root only, a
// reason is mandatory, and the actor cannot remove themselves: losing
// the last root admin by accident is the failure mode this guards.
// The new set takes effect immediately and is persisted to the env
// file when one is configured.
func (e *Engine) UpdateRootAdmins(ctx context.Context, actor *Identity, emails []string, reason string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if actor == nil {
		return ErrUnauthenticated
	}
	if !HasPermission(actor.Role, PermRootManage) {
		return ErrForbidden
	}
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: a reason is required", ErrValidation)
	}

	if err := rootadmin.ValidateEmails(emails); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	selfKept := false
	for _, email := range emails {
		if store.NormalizeEmail(email) == actor.Email {
			selfKept = true
			break
		}
	}
	if !selfKept {
		return fmt.Errorf("%w: cannot remove yourself from the root admin list", ErrValidation)
	}

	before := e.rootAdmins.Emails()
	if err := e.rootAdmins.Replace(emails); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if e.rootEnv != "" {
		if err := e.rootAdmins.Persist(e.rootEnv); err != nil {
			e.log.Error("persist root admin list", "error", err)
		}
	}

	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		return e.recordAdminAction(ctx, tx, actor, nil, "", actionUpdateRootAdmins, map[string]any{
			"reason": reason,
			"before": before,
			"after":  e.rootAdmins.Emails(),
		})
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.log.Warn("root admin list updated",
		"actor_id", actor.AccountID, "count", e.rootAdmins.Len())
	return nil
}

// SyncRootAdmins reconciles account rows with the allowlist: every
// allowlisted account is promoted to admin with permanent trust and
// approval, and admin accounts that owe their flag to a past allowlist
// membership are demoted back to viewer with standard trust. Intended
// for startup and for after an allowlist change.
//
// Accounts missing for allowlisted emails are not created; the email
// owner still has to request access, which keeps first-factor
// credentials out of configuration.
func (e *Engine) SyncRootAdmins(ctx context.Context) (promoted, demoted int, err error) {
	if e == nil {
		return 0, 0, ErrEngineNotReady
	}

	for _, email := range e.rootAdmins.Emails() {
		account, lookupErr := e.store.AccountByEmail(ctx, email)
		if lookupErr != nil {
			if errors.Is(lookupErr, store.ErrNotFound) {
				continue
			}
			return promoted, demoted, fmt.Errorf("%w: %v", ErrStoreUnavailable, lookupErr)
		}
		if account.IsAdmin && account.IsApproved && !account.IsBlocked &&
			!account.IsDeleted && account.TrustPolicy == TrustPermanent {
			continue
		}
		account.IsAdmin = true
		account.Role = RoleAdmin
		account.IsApproved = true
		account.IsBlocked = false
		account.IsDeleted = false
		account.TrustPolicy = TrustPermanent
		if updateErr := e.store.UpdateAccount(ctx, account); updateErr != nil {
			return promoted, demoted, fmt.Errorf("%w: %v", ErrStoreUnavailable, updateErr)
		}
		promoted++
		e.log.Info("root admin promoted", "account_id", account.ID)
	}

	admins, listErr := e.store.ListAccounts(ctx, store.AccountFilter{OnlyAdmins: true})
	if listErr != nil {
		return promoted, demoted, fmt.Errorf("%w: %v", ErrStoreUnavailable, listErr)
	}
	for _, account := range admins {
		if e.rootAdmins.Contains(account.Email) {
			continue
		}
		// Only the is_admin flag marks allowlist promotions; admins
		// granted explicitly via a role change are not touched.
		account.IsAdmin = false
		account.Role = RoleViewer
		account.TrustPolicy = TrustStandard
		if updateErr := e.store.UpdateAccount(ctx, account); updateErr != nil {
			return promoted, demoted, fmt.Errorf("%w: %v", ErrStoreUnavailable, updateErr)
		}
		demoted++
		e.log.Info("stale root admin demoted", "account_id", account.ID)
	}

	return promoted, demoted, nil
}
