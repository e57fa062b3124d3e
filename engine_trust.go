package goAccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vealkov/goAccess/store"
)

// ListOwnDevices returns the caller's trusted devices, newest first,
// revoked and expired entries included so a UI can show the full
// history.
func (e *Engine) ListOwnDevices(ctx context.Context, actor *Identity) ([]*TrustedDevice, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if actor == nil {
		return nil, ErrUnauthenticated
	}

	devices, err := e.store.ListDevices(ctx, actor.AccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return devices, nil
}

// RevokeOwnDevice revokes one of the caller's trusted devices.
// Revoking an already revoked device succeeds; a device belonging to
// someone else is reported as not found rather than forbidden.
func (e *Engine) RevokeOwnDevice(ctx context.Context, actor *Identity, deviceID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if actor == nil {
		return ErrUnauthenticated
	}
	if deviceID == "" {
		return fmt.Errorf("%w: device id required", ErrValidation)
	}

	device, err := e.store.DeviceByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if device.AccountID != actor.AccountID {
		return ErrNotFound
	}

	if err := e.store.RevokeDevice(ctx, deviceID, time.Now().UTC()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricDeviceRevoked)
	e.log.Info("trusted device revoked",
		"account_id", actor.AccountID, "device_id", deviceID)
	return nil
}

// RevokeOwnDevices revokes every active trusted device of the caller.
func (e *Engine) RevokeOwnDevices(ctx context.Context, actor *Identity) (int64, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	if actor == nil {
		return 0, ErrUnauthenticated
	}

	revoked, err := e.store.RevokeDevicesForAccount(ctx, actor.AccountID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	for i := int64(0); i < revoked; i++ {
		e.metricInc(MetricDeviceRevoked)
	}
	e.log.Info("trusted devices revoked",
		"account_id", actor.AccountID, "count", revoked)
	return revoked, nil
}

// KeepOnlyDevice revokes every trusted device of the caller except one.
// With an empty keepID the most recently used active device survives;
// with an explicit keepID that device must exist, belong to the caller,
// and still be active. Idempotent: repeating the call revokes nothing
// further.
func (e *Engine) KeepOnlyDevice(ctx context.Context, actor *Identity, keepID string) (int64, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	if actor == nil {
		return 0, ErrUnauthenticated
	}

	now := time.Now().UTC()

	if keepID == "" {
		device, err := e.store.MostRecentActiveDevice(ctx, actor.AccountID, now)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return 0, ErrNotFound
			}
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		keepID = device.ID
	} else {
		device, err := e.store.DeviceByID(ctx, keepID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return 0, ErrNotFound
			}
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if device.AccountID != actor.AccountID {
			return 0, ErrNotFound
		}
		if !device.Active(now) {
			return 0, fmt.Errorf("%w: kept device is not active", ErrValidation)
		}
	}

	revoked, err := e.store.RevokeDevicesExcept(ctx, actor.AccountID, keepID, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	for i := int64(0); i < revoked; i++ {
		e.metricInc(MetricDeviceRevoked)
	}
	e.log.Info("trusted devices trimmed to one",
		"account_id", actor.AccountID, "kept_device_id", keepID, "revoked", revoked)
	return revoked, nil
}
