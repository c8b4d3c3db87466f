// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/AccelByte/extend-offer-engagement/pkg/policy"
	"github.com/AccelByte/extend-offer-engagement/pkg/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const anonIDKey = "device:anon_id"

func (e *Engine) SetPostSessionNotifDisabled(ctx context.Context, disabled bool) error {
	return e.config.UpdateOverrides(ctx, func(o *policy.ClientOverrides) {
		o.PostSessionNotifDisabled = disabled
	})
}

func (e *Engine) SetMidSessionMessageDisabled(ctx context.Context, disabled bool) error {
	return e.config.UpdateOverrides(ctx, func(o *policy.ClientOverrides) {
		o.MidSessionMessageDisabled = disabled
	})
}

// SetAllAutoAdsDisabled toggles both automatic triggers at once.
func (e *Engine) SetAllAutoAdsDisabled(ctx context.Context, disabled bool) error {
	return e.config.UpdateOverrides(ctx, func(o *policy.ClientOverrides) {
		o.PostSessionNotifDisabled = disabled
		o.MidSessionMessageDisabled = disabled
	})
}

// LoadOrCreateAnonID returns the install id, generating and persisting one on first use.
func LoadOrCreateAnonID(ctx context.Context, s store.Store) (string, error) {
	var id string
	_, err := s.Update(ctx, anonIDKey, func(current []byte, exists bool) ([]byte, error) {
		if exists && len(current) > 0 {
			id = string(current)
			return current, nil
		}
		id = uuid.NewString()
		return []byte(id), nil
	})
	if err != nil {
		if id != "" && errors.Is(err, store.ErrStoreIO) {
			logrus.Warnf("anonymous id %s not persisted: %v", id, err)
			return id, nil
		}
		return "", fmt.Errorf("failed to load anonymous id: %w", err)
	}
	return id, nil
}
