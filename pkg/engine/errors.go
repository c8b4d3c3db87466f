// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package engine

import (
	"errors"

	"github.com/AccelByte/extend-offer-engagement/pkg/offer"
	"github.com/AccelByte/extend-offer-engagement/pkg/policy"
	"github.com/AccelByte/extend-offer-engagement/pkg/remoteconfig"
	"github.com/AccelByte/extend-offer-engagement/pkg/stats"
	"github.com/AccelByte/extend-offer-engagement/pkg/store"
)

var (
	// ErrConfigUnavailable means no config snapshot exists; every channel is denied.
	ErrConfigUnavailable = remoteconfig.ErrConfigUnavailable

	// ErrOfferFetchFailed means the offer service could not be reached or answered badly.
	ErrOfferFetchFailed = offer.ErrOfferFetchFailed

	// ErrStoreIO wraps every persistent store failure.
	ErrStoreIO = store.ErrStoreIO

	// ErrSyncUploadFailed means a stats batch was not acknowledged.
	ErrSyncUploadFailed = stats.ErrSyncUploadFailed

	// ErrInvalidConfigValue marks a knob that was coerced into range.
	ErrInvalidConfigValue = policy.ErrInvalidConfigValue

	// ErrUnknownReference is returned for a reference id with no pending offer request.
	ErrUnknownReference = errors.New("unknown offer reference")

	// ErrMissingCollaborator is returned by New when a required dependency is nil.
	ErrMissingCollaborator = errors.New("missing engine collaborator")
)
