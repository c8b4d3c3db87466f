// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package transport

import (
	"context"
	"fmt"

	"github.com/AccelByte/extend-offer-engagement/pkg/stats"
)

type syncResponse struct {
	AcceptedIDs []string `json:"acceptedIds"`
}

// PostBatch uploads a stats batch. Any 2xx is a positive acknowledgment;
// a body listing acceptedIds narrows it to those events.
func (c *Client) PostBatch(ctx context.Context, batch stats.Batch) (stats.Ack, error) {
	endpoint, err := c.endpoint(SyncPath)
	if err != nil {
		return stats.Ack{}, err
	}

	body := c.envelope()
	events := batch.Events
	if events == nil {
		events = []stats.StatEvent{}
	}
	body["stats"] = events

	var resp syncResponse
	if err := c.postJSON(ctx, endpoint, body, &resp); err != nil {
		// a 2xx with a non-JSON body still acknowledges the batch
		if isDecodeError(err) {
			return stats.Ack{}, nil
		}
		return stats.Ack{}, fmt.Errorf("failed to post stats: %w", err)
	}
	return stats.Ack{AcceptedIDs: resp.AcceptedIDs}, nil
}
