// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package transport

import (
	"context"
	"fmt"
)

// FetchConfig downloads the remote policy document.
func (c *Client) FetchConfig(ctx context.Context) (map[string]interface{}, error) {
	endpoint, err := c.endpoint(ConfigPath)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := c.getJSON(ctx, endpoint+"?"+c.query().Encode(), &doc); err != nil {
		return nil, fmt.Errorf("failed to fetch config: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("failed to fetch config: empty document")
	}
	return doc, nil
}
