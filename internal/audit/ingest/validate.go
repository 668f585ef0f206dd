/*
Copyright 2025 Hodei Audit Trail Contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ingest

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/auditerr"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/hrn"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/model"
)

// validate runs struct-tag checks (model.Event's `validate:"required"` tags)
// ahead of the cross-field checks that need logic a tag can't express:
// tenant id consistency between the façade's argument and the event itself,
// and batch-size bounds.
var validate = validator.New()

func validateEvent(tenantID string, event model.Event) error {
	if tenantID == "" {
		return auditerr.New(auditerr.InvalidArgument, "tenant id must not be empty")
	}
	if err := validate.Struct(event); err != nil {
		return auditerr.Wrap(auditerr.InvalidArgument, "event failed validation", err)
	}
	if event.TenantID != "" && event.TenantID != tenantID {
		return auditerr.New(auditerr.InvalidArgument, fmt.Sprintf("event tenant id %q does not match request tenant id %q", event.TenantID, tenantID))
	}
	if event.ResourceHRN != "" {
		parsed, err := hrn.Parse(event.ResourceHRN)
		if err != nil {
			return err
		}
		if parsed.TenantID != tenantID {
			return auditerr.New(auditerr.InvalidArgument, fmt.Sprintf("resource hrn tenant %q does not match request tenant id %q", parsed.TenantID, tenantID))
		}
	}
	return nil
}

func validateBatchSize(n, maxBatchSize int) error {
	if n <= 0 {
		return auditerr.New(auditerr.InvalidArgument, "batch must contain at least one event")
	}
	if maxBatchSize > 0 && n > maxBatchSize {
		return auditerr.New(auditerr.InvalidArgument, fmt.Sprintf("batch of %d events exceeds max_batch_size %d", n, maxBatchSize))
	}
	return nil
}
