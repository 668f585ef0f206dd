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

// Package hrn implements the Hodei Resource Name: a six-field hierarchical
// identifier for tenant-scoped resources, canonical form
// "hrn:partition:service:tenant:region:type/path" with "global" region
// serialising as the absent form.
package hrn

import (
	"fmt"
	"strings"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/auditerr"
)

// HRN is a parsed Hodei Resource Name.
type HRN struct {
	Partition    string
	Service      string
	TenantID     string
	Region       string // empty means "global"
	ResourceType string
	ResourcePath string
}

// Parse parses s into an HRN. Returns an InvalidArgument *auditerr.Error
// carrying the offending input and a human reason on failure.
func Parse(s string) (HRN, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 6 {
		return HRN{}, invalidFormat(s, "expected at least 6 colon-separated parts (hrn:partition:service:tenant:region:type/path)")
	}
	if parts[0] != "hrn" {
		return HRN{}, invalidFormat(s, "must start with 'hrn'")
	}

	resourceStr := strings.Join(parts[5:], ":")
	resourceParts := strings.SplitN(resourceStr, "/", 2)
	resourceType := resourceParts[0]
	if resourceType == "" {
		return HRN{}, invalidFormat(s, "resource type must not be empty")
	}
	resourcePath := ""
	if len(resourceParts) > 1 {
		resourcePath = resourceParts[1]
	}

	region := parts[4]
	if region == "global" {
		region = ""
	}

	return HRN{
		Partition:    parts[1],
		Service:      parts[2],
		TenantID:     parts[3],
		Region:       region,
		ResourceType: resourceType,
		ResourcePath: resourcePath,
	}, nil
}

func invalidFormat(input, reason string) error {
	return auditerr.New(auditerr.InvalidArgument, fmt.Sprintf("invalid HRN %q: %s", input, reason))
}

// String renders the canonical textual form. Round-tripping through Parse
// is lossless: Parse(h.String()) == h.
func (h HRN) String() string {
	region := h.Region
	if region == "" {
		region = "global"
	}
	return fmt.Sprintf("hrn:%s:%s:%s:%s:%s/%s", h.Partition, h.Service, h.TenantID, region, h.ResourceType, h.ResourcePath)
}

// Parent returns the HRN obtained by dropping the last '/'-separated path
// segment, and false if there is no parent (the path has one or zero
// segments).
func (h HRN) Parent() (HRN, bool) {
	segments := strings.Split(h.ResourcePath, "/")
	if len(segments) <= 1 {
		return HRN{}, false
	}
	parent := h
	parent.ResourcePath = strings.Join(segments[:len(segments)-1], "/")
	return parent, true
}

// IsChildOf reports whether h is a child of parent: same tenant and
// service, and h's resource path starts with parent's.
func (h HRN) IsChildOf(parent HRN) bool {
	return h.TenantID == parent.TenantID &&
		h.Service == parent.Service &&
		strings.HasPrefix(h.ResourcePath, parent.ResourcePath)
}
