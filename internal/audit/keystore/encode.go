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

package keystore

import (
	"time"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/model"
)

func decodeKeyInfo(info keyInfoFile, pub []byte) model.SigningKey {
	return model.SigningKey{
		ID:        info.ID,
		TenantID:  info.TenantID,
		PublicKey: pub,
		CreatedAt: time.UnixMilli(info.CreatedAt),
		ExpiresAt: time.UnixMilli(info.ExpiresAt),
		IsActive:  info.IsActive,
		Version:   info.Version,
	}
}
