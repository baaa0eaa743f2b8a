// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateDraft checks the mandatory draft fields: title, publish date and source URL.
func ValidateDraft(draft *ArticleDraft) error {
	if draft == nil {
		return fmt.Errorf("%w: draft is nil", ErrInvalidDraft)
	}

	if strings.TrimSpace(draft.Title) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDraft, ErrEmptyTitle)
	}

	if draft.PublishDate.IsZero() {
		return fmt.Errorf("%w: %w", ErrInvalidDraft, ErrMissingPublishDate)
	}

	if err := ValidateSourceURL(draft.SourceURL); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDraft, err)
	}

	return nil
}

// ValidateSourceURL requires a non-empty absolute http(s) URL.
func ValidateSourceURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrMissingSourceURL
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrRelativeSourceURL, raw)
	}
	return nil
}
