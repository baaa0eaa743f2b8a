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

import "errors"

var (
	// ErrInvalidDraft indicates an ArticleDraft failed validation.
	ErrInvalidDraft = errors.New("invalid article draft")

	// ErrEmptyTitle indicates the Title field is empty.
	ErrEmptyTitle = errors.New("title cannot be empty")

	// ErrMissingPublishDate indicates the PublishDate field is zero.
	ErrMissingPublishDate = errors.New("publish date is required")

	// ErrMissingSourceURL indicates the SourceURL field is empty.
	ErrMissingSourceURL = errors.New("source url is required")

	// ErrRelativeSourceURL indicates the SourceURL is not absolute.
	ErrRelativeSourceURL = errors.New("source url must be absolute")

	// ErrInvalidDate indicates a date string matched none of the accepted layouts.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidField indicates an unknown embedding field name.
	ErrInvalidField = errors.New("field must be one of title, summary, both")
)
