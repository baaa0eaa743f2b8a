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


package storage

import (
	"fmt"
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/newsindex/core"
)

// articleVersion prefixes every encoded article row. Version 1 rows carry a
// single embedded fingerprint shared by both embedding fields.
const (
	articleVersion   uint64 = 2
	articleVersionV1 uint64 = 1
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := varint.Uint64.Unmarshal(data)
	return core.ID(id), err
}

// MarshalArticle serializes an Article to bytes.
func MarshalArticle(a *core.Article) []byte {
	var s sizer
	visitArticle(&s, a)
	w := writer{bs: make([]byte, s.n)}
	visitArticle(&w, a)
	return w.bs
}

// UnmarshalArticle deserializes an Article from bytes.
func UnmarshalArticle(data []byte) (*core.Article, error) {
	r := reader{bs: data}
	version := r.uint64()
	if r.err == nil && version != articleVersion && version != articleVersionV1 {
		return nil, fmt.Errorf("%w: unknown article version %d", ErrSerializationFailed, version)
	}
	a := &core.Article{
		Id:               core.ID(r.uint64()),
		Title:            r.string(),
		Reporter:         r.string(),
		Summary:          r.string(),
		Content:          r.string(),
		PublishDate:      r.time(),
		SourceURL:        r.string(),
		SourceSite:       r.string(),
		TitleEmbedding:   r.vector(),
		SummaryEmbedding: r.vector(),
		Fingerprint:      r.string(),
	}
	a.TitleEmbeddedFingerprint = r.string()
	if version == articleVersionV1 {
		a.SummaryEmbeddedFingerprint = a.TitleEmbeddedFingerprint
	} else {
		a.SummaryEmbeddedFingerprint = r.string()
	}
	a.CreatedAt = r.time()
	a.UpdatedAt = r.time()
	if r.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, r.err)
	}
	return a, nil
}

// fieldVisitor is implemented by the sizing and writing passes so both
// walk the fields in the same order.
type fieldVisitor interface {
	uint64(v uint64)
	string(v string)
	bool(v bool)
	int64(v int64)
	uint32(v uint32)
}

func visitArticle(v fieldVisitor, a *core.Article) {
	v.uint64(articleVersion)
	v.uint64(uint64(a.Id))
	v.string(a.Title)
	v.string(a.Reporter)
	v.string(a.Summary)
	v.string(a.Content)
	visitTime(v, a.PublishDate)
	v.string(a.SourceURL)
	v.string(a.SourceSite)
	visitVector(v, a.TitleEmbedding)
	visitVector(v, a.SummaryEmbedding)
	v.string(a.Fingerprint)
	v.string(a.TitleEmbeddedFingerprint)
	v.string(a.SummaryEmbeddedFingerprint)
	visitTime(v, a.CreatedAt)
	visitTime(v, a.UpdatedAt)
}

// Zero times are flagged explicitly so they survive the round trip unchanged.
func visitTime(v fieldVisitor, t time.Time) {
	v.bool(!t.IsZero())
	if !t.IsZero() {
		v.int64(t.UnixMicro())
	}
}

func visitVector(v fieldVisitor, vec []float32) {
	v.uint64(uint64(len(vec)))
	for _, f := range vec {
		v.uint32(math.Float32bits(f))
	}
}

type sizer struct{ n int }

func (s *sizer) uint64(v uint64) { s.n += varint.Uint64.Size(v) }
func (s *sizer) string(v string) { s.n += ord.String.Size(v) }
func (s *sizer) bool(v bool)     { s.n += ord.Bool.Size(v) }
func (s *sizer) int64(v int64)   { s.n += varint.Int64.Size(v) }
func (s *sizer) uint32(v uint32) { s.n += varint.Uint32.Size(v) }

type writer struct {
	bs []byte
	n  int
}

func (w *writer) uint64(v uint64) { w.n += varint.Uint64.Marshal(v, w.bs[w.n:]) }
func (w *writer) string(v string) { w.n += ord.String.Marshal(v, w.bs[w.n:]) }
func (w *writer) bool(v bool)     { w.n += ord.Bool.Marshal(v, w.bs[w.n:]) }
func (w *writer) int64(v int64)   { w.n += varint.Int64.Marshal(v, w.bs[w.n:]) }
func (w *writer) uint32(v uint32) { w.n += varint.Uint32.Marshal(v, w.bs[w.n:]) }

// reader decodes sequentially and latches the first error.
type reader struct {
	bs  []byte
	n   int
	err error
}

func (r *reader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) string() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) bool() bool {
	if r.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) int64() int64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) uint32() uint32 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint32.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) time() time.Time {
	if !r.bool() {
		return time.Time{}
	}
	micros := r.int64()
	if r.err != nil {
		return time.Time{}
	}
	return time.UnixMicro(micros).UTC()
}

func (r *reader) vector() []float32 {
	l := r.uint64()
	if r.err != nil || l == 0 {
		return nil
	}
	// Each component takes at least one byte
	if l > uint64(len(r.bs)-r.n) {
		r.err = fmt.Errorf("%w: vector length %d", ErrTruncatedData, l)
		return nil
	}
	vec := make([]float32, l)
	for i := range vec {
		vec[i] = math.Float32frombits(r.uint32())
	}
	if r.err != nil {
		return nil
	}
	return vec
}
