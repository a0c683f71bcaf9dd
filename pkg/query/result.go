package query

import "time"

// Status is the lifecycle state of an entry as seen by a reader.
type Status int

const (
	// StatusPending means no data and no error yet.
	StatusPending Status = iota

	// StatusError means the last fetch failed.
	StatusError

	// StatusSuccess means data is available.
	StatusSuccess
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusError:
		return "error"
	case StatusSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// Meta is the type-independent part of a Result.
type Meta struct {
	Status Status
	Err    error

	// IsFetching is true while a request for the entry is in flight,
	// including background revalidation.
	IsFetching bool

	// IsStale is true when the data is older than the stale time, was
	// invalidated, or does not exist yet.
	IsStale bool

	// IsPlaceholderData is true when Data belongs to a previous key.
	IsPlaceholderData bool

	DataUpdatedAt  time.Time
	ErrorUpdatedAt time.Time
}

// IsPending reports StatusPending.
func (m Meta) IsPending() bool { return m.Status == StatusPending }

// IsError reports StatusError.
func (m Meta) IsError() bool { return m.Status == StatusError }

// IsSuccess reports StatusSuccess.
func (m Meta) IsSuccess() bool { return m.Status == StatusSuccess }

// Result is the state projection a view renders from.
type Result[T any] struct {
	Data T
	Meta
}

// Combine aggregates the state of several queries rendered together.
// The combination is an error if any part failed (the first error wins),
// otherwise pending if any part is pending. Flags are OR-ed and
// DataUpdatedAt is the most recent of all parts.
func Combine(metas ...Meta) Meta {
	out := Meta{Status: StatusSuccess}
	pending := false

	for _, m := range metas {
		switch m.Status {
		case StatusError:
			if out.Status != StatusError {
				out.Status = StatusError
				out.Err = m.Err
				out.ErrorUpdatedAt = m.ErrorUpdatedAt
			}
		case StatusPending:
			pending = true
		}
		out.IsFetching = out.IsFetching || m.IsFetching
		out.IsStale = out.IsStale || m.IsStale
		out.IsPlaceholderData = out.IsPlaceholderData || m.IsPlaceholderData
		if m.DataUpdatedAt.After(out.DataUpdatedAt) {
			out.DataUpdatedAt = m.DataUpdatedAt
		}
	}

	if out.Status != StatusError && pending {
		out.Status = StatusPending
	}
	return out
}
