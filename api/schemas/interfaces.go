package schemas

import (
	"context"
	"errors"
)

// -- Sentinel Errors --

var (
	// ErrFormNotFound is returned by a FormRepository when no schema is stored for an owner.
	ErrFormNotFound = errors.New("form schema not found")
	// ErrControlNotFound means a resolved option has no selectable input control under it.
	ErrControlNotFound = errors.New("option input control not found")
	// ErrSubmitNotFound means the live page has no submit control.
	ErrSubmitNotFound = errors.New("submit control not found")
)

// -- Store Interfaces --

// FormRepository persists form schemas keyed by an owner identifier (for example the id of
// the requester that supplied the form link). Save always overwrites the whole document.
type FormRepository interface {
	// Load returns the schema stored for ownerID, or ErrFormNotFound.
	Load(ctx context.Context, ownerID string) (*Form, error)
	// Save replaces the schema stored for ownerID.
	Save(ctx context.Context, ownerID string, form *Form) error
}

// SessionStore persists the browser session artifact shared across sequential replay runs.
type SessionStore interface {
	// Load returns the stored state. A store with nothing saved returns an empty state.
	Load(ctx context.Context) (*BrowserState, error)
	// Save replaces the stored state.
	Save(ctx context.Context, state *BrowserState) error
	// Reset discards the stored state.
	Reset(ctx context.Context) error
}

// -- Live Page Boundary --

// PageSnapshotter exposes what the extractor needs from a rendered page.
type PageSnapshotter interface {
	// CurrentURL returns the URL of the loaded document.
	CurrentURL(ctx context.Context) (string, error)
	// HTML returns the serialized DOM of the loaded document.
	HTML(ctx context.Context) (string, error)
}

// LivePage exposes the rendered form to the replayer. Question and option indices are
// 0-based and follow document order.
type LivePage interface {
	// QuestionCount returns the number of question blocks rendered. Zero when the form
	// container is absent.
	QuestionCount(ctx context.Context) (int, error)
	// OptionCount returns the number of option elements in question block q.
	OptionCount(ctx context.Context, q int) (int, error)
	// ActivateOption selects option o of question block q. It returns ErrControlNotFound
	// when the option has no input control.
	ActivateOption(ctx context.Context, q, o int) error
	// Submit activates the form's submit control, or returns ErrSubmitNotFound.
	Submit(ctx context.Context) error
}

// BrowserPage is a single browser tab exclusively owned by one job.
type BrowserPage interface {
	PageSnapshotter
	LivePage
	// Navigate loads url and waits until the form container is ready.
	Navigate(ctx context.Context, url string) error
	// CaptureState snapshots cookies and the current origin's localStorage.
	CaptureState(ctx context.Context) (*BrowserState, error)
	// RestoreState primes the tab with state. It must be called before Navigate.
	RestoreState(ctx context.Context, state *BrowserState) error
	// Close releases the tab. It is safe to call more than once.
	Close(ctx context.Context) error
}

// PageProvider hands out fresh, isolated browser pages.
type PageProvider interface {
	NewPage(ctx context.Context) (BrowserPage, error)
}
