// Package preview resolves user-supplied image sources into a displayed
// preview and keeps the canonical form fields and the info banner in step.
//
// A Resolver is the state of one page. Intake methods return immediately;
// loads, fetches and string extraction run in the background and report
// back through completions tagged with the attempt that started them. Only
// the latest attempt's completion changes visible state.
package preview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lehigh-university-libraries/imagepicker/internal/images"
	"github.com/lehigh-university-libraries/imagepicker/internal/objecturl"
	"github.com/lehigh-university-libraries/imagepicker/internal/source"
)

// Options configures a Resolver. Zero values get defaults.
type Options struct {
	Validator *source.Validator
	Objects   *objecturl.Registry
	Loader    Loader
	Fetcher   Fetcher

	// FetchRemote downloads accepted URLs and previews them as picked files.
	FetchRemote bool
	// EmbedImageData attaches the resolved bytes to submissions.
	EmbedImageData bool

	Observer Observer
	Logger   *slog.Logger
}

// Resolver is the image source pipeline for one form.
type Resolver struct {
	validator   *source.Validator
	objects     *objecturl.Registry
	loader      Loader
	fetcher     Fetcher
	fetchRemote bool
	embed       bool
	observer    Observer
	log         *slog.Logger

	ctx  context.Context
	stop context.CancelFunc

	mu           sync.Mutex
	closed       bool
	pending      int
	idle         chan struct{}
	intake       uint64
	attempt      uint64
	cancel       context.CancelFunc
	status       Status
	feedback     Feedback
	form         FormState
	live         *handle
	displayed    *Image
	displayedFor source.ImageSource
	lastErr      error
}

func New(opts Options) *Resolver {
	r := &Resolver{
		validator:   opts.Validator,
		objects:     opts.Objects,
		loader:      opts.Loader,
		fetcher:     opts.Fetcher,
		fetchRemote: opts.FetchRemote,
		embed:       opts.EmbedImageData,
		observer:    opts.Observer,
		log:         opts.Logger,
	}
	if r.validator == nil {
		r.validator = source.NewValidator()
	}
	if r.objects == nil {
		r.objects = objecturl.New("http://localhost")
	}
	if r.fetcher == nil {
		r.fetcher = images.NewFetcher(0, 0, false)
	}
	if r.loader == nil {
		r.loader = NewLoader(r.objects, r.fetcher, 0, 0)
	}
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	r.ctx, r.stop = context.WithCancel(context.Background())
	return r
}

// SelectFiles handles the file picker. Only the first file counts; an empty
// selection is ignored.
func (r *Resolver) SelectFiles(files []*source.Blob) {
	if len(files) == 0 || files[0] == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.intake++
	r.accept("file", source.FileCandidate(files[0]))
}

// ChangeURL handles a change of the URL field. valid is the field's own
// format validity; invalid or blank values are ignored without feedback.
func (r *Resolver) ChangeURL(value string, valid bool) {
	value = strings.TrimSpace(value)
	if !valid || value == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.intake++
	r.accept("url", source.TextCandidate(value))
}

// Drop handles a drag-and-drop payload.
func (r *Resolver) Drop(p source.Payload) {
	r.ingest("drop", p)
}

// Paste handles a clipboard payload.
func (r *Resolver) Paste(p source.Payload) {
	r.ingest("paste", p)
}

func (r *Resolver) ingest(channel string, p source.Payload) {
	sel := source.Normalize(p)
	if sel.Empty() {
		r.log.Debug("Payload carried no usable item", "channel", channel)
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.intake++
	if sel.File != nil {
		r.accept(channel, source.FileCandidate(sel.File))
		r.mu.Unlock()
		return
	}
	gen := r.intake
	item := *sel.Item
	r.track()
	r.mu.Unlock()

	go func() {
		defer r.untrack()

		text, err := item.Get(r.ctx)
		if err != nil {
			r.log.Debug("String extraction failed", "channel", channel, "type", item.Type, "err", err)
			return
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed || gen != r.intake {
			r.log.Debug("Dropping superseded string extraction", "channel", channel)
			return
		}
		r.accept(channel, source.ExtractedCandidate(item.Type, text))
	}()
}

// accept validates a candidate and, on success, mirrors it onto the form
// before starting a new attempt. Callers hold r.mu.
func (r *Resolver) accept(channel string, c source.Candidate) {
	src, err := r.validator.Validate(c)
	if err != nil {
		r.log.Debug("Rejected image source", "channel", channel, "err", err)
		r.fail(err, 0)
		r.observer.Rejected(source.KindOf(err))
		return
	}

	r.log.Info("Accepted image source", "channel", channel, "source", src.String())
	r.setValue(src)
	r.start(src)
}

func (r *Resolver) setValue(src source.ImageSource) {
	switch src.Kind {
	case source.KindFile:
		r.form = FormState{File: src.File}
	case source.KindURL:
		r.form = FormState{URL: src.Href}
	}
}

// start begins a new attempt, superseding any in flight. Callers hold r.mu.
func (r *Resolver) start(src source.ImageSource) {
	if r.cancel != nil {
		r.cancel()
	}
	r.attempt++
	seq := r.attempt
	ctx, cancel := context.WithCancel(r.ctx)
	r.cancel = cancel

	r.status = StatusLoading
	r.lastErr = nil
	r.showInfo(LoadingMessage, false, seq)
	r.observer.AttemptStarted(src.Kind)

	var h *handle
	switch {
	case src.Kind == source.KindFile:
		h = &handle{address: r.objects.Create(src.File), owned: true}
	case !r.fetchRemote:
		h = &handle{address: src.Href}
	}

	r.track()
	go func() {
		defer r.untrack()
		defer cancel()

		if h == nil {
			var err error
			h, err = r.fetchAsFile(ctx, seq, src.Href)
			if err != nil {
				r.complete(seq, src, nil, nil, err)
				return
			}
			if h == nil {
				return
			}
		}

		img, err := r.loader.Load(ctx, h.address)
		r.complete(seq, src, h, img, err)
	}()
}

// fetchAsFile downloads href and registers it like a picked file. A nil
// handle with a nil error means the attempt went stale meanwhile.
func (r *Resolver) fetchAsFile(ctx context.Context, seq uint64, href string) (*handle, error) {
	b, err := r.fetcher.Fetch(ctx, href)
	if err != nil {
		return nil, source.NewError(source.PreviewLoadFailed, err)
	}
	if !source.AllowedFileType(b.ContentType) {
		return nil, source.NewError(source.UnsupportedFileType, fmt.Errorf("fetched content type %q", b.ContentType))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || seq != r.attempt {
		return nil, nil
	}
	return &handle{address: r.objects.Create(b), owned: true}, nil
}

// complete applies an attempt's outcome if the attempt is still current.
func (r *Resolver) complete(seq uint64, src source.ImageSource, h *handle, img *Image, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || seq != r.attempt {
		r.release(h)
		r.observer.AttemptFinished(StatusIdle, true)
		r.log.Debug("Ignoring stale preview completion", "attempt", seq, "latest", r.attempt)
		return
	}

	if err != nil {
		r.release(h)
		r.status = StatusFailed
		if source.KindOf(err) == 0 {
			err = source.NewError(source.PreviewLoadFailed, err)
		}
		r.log.Debug("Preview load failed", "attempt", seq, "source", src.String(), "err", err)
		r.fail(err, seq)
		r.observer.AttemptFinished(StatusFailed, false)
		return
	}

	prev := r.live
	r.live = h
	r.displayed = img
	r.displayedFor = src
	r.status = StatusDisplayed
	r.release(prev)
	if r.feedback.owner == seq {
		r.clearInfo()
	}
	r.observer.AttemptFinished(StatusDisplayed, false)
	r.log.Info("Preview displayed", "attempt", seq, "format", img.Format, "width", img.Width, "height", img.Height)
}

// release revokes an owned handle's object URL, at most once.
func (r *Resolver) release(h *handle) {
	if h == nil || !h.owned || h.released {
		return
	}
	h.released = true
	if !r.objects.Revoke(h.address) {
		r.log.Warn("Object URL was already revoked", "address", h.address)
	}
}

// Submit is the submit trigger. It prefers the file field over the URL
// field and reports NoSourceProvided when neither holds a value.
func (r *Resolver) Submit() (*Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sub *Submission
	switch {
	case r.form.File != nil:
		sub = &Submission{Kind: source.KindFile, File: r.form.File}
	case strings.TrimSpace(r.form.URL) != "":
		sub = &Submission{Kind: source.KindURL, URL: r.form.URL}
	default:
		err := source.NewError(source.NoSourceProvided, nil)
		r.fail(err, 0)
		r.observer.Rejected(source.NoSourceProvided)
		return nil, err
	}

	if r.embed && r.displayed != nil && r.displayedMatchesForm() {
		sub.ImageData = r.displayed.Data
		sub.ImageContentType = r.displayed.ContentType
	}
	r.observer.Submitted(sub.Kind)
	return sub, nil
}

func (r *Resolver) displayedMatchesForm() bool {
	if r.form.File != nil {
		return r.displayedFor.Kind == source.KindFile && r.displayedFor.File == r.form.File
	}
	return r.displayedFor.Kind == source.KindURL && r.displayedFor.Href == r.form.URL
}

func (r *Resolver) showInfo(msg string, isError bool, owner uint64) {
	r.feedback = Feedback{Message: msg, IsError: isError, Visible: true, owner: owner}
}

func (r *Resolver) clearInfo() {
	r.feedback = Feedback{}
}

func (r *Resolver) fail(err error, owner uint64) {
	r.lastErr = err
	r.showInfo(source.MessageOf(err), true, owner)
}

// State returns a snapshot of the resolver.
func (r *Resolver) State() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Status:   r.status,
		Attempt:  r.attempt,
		Feedback: r.feedback,
		Form:     FormView{URL: r.form.URL},
	}
	if f := r.form.File; f != nil {
		s.Form.FileName = f.Name
		s.Form.FileType = f.ContentType
		s.Form.FileSize = f.Size()
	}
	if r.displayed != nil {
		s.Preview = &PreviewView{
			Address: r.displayed.Address,
			Format:  r.displayed.Format,
			Width:   r.displayed.Width,
			Height:  r.displayed.Height,
		}
	}
	if k := source.KindOf(r.lastErr); k != 0 {
		s.LastError = k.String()
	}
	return s
}

// Displayed returns the image currently bound to the preview.
func (r *Resolver) Displayed() (*Image, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.displayed, r.displayed != nil
}

// Wait blocks until the resolver has no background work left, including
// work started by other callers while waiting.
func (r *Resolver) Wait() {
	r.mu.Lock()
	if r.pending == 0 {
		r.mu.Unlock()
		return
	}
	idle := r.idle
	r.mu.Unlock()
	<-idle
}

// track registers a background task. Callers hold r.mu.
func (r *Resolver) track() {
	if r.pending == 0 {
		r.idle = make(chan struct{})
	}
	r.pending++
}

func (r *Resolver) untrack() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending--
	if r.pending == 0 {
		close(r.idle)
	}
}

// Close cancels in-flight work and releases the displayed object URL.
// Completions arriving afterwards only release their own resources.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.stop()
	r.release(r.live)
	r.live = nil
}
