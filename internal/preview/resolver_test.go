package preview

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/imagepicker/internal/images"
	"github.com/lehigh-university-libraries/imagepicker/internal/objecturl"
	"github.com/lehigh-university-libraries/imagepicker/internal/source"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 6))); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func pngBlob(t *testing.T, name string) *source.Blob {
	return &source.Blob{Name: name, ContentType: "image/png", Data: pngBytes(t)}
}

// pendingLoad is a load the test completes by hand.
type pendingLoad struct {
	address string
	done    chan error
}

// gatedLoader blocks every load until the test answers it, ignoring
// cancellation so late completions can be simulated.
type gatedLoader struct {
	started chan *pendingLoad
}

func newGatedLoader() *gatedLoader {
	return &gatedLoader{started: make(chan *pendingLoad, 8)}
}

func (l *gatedLoader) Load(_ context.Context, address string) (*Image, error) {
	p := &pendingLoad{address: address, done: make(chan error, 1)}
	l.started <- p
	if err := <-p.done; err != nil {
		return nil, err
	}
	return &Image{Address: address, Format: "png", Width: 8, Height: 6, ContentType: "image/png", Data: []byte(address)}, nil
}

func (l *gatedLoader) next(t *testing.T) *pendingLoad {
	t.Helper()
	select {
	case p := <-l.started:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a load to start")
		return nil
	}
}

type stubFetcher struct {
	blob *source.Blob
	err  error
}

func (f stubFetcher) Fetch(context.Context, string) (*source.Blob, error) {
	return f.blob, f.err
}

func newResolver(objects *objecturl.Registry, loader Loader) *Resolver {
	return New(Options{Objects: objects, Loader: loader})
}

func TestSelectFileDisplaysPreview(t *testing.T) {
	objects := objecturl.New("http://localhost")
	r := New(Options{Objects: objects, Loader: NewLoader(objects, stubFetcher{}, 4, 0)})
	defer r.Close()

	r.SelectFiles([]*source.Blob{pngBlob(t, "a.png"), pngBlob(t, "ignored.png")})
	r.Wait()

	s := r.State()
	if s.Status != StatusDisplayed {
		t.Fatalf("Expected displayed, got %v (%+v)", s.Status, s.Feedback)
	}
	if s.Feedback.Visible || s.Feedback.Message != "" {
		t.Errorf("Expected banner cleared, got %+v", s.Feedback)
	}
	if s.Form.FileName != "a.png" || s.Form.URL != "" {
		t.Errorf("Unexpected form %+v", s.Form)
	}
	if s.Preview == nil || s.Preview.Width != 8 || s.Preview.Height != 6 || !objecturl.IsObjectURL(s.Preview.Address) {
		t.Errorf("Unexpected preview %+v", s.Preview)
	}
	if objects.Len() != 1 {
		t.Errorf("Expected the displayed object URL to stay live, got %d", objects.Len())
	}

	img, ok := r.Displayed()
	if !ok || len(img.Thumbnail) == 0 {
		t.Error("Expected a thumbnail for the displayed image")
	}
}

func TestSelectFileRejections(t *testing.T) {
	tests := []struct {
		name    string
		files   []*source.Blob
		message string
	}{
		{"empty selection", nil, ""},
		{"nil entry", []*source.Blob{nil}, ""},
		{"text file", []*source.Blob{{Name: "a.txt", ContentType: "text/plain"}}, "File must be either JPEG, GIF, PNG, BMP, TIF or WebP"},
		{"pdf", []*source.Blob{{Name: "a.pdf", ContentType: "application/pdf"}}, "File must be either JPEG, GIF, PNG, BMP, TIF or WebP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objects := objecturl.New("http://localhost")
			loader := newGatedLoader()
			r := newResolver(objects, loader)
			defer r.Close()

			r.SelectFiles(tt.files)
			r.Wait()

			s := r.State()
			if s.Attempt != 0 || s.Status != StatusIdle {
				t.Errorf("Expected no attempt, got %d %v", s.Attempt, s.Status)
			}
			if s.Form != (FormView{}) {
				t.Errorf("Expected untouched form, got %+v", s.Form)
			}
			if objects.Stats().Created != 0 {
				t.Error("Expected no object URL allocation")
			}
			if s.Feedback.Message != tt.message || s.Feedback.Visible != (tt.message != "") {
				t.Errorf("Unexpected feedback %+v", s.Feedback)
			}
			if tt.message != "" && (!s.Feedback.IsError || s.LastError != "unsupported_file_type") {
				t.Errorf("Expected unsupported_file_type error, got %+v %s", s.Feedback, s.LastError)
			}
		})
	}
}

func TestChangeURLInvalidIsSilent(t *testing.T) {
	loader := newGatedLoader()
	r := newResolver(nil, loader)
	defer r.Close()

	for _, v := range []string{"not a url", "   ", ""} {
		r.ChangeURL(v, source.URLFieldValid(v))
	}

	s := r.State()
	if s.Attempt != 0 || s.Feedback.Visible || s.Form.URL != "" {
		t.Errorf("Expected silent no-op, got %+v", s)
	}
}

func TestDropPlainTextURL(t *testing.T) {
	loader := newGatedLoader()
	r := newResolver(nil, loader)
	defer r.Close()

	r.Drop(source.Payload{Items: []source.StringItem{
		source.TextItem(source.TypePlainText, "https://example.com/cat.png"),
	}})

	p := loader.next(t)
	if p.address != "https://example.com/cat.png" {
		t.Fatalf("Expected literal URL to be loaded, got %s", p.address)
	}

	s := r.State()
	if s.Status != StatusLoading || s.Feedback.Message != LoadingMessage || s.Feedback.IsError || !s.Feedback.Visible {
		t.Errorf("Expected loading state, got %v %+v", s.Status, s.Feedback)
	}
	if s.Form.URL != "https://example.com/cat.png" || s.Form.FileName != "" {
		t.Errorf("Expected form mirrored before load finished, got %+v", s.Form)
	}

	p.done <- nil
	r.Wait()

	s = r.State()
	if s.Status != StatusDisplayed || s.Feedback.Visible {
		t.Errorf("Expected displayed with cleared banner, got %v %+v", s.Status, s.Feedback)
	}
}

func TestPasteURIListWithRealLoader(t *testing.T) {
	data := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	objects := objecturl.New("http://localhost")
	r := New(Options{Objects: objects, Fetcher: images.NewFetcher(5*time.Second, 0, true)})
	defer r.Close()

	r.Paste(source.Payload{Items: []source.StringItem{
		source.TextItem(source.TypePlainText, "ignored"),
		source.TextItem(source.TypeURIList, "# comment\r\n"+srv.URL+"/cat.png"),
	}})
	r.Wait()

	s := r.State()
	if s.Status != StatusDisplayed {
		t.Fatalf("Expected displayed, got %v %+v", s.Status, s.Feedback)
	}
	if s.Form.URL != srv.URL+"/cat.png" {
		t.Errorf("Unexpected url field %q", s.Form.URL)
	}
	if objects.Stats().Created != 0 {
		t.Error("URL sources must not allocate object URLs")
	}
}

func TestPasteForbiddenScheme(t *testing.T) {
	loader := newGatedLoader()
	r := newResolver(nil, loader)
	defer r.Close()

	r.Paste(source.Payload{Items: []source.StringItem{
		source.TextItem(source.TypeURIList, "blob:http://localhost/0b7e0f5c-2f54-4b8b-9a8e-3f4f7c0d9e11"),
	}})
	r.Wait()

	s := r.State()
	if s.Feedback.Message != "Blob URLs are not allowed" || !s.Feedback.IsError {
		t.Errorf("Expected forbidden scheme banner, got %+v", s.Feedback)
	}
	if s.LastError != "forbidden_scheme" || s.Attempt != 0 {
		t.Errorf("Unexpected state %+v", s)
	}
}

func TestDropPrefersFile(t *testing.T) {
	loader := newGatedLoader()
	objects := objecturl.New("http://localhost")
	r := newResolver(objects, loader)
	defer r.Close()

	r.Drop(source.Payload{
		Files: []*source.Blob{pngBlob(t, "dropped.png")},
		Items: []source.StringItem{source.TextItem(source.TypeURIList, "https://example.com/a.png")},
	})

	p := loader.next(t)
	if !objecturl.IsObjectURL(p.address) {
		t.Errorf("Expected the file to be loaded, got %s", p.address)
	}
	if s := r.State(); s.Form.FileName != "dropped.png" || s.Form.URL != "" {
		t.Errorf("Unexpected form %+v", s.Form)
	}
	p.done <- nil
	r.Wait()
}

func TestLoadFailureReleasesObjectURL(t *testing.T) {
	objects := objecturl.New("http://localhost")
	r := New(Options{Objects: objects, Loader: NewLoader(objects, stubFetcher{}, 0, 0)})
	defer r.Close()

	r.SelectFiles([]*source.Blob{{Name: "broken.png", ContentType: "image/png", Data: []byte("nope")}})
	r.Wait()

	s := r.State()
	if s.Status != StatusFailed {
		t.Fatalf("Expected failed, got %v", s.Status)
	}
	if s.Feedback.Message != "Couldn't load image preview" || !s.Feedback.IsError {
		t.Errorf("Unexpected feedback %+v", s.Feedback)
	}
	if s.Form.FileName != "broken.png" {
		t.Errorf("Expected form to keep the accepted file, got %+v", s.Form)
	}
	stats := objects.Stats()
	if stats.Live != 0 || stats.Revoked != 1 || stats.DoubleReleased != 0 {
		t.Errorf("Expected exactly one release, got %+v", stats)
	}
}

func TestSuccessReleasesPreviousHandle(t *testing.T) {
	objects := objecturl.New("http://localhost")
	loader := newGatedLoader()
	r := newResolver(objects, loader)

	r.SelectFiles([]*source.Blob{pngBlob(t, "first.png")})
	first := loader.next(t)
	first.done <- nil
	r.Wait()

	if objects.Len() != 1 {
		t.Fatalf("Expected first preview bound, got %d live", objects.Len())
	}

	r.SelectFiles([]*source.Blob{pngBlob(t, "second.png")})
	second := loader.next(t)
	if _, ok := objects.Resolve(first.address); !ok {
		t.Error("Displayed object URL must stay live while a new load is pending")
	}
	second.done <- nil
	r.Wait()

	if _, ok := objects.Resolve(first.address); ok {
		t.Error("Expected the superseded object URL to be released")
	}
	if _, ok := objects.Resolve(second.address); !ok {
		t.Error("Expected the displayed object URL to stay live")
	}

	r.Close()
	stats := objects.Stats()
	if stats.Live != 0 || stats.Revoked != 2 || stats.DoubleReleased != 0 {
		t.Errorf("Unexpected stats after close %+v", stats)
	}
}

func TestStaleCompletionIgnored(t *testing.T) {
	objects := objecturl.New("http://localhost")
	loader := newGatedLoader()
	r := newResolver(objects, loader)
	defer r.Close()

	r.SelectFiles([]*source.Blob{pngBlob(t, "slow.png")})
	slow := loader.next(t)
	r.ChangeURL("https://example.com/fast.png", true)
	fast := loader.next(t)

	fast.done <- nil
	slow.done <- nil
	r.Wait()

	s := r.State()
	if s.Preview == nil || s.Preview.Address != fast.address {
		t.Fatalf("Expected latest attempt to be displayed, got %+v", s.Preview)
	}
	if s.Form.URL != "https://example.com/fast.png" || s.Form.FileName != "" {
		t.Errorf("Unexpected form %+v", s.Form)
	}
	stats := objects.Stats()
	if stats.Live != 0 || stats.Revoked != 1 || stats.DoubleReleased != 0 {
		t.Errorf("Expected the stale object URL released once, got %+v", stats)
	}
}

func TestStaleFailureDoesNotOverrideDisplay(t *testing.T) {
	loader := newGatedLoader()
	r := newResolver(nil, loader)
	defer r.Close()

	r.ChangeURL("https://example.com/a.png", true)
	a := loader.next(t)
	r.ChangeURL("https://example.com/b.png", true)
	b := loader.next(t)

	b.done <- nil
	a.done <- errors.New("network down")
	r.Wait()

	s := r.State()
	if s.Status != StatusDisplayed || s.Feedback.Visible {
		t.Errorf("Expected stale failure to be ignored, got %v %+v", s.Status, s.Feedback)
	}
}

func TestRejectionDuringLoadKeepsBanner(t *testing.T) {
	loader := newGatedLoader()
	r := newResolver(nil, loader)
	defer r.Close()

	r.ChangeURL("https://example.com/a.png", true)
	p := loader.next(t)
	r.SelectFiles([]*source.Blob{{Name: "a.txt", ContentType: "text/plain"}})
	p.done <- nil
	r.Wait()

	s := r.State()
	if s.Status != StatusDisplayed {
		t.Errorf("Expected the pending load to finish, got %v", s.Status)
	}
	if !s.Feedback.IsError || s.Feedback.Message != source.UnsupportedFileType.Message() {
		t.Errorf("Expected the rejection banner to survive, got %+v", s.Feedback)
	}
}

func TestStaleExtractionDropped(t *testing.T) {
	loader := newGatedLoader()
	r := newResolver(nil, loader)
	defer r.Close()

	release := make(chan struct{})
	r.Paste(source.Payload{Items: []source.StringItem{{
		Type: source.TypePlainText,
		Get: func(ctx context.Context) (string, error) {
			<-release
			return "https://example.com/late.png", nil
		},
	}}})

	r.SelectFiles([]*source.Blob{pngBlob(t, "picked.png")})
	p := loader.next(t)
	close(release)
	p.done <- nil
	r.Wait()

	s := r.State()
	if s.Form.FileName != "picked.png" || s.Form.URL != "" || s.Attempt != 1 {
		t.Errorf("Expected the late extraction to be dropped, got %+v", s)
	}
}

func TestExtractionFailureIsSilent(t *testing.T) {
	r := newResolver(nil, newGatedLoader())
	defer r.Close()

	r.Paste(source.Payload{Items: []source.StringItem{{
		Type: source.TypePlainText,
		Get: func(context.Context) (string, error) {
			return "", errors.New("clipboard unavailable")
		},
	}}})
	r.Wait()

	if s := r.State(); s.Feedback.Visible || s.Attempt != 0 {
		t.Errorf("Expected silent no-op, got %+v", s)
	}
}

func TestSubmit(t *testing.T) {
	t.Run("no source", func(t *testing.T) {
		r := newResolver(nil, newGatedLoader())
		defer r.Close()

		for i := 0; i < 2; i++ {
			sub, err := r.Submit()
			if sub != nil || !errors.Is(err, source.ErrNoSourceProvided) {
				t.Fatalf("Expected NoSourceProvided, got %v %v", sub, err)
			}
		}
		if s := r.State(); s.Feedback.Message != "No valid image provided" || !s.Feedback.IsError {
			t.Errorf("Unexpected feedback %+v", s.Feedback)
		}
	})

	t.Run("url", func(t *testing.T) {
		loader := newGatedLoader()
		r := newResolver(nil, loader)
		defer r.Close()

		r.ChangeURL("https://example.com/a.png", true)
		loader.next(t).done <- errors.New("offline")
		r.Wait()

		sub, err := r.Submit()
		if err != nil {
			t.Fatalf("Expected submission despite failed preview, got %v", err)
		}
		if sub.Kind != source.KindURL || sub.URL != "https://example.com/a.png" || sub.ImageData != nil {
			t.Errorf("Unexpected submission %+v", sub)
		}
	})

	t.Run("latest file replaces url", func(t *testing.T) {
		loader := newGatedLoader()
		r := newResolver(nil, loader)
		defer r.Close()

		r.ChangeURL("https://example.com/a.png", true)
		loader.next(t).done <- nil
		file := pngBlob(t, "b.png")
		r.SelectFiles([]*source.Blob{file})
		loader.next(t).done <- nil
		r.Wait()

		sub, err := r.Submit()
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if sub.Kind != source.KindFile || sub.File != file || sub.URL != "" {
			t.Errorf("Unexpected submission %+v", sub)
		}
	})
}

func TestSubmitEmbedsImageData(t *testing.T) {
	objects := objecturl.New("http://localhost")
	r := New(Options{Objects: objects, Loader: NewLoader(objects, stubFetcher{}, 0, 0), EmbedImageData: true})
	defer r.Close()

	file := pngBlob(t, "a.png")
	r.SelectFiles([]*source.Blob{file})
	r.Wait()

	sub, err := r.Submit()
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !bytes.Equal(sub.ImageData, file.Data) || sub.ImageContentType != "image/png" {
		t.Errorf("Expected embedded image bytes, got %d bytes %q", len(sub.ImageData), sub.ImageContentType)
	}
}

func TestFetchRemote(t *testing.T) {
	tests := []struct {
		name       string
		fetcher    stubFetcher
		wantStatus Status
		wantError  string
	}{
		{
			name:       "fetched image previews as file",
			fetcher:    stubFetcher{blob: &source.Blob{Name: "cat.png", ContentType: "image/png"}},
			wantStatus: StatusDisplayed,
		},
		{
			name:       "fetched html rejected",
			fetcher:    stubFetcher{blob: &source.Blob{Name: "index.html", ContentType: "text/html; charset=utf-8"}},
			wantStatus: StatusFailed,
			wantError:  "unsupported_file_type",
		},
		{
			name:       "fetch error fails the preview",
			fetcher:    stubFetcher{err: errors.New("connection refused")},
			wantStatus: StatusFailed,
			wantError:  "preview_load_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.fetcher.blob != nil && tt.fetcher.blob.ContentType == "image/png" {
				tt.fetcher.blob.Data = pngBytes(t)
			}
			objects := objecturl.New("http://localhost")
			r := New(Options{
				Objects:     objects,
				Fetcher:     tt.fetcher,
				Loader:      NewLoader(objects, tt.fetcher, 0, 0),
				FetchRemote: true,
			})
			defer r.Close()

			r.ChangeURL("https://example.com/cat.png", true)
			r.Wait()

			s := r.State()
			if s.Status != tt.wantStatus || s.LastError != tt.wantError {
				t.Fatalf("Expected %v/%q, got %v/%q", tt.wantStatus, tt.wantError, s.Status, s.LastError)
			}
			if s.Form.URL != "https://example.com/cat.png" {
				t.Errorf("Expected url field kept, got %+v", s.Form)
			}
			if tt.wantStatus == StatusDisplayed {
				if s.Preview == nil || !objecturl.IsObjectURL(s.Preview.Address) {
					t.Errorf("Expected fetched bytes behind an object URL, got %+v", s.Preview)
				}
				if objects.Len() != 1 {
					t.Errorf("Expected one live object URL, got %d", objects.Len())
				}
			} else if objects.Len() != 0 {
				t.Errorf("Expected no live object URL, got %d", objects.Len())
			}
		})
	}
}

func TestClosedResolverIgnoresIntake(t *testing.T) {
	objects := objecturl.New("http://localhost")
	r := newResolver(objects, newGatedLoader())
	r.Close()
	r.Close()

	r.SelectFiles([]*source.Blob{pngBlob(t, "a.png")})
	r.ChangeURL("https://example.com/a.png", true)
	r.Wait()

	if s := r.State(); s.Attempt != 0 {
		t.Errorf("Expected no attempts after close, got %d", s.Attempt)
	}
	if objects.Stats().Created != 0 {
		t.Error("Expected no allocation after close")
	}
}

func TestObjectURLFromAnotherSessionRejected(t *testing.T) {
	objects := objecturl.New("http://localhost")
	validator := source.NewValidator("file")
	loader := NewLoader(objects, stubFetcher{}, 0, 0)

	owner := New(Options{Objects: objects, Validator: validator, Loader: loader})
	defer owner.Close()
	owner.SelectFiles([]*source.Blob{pngBlob(t, "private.png")})
	owner.Wait()
	shown := owner.State().Preview
	if shown == nil {
		t.Fatal("Expected the owner's preview to be displayed")
	}

	other := New(Options{Objects: objects, Validator: validator, Loader: loader})
	defer other.Close()
	other.ChangeURL(shown.Address, true)
	other.Wait()

	s := other.State()
	if s.Status != StatusIdle || s.Preview != nil || s.Form.URL != "" {
		t.Errorf("Expected nothing to be displayed, got %v %+v %q", s.Status, s.Preview, s.Form.URL)
	}
	if s.LastError != source.ForbiddenScheme.String() {
		t.Errorf("Expected forbidden_scheme, got %q", s.LastError)
	}
}

func TestLoopbackURLFailsWithoutPrivateHosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes(t))
	}))
	defer srv.Close()

	tests := []struct {
		name        string
		fetchRemote bool
	}{
		{"direct load", false},
		{"fetch remote", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(Options{FetchRemote: tt.fetchRemote})
			defer r.Close()

			r.ChangeURL(srv.URL+"/cat.png", true)
			r.Wait()

			s := r.State()
			if s.Status != StatusFailed {
				t.Fatalf("Expected failed, got %v", s.Status)
			}
			if s.LastError != source.PreviewLoadFailed.String() || s.Feedback.Message != "Couldn't load image preview" {
				t.Errorf("Unexpected failure %q %+v", s.LastError, s.Feedback)
			}
		})
	}
}

func TestWaitDuringConcurrentIntake(t *testing.T) {
	objects := objecturl.New("http://localhost")
	r := New(Options{Objects: objects, Loader: NewLoader(objects, stubFetcher{}, 0, 0)})
	defer r.Close()
	data := pngBytes(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				r.SelectFiles([]*source.Blob{{Name: "a.png", ContentType: "image/png", Data: data}})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				r.Wait()
			}
		}()
	}
	wg.Wait()
	r.Wait()

	if s := r.State(); s.Status != StatusDisplayed {
		t.Fatalf("Expected displayed, got %v %+v", s.Status, s.Feedback)
	}
	if objects.Len() != 1 {
		t.Errorf("Expected only the displayed object URL to be live, got %d", objects.Len())
	}
}
