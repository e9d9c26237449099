package modelstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// DefaultBaseURL serves the fast variant of the official Tesseract language
// models.
const DefaultBaseURL = "https://raw.githubusercontent.com/tesseract-ocr/tessdata_fast/main"

// ErrChecksumMismatch is returned when a downloaded model fails hash
// verification against the registry.
var ErrChecksumMismatch = errors.New("modelstore: checksum mismatch")

// Registry knows where language models live and, optionally, what their
// SHA-256 checksums should be.
type Registry struct {
	// BaseURL is the model download root (no trailing slash).
	BaseURL string
	// Checksums maps language codes to lowercase hex SHA-256 digests.
	// Languages absent from the map are not verified.
	Checksums map[string]string
	// Client is the HTTP client used for downloads; nil falls back to a
	// client with a 5-minute timeout.
	Client *http.Client
}

// NewRegistry creates a Registry pointing at the official tessdata_fast
// repository.
func NewRegistry() *Registry {
	return &Registry{BaseURL: DefaultBaseURL}
}

// URL returns the download URL for a language code.
func (r *Registry) URL(lang string) string {
	return r.BaseURL + "/" + lang + ".traineddata"
}

func (r *Registry) httpClient() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return &http.Client{Timeout: 5 * time.Minute}
}

// verifyChecksum compares data against the registered digest for lang.
// Languages without a registered digest always pass.
func (r *Registry) verifyChecksum(lang string, data []byte) error {
	want, ok := r.Checksums[lang]
	if !ok {
		return nil
	}
	h := sha256.Sum256(data)
	if hex.EncodeToString(h[:]) != want {
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, lang)
	}
	return nil
}

// fetchJob is a unit of work for the download worker pool.
type fetchJob struct {
	lang string
}

type fetchResult struct {
	lang string
	err  error
}

// Downloader populates a Store with language models from a Registry.
type Downloader struct {
	store       Store
	registry    *Registry
	concurrency int
}

// NewDownloader creates a Downloader. concurrency <= 0 defaults to 2 parallel
// downloads.
func NewDownloader(store Store, registry *Registry, concurrency int) *Downloader {
	if registry == nil {
		registry = NewRegistry()
	}
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Downloader{store: store, registry: registry, concurrency: concurrency}
}

// EnsureLanguages makes sure the traineddata file for every language is
// present in the store, downloading missing ones in parallel. Files already
// on disk are left untouched. The first failure is returned after all
// in-flight downloads settle.
func (d *Downloader) EnsureLanguages(ctx context.Context, langs []string) error {
	if err := d.store.EnsureStructure(); err != nil {
		return err
	}

	var missing []string
	for _, lang := range langs {
		if err := ValidateLanguage(lang); err != nil {
			return err
		}
		if !d.store.HasLanguage(lang) {
			missing = append(missing, lang)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan fetchJob, len(missing))
	results := make(chan fetchResult, len(missing))

	workers := min(d.concurrency, len(missing))
	for i := 0; i < workers; i++ {
		go d.worker(ctx, jobs, results)
	}

	for _, lang := range missing {
		jobs <- fetchJob{lang: lang}
	}
	close(jobs)

	var firstErr error
	for range missing {
		res := <-results
		if res.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("modelstore: fetch %s: %w", res.lang, res.err)
			cancel()
		}
	}

	return firstErr
}

func (d *Downloader) worker(ctx context.Context, jobs <-chan fetchJob, results chan<- fetchResult) {
	for job := range jobs {
		select {
		case <-ctx.Done():
			results <- fetchResult{lang: job.lang, err: ctx.Err()}
			continue
		default:
		}
		results <- fetchResult{lang: job.lang, err: d.fetch(ctx, job.lang)}
	}
}

// fetch downloads one language model to a staging file and atomically renames
// it into place, so a crashed download never leaves a truncated model behind.
func (d *Downloader) fetch(ctx context.Context, lang string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.registry.URL(lang), nil)
	if err != nil {
		return err
	}

	resp, err := d.registry.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("empty model file")
	}

	if err := d.registry.verifyChecksum(lang, data); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(d.store.DownloadDir(), lang+"-*.traineddata")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, d.store.LanguagePath(lang)); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	return nil
}
