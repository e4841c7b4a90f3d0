package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/vrsandeep/tunedl/internal/models"
	"github.com/vrsandeep/tunedl/internal/util"
)

const progressStep = 256 << 10

// HTTPFetcher downloads media over HTTP. When the queued URL is an HTML page
// it follows the page's OpenGraph audio/video link and takes the title and
// artist from the page's meta tags.
type HTTPFetcher struct {
	client  *http.Client
	dir     string
	timeout time.Duration
	log     *zap.Logger
}

func NewHTTPFetcher(dir string, timeout time.Duration, log *zap.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client:  &http.Client{},
		dir:     dir,
		timeout: timeout,
		log:     log,
	}
}

type pageMeta struct {
	title  string
	artist string
	media  string
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "tunedl/1.0")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", rawURL, resp.Status)
	}
	return resp, nil
}

func isHTML(resp *http.Response) bool {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && (mt == "text/html" || mt == "application/xhtml+xml")
}

// readPage extracts OpenGraph metadata from an HTML response.
func readPage(resp *http.Response) (*pageMeta, error) {
	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode page charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	meta := func(names ...string) string {
		for _, n := range names {
			sel := fmt.Sprintf(`meta[property=%q], meta[name=%q]`, n, n)
			if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	pm := &pageMeta{
		title:  meta("og:title", "twitter:title"),
		artist: meta("music:musician", "og:audio:artist", "og:site_name"),
		media:  meta("og:audio", "og:audio:url", "og:audio:secure_url", "og:video", "og:video:url"),
	}
	if pm.title == "" {
		pm.title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if pm.media == "" {
		return nil, fmt.Errorf("page has no audio or video link")
	}
	base := resp.Request.URL
	ref, err := url.Parse(pm.media)
	if err != nil {
		return nil, fmt.Errorf("bad media link %q: %w", pm.media, err)
	}
	pm.media = base.ResolveReference(ref).String()
	return pm, nil
}

// Fetch downloads item.URL into the owner's directory.
func (f *HTTPFetcher) Fetch(ctx context.Context, item models.WorkItem, onProgress ProgressFunc) (*Result, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	resp, err := f.get(ctx, item.URL)
	if err != nil {
		return nil, err
	}

	res := &Result{ExternalID: uuid.NewString()}
	if isHTML(resp) {
		pm, err := readPage(resp)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		res.Title, res.Artist = pm.title, pm.artist
		f.log.Debug("resolved media link", zap.String("page", item.URL), zap.String("media", pm.media))
		if resp, err = f.get(ctx, pm.media); err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if res.Title == "" {
		res.Title = strings.TrimSuffix(path.Base(resp.Request.URL.Path), path.Ext(resp.Request.URL.Path))
	}

	dir := filepath.Join(f.dir, util.SanitizeFileName(item.OwnerID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}
	name := fmt.Sprintf("%s-%s%s", util.SanitizeFileName(res.Title), res.ExternalID[:8], extension(resp))
	res.Path = filepath.Join(dir, name)

	out, err := os.Create(res.Path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	pr := &progressReader{r: resp.Body, total: resp.ContentLength, onProgress: onProgress}
	if pr.total < 0 {
		pr.total = 0
	}
	n, copyErr := io.Copy(out, pr)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(res.Path)
		if copyErr != nil {
			return nil, fmt.Errorf("download %s: %w", item.URL, copyErr)
		}
		return nil, fmt.Errorf("write %s: %w", res.Path, closeErr)
	}
	pr.report()
	res.Bytes = n
	return res, nil
}

// Finalize writes a metadata sidecar next to the downloaded file.
func (f *HTTPFetcher) Finalize(ctx context.Context, item models.WorkItem, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tags := map[string]string{
		"title":  res.Title,
		"artist": res.Artist,
		"source": item.URL,
		"id":     res.ExternalID,
	}
	data, err := json.MarshalIndent(tags, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(res.Path+".json", data, 0644)
}

func extension(resp *http.Response) string {
	if ext := path.Ext(resp.Request.URL.Path); ext != "" && len(ext) <= 6 {
		return ext
	}
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err == nil {
		if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
			return exts[0]
		}
	}
	return ".bin"
}

// progressReader reports byte counts every progressStep bytes.
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	reported   int64
	onProgress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.read-p.reported >= progressStep {
		p.report()
	}
	return n, err
}

func (p *progressReader) report() {
	p.reported = p.read
	if p.onProgress != nil {
		p.onProgress(p.read, p.total)
	}
}
