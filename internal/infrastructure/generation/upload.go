package generation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// upload PUTs body to the presigned target. Any 2xx is success.
func (t *transport) upload(ctx context.Context, uploadURL, contentType string, body []byte, onProgress func(float64)) error {
	target, err := t.resolve(uploadURL)
	if err != nil {
		return err
	}
	progress := &progressReader{r: bytes.NewReader(body), total: len(body), onProgress: onProgress}

	return t.call(ctx, "upload", func(ctx context.Context) error {
		progress.reset(bytes.NewReader(body))
		var reqBody io.Reader = progress
		if len(body) == 0 {
			reqBody = http.NoBody
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, reqBody)
		if err != nil {
			return fmt.Errorf("create upload request: %w", err)
		}
		req.ContentLength = int64(len(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := t.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("generation upload request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return newHTTPStatusError("upload", resp)
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		progress.report(1)
		return nil
	})
}

// progressReader reports the fraction of the body handed to the transport.
// Reports never decrease.
type progressReader struct {
	r          io.Reader
	total      int
	read       int
	last       float64
	onProgress func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += n
		if p.total > 0 {
			p.report(float64(p.read) / float64(p.total))
		}
	}
	return n, err
}

func (p *progressReader) reset(r io.Reader) {
	p.r = r
	p.read = 0
}

func (p *progressReader) report(fraction float64) {
	if p.onProgress == nil || fraction <= p.last {
		return
	}
	if fraction > 1 {
		fraction = 1
	}
	p.last = fraction
	p.onProgress(fraction)
}
