package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

const snapshotReadChunk = 32 * 1024

// Snapshot fetches rawURL and returns one JPEG image.
//
// A single-image response (Content-Type image/jpeg) is returned whole. For
// anything else, typically multipart/x-mixed-replace MJPEG, the body is read
// only until the first complete SOI..EOI frame. Concurrent calls for the same
// URL share one upstream fetch.
func (c *Client) Snapshot(ctx context.Context, rawURL string) ([]byte, error) {
	ch := c.snapshots.DoChan(rawURL, func() (any, error) {
		// Detached from the first caller so its cancellation does not fail
		// the callers sharing this fetch.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.SnapshotTimeout)
		defer cancel()

		frame, err := c.fetchFrame(fetchCtx, rawURL)
		if err != nil {
			return nil, timeoutOr(fetchCtx, err)
		}
		return frame, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (c *Client) fetchFrame(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.do(ctx, "GET", rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := c.opts.SnapshotMaxBytes
	if isSingleJPEG(resp.Header.Get("Content-Type")) {
		body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		if int64(len(body)) > limit {
			return nil, fmt.Errorf("snapshot larger than %d bytes", limit)
		}
		return body, nil
	}

	return ExtractFrame(resp.Body, limit)
}

// ExtractFrame reads r until the first complete JPEG frame and returns a copy
// of it. At most limit bytes are read.
func ExtractFrame(r io.Reader, limit int64) ([]byte, error) {
	var (
		buf   []byte
		chunk = make([]byte, snapshotReadChunk)
		start = -1
		// searchFrom avoids rescanning bytes already known not to hold a
		// marker; one byte of overlap covers a marker split across reads.
		searchFrom int
		lr         = io.LimitReader(r, limit)
	)

	for {
		n, err := lr.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)

			if start < 0 {
				if i := bytes.Index(buf[searchFrom:], jpegSOI); i >= 0 {
					start = searchFrom + i
					searchFrom = start + len(jpegSOI)
				} else {
					searchFrom = max(len(buf)-1, 0)
				}
			}
			if start >= 0 {
				if i := bytes.Index(buf[searchFrom:], jpegEOI); i >= 0 {
					end := searchFrom + i + len(jpegEOI)
					return bytes.Clone(buf[start:end]), nil
				}
				searchFrom = max(len(buf)-1, start+len(jpegSOI))
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrNoFrame
			}
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
	}
}

func isSingleJPEG(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.EqualFold(mediaType, "image/jpeg") || strings.EqualFold(mediaType, "image/jpg")
}
