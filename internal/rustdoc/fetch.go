package rustdoc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	bgerr "github.com/jcdickinson/eguinet/internal/errors"
)

// maxRustdocSize bounds the decompressed download.
const maxRustdocSize = 1 << 30

var httpClient = &http.Client{Timeout: 60 * time.Second}

// docsRSBase is overridden in tests.
var docsRSBase = "https://docs.rs"

// FetchRustdocJSON downloads the zstd-compressed rustdoc JSON docs.rs
// publishes for ref and returns it decompressed.
func FetchRustdocJSON(ctx context.Context, ref CrateRef) ([]byte, error) {
	url := fmt.Sprintf("%s/crate/%s/%s/json", docsRSBase, ref.Name, ref.Version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, bgerr.IO(bgerr.StageLoad, url, err)
	}
	req.Header.Set("User-Agent", "eguinet/0.1.0")

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, bgerr.IO(bgerr.StageLoad, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, bgerr.New(bgerr.StageLoad, bgerr.KindIO).
			Subject(ref.String()).
			Detail("docs.rs returned %d: %s", resp.StatusCode, body).
			Build()
	}

	dec, err := zstd.NewReader(resp.Body, zstd.WithDecoderMaxMemory(maxRustdocSize))
	if err != nil {
		return nil, bgerr.Parse(ref.String(), err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, bgerr.Parse(ref.String(), err)
	}

	Logger().Debug("fetched rustdoc JSON",
		zap.Stringer("crate", ref),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))
	return data, nil
}
