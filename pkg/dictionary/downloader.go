package dictionary

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CEDICTURL is the published gzip of CC-CEDICT.
const CEDICTURL = "https://www.mdbg.net/chinese/export/cedict/cedict_1_0_ts_utf-8_mdbg.txt.gz"

// maxDownloadSize bounds the decompressed size of a fetched dictionary.
const maxDownloadSize = 256 * 1024 * 1024

// HTTPClient is used for downloads; tests may replace it.
var HTTPClient = &http.Client{Timeout: 2 * time.Minute}

// EnsureDictionary checks if a dictionary file exists at path. If not, it
// downloads url and writes it there, decompressing gzip payloads.
func EnsureDictionary(ctx context.Context, path, url string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if url == "" {
		return fmt.Errorf("dictionary %s is missing and no download url is configured", path)
	}
	return download(ctx, url, path)
}

func download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "langparser-cli")

	resp, err := HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	var body io.Reader = resp.Body
	if strings.HasSuffix(url, ".gz") || resp.Header.Get("Content-Type") == "application/gzip" {
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzReader.Close()
		body = gzReader
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create dictionary dir: %w", err)
	}
	// Write to a sibling temp file so a failed download never leaves a partial dictionary.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(body, maxDownloadSize+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	if n > maxDownloadSize {
		return fmt.Errorf("dictionary exceeds %d bytes", maxDownloadSize)
	}
	return os.Rename(tmp.Name(), destPath)
}
