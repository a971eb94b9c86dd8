package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// ForURL returns an HTTP or FTP fetcher depending on the URL scheme.
func ForURL(rawURL string, httpOpts HTTPOptions, ftpOpts FTPOptions) Fetcher {
	if len(rawURL) >= 6 && rawURL[:6] == "ftp://" {
		return NewFTPFetcher(ftpOpts)
	}
	return NewHTTPFetcher(httpOpts)
}
