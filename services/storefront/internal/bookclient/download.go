package bookclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/tidwall/gjson"
)

// ErrNotPDF is returned when the download payload is not a readable PDF.
var ErrNotPDF = errors.New("download is not a readable pdf")

// Download is either a PDF body or a link the browser should follow.
type Download struct {
	Filename    string
	Pages       int
	Body        []byte
	RedirectURL string
}

// IsRedirect reports whether the file is served from RedirectURL.
func (d Download) IsRedirect() bool {
	return d.RedirectURL != ""
}

// WriteTo streams the PDF body.
func (d Download) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(d.Body)
	return int64(n), err
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func downloadLink(body []byte) (Download, error) {
	link := strings.TrimSpace(gjson.GetBytes(body, "data.downloadUrl").String())
	if link == "" {
		link = strings.TrimSpace(gjson.GetBytes(body, "downloadUrl").String())
	}
	if link == "" {
		return Download{}, errors.New("download response carried no link")
	}
	return Download{RedirectURL: link}, nil
}

func pageCount(body []byte) (pages int, err error) {
	if !bytes.HasPrefix(body, []byte("%PDF-")) {
		return 0, ErrNotPDF
	}
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("%w: %v", ErrNotPDF, r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	pages = reader.NumPage()
	if pages <= 0 {
		return 0, ErrNotPDF
	}
	return pages, nil
}
