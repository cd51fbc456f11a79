package bookclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bookzone/pkg/domain"
	"bookzone/services/storefront/internal/apiclient"
)

// Client calls the /books endpoints of the API.
type Client struct {
	conn *apiclient.Conn
}

// NewClient binds the book endpoints to a connection.
func NewClient(conn *apiclient.Conn) *Client {
	return &Client{conn: conn}
}

// Input is the editable part of a book, sent as multipart form fields.
type Input struct {
	Title            string
	Author           string
	Category         string
	Price            float64
	Description      string
	ShortDescription string
	TelegramContact  string
	WhatsappContact  string
	IsActive         bool
	Cover            *apiclient.File
	PDF              *apiclient.File
}

// Fields returns the multipart text fields of in.
func (in Input) Fields() map[string]string {
	return map[string]string{
		"title":            strings.TrimSpace(in.Title),
		"author":           strings.TrimSpace(in.Author),
		"category":         strings.TrimSpace(in.Category),
		"price":            strconv.FormatFloat(in.Price, 'f', -1, 64),
		"description":      in.Description,
		"shortDescription": in.ShortDescription,
		"telegramContact":  strings.TrimSpace(in.TelegramContact),
		"whatsappContact":  strings.TrimSpace(in.WhatsappContact),
		"isActive":         strconv.FormatBool(in.IsActive),
	}
}

// Files returns the file parts that were provided.
func (in Input) Files() []apiclient.File {
	var files []apiclient.File
	if in.Cover != nil {
		cover := *in.Cover
		cover.Field = "coverImage"
		files = append(files, cover)
	}
	if in.PDF != nil {
		pdfFile := *in.PDF
		pdfFile.Field = "pdfFile"
		files = append(files, pdfFile)
	}
	return files
}

// Validate checks the fields the back-office requires before upload.
func (in Input) Validate(requireFiles bool) []string {
	var problems []string
	if strings.TrimSpace(in.Title) == "" {
		problems = append(problems, "Le titre est requis")
	}
	if strings.TrimSpace(in.Author) == "" {
		problems = append(problems, "L'auteur est requis")
	}
	if strings.TrimSpace(in.Category) == "" {
		problems = append(problems, "La catégorie est requise")
	}
	if in.Price < 0 {
		problems = append(problems, "Le prix doit être positif")
	}
	if requireFiles && in.PDF == nil {
		problems = append(problems, "Le fichier PDF est requis")
	}
	return problems
}

func bookPath(id string) string {
	return "/books/" + url.PathEscape(id)
}

func (c *Client) List(ctx context.Context) ([]domain.Book, error) {
	var books []domain.Book
	if err := c.conn.JSON(ctx, http.MethodGet, "/books", "", nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (c *Client) Get(ctx context.Context, id string) (domain.Book, error) {
	var book domain.Book
	if err := c.conn.JSON(ctx, http.MethodGet, bookPath(id), "/books/:id", nil, &book); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

func (c *Client) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	if err := c.conn.JSON(ctx, http.MethodGet, "/books/categories", "", nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// Create uploads a new book with its cover and PDF.
func (c *Client) Create(ctx context.Context, in Input) (domain.Book, error) {
	var book domain.Book
	err := c.conn.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/books",
		Form:   in.Fields(),
		Files:  in.Files(),
		Data:   true,
	}, &book)
	if err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// Update edits the metadata of a book.
func (c *Client) Update(ctx context.Context, id string, in Input) (domain.Book, error) {
	payload := map[string]any{
		"title":            strings.TrimSpace(in.Title),
		"author":           strings.TrimSpace(in.Author),
		"category":         strings.TrimSpace(in.Category),
		"price":            in.Price,
		"description":      in.Description,
		"shortDescription": in.ShortDescription,
		"telegramContact":  in.TelegramContact,
		"whatsappContact":  in.WhatsappContact,
		"isActive":         in.IsActive,
	}
	var book domain.Book
	if err := c.conn.JSON(ctx, http.MethodPut, bookPath(id), "/books/:id", payload, &book); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.conn.JSON(ctx, http.MethodDelete, bookPath(id), "/books/:id", nil, nil)
}

// RecordPurchase increments the purchase counter before a sale handled
// over a manual channel (Telegram, WhatsApp).
func (c *Client) RecordPurchase(ctx context.Context, id string) error {
	return c.conn.JSON(ctx, http.MethodPost, bookPath(id)+"/purchase", "/books/:id/purchase", nil, nil)
}

// Download fetches the purchased file of a book. The API either streams
// the PDF or answers with a JSON {"downloadUrl": ...}.
func (c *Client) Download(ctx context.Context, id string) (Download, error) {
	payload, err := c.conn.Fetch(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   bookPath(id) + "/download",
		Route:  "/books/:id/download",
	})
	if err != nil {
		return Download{}, err
	}
	if isJSON(payload.ContentType) {
		return downloadLink(payload.Body)
	}
	pages, err := pageCount(payload.Body)
	if err != nil {
		return Download{}, fmt.Errorf("book %s: %w", id, err)
	}
	filename := payload.Filename
	if filename == "" {
		filename = id + ".pdf"
	}
	return Download{Filename: filename, Pages: pages, Body: payload.Body}, nil
}
