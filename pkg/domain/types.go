package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
)

// Terminal reports whether the status will not change again.
func (s PurchaseStatus) Terminal() bool {
	return s == PurchaseCompleted || s == PurchaseFailed
}

type User struct {
	ID        string    `json:"_id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Role      UserRole  `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Asset is an uploaded file reference. The API sends it either as an
// object or as a bare URL string.
type Asset struct {
	PublicID     string `json:"public_id,omitempty"`
	URL          string `json:"url"`
	OriginalName string `json:"originalName,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Asset{}
		return nil
	}
	if data[0] == '"' {
		var url string
		if err := json.Unmarshal(data, &url); err != nil {
			return err
		}
		*a = Asset{URL: url}
		return nil
	}
	type plain Asset
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Asset(p)
	return nil
}

type Book struct {
	ID               string    `json:"_id"`
	Title            string    `json:"title"`
	Author           string    `json:"author"`
	Category         string    `json:"category"`
	Price            float64   `json:"price"`
	Description      string    `json:"description"`
	ShortDescription string    `json:"shortDescription"`
	CoverImage       Asset     `json:"coverImage"`
	PDFFile          Asset     `json:"pdfFile"`
	IsActive         bool      `json:"isActive"`
	PurchaseCount    int       `json:"purchaseCount"`
	ViewCount        int       `json:"viewCount"`
	CreatedAt        time.Time `json:"createdAt"`
	TelegramContact  string    `json:"telegramContact"`
	WhatsappContact  string    `json:"whatsappContact"`
	AddedBy          string    `json:"addedBy"`
}

// CustomerInfo is the buyer block forwarded to the payment gateway.
type CustomerInfo struct {
	Name        string `json:"name"`
	Surname     string `json:"surname"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	Address     string `json:"address"`
	City        string `json:"city"`
	Country     string `json:"country"`
	State       string `json:"state"`
	ZipCode     string `json:"zip_code"`
}

type PurchaseBook struct {
	ID         string `json:"_id"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	CoverImage Asset  `json:"coverImage"`
	PDFFile    Asset  `json:"pdfFile"`
}

type Purchase struct {
	ID            string         `json:"_id"`
	UserID        string         `json:"user_id"`
	BookID        string         `json:"book_id"`
	Price         float64        `json:"price"`
	Status        PurchaseStatus `json:"status"`
	TransactionID string         `json:"transaction_id"`
	Customer      CustomerInfo   `json:"customer_info"`
	PurchasedAt   time.Time      `json:"purchased_at"`
	Book          PurchaseBook   `json:"book"`
}

type Message struct {
	ID        string    `json:"_id"`
	From      string    `json:"from"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"isRead"`
	Response  string    `json:"response,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Totals struct {
	TotalUsers         int `json:"totalUsers"`
	NewUsersLast30Days int `json:"newUsersLast30Days"`
	ActiveBooks        int `json:"activeBooks"`
	NewBooksLast30Days int `json:"newBooksLast30Days"`
	UnreadMessages     int `json:"unreadMessages"`
	TotalPurchases     int `json:"totalPurchases"`
}

type Stats struct {
	Totals       Totals `json:"stats"`
	RecentUsers  []User `json:"recentUsers"`
	PopularBooks []Book `json:"popularBooks"`
}
