package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
)

var (
	ErrNegativeQuantity = errors.New("item quantity must not be negative")
)

// Header is the top block of a receipt
type Header struct {
	Logo         string `json:"logo,omitempty"` // path to an image file
	BusinessName string `json:"businessName"`
	Address      string `json:"address"`
	Phone        string `json:"phone"`
}

// OrderInfo identifies the order being printed
type OrderInfo struct {
	OrderNumber string `json:"orderNumber"`
	Date        string `json:"date"`
	Employee    string `json:"employee"`
}

// Item is a single receipt line
type Item struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Totals are printed as given; they are never recomputed from the items.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Footer is the bottom block of a receipt
type Footer struct {
	Message string `json:"message"`
	Barcode string `json:"barcode,omitempty"`
}

// Receipt is everything needed to print one receipt
type Receipt struct {
	Header    Header    `json:"header"`
	OrderInfo OrderInfo `json:"orderInfo"`
	Items     []Item    `json:"items"`
	Totals    Totals    `json:"totals"`
	Footer    Footer    `json:"footer"`
}

// Validate checks the constraints of the data model
func (r Receipt) Validate() error {
	for i, item := range r.Items {
		if item.Quantity < 0 {
			return fmt.Errorf("item %d (%q): %w", i, item.Name, ErrNegativeQuantity)
		}
	}
	return nil
}

// Decode reads a JSON receipt
func Decode(rd io.Reader) (Receipt, error) {
	var r Receipt
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return Receipt{}, fmt.Errorf("failed to decode receipt: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Receipt{}, err
	}
	return r, nil
}

// Load reads a JSON receipt from file
func Load(path string) (Receipt, error) {
	f, err := os.Open(path)
	if err != nil {
		return Receipt{}, err
	}
	defer f.Close()

	return Decode(f)
}

// Sample returns the demo receipt shown by the print UI
func Sample() Receipt {
	return Receipt{
		Header: Header{
			BusinessName: "My Shop",
			Address:      "123 Main St",
			Phone:        "555-555-5555",
		},
		OrderInfo: OrderInfo{
			OrderNumber: "001",
			Date:        "2025-02-15",
			Employee:    "Jane Doe",
		},
		Items: []Item{
			{Name: "Item 1", Quantity: 2, Price: decimal.RequireFromString("10.99")},
			{Name: "Item 2", Quantity: 1, Price: decimal.RequireFromString("5.49")},
		},
		Totals: Totals{
			Subtotal: decimal.RequireFromString("27.47"),
			Tax:      decimal.RequireFromString("2.75"),
			Total:    decimal.RequireFromString("30.22"),
		},
		Footer: Footer{
			Message: "Thank you for shopping with us!",
		},
	}
}
