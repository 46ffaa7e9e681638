package notification

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jbalwikobra/storefront/internal/core/datamodel/notification"
)

// OrderContext carries the order fields a template may reference.
type OrderContext struct {
	OrderID      int64
	CustomerName string
	ProductName  string
	AmountIDR    int64
	OrderType    string
}

// Message is the composed dispatch input: a rendered title/body plus the
// metadata the channels need.
type Message struct {
	Category string
	Title    string
	Body     string
	OrderID  int64
}

const (
	fallbackCustomerName = "Unknown"
	fallbackProductName  = "Produk"
)

// Composer renders fixed-structure, localized messages. Rendering is
// deterministic and total: every placeholder has a fallback, so the same
// inputs always reproduce the same bytes and rendering never fails.
type Composer struct {
	logger *slog.Logger
}

func NewComposer(logger *slog.Logger) *Composer {
	return &Composer{
		logger: logger,
	}
}

func (c *Composer) Compose(category string, octx OrderContext) Message {
	name := octx.CustomerName
	if name == "" {
		name = fallbackCustomerName
	}
	product := octx.ProductName
	if product == "" {
		product = fallbackProductName
	}
	amount := FormatRupiah(octx.AmountIDR)

	var title, body string
	switch category {
	case notification.CategoryPaidOrder:
		title = "Pesanan Dibayar"
		body = fmt.Sprintf("Pembayaran diterima! %s telah membayar %s untuk %s.", name, amount, product)
	case notification.CategoryNewOrder:
		title = "Pesanan Baru"
		body = fmt.Sprintf("%s membuat pesanan baru: %s (%s).", name, product, amount)
	case notification.CategoryUserSignup:
		title = "Pengguna Baru"
		body = fmt.Sprintf("Pengguna baru mendaftar: %s.", name)
	default:
		// Unknown categories still render something usable rather than
		// failing the dispatch.
		c.logger.Warn("composing message for unrecognized category", "category", category)
		title = "Notifikasi"
		body = fmt.Sprintf("%s: %s (%s).", name, product, amount)
	}

	return Message{
		Category: category,
		Title:    title,
		Body:     body,
		OrderID:  octx.OrderID,
	}
}

// FormatRupiah renders minor-unit amounts as "Rp150.000" with dot-grouped
// thousands and no decimals.
func FormatRupiah(amount int64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	digits := strconv.FormatInt(amount, 10)
	var out []byte
	for i, d := range []byte(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, '.')
		}
		out = append(out, d)
	}

	if negative {
		return "-Rp" + string(out)
	}
	return "Rp" + string(out)
}
