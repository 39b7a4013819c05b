package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/pricelens/gateway/internal/domain"
	"github.com/pricelens/gateway/internal/usecase"
)

// maxTitleWidth truncates long product titles in the table
const maxTitleWidth = 40

var tableHeader = []string{"#", "Retailer", "Price", "MRP", "Off", "Rating", "Delivery", "Stock", "Title"}

func writeJSON(w io.Writer, cmp *domain.Comparison) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cmp)
}

// writeTable prints a comparison as an aligned table. Widths are measured
// in terminal cells so the rupee sign and CJK titles line up.
func writeTable(w io.Writer, cmp *domain.Comparison) error {
	rows := [][]string{tableHeader}
	for i, o := range cmp.Result.Offers {
		rows = append(rows, offerRow(i+1, o))
	}

	widths := make([]int, len(tableHeader))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (sorted by %s)\n\n", cmp.Query.Product, cmp.Result.SortKey)
	for r, row := range rows {
		writeRow(&b, row, widths)
		if r == 0 {
			sep := make([]string, len(widths))
			for i, width := range widths {
				sep[i] = strings.Repeat("-", width)
			}
			writeRow(&b, sep, widths)
		}
	}

	if len(cmp.Result.Offers) == 0 {
		b.WriteString("\nNo offers found.\n")
	} else {
		fmt.Fprintf(&b, "\nLowest price: %s", formatRupees(cmp.Result.LowestPrice))
		if cmp.Result.MaxSavings > 0 {
			fmt.Fprintf(&b, "   Save up to: %s", formatRupees(cmp.Result.MaxSavings))
		}
		b.WriteString("\n")
	}
	if len(cmp.Excluded) > 0 {
		fmt.Fprintf(&b, "No offer from: %s\n", strings.Join(cmp.Excluded, ", "))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeRow(b *strings.Builder, cells []string, widths []int) {
	for i, cell := range cells {
		if i > 0 {
			b.WriteString("  ")
		}
		if i == len(cells)-1 {
			b.WriteString(cell)
			continue
		}
		b.WriteString(runewidth.FillRight(cell, widths[i]))
	}
	b.WriteString("\n")
}

func offerRow(rank int, o domain.Offer) []string {
	mrp, off := "", ""
	if pct := usecase.DiscountPercent(o); pct > 0 {
		mrp = formatRupees(o.OriginalPrice)
		off = strconv.Itoa(pct) + "%"
	}
	rating := ""
	if o.Rating > 0 {
		rating = strconv.FormatFloat(o.Rating, 'f', 1, 64)
	}
	stock := "yes"
	if !o.InStock {
		stock = "no"
	}
	return []string{
		strconv.Itoa(rank),
		o.DisplayName,
		formatRupees(o.Price),
		mrp,
		off,
		rating,
		o.DeliveryCategory,
		stock,
		runewidth.Truncate(o.DisplayTitle, maxTitleWidth, "…"),
	}
}

// formatRupees renders an amount with Indian digit grouping, e.g. ₹1,23,456
func formatRupees(amount float64) string {
	whole := strconv.FormatFloat(amount, 'f', 0, 64)
	neg := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")

	if len(whole) > 3 {
		head, tail := whole[:len(whole)-3], whole[len(whole)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		if head != "" {
			groups = append([]string{head}, groups...)
		}
		whole = strings.Join(groups, ",") + "," + tail
	}

	if neg {
		return "-₹" + whole
	}
	return "₹" + whole
}
