package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
)

var (
	headingColor  = color.New(color.Bold)
	warningColor  = color.New(color.FgYellow)
	negativeColor = color.New(color.FgRed)
	okColor       = color.New(color.FgGreen)
)

func printShoppingRows(out io.Writer, title string, rows []inventory.ShoppingRow) {
	headingColor.Fprintln(out, title)
	if len(rows) == 0 {
		okColor.Fprintln(out, "  nothing to order")
		return
	}
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "UPC\tPRODUCT\tON HAND\tORDER\tUNIT\tVENDOR\tNOTE")
	for _, row := range rows {
		onHand := row.OnHand.String()
		if row.OnHand.IsNegative() {
			onHand = negativeColor.Sprint(onHand)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", row.UPC, row.ProductName, onHand, row.QtyToOrder, row.BaseUnit, row.PreferredVendor, row.Note)
	}
	_ = writer.Flush()
}

func printOnHand(out io.Writer, readings []inventory.OnHand) {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, headingColor.Sprint("UPC\tPURCHASED\tUSED\tADJUSTED\tON HAND\tUNIT"))
	for _, reading := range readings {
		onHand := reading.OnHand.String()
		if reading.OnHand.IsNegative() {
			onHand = negativeColor.Sprint(onHand)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n", reading.UPC, reading.Purchased, reading.Used, reading.Adjusted, onHand, reading.BaseUnit)
	}
	_ = writer.Flush()
}

func printUsage(out io.Writer, result inventory.UsageResult) {
	headingColor.Fprintf(out, "Usage for %s (%s)\n", result.Date, result.Mode)
	fmt.Fprintf(out, "  wrote %d rows, replaced %d\n", result.RowsWritten, result.RowsReplaced)
	printWarnings(out, "menu items without recipes", result.MissingRecipes)
	printWarnings(out, "ingredients missing from catalog", result.MissingCatalog)
	printWarnings(out, "invalid rows", result.InvalidRows)
}

func printNotification(out io.Writer, result inventory.NotificationResult) {
	switch {
	case result.Sent:
		okColor.Fprintf(out, "sent %d items to %d recipients (request %s)\n", result.Items, result.Recipients, result.RequestID)
	case !result.Decision.OK:
		warningColor.Fprintf(out, "not sent: %s\n", result.Decision.Reason)
	default:
		fmt.Fprintln(out, "not sent: shopping list is empty")
	}
	printWarnings(out, "invalid rows", result.InvalidRows)
}

func printWarnings(out io.Writer, label string, values []string) {
	if len(values) == 0 {
		return
	}
	warningColor.Fprintf(out, "  %s: %s\n", label, strings.Join(values, ", "))
}
