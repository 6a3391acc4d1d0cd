// Sheetkit builds spreadsheet templates with dropdown validation and checks
// filled-in copies of them from the command line.
//
// Usage:
//
//	# List the registered templates
//	sheetkit templates
//
//	# Write the blank workbook for a template
//	sheetkit workbook sales_orders -o orders.xlsx
//
//	# Check a filled-in copy and write an annotated workbook
//	sheetkit validate sales_orders orders.csv --annotate orders_errors.xlsx
//
//	# Check template definition files
//	sheetkit lint ./templates
package main

func main() {
	Execute()
}
