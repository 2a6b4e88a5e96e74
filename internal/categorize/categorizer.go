package categorize

import "strings"

// categoryKeywords maps a category name to the vendor substrings that imply
// it. Order matters twice over: the first category whose any keyword matches
// wins, and within a category keywords are tried in declaration order.
type categoryKeywords struct {
	category string
	keywords []string
}

var keywordTable = []categoryKeywords{
	{"Groceries", []string{
		"walmart", "kroger", "safeway", "trader joe", "whole foods", "aldi",
		"publix", "costco", "sam's club", "target", "grocery", "market",
		"food lion", "wegmans", "heb", "meijer", "sprouts", "fresh",
	}},
	{"Dining", []string{
		"restaurant", "cafe", "coffee", "mcdonald", "starbucks", "chipotle",
		"subway", "pizza", "burger", "taco", "wendy", "chick-fil-a",
		"dunkin", "panera", "deli", "bakery", "grill", "kitchen",
		"diner", "bistro", "eatery", "bar & grill",
	}},
	{"Fuel", []string{
		"shell", "exxon", "chevron", "bp", "gas station", "mobil",
		"speedway", "circle k", "wawa", "pilot", "loves", "fuel",
		"petroleum", "texaco", "phillips 66", "marathon", "valero",
	}},
	{"Utilities", []string{
		"electric", "water", "gas", "internet", "comcast", "at&t",
		"verizon", "t-mobile", "sprint", "utility", "power", "energy",
		"cable", "phone", "wireless", "spectrum", "xfinity",
	}},
	{"Shopping", []string{
		"amazon", "best buy", "apple store", "nordstrom", "macy",
		"kohls", "jcpenney", "ross", "tj maxx", "marshalls", "home depot",
		"lowes", "ikea", "bed bath", "williams sonoma", "pottery barn",
	}},
	{"Healthcare", []string{
		"pharmacy", "cvs", "walgreens", "hospital", "clinic", "doctor",
		"medical", "dental", "optometry", "vision", "health", "rx",
		"prescription", "urgent care", "lab", "diagnostic",
	}},
	{"Transportation", []string{
		"uber", "lyft", "taxi", "metro", "transit", "parking", "toll",
		"dmv", "auto", "car wash", "oil change", "tire", "mechanic",
		"rental car", "hertz", "enterprise", "avis",
	}},
	{"Entertainment", []string{
		"netflix", "spotify", "hulu", "disney", "movie", "theater",
		"cinema", "concert", "ticket", "amc", "regal", "game",
		"playstation", "xbox", "steam", "arcade",
	}},
}

// Match returns the category implied by a vendor name, matching keywords
// case-insensitively as substrings. It reports false when the vendor is
// empty or nothing matches; that is not an error, the receipt just stays
// uncategorized. Match never fails.
func Match(vendor string) (string, bool) {
	if vendor == "" {
		return "", false
	}
	lower := strings.ToLower(vendor)
	for _, entry := range keywordTable {
		for _, keyword := range entry.keywords {
			if strings.Contains(lower, keyword) {
				return entry.category, true
			}
		}
	}
	return "", false
}

// Categories returns the category names known to the keyword table, in
// declaration order.
func Categories() []string {
	names := make([]string, 0, len(keywordTable))
	for _, entry := range keywordTable {
		names = append(names, entry.category)
	}
	return names
}
