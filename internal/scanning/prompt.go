package scanning

import (
	"fmt"
	"strings"
)

// receiptPromptTemplate is shared by all backends. The %s is the list of
// valid category names offered as constrained choices.
const receiptPromptTemplate = `Act as an advanced OCR and data extraction assistant. Analyze the provided receipt and extract specific data points into a structured JSON format.

### Extraction Instructions:
1. **Vendor**: Identify the official name of the store or service provider.
2. **Date**: Extract the transaction date. Normalize to "YYYY-MM-DD".
3. **Amount**: Locate the final "Total" or "Amount Due". Exclude sub-totals.
4. **Currency**: Identify the currency symbol or code (e.g., USD, EUR, GBP).
5. **Category**: Assign the most relevant category from this list: [%s].

### Output Schema (Strict JSON):
{
    "vendor": "string or null",
    "date": "string or null",
    "amount": number or null,
    "currency": "string or null",
    "category": "string or null"
}

Important:
- Return ONLY the JSON object, no markdown code blocks, no commentary
- If you cannot find a field, use null for that field`

// audioPromptTemplate handles spoken expense notes ("spent twelve fifty at
// Shell this morning") instead of printed receipts.
const audioPromptTemplate = `Act as an expense tracking assistant. The provided audio is a spoken note describing a purchase. Listen carefully and extract the purchase details into a structured JSON format.

### Extraction Instructions:
1. **Vendor**: The store or service provider named in the note.
2. **Date**: Any date mentioned, normalized to "YYYY-MM-DD". Use null if no date is spoken.
3. **Amount**: The amount spent, as a number.
4. **Currency**: The currency mentioned or implied (e.g., USD, EUR, GBP).
5. **Category**: Assign the most relevant category from this list: [%s].

### Output Schema (Strict JSON):
{
    "vendor": "string or null",
    "date": "string or null",
    "amount": number or null,
    "currency": "string or null",
    "category": "string or null"
}

Important:
- Return ONLY the JSON object, no markdown code blocks, no commentary
- If you cannot find a field, use null for that field`

func receiptPrompt(validCategories []string) string {
	return fmt.Sprintf(receiptPromptTemplate, strings.Join(validCategories, ", "))
}

func audioPrompt(validCategories []string) string {
	return fmt.Sprintf(audioPromptTemplate, strings.Join(validCategories, ", "))
}
