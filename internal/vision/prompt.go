package vision

import "fmt"

const systemPrompt = `You are an expert at parsing utility bills (electricity/energy and gas bills).
Extract precise information from the bill document image.
Look for:
- The utility company name (to determine bill type: energy or gas)
- The billing period (dates or month/year)
- The total amount due or cost
- The consumption amount (in kW for electricity, m³ for gas)

You MUST respond with a valid JSON object matching this exact structure:
{
  "billType": "energy" or "gas",
  "period": "string with billing period",
  "cost": number (positive),
  "consumption": number (positive),
  "unit": "kW" or "m³",
  "confidence": number between 0 and 1,
  "notes": "optional string with additional notes"
}

Respond ONLY with the JSON object, no other text.`

func userPrompt(fileName string) string {
	return fmt.Sprintf(`Please analyze this utility bill image and extract the following information:
1. Bill type (energy/electricity or gas)
2. Billing period (month and year, or date range)
3. Total cost (in the currency shown on the bill)
4. Total consumption (in kW for energy bills or m³ for gas bills)
5. Confidence level of your extraction (0-1, where 1 is very confident)
6. Any additional notes (discounts, special charges, etc.)

Be precise and accurate. Extract exact numbers from the bill.
If you cannot determine a value with confidence, set confidence lower and note the issue.

File name: %s

Respond with a JSON object only.`, fileName)
}
