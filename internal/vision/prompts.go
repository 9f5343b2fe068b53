package vision

import (
	"fmt"
	"strings"

	"github.com/sells-group/menu-cli/internal/model"
)

const classifySystemPrompt = `You review photographs posted for restaurants and decide whether each one shows a restaurant menu.

Count an image as a menu only when it lists food or drink items and the text is legible enough to read item names. Printed menus, menu boards, chalkboards, table tents and screenshots of digital menus all qualify.

These are NOT menus: photos of plated food or drinks, dining room or storefront shots, people or staff, logos, signage without items, and promotional flyers that do not list items.

Respond with a single JSON object and nothing else:
{
  "is_menu": true | false,
  "confidence_level": "high" | "medium" | "low",
  "reasoning": "one short sentence",
  "image_type": "printed_menu" | "menu_board" | "digital_menu" | "food_photo" | "interior" | "exterior" | "people" | "other"
}`

const classifyUserPrompt = `Is this photograph a readable restaurant menu? Answer with the JSON object only.`

const analyzeSystemPrompt = `You extract structured menu items from a photograph of a restaurant menu.

For every item you can read:
- "name" is required; copy it as printed.
- "description" only when the menu prints one.
- "price" as a plain number with no currency symbol. If several sizes are priced, use the smallest.
- "category" is the menu section heading the item appears under, lowercased.
- "calories", "protein", "carbs", "fat" (grams) only when the menu prints them or you are reasonably confident of a typical value for this exact dish. Leaving a value null is better than guessing badly.
- "serving_size" only when printed.

Never invent items that are not visible. Use null for anything unknown.

Respond with a single JSON object and nothing else:
{
  "menu_items": [
    {"name": "...", "description": null, "price": null, "category": null, "calories": null, "serving_size": null, "protein": null, "carbs": null, "fat": null}
  ],
  "total_items": 0,
  "has_prices": false,
  "has_descriptions": false
}`

const aggregateSystemPrompt = `You consolidate menu items extracted from several photographs of the same restaurant into one clean menu.

Rules:
1. Deduplicate: the same dish photographed twice appears once.
2. Consolidate variants that are clearly the same dish ("Chicken Caesar Salad" and "Caesar Salad w/ Chicken").
3. Clean names: fix obvious OCR errors and casing, keep the restaurant's wording.
4. Categorize with consistent lowercase categories. Prefer: appetizers, salads, soups, mains, pasta, pizza, burgers, sandwiches, seafood, steaks, chicken, vegetarian, sides, desserts, beverages.
5. Prices: when duplicates disagree keep the most recent or most reliable one.
6. Nutrition: keep values consistent across merged duplicates; keep null when unknown.
7. Keep the most complete description and union the "source_photos" of merged items.

Do not add dishes that are not in the input.

Respond with a single JSON object and nothing else:
{
  "menu_items": [
    {"name": "...", "description": null, "price": null, "category": null, "calories": null, "serving_size": null, "protein": null, "carbs": null, "fat": null, "dietary_tags": [], "allergens": [], "spice_level": null, "availability": null, "source_photos": []}
  ],
  "total_items": 0,
  "categories": [],
  "notes": ""
}`

const nutritionSystemPrompt = `You are a nutritionist estimating typical nutrition for a single restaurant serving of a dish.

Respond with a single JSON object and nothing else:
{"calories": 0, "protein": 0, "carbs": 0, "fat": 0, "confidence": "high" | "medium" | "low"}

Use grams for protein, carbs and fat. If you cannot estimate a value with reasonable confidence use null.`

func analyzeUserPrompt(ectx model.EntityContext) string {
	return fmt.Sprintf("Restaurant: %s\nLocation: %s\n\nExtract every menu item visible in this photograph as JSON.",
		orUnknown(ectx.Name), location(ectx))
}

func aggregateUserPrompt(ectx model.EntityContext, itemsJSON string, count int) string {
	return fmt.Sprintf("Restaurant: %s\nLocation: %s\n\nThese %d items were extracted from separate menu photographs. Consolidate them and return JSON.\n\n%s",
		orUnknown(ectx.Name), location(ectx), count, itemsJSON)
}

func nutritionUserPrompt(name, description string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dish: %s\n", name)
	if description != "" {
		fmt.Fprintf(&b, "Description: %s\n", description)
	}
	b.WriteString("Estimate its nutrition as JSON.")
	return b.String()
}

func location(ectx model.EntityContext) string {
	if ectx.Address != "" {
		return fmt.Sprintf("%s (%.5f, %.5f)", ectx.Address, ectx.Latitude, ectx.Longitude)
	}
	return fmt.Sprintf("%.5f, %.5f", ectx.Latitude, ectx.Longitude)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
